package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	casesSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_cases_submitted_total",
			Help: "Total number of patient cases submitted",
		},
	)

	caseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_case_transitions_total",
			Help: "Total number of case lifecycle transitions",
		},
		[]string{"from_status", "to_status"},
	)

	bedAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_bed_adjustments_total",
			Help: "Total number of bed occupancy adjustments",
		},
		[]string{"category", "direction"},
	)

	capacityConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_capacity_conflicts_total",
			Help: "Total number of rejected bed adjustments that would violate capacity",
		},
	)

	rankingRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_ranking_requests_total",
			Help: "Total number of candidate-hospital ranking requests",
		},
	)

	compensatedRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_compensated_rollbacks_total",
			Help: "Total number of case acceptances rolled back after a failed bed reservation",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath caps path cardinality for metrics labels
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordCaseSubmitted records a case submission
func RecordCaseSubmitted() {
	casesSubmitted.Inc()
}

// RecordCaseTransition records a case lifecycle transition
func RecordCaseTransition(fromStatus, toStatus string) {
	caseTransitions.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordBedAdjustment records a successful bed occupancy change
func RecordBedAdjustment(category string, delta int) {
	direction := "reserve"
	if delta < 0 {
		direction = "release"
	}
	bedAdjustments.WithLabelValues(category, direction).Inc()
}

// RecordCapacityConflict records a bed adjustment refused by the capacity invariant
func RecordCapacityConflict() {
	capacityConflicts.Inc()
}

// RecordRankingRequest records one candidate-hospital ranking request
func RecordRankingRequest() {
	rankingRequests.Inc()
}

// RecordCompensatedRollback records an accept rolled back to pending
func RecordCompensatedRollback() {
	compensatedRollbacks.Inc()
}
