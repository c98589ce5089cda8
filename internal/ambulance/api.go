package ambulance

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/djelfa-health/dispatch/internal/geo"
	"github.com/djelfa-health/dispatch/internal/shared/auth"
	"github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Handler provides HTTP handlers for ambulance presence
type Handler struct {
	tracker *Tracker
}

// NewHandler creates a new ambulance handler
func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

// Routes registers the ambulance routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListNearby)
	r.Put("/position", h.ReportPosition)

	return r
}

type ReportPositionRequest struct {
	AmbulanceID types.ID       `json:"ambulance_id,omitempty"`
	Location    types.Location `json:"location"`
}

func (h *Handler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	var req ReportPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	ambulanceID := req.AmbulanceID
	if actor := auth.GetActor(r.Context()); actor != nil {
		ambulanceID = actor.ID
	}

	pos, err := h.tracker.Report(ambulanceID, req.Location)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (h *Handler) ListNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, errors.BadRequest("lat and lng must both be valid coordinates"))
		return
	}

	limit := 0
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, errors.BadRequest("invalid limit"))
			return
		}
		limit = n
	}

	nearby, err := h.tracker.Nearby(types.Location{Latitude: lat, Longitude: lng}, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	for i := range nearby {
		nearby[i].DistanceKm = geo.RoundKm(nearby[i].DistanceKm)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ambulances": nearby,
		"count":      len(nearby),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
