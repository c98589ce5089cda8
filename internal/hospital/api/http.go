// Package api exposes the hospital registry over HTTP: provisioning,
// readiness, bed management and the distance-ranked listing paramedics use
// to pick a destination.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	casedomain "github.com/djelfa-health/dispatch/internal/case/domain"
	"github.com/djelfa-health/dispatch/internal/geo"
	"github.com/djelfa-health/dispatch/internal/hospital/domain"
	"github.com/djelfa-health/dispatch/internal/shared/auth"
	"github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/events"
	"github.com/djelfa-health/dispatch/internal/shared/metrics"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Dispatcher is the slice of the dispatch core this handler needs: the
// ranked candidate listing and the per-hospital case inbox.
type Dispatcher interface {
	ListCandidateHospitals(ctx context.Context, origin types.Location, onlyAvailable bool) ([]geo.RankedHospital, error)
	ListCases(ctx context.Context, filter casedomain.Filter) ([]*casedomain.Case, error)
}

// Handler provides HTTP handlers for the hospital module
type Handler struct {
	registry   domain.Registry
	dispatcher Dispatcher
	bus        events.Bus
}

// NewHandler creates a new hospital handler
func NewHandler(registry domain.Registry, dispatcher Dispatcher, bus events.Bus) *Handler {
	return &Handler{registry: registry, dispatcher: dispatcher, bus: bus}
}

// Routes registers the hospital routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListHospitals)
	r.Post("/", h.CreateHospital)

	r.Route("/{hospitalID}", func(r chi.Router) {
		r.Get("/", h.GetHospital)
		r.Post("/deactivate", h.DeactivateHospital)
		r.Put("/readiness", h.SetReadiness)
		r.Get("/cases", h.ListHospitalCases)

		r.Route("/beds/{category}", func(r chi.Router) {
			r.Put("/", h.SetBedTotals)
			r.Post("/adjust", h.AdjustBeds)
		})
	})

	return r
}

// --- Request types ---

type CreateHospitalRequest struct {
	Name        string          `json:"name"`
	Location    *types.Location `json:"location,omitempty"`
	ERAvailable bool            `json:"er_available"`
	Beds        map[string]int  `json:"beds,omitempty"`
}

type SetReadinessRequest struct {
	Available bool `json:"available"`
}

type SetBedTotalsRequest struct {
	Total int `json:"total"`
}

type AdjustBedsRequest struct {
	Delta int `json:"delta"`
}

// --- Handlers ---

// ListHospitals returns hospitals ranked by distance when the caller
// provides an origin, or the plain registry listing otherwise.
func (h *Handler) ListHospitals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("lat") != "" || q.Get("lng") != "" {
		lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
		lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
		if err1 != nil || err2 != nil {
			writeError(w, errors.BadRequest("lat and lng must both be valid coordinates"))
			return
		}

		onlyAvailable, _ := strconv.ParseBool(q.Get("only_available"))
		ranked, err := h.dispatcher.ListCandidateHospitals(r.Context(), types.Location{
			Latitude:  lat,
			Longitude: lng,
		}, onlyAvailable)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hospitals": rankedResponse(ranked),
			"count":     len(ranked),
		})
		return
	}

	hospitals, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hospitals": hospitals,
		"count":     len(hospitals),
	})
}

func (h *Handler) CreateHospital(w http.ResponseWriter, r *http.Request) {
	var req CreateHospitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	hospital, err := domain.NewHospital(req.Name, req.Location)
	if err != nil {
		writeError(w, errors.Validation(err.Error(), nil))
		return
	}
	hospital.SetReadiness(req.ERAvailable)
	for category, total := range req.Beds {
		if err := hospital.SetBedTotals(category, total); err != nil {
			writeError(w, errors.Validation(err.Error(), nil))
			return
		}
	}

	if err := h.registry.Create(r.Context(), hospital); err != nil {
		writeError(w, err)
		return
	}
	h.publish(r, "hospital.registered", hospital.ID, map[string]any{"name": hospital.Name})
	writeJSON(w, http.StatusCreated, hospital)
}

func (h *Handler) GetHospital(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid hospital ID"))
		return
	}

	hospital, err := h.registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hospital)
}

func (h *Handler) DeactivateHospital(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid hospital ID"))
		return
	}

	hospital, err := h.registry.Deactivate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.publish(r, "hospital.deactivated", id, nil)
	writeJSON(w, http.StatusOK, hospital)
}

func (h *Handler) SetReadiness(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid hospital ID"))
		return
	}
	if err := authorizeHospital(r, id); err != nil {
		writeError(w, err)
		return
	}

	var req SetReadinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	hospital, err := h.registry.SetReadiness(r.Context(), id, req.Available)
	if err != nil {
		writeError(w, err)
		return
	}
	h.publish(r, "hospital.readiness_changed", id, map[string]any{"er_available": req.Available})
	writeJSON(w, http.StatusOK, hospital)
}

func (h *Handler) SetBedTotals(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid hospital ID"))
		return
	}
	if err := authorizeHospital(r, id); err != nil {
		writeError(w, err)
		return
	}

	category := chi.URLParam(r, "category")
	var req SetBedTotalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	hospital, err := h.registry.SetBedTotals(r.Context(), id, category, req.Total)
	if err != nil {
		writeError(w, err)
		return
	}
	h.publish(r, "hospital.beds_changed", id, map[string]any{
		"category": category,
		"occupied": hospital.Beds[category].Occupied,
		"total":    hospital.Beds[category].Total,
	})
	writeJSON(w, http.StatusOK, hospital)
}

func (h *Handler) AdjustBeds(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid hospital ID"))
		return
	}
	if err := authorizeHospital(r, id); err != nil {
		writeError(w, err)
		return
	}

	category := chi.URLParam(r, "category")
	var req AdjustBedsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Delta == 0 {
		writeError(w, errors.BadRequest("delta must not be zero"))
		return
	}

	hospital, err := h.registry.AdjustBeds(r.Context(), id, category, req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RecordBedAdjustment(category, req.Delta)
	h.publish(r, "hospital.beds_changed", id, map[string]any{
		"category": category,
		"occupied": hospital.Beds[category].Occupied,
		"total":    hospital.Beds[category].Total,
	})
	writeJSON(w, http.StatusOK, hospital)
}

// ListHospitalCases is the hospital's inbox: its cases, pending first by
// default.
func (h *Handler) ListHospitalCases(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid hospital ID"))
		return
	}
	if err := authorizeHospital(r, id); err != nil {
		writeError(w, err)
		return
	}

	filter := casedomain.Filter{
		HospitalID: id,
		Status:     casedomain.StatusPending,
	}
	if s := r.URL.Query().Get("status"); s != "" {
		if s == "all" {
			filter.Status = ""
		} else {
			filter.Status = casedomain.Status(s)
		}
	}

	cases, err := h.dispatcher.ListCases(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

// publish emits a hospital domain event, fire and forget
func (h *Handler) publish(r *http.Request, eventType string, hospitalID types.ID, data map[string]any) {
	if h.bus == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["hospital_id"] = hospitalID.String()

	event := events.NewEvent(eventType, "hospital-registry", data)
	if actor := auth.GetActor(r.Context()); actor != nil {
		event = event.WithActor(actor.ID, string(actor.Role))
	}
	_ = h.bus.Publish(r.Context(), event)
}

// authorizeHospital allows admins and the hospital's own staff. With no
// authenticated actor the check is skipped, matching deployments that run
// without the auth middleware.
func authorizeHospital(r *http.Request, hospitalID types.ID) error {
	actor := auth.GetActor(r.Context())
	if actor == nil || actor.Role == auth.RoleAdmin || actor.IsHospital(hospitalID) {
		return nil
	}
	return errors.Forbidden("not authorized for this hospital")
}

type rankedHospitalResponse struct {
	Hospital   domain.Hospital `json:"hospital"`
	DistanceKm float64         `json:"distance_km"`
	Eligible   bool            `json:"eligible"`
}

func rankedResponse(ranked []geo.RankedHospital) []rankedHospitalResponse {
	out := make([]rankedHospitalResponse, 0, len(ranked))
	for _, rh := range ranked {
		out = append(out, rankedHospitalResponse{
			Hospital:   rh.Hospital,
			DistanceKm: geo.RoundKm(rh.DistanceKm),
			Eligible:   rh.Eligible,
		})
	}
	return out
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
