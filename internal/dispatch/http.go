package dispatch

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	casedomain "github.com/djelfa-health/dispatch/internal/case/domain"
	"github.com/djelfa-health/dispatch/internal/shared/auth"
	"github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Handler provides HTTP handlers for case dispatch
type Handler struct {
	service *Service
}

// NewHandler creates a new dispatch handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the case routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListCases)
	r.Post("/", h.SubmitCase)

	r.Route("/{caseID}", func(r chi.Router) {
		r.Get("/", h.GetCase)
		r.Post("/resolve", h.ResolveCase)
		r.Post("/complete", h.CompleteCase)
	})

	return r
}

// --- Request types ---

type SubmitCaseRequest struct {
	PatientInfo casedomain.PatientInfo `json:"patient_info"`
	HospitalID  types.ID               `json:"assigned_hospital_id"`

	// ParamedicID is used when no authenticated actor is present
	ParamedicID types.ID `json:"paramedic_id,omitempty"`

	// Origin lets a rejection for an unavailable hospital carry ranked
	// alternatives back to the paramedic.
	Origin *types.Location `json:"origin,omitempty"`
}

type ResolveCaseRequest struct {
	Outcome     casedomain.Status `json:"outcome"`
	BedCategory string            `json:"bed_category,omitempty"`
	ActorID     types.ID          `json:"actor_id,omitempty"`
}

type CompleteCaseRequest struct {
	ActorID types.ID `json:"actor_id,omitempty"`
}

// --- Handlers ---

func (h *Handler) SubmitCase(w http.ResponseWriter, r *http.Request) {
	var req SubmitCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	paramedicID := req.ParamedicID
	if actor := auth.GetActor(r.Context()); actor != nil {
		paramedicID = actor.ID
	}

	c, err := h.service.SubmitCase(r.Context(), req.PatientInfo, req.HospitalID, paramedicID, req.Origin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	filter := casedomain.Filter{}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = casedomain.Status(s)
	}
	if p := r.URL.Query().Get("paramedic_id"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid paramedic ID"))
			return
		}
		filter.ParamedicID = id
	}
	if hID := r.URL.Query().Get("hospital_id"); hID != "" {
		id, err := types.ParseID(hID)
		if err != nil {
			writeError(w, errors.BadRequest("invalid hospital ID"))
			return
		}
		filter.HospitalID = id
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			writeError(w, errors.BadRequest("invalid limit"))
			return
		}
		filter.Limit = limit
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		offset, err := strconv.Atoi(o)
		if err != nil || offset < 0 {
			writeError(w, errors.BadRequest("invalid offset"))
			return
		}
		filter.Offset = offset
	}

	// Paramedics see their own cases unless they ask for a narrower view
	if actor := auth.GetActor(r.Context()); actor != nil {
		switch actor.Role {
		case auth.RoleParamedic:
			filter.ParamedicID = actor.ID
		case auth.RoleHospital:
			filter.HospitalID = actor.HospitalID
		}
	}

	cases, err := h.service.ListCases(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid case ID"))
		return
	}

	c, err := h.service.GetCase(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if actor := auth.GetActor(r.Context()); actor != nil {
		if !canViewCase(actor, c) {
			writeError(w, errors.Forbidden("no access to this case"))
			return
		}
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ResolveCase(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid case ID"))
		return
	}

	var req ResolveCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.ResolveCase(r.Context(), id, req.Outcome, resolveActorID(r, req.ActorID), req.BedCategory)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CompleteCase(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid case ID"))
		return
	}

	var req CompleteCaseRequest
	if r.Body != nil {
		// Body is optional here
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	c, err := h.service.CompleteCase(r.Context(), id, resolveActorID(r, req.ActorID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// resolveActorID prefers the authenticated actor over any ID in the request
// body. Hospital staff act as their hospital.
func resolveActorID(r *http.Request, fallback types.ID) types.ID {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		return fallback
	}
	if actor.Role == auth.RoleHospital {
		return actor.HospitalID
	}
	return actor.ID
}

func canViewCase(actor *auth.Actor, c *casedomain.Case) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleHospital:
		return actor.HospitalID == c.HospitalID
	default:
		return actor.ID == c.ParamedicID
	}
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
