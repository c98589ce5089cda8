// Package dispatch orchestrates case routing across the hospital registry,
// the case store and the geo ranking. It owns the accept protocol: a case
// acceptance and its bed reservation either both land or neither does.
package dispatch

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	casedomain "github.com/djelfa-health/dispatch/internal/case/domain"
	"github.com/djelfa-health/dispatch/internal/geo"
	hospitaldomain "github.com/djelfa-health/dispatch/internal/hospital/domain"
	apperrors "github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/events"
	"github.com/djelfa-health/dispatch/internal/shared/logging"
	"github.com/djelfa-health/dispatch/internal/shared/metrics"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

const eventSource = "dispatch-core"

// Service coordinates hospitals, cases and the event bus
type Service struct {
	registry           hospitaldomain.Registry
	cases              casedomain.Repository
	bus                events.Bus
	defaultBedCategory string
	log                zerolog.Logger
}

// NewService creates the dispatch service
func NewService(registry hospitaldomain.Registry, cases casedomain.Repository, bus events.Bus, defaultBedCategory string) *Service {
	if defaultBedCategory == "" {
		defaultBedCategory = "Emergency"
	}
	return &Service{
		registry:           registry,
		cases:              cases,
		bus:                bus,
		defaultBedCategory: defaultBedCategory,
		log:                logging.Component("dispatch"),
	}
}

// ListCandidateHospitals returns active hospitals ranked by distance from
// origin. Deactivated hospitals never appear; with onlyAvailable the list
// also drops hospitals whose ER is closed.
func (s *Service) ListCandidateHospitals(ctx context.Context, origin types.Location, onlyAvailable bool) ([]geo.RankedHospital, error) {
	if !origin.Valid() {
		return nil, apperrors.BadRequest("a valid origin location is required")
	}

	hospitals, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	active := hospitals[:0]
	for _, h := range hospitals {
		if h.Active {
			active = append(active, h)
		}
	}

	metrics.RecordRankingRequest()
	return geo.Rank(origin, active, geo.Filter{OnlyAvailable: onlyAvailable}), nil
}

// SubmitCase creates a pending case against the chosen hospital. The
// hospital must still be accepting cases at submission time; if it closed
// between ranking and submission the error carries a fresh candidate list
// so the paramedic can re-route without another round trip.
func (s *Service) SubmitCase(ctx context.Context, info casedomain.PatientInfo, hospitalID, paramedicID types.ID, origin *types.Location) (*casedomain.Case, error) {
	h, err := s.registry.Get(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if !h.AcceptsCases() {
		appErr := apperrors.HospitalUnavailable(hospitalID.String())
		if origin != nil && origin.Valid() {
			if ranked, rankErr := s.ListCandidateHospitals(ctx, *origin, true); rankErr == nil {
				appErr.WithDetail("alternatives", summarizeRanked(ranked))
			}
		}
		return nil, appErr
	}

	c, err := casedomain.NewCase(info, hospitalID, paramedicID)
	if err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, err
	}

	metrics.RecordCaseSubmitted()
	s.publishCaseEvents(ctx, c, RoleParamedic)
	s.log.Info().
		Str("case_id", c.ID.String()).
		Str("hospital_id", hospitalID.String()).
		Msg("case submitted")
	return c, nil
}

// Roles recorded on published events
const (
	RoleParamedic = "paramedic"
	RoleHospital  = "hospital"
)

// ResolveCase applies an accepted or rejected outcome to a pending case.
// Acceptance reserves one bed in bedCategory (the default category when
// empty). If the reservation fails on capacity, the acceptance is rolled
// back and the case returns to pending, so a full hospital never holds a
// phantom acceptance.
func (s *Service) ResolveCase(ctx context.Context, caseID types.ID, outcome casedomain.Status, actorID types.ID, bedCategory string) (*casedomain.Case, error) {
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	priorStatus := c.Status

	changed, err := c.Resolve(outcome, actorID)
	if err != nil {
		return nil, mapTransitionError(err)
	}
	if !changed {
		// Replay of an already-applied outcome: the bed was reserved the
		// first time, never twice.
		return c, nil
	}

	if outcome == casedomain.StatusAccepted {
		if bedCategory == "" {
			bedCategory = s.defaultBedCategory
		}
		c.BedCategory = bedCategory
	}

	if err := s.cases.UpdateStatus(ctx, c, priorStatus); err != nil {
		return s.recoverFromRace(ctx, caseID, outcome, err)
	}

	if outcome == casedomain.StatusAccepted {
		if _, err := s.registry.AdjustBeds(ctx, c.HospitalID, c.BedCategory, +1); err != nil {
			return nil, s.compensateAcceptance(ctx, c, err)
		}
		metrics.RecordBedAdjustment(c.BedCategory, +1)
	}

	metrics.RecordCaseTransition(string(priorStatus), string(outcome))
	s.publishCaseEvents(ctx, c, actorRole(c, actorID))
	s.log.Info().
		Str("case_id", c.ID.String()).
		Str("outcome", string(outcome)).
		Msg("case resolved")
	return c, nil
}

// CompleteCase marks an accepted case completed and releases its bed. The
// release is best effort: a failure is logged as a capacity discrepancy but
// the completion stands, since the patient outcome is the record that
// matters.
func (s *Service) CompleteCase(ctx context.Context, caseID types.ID, actorHospitalID types.ID) (*casedomain.Case, error) {
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	priorStatus := c.Status

	changed, err := c.Complete(actorHospitalID)
	if err != nil {
		return nil, mapTransitionError(err)
	}
	if !changed {
		return c, nil
	}

	if err := s.cases.UpdateStatus(ctx, c, priorStatus); err != nil {
		return s.recoverFromRace(ctx, caseID, casedomain.StatusCompleted, err)
	}

	if c.BedCategory != "" {
		if _, err := s.registry.AdjustBeds(ctx, c.HospitalID, c.BedCategory, -1); err != nil {
			s.log.Warn().
				Err(err).
				Str("case_id", c.ID.String()).
				Str("hospital_id", c.HospitalID.String()).
				Str("category", c.BedCategory).
				Msg("bed release failed, capacity discrepancy")
		} else {
			metrics.RecordBedAdjustment(c.BedCategory, -1)
		}
	}

	metrics.RecordCaseTransition(string(priorStatus), string(casedomain.StatusCompleted))
	s.publishCaseEvents(ctx, c, RoleHospital)
	s.log.Info().Str("case_id", c.ID.String()).Msg("case completed")
	return c, nil
}

// GetCase returns one case
func (s *Service) GetCase(ctx context.Context, id types.ID) (*casedomain.Case, error) {
	return s.cases.Get(ctx, id)
}

// ListCases returns cases matching the filter, newest first
func (s *Service) ListCases(ctx context.Context, filter casedomain.Filter) ([]*casedomain.Case, error) {
	return s.cases.List(ctx, filter)
}

// compensateAcceptance undoes an acceptance whose bed reservation failed.
// On capacity errors the case goes back to pending and the caller gets the
// capacity error; a failed rollback is surfaced as an internal error because
// the store and the registry now disagree.
func (s *Service) compensateAcceptance(ctx context.Context, c *casedomain.Case, reserveErr error) error {
	if !errors.Is(reserveErr, apperrors.ErrCapacity) {
		// Registry unreachable or hospital vanished mid-flight: still roll
		// back, but report the original failure.
		s.rollbackToPending(ctx, c)
		return apperrors.Wrap(reserveErr, "bed reservation failed")
	}

	metrics.RecordCapacityConflict()
	if !s.rollbackToPending(ctx, c) {
		return apperrors.Internal(reserveErr).
			WithDetail("case_id", c.ID.String()).
			WithDetail("rollback", "failed")
	}

	metrics.RecordCompensatedRollback()
	var appErr *apperrors.AppError
	if errors.As(reserveErr, &appErr) {
		return appErr.WithDetail("compensated", true).WithDetail("case_id", c.ID.String())
	}
	return apperrors.Capacity(reserveErr.Error()).WithDetail("compensated", true)
}

func (s *Service) rollbackToPending(ctx context.Context, c *casedomain.Case) bool {
	reverted := c.Clone()
	if err := reverted.RevertToPending(); err != nil {
		s.log.Error().Err(err).Str("case_id", c.ID.String()).Msg("cannot revert acceptance")
		return false
	}
	if err := s.cases.UpdateStatus(ctx, reverted, casedomain.StatusAccepted); err != nil {
		s.log.Error().Err(err).Str("case_id", c.ID.String()).Msg("acceptance rollback failed")
		return false
	}
	s.log.Warn().Str("case_id", c.ID.String()).Msg("acceptance rolled back, case back to pending")
	return true
}

// recoverFromRace handles a lost compare-and-set on the case status. If the
// concurrent writer applied the same outcome the request is treated as an
// idempotent replay; otherwise the stored status wins and the caller gets a
// transition conflict.
func (s *Service) recoverFromRace(ctx context.Context, caseID types.ID, desired casedomain.Status, updateErr error) (*casedomain.Case, error) {
	if !errors.Is(updateErr, apperrors.ErrConflict) {
		return nil, updateErr
	}

	current, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, updateErr
	}
	if current.Status == desired {
		return current, nil
	}
	return nil, apperrors.InvalidTransition("case was resolved concurrently with a different outcome").
		WithDetail("status", string(current.Status))
}

func (s *Service) publishCaseEvents(ctx context.Context, c *casedomain.Case, role string) {
	for _, e := range c.DomainEvents() {
		event := events.NewEvent(e.Type, eventSource, map[string]any{
			"case_id":     e.CaseID.String(),
			"hospital_id": c.HospitalID.String(),
			"status":      string(c.Status),
		}).WithActor(e.ActorID, role)

		if err := s.bus.Publish(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("event_type", e.Type).Msg("event publish failed")
		}
	}
}

func mapTransitionError(err error) error {
	switch {
	case errors.Is(err, casedomain.ErrNotOwner):
		return apperrors.Forbidden("case belongs to another hospital")
	case errors.Is(err, casedomain.ErrInvalidTransition):
		return apperrors.InvalidTransition(err.Error())
	default:
		return apperrors.BadRequest(err.Error())
	}
}

func actorRole(c *casedomain.Case, actorID types.ID) string {
	if actorID == c.ParamedicID {
		return RoleParamedic
	}
	return RoleHospital
}

func summarizeRanked(ranked []geo.RankedHospital) []map[string]any {
	out := make([]map[string]any, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, map[string]any{
			"hospital_id": r.Hospital.ID.String(),
			"name":        r.Hospital.Name,
			"distance_km": geo.RoundKm(r.DistanceKm),
		})
	}
	return out
}
