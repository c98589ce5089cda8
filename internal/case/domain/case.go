// Package domain holds the patient case aggregate and its lifecycle state
// machine: pending -> accepted|rejected, accepted -> completed. rejected
// and completed are terminal.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Status is the lifecycle state of a patient case
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// BloodType is an ABO/Rh blood group, or "unknown" when not recorded
type BloodType string

const (
	BloodAPos    BloodType = "A+"
	BloodANeg    BloodType = "A-"
	BloodBPos    BloodType = "B+"
	BloodBNeg    BloodType = "B-"
	BloodOPos    BloodType = "O+"
	BloodONeg    BloodType = "O-"
	BloodABPos   BloodType = "AB+"
	BloodABNeg   BloodType = "AB-"
	BloodUnknown BloodType = "unknown"
)

// Valid reports whether the blood type is a known group or "unknown"
func (b BloodType) Valid() bool {
	switch b {
	case BloodAPos, BloodANeg, BloodBPos, BloodBNeg,
		BloodOPos, BloodONeg, BloodABPos, BloodABNeg, BloodUnknown:
		return true
	}
	return false
}

// PatientInfo is the patient data captured by the paramedic in the field.
// FirstName and CurrentCondition are required; the rest is optional.
type PatientInfo struct {
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name,omitempty"`
	BloodType        BloodType `json:"blood_type"`
	MedicalHistory   string    `json:"medical_history,omitempty"`
	CurrentCondition string    `json:"current_condition"`
}

// Guard errors returned by lifecycle transitions. The service layer maps
// them onto the API error taxonomy.
var (
	// ErrInvalidTransition signals a transition the state machine forbids
	ErrInvalidTransition = errors.New("invalid case transition")
	// ErrNotOwner signals an actor that does not own the case
	ErrNotOwner = errors.New("actor does not own this case")
)

// Case is a single patient-transport request from a paramedic to one
// hospital. HospitalID is immutable after creation; re-routing a patient is
// a new case, never a mutation, so capacity bookkeeping stays unambiguous.
type Case struct {
	ID          types.ID    `json:"id"`
	PatientInfo PatientInfo `json:"patient_info"`
	HospitalID  types.ID    `json:"assigned_hospital_id"`
	ParamedicID types.ID    `json:"paramedic_id"`
	Status      Status      `json:"status"`

	// BedCategory is the pool reserved at acceptance and released at
	// completion. Empty until the case is accepted.
	BedCategory string `json:"bed_category,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Domain events staged for publishing, not persisted
	domainEvents []Event
}

// Event is a staged domain event describing one lifecycle change
type Event struct {
	Type    string   `json:"type"`
	CaseID  types.ID `json:"case_id"`
	ActorID types.ID `json:"actor_id"`
}

// Event types emitted by the case lifecycle
const (
	EventCreated   = "case.created"
	EventAccepted  = "case.accepted"
	EventRejected  = "case.rejected"
	EventCompleted = "case.completed"
)

// NewCase creates a pending case with validation
func NewCase(info PatientInfo, hospitalID, paramedicID types.ID) (*Case, error) {
	if info.FirstName == "" {
		return nil, fmt.Errorf("patient first name is required")
	}
	if info.CurrentCondition == "" {
		return nil, fmt.Errorf("current condition is required")
	}
	if info.BloodType == "" {
		info.BloodType = BloodUnknown
	}
	if !info.BloodType.Valid() {
		return nil, fmt.Errorf("unknown blood type %q", info.BloodType)
	}
	if hospitalID.IsZero() {
		return nil, fmt.Errorf("assigned hospital is required")
	}
	if paramedicID.IsZero() {
		return nil, fmt.Errorf("paramedic is required")
	}

	c := &Case{
		ID:          types.NewID(),
		PatientInfo: info,
		HospitalID:  hospitalID,
		ParamedicID: paramedicID,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	c.addEvent(EventCreated, paramedicID)
	return c, nil
}

// Resolve moves a pending case to accepted or rejected. Only staff of the
// assigned hospital may resolve; the submitting paramedic may reject their
// own pending case (self-cancellation). Replaying an already-applied
// resolution with the same outcome is a no-op success, not an error, so
// client retries over flaky networks are harmless. Returns whether state
// changed.
func (c *Case) Resolve(outcome Status, actorID types.ID) (bool, error) {
	if outcome != StatusAccepted && outcome != StatusRejected {
		return false, fmt.Errorf("%w: outcome must be accepted or rejected", ErrInvalidTransition)
	}
	if err := c.authorizeResolve(outcome, actorID); err != nil {
		return false, err
	}

	// Idempotent replay of the same outcome
	if c.Status == outcome {
		return false, nil
	}
	if c.Status != StatusPending {
		return false, fmt.Errorf("%w: cannot resolve a %s case", ErrInvalidTransition, c.Status)
	}

	now := time.Now()
	c.Status = outcome
	c.ResolvedAt = &now
	if outcome == StatusAccepted {
		c.addEvent(EventAccepted, actorID)
	} else {
		c.addEvent(EventRejected, actorID)
	}
	return true, nil
}

// Complete moves an accepted case to completed. Replays are no-op
// successes. Returns whether state changed.
func (c *Case) Complete(actorHospitalID types.ID) (bool, error) {
	if actorHospitalID != c.HospitalID {
		return false, ErrNotOwner
	}
	if c.Status == StatusCompleted {
		return false, nil
	}
	if c.Status != StatusAccepted {
		return false, fmt.Errorf("%w: cannot complete a %s case", ErrInvalidTransition, c.Status)
	}

	now := time.Now()
	c.Status = StatusCompleted
	c.CompletedAt = &now
	c.addEvent(EventCompleted, actorHospitalID)
	return true, nil
}

// RevertToPending undoes an acceptance whose bed reservation failed, the
// compensating half of the accept protocol.
func (c *Case) RevertToPending() error {
	if c.Status != StatusAccepted {
		return fmt.Errorf("%w: can only revert an accepted case", ErrInvalidTransition)
	}
	c.Status = StatusPending
	c.ResolvedAt = nil
	c.BedCategory = ""
	return nil
}

func (c *Case) authorizeResolve(outcome Status, actorID types.ID) error {
	if actorID == c.HospitalID {
		return nil
	}
	// Self-cancellation: a paramedic may abandon their own case through the
	// same resolve path, keeping the transition set minimal.
	if actorID == c.ParamedicID && outcome == StatusRejected {
		return nil
	}
	return ErrNotOwner
}

// Clone returns a deep copy without staged events
func (c *Case) Clone() *Case {
	clone := *c
	clone.domainEvents = nil
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		clone.ResolvedAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// DomainEvents returns and clears staged events
func (c *Case) DomainEvents() []Event {
	events := c.domainEvents
	c.domainEvents = nil
	return events
}

func (c *Case) addEvent(eventType string, actorID types.ID) {
	c.domainEvents = append(c.domainEvents, Event{
		Type:    eventType,
		CaseID:  c.ID,
		ActorID: actorID,
	})
}
