package domain

import (
	"errors"
	"testing"

	"github.com/djelfa-health/dispatch/internal/shared/types"
)

func validPatient() PatientInfo {
	return PatientInfo{
		FirstName:        "Amina",
		LastName:         "Bensalem",
		BloodType:        BloodOPos,
		CurrentCondition: "suspected fracture, stable",
	}
}

func TestNewCase(t *testing.T) {
	hospitalID := types.NewID()
	paramedicID := types.NewID()

	t.Run("valid case starts pending", func(t *testing.T) {
		c, err := NewCase(validPatient(), hospitalID, paramedicID)
		if err != nil {
			t.Fatalf("NewCase failed: %v", err)
		}
		if c.Status != StatusPending {
			t.Errorf("expected status pending, got %s", c.Status)
		}
		if c.HospitalID != hospitalID {
			t.Error("hospital not assigned")
		}
		events := c.DomainEvents()
		if len(events) != 1 || events[0].Type != EventCreated {
			t.Errorf("expected a single case.created event, got %v", events)
		}
	})

	t.Run("blood type defaults to unknown", func(t *testing.T) {
		info := validPatient()
		info.BloodType = ""
		c, err := NewCase(info, hospitalID, paramedicID)
		if err != nil {
			t.Fatalf("NewCase failed: %v", err)
		}
		if c.PatientInfo.BloodType != BloodUnknown {
			t.Errorf("expected unknown blood type, got %s", c.PatientInfo.BloodType)
		}
	})

	t.Run("validation rejects bad input", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*PatientInfo) (types.ID, types.ID)
		}{
			{"missing first name", func(p *PatientInfo) (types.ID, types.ID) {
				p.FirstName = ""
				return hospitalID, paramedicID
			}},
			{"missing condition", func(p *PatientInfo) (types.ID, types.ID) {
				p.CurrentCondition = ""
				return hospitalID, paramedicID
			}},
			{"bad blood type", func(p *PatientInfo) (types.ID, types.ID) {
				p.BloodType = "C+"
				return hospitalID, paramedicID
			}},
			{"missing hospital", func(p *PatientInfo) (types.ID, types.ID) {
				return "", paramedicID
			}},
			{"missing paramedic", func(p *PatientInfo) (types.ID, types.ID) {
				return hospitalID, ""
			}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				info := validPatient()
				h, p := tc.mutate(&info)
				if _, err := NewCase(info, h, p); err == nil {
					t.Error("expected validation error")
				}
			})
		}
	})
}

func TestCaseResolve(t *testing.T) {
	hospitalID := types.NewID()
	paramedicID := types.NewID()

	newPending := func(t *testing.T) *Case {
		t.Helper()
		c, err := NewCase(validPatient(), hospitalID, paramedicID)
		if err != nil {
			t.Fatalf("NewCase failed: %v", err)
		}
		c.DomainEvents()
		return c
	}

	t.Run("hospital accepts pending case", func(t *testing.T) {
		c := newPending(t)
		changed, err := c.Resolve(StatusAccepted, hospitalID)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !changed {
			t.Error("expected state change")
		}
		if c.Status != StatusAccepted || c.ResolvedAt == nil {
			t.Errorf("expected accepted with timestamp, got %s", c.Status)
		}
		events := c.DomainEvents()
		if len(events) != 1 || events[0].Type != EventAccepted {
			t.Errorf("expected case.accepted event, got %v", events)
		}
	})

	t.Run("hospital rejects pending case", func(t *testing.T) {
		c := newPending(t)
		changed, err := c.Resolve(StatusRejected, hospitalID)
		if err != nil || !changed {
			t.Fatalf("Resolve failed: changed=%v err=%v", changed, err)
		}
		if c.Status != StatusRejected {
			t.Errorf("expected rejected, got %s", c.Status)
		}
	})

	t.Run("replaying the same outcome is a no-op", func(t *testing.T) {
		c := newPending(t)
		if _, err := c.Resolve(StatusAccepted, hospitalID); err != nil {
			t.Fatalf("first resolve failed: %v", err)
		}
		changed, err := c.Resolve(StatusAccepted, hospitalID)
		if err != nil {
			t.Fatalf("replay errored: %v", err)
		}
		if changed {
			t.Error("replay must not report a state change")
		}
	})

	t.Run("conflicting outcome on resolved case fails", func(t *testing.T) {
		c := newPending(t)
		if _, err := c.Resolve(StatusAccepted, hospitalID); err != nil {
			t.Fatalf("first resolve failed: %v", err)
		}
		if _, err := c.Resolve(StatusRejected, hospitalID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("only accepted or rejected outcomes allowed", func(t *testing.T) {
		c := newPending(t)
		if _, err := c.Resolve(StatusCompleted, hospitalID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("other hospital cannot resolve", func(t *testing.T) {
		c := newPending(t)
		if _, err := c.Resolve(StatusAccepted, types.NewID()); !errors.Is(err, ErrNotOwner) {
			t.Errorf("expected ErrNotOwner, got %v", err)
		}
	})

	t.Run("paramedic may cancel own case", func(t *testing.T) {
		c := newPending(t)
		changed, err := c.Resolve(StatusRejected, paramedicID)
		if err != nil || !changed {
			t.Fatalf("self-cancel failed: changed=%v err=%v", changed, err)
		}
		if c.Status != StatusRejected {
			t.Errorf("expected rejected, got %s", c.Status)
		}
	})

	t.Run("paramedic cannot accept own case", func(t *testing.T) {
		c := newPending(t)
		if _, err := c.Resolve(StatusAccepted, paramedicID); !errors.Is(err, ErrNotOwner) {
			t.Errorf("expected ErrNotOwner, got %v", err)
		}
	})
}

func TestCaseComplete(t *testing.T) {
	hospitalID := types.NewID()
	paramedicID := types.NewID()

	newAccepted := func(t *testing.T) *Case {
		t.Helper()
		c, err := NewCase(validPatient(), hospitalID, paramedicID)
		if err != nil {
			t.Fatalf("NewCase failed: %v", err)
		}
		if _, err := c.Resolve(StatusAccepted, hospitalID); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		c.DomainEvents()
		return c
	}

	t.Run("accepted case completes", func(t *testing.T) {
		c := newAccepted(t)
		changed, err := c.Complete(hospitalID)
		if err != nil || !changed {
			t.Fatalf("Complete failed: changed=%v err=%v", changed, err)
		}
		if c.Status != StatusCompleted || c.CompletedAt == nil {
			t.Errorf("expected completed with timestamp, got %s", c.Status)
		}
	})

	t.Run("replay is a no-op", func(t *testing.T) {
		c := newAccepted(t)
		if _, err := c.Complete(hospitalID); err != nil {
			t.Fatalf("first complete failed: %v", err)
		}
		changed, err := c.Complete(hospitalID)
		if err != nil {
			t.Fatalf("replay errored: %v", err)
		}
		if changed {
			t.Error("replay must not report a state change")
		}
	})

	t.Run("pending case cannot complete", func(t *testing.T) {
		c, err := NewCase(validPatient(), hospitalID, paramedicID)
		if err != nil {
			t.Fatalf("NewCase failed: %v", err)
		}
		if _, err := c.Complete(hospitalID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("other hospital cannot complete", func(t *testing.T) {
		c := newAccepted(t)
		if _, err := c.Complete(types.NewID()); !errors.Is(err, ErrNotOwner) {
			t.Errorf("expected ErrNotOwner, got %v", err)
		}
	})
}

func TestCaseRevertToPending(t *testing.T) {
	hospitalID := types.NewID()
	c, err := NewCase(validPatient(), hospitalID, types.NewID())
	if err != nil {
		t.Fatalf("NewCase failed: %v", err)
	}

	if err := c.RevertToPending(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("reverting a pending case must fail, got %v", err)
	}

	if _, err := c.Resolve(StatusAccepted, hospitalID); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	c.BedCategory = "Emergency"
	if err := c.RevertToPending(); err != nil {
		t.Fatalf("RevertToPending failed: %v", err)
	}
	if c.Status != StatusPending || c.ResolvedAt != nil || c.BedCategory != "" {
		t.Errorf("revert left residue: status=%s resolvedAt=%v bedCategory=%q",
			c.Status, c.ResolvedAt, c.BedCategory)
	}
}
