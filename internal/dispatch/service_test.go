package dispatch

import (
	"context"
	"errors"
	"testing"

	casedomain "github.com/djelfa-health/dispatch/internal/case/domain"
	caseinfra "github.com/djelfa-health/dispatch/internal/case/infrastructure"
	hospitaldomain "github.com/djelfa-health/dispatch/internal/hospital/domain"
	hospitalinfra "github.com/djelfa-health/dispatch/internal/hospital/infrastructure"
	apperrors "github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/events"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

type fixture struct {
	service  *Service
	registry *hospitalinfra.MemoryRegistry
	cases    *caseinfra.MemoryRepository
	bus      *events.MemoryBus
	hospital *hospitaldomain.Hospital
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := hospitalinfra.NewMemoryRegistry()
	cases := caseinfra.NewMemoryRepository()
	bus := events.NewMemoryBus()

	h, err := hospitaldomain.NewHospital("CHU Djelfa", &types.Location{
		Latitude:  34.6714,
		Longitude: 3.2631,
	})
	if err != nil {
		t.Fatalf("NewHospital failed: %v", err)
	}
	h.SetReadiness(true)
	if err := h.SetBedTotals("Emergency", 3); err != nil {
		t.Fatalf("SetBedTotals failed: %v", err)
	}
	if err := registry.Create(context.Background(), h); err != nil {
		t.Fatalf("registry.Create failed: %v", err)
	}

	return &fixture{
		service:  NewService(registry, cases, bus, "Emergency"),
		registry: registry,
		cases:    cases,
		bus:      bus,
		hospital: h,
	}
}

func (f *fixture) submit(t *testing.T, paramedicID types.ID) *casedomain.Case {
	t.Helper()
	c, err := f.service.SubmitCase(context.Background(), casedomain.PatientInfo{
		FirstName:        "Samir",
		CurrentCondition: "road accident, conscious",
	}, f.hospital.ID, paramedicID, nil)
	if err != nil {
		t.Fatalf("SubmitCase failed: %v", err)
	}
	return c
}

func (f *fixture) occupied(t *testing.T, category string) int {
	t.Helper()
	h, err := f.registry.Get(context.Background(), f.hospital.ID)
	if err != nil {
		t.Fatalf("registry.Get failed: %v", err)
	}
	return h.Beds[category].Occupied
}

func TestSubmitCase(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending case and publishes an event", func(t *testing.T) {
		f := newFixture(t)
		c := f.submit(t, types.NewID())

		if c.Status != casedomain.StatusPending {
			t.Errorf("expected pending, got %s", c.Status)
		}
		published := f.bus.Events()
		if len(published) != 1 || published[0].Type != casedomain.EventCreated {
			t.Errorf("expected one case.created event, got %v", published)
		}
	})

	t.Run("unavailable hospital is refused with alternatives", func(t *testing.T) {
		f := newFixture(t)

		other, err := hospitaldomain.NewHospital("EPH Hassi Bahbah", &types.Location{
			Latitude:  35.0817,
			Longitude: 3.0596,
		})
		if err != nil {
			t.Fatalf("NewHospital failed: %v", err)
		}
		other.SetReadiness(true)
		if err := f.registry.Create(ctx, other); err != nil {
			t.Fatalf("registry.Create failed: %v", err)
		}
		if _, err := f.registry.SetReadiness(ctx, f.hospital.ID, false); err != nil {
			t.Fatalf("SetReadiness failed: %v", err)
		}

		origin := &types.Location{Latitude: 34.68, Longitude: 3.25}
		_, err = f.service.SubmitCase(ctx, casedomain.PatientInfo{
			FirstName:        "Samir",
			CurrentCondition: "burns",
		}, f.hospital.ID, types.NewID(), origin)

		if !errors.Is(err, apperrors.ErrUnavailable) {
			t.Fatalf("expected hospital unavailable, got %v", err)
		}
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			t.Fatal("expected an AppError")
		}
		if _, ok := appErr.Details["alternatives"]; !ok {
			t.Error("expected ranked alternatives in error details")
		}
	})

	t.Run("deactivated hospital is refused", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.registry.Deactivate(ctx, f.hospital.ID); err != nil {
			t.Fatalf("Deactivate failed: %v", err)
		}
		_, err := f.service.SubmitCase(ctx, casedomain.PatientInfo{
			FirstName:        "Samir",
			CurrentCondition: "burns",
		}, f.hospital.ID, types.NewID(), nil)
		if !errors.Is(err, apperrors.ErrUnavailable) {
			t.Errorf("expected hospital unavailable, got %v", err)
		}
	})
}

func TestResolveCase(t *testing.T) {
	ctx := context.Background()

	t.Run("acceptance reserves a bed", func(t *testing.T) {
		f := newFixture(t)
		c := f.submit(t, types.NewID())

		resolved, err := f.service.ResolveCase(ctx, c.ID, casedomain.StatusAccepted, f.hospital.ID, "")
		if err != nil {
			t.Fatalf("ResolveCase failed: %v", err)
		}
		if resolved.Status != casedomain.StatusAccepted {
			t.Errorf("expected accepted, got %s", resolved.Status)
		}
		if resolved.BedCategory != "Emergency" {
			t.Errorf("expected default bed category, got %q", resolved.BedCategory)
		}
		if got := f.occupied(t, "Emergency"); got != 1 {
			t.Errorf("expected 1 occupied bed, got %d", got)
		}
	})

	t.Run("rejection never touches capacity", func(t *testing.T) {
		f := newFixture(t)
		c := f.submit(t, types.NewID())

		if _, err := f.service.ResolveCase(ctx, c.ID, casedomain.StatusRejected, f.hospital.ID, ""); err != nil {
			t.Fatalf("ResolveCase failed: %v", err)
		}
		if got := f.occupied(t, "Emergency"); got != 0 {
			t.Errorf("expected 0 occupied beds, got %d", got)
		}
	})

	t.Run("replayed acceptance does not double-reserve", func(t *testing.T) {
		f := newFixture(t)
		c := f.submit(t, types.NewID())

		if _, err := f.service.ResolveCase(ctx, c.ID, casedomain.StatusAccepted, f.hospital.ID, ""); err != nil {
			t.Fatalf("first resolve failed: %v", err)
		}
		resolved, err := f.service.ResolveCase(ctx, c.ID, casedomain.StatusAccepted, f.hospital.ID, "")
		if err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		if resolved.Status != casedomain.StatusAccepted {
			t.Errorf("expected accepted, got %s", resolved.Status)
		}
		if got := f.occupied(t, "Emergency"); got != 1 {
			t.Errorf("expected 1 occupied bed after replay, got %d", got)
		}
	})

	t.Run("full pool rolls the acceptance back", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.registry.SetBedTotals(ctx, f.hospital.ID, "ICU", 1); err != nil {
			t.Fatalf("SetBedTotals failed: %v", err)
		}
		if _, err := f.registry.AdjustBeds(ctx, f.hospital.ID, "ICU", 1); err != nil {
			t.Fatalf("AdjustBeds failed: %v", err)
		}

		c := f.submit(t, types.NewID())
		_, err := f.service.ResolveCase(ctx, c.ID, casedomain.StatusAccepted, f.hospital.ID, "ICU")
		if !errors.Is(err, apperrors.ErrCapacity) {
			t.Fatalf("expected capacity error, got %v", err)
		}

		stored, getErr := f.service.GetCase(ctx, c.ID)
		if getErr != nil {
			t.Fatalf("GetCase failed: %v", getErr)
		}
		if stored.Status != casedomain.StatusPending {
			t.Errorf("expected case back to pending, got %s", stored.Status)
		}
		if stored.BedCategory != "" {
			t.Errorf("expected no bed category after rollback, got %q", stored.BedCategory)
		}
		if got := f.occupied(t, "ICU"); got != 1 {
			t.Errorf("ICU occupancy must be unchanged, got %d", got)
		}
	})

	t.Run("foreign hospital is forbidden", func(t *testing.T) {
		f := newFixture(t)
		c := f.submit(t, types.NewID())

		_, err := f.service.ResolveCase(ctx, c.ID, casedomain.StatusAccepted, types.NewID(), "")
		if !errors.Is(err, apperrors.ErrForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})

	t.Run("paramedic cancels own pending case", func(t *testing.T) {
		f := newFixture(t)
		paramedicID := types.NewID()
		c := f.submit(t, paramedicID)

		resolved, err := f.service.ResolveCase(ctx, c.ID, casedomain.StatusRejected, paramedicID, "")
		if err != nil {
			t.Fatalf("self-cancel failed: %v", err)
		}
		if resolved.Status != casedomain.StatusRejected {
			t.Errorf("expected rejected, got %s", resolved.Status)
		}
	})
}

func TestCompleteCase(t *testing.T) {
	ctx := context.Background()

	accepted := func(t *testing.T, f *fixture) *casedomain.Case {
		t.Helper()
		c := f.submit(t, types.NewID())
		resolved, err := f.service.ResolveCase(ctx, c.ID, casedomain.StatusAccepted, f.hospital.ID, "")
		if err != nil {
			t.Fatalf("ResolveCase failed: %v", err)
		}
		return resolved
	}

	t.Run("completion releases the bed", func(t *testing.T) {
		f := newFixture(t)
		c := accepted(t, f)

		done, err := f.service.CompleteCase(ctx, c.ID, f.hospital.ID)
		if err != nil {
			t.Fatalf("CompleteCase failed: %v", err)
		}
		if done.Status != casedomain.StatusCompleted {
			t.Errorf("expected completed, got %s", done.Status)
		}
		if got := f.occupied(t, "Emergency"); got != 0 {
			t.Errorf("expected bed released, got %d occupied", got)
		}
	})

	t.Run("replayed completion does not double-release", func(t *testing.T) {
		f := newFixture(t)
		c := accepted(t, f)

		if _, err := f.service.CompleteCase(ctx, c.ID, f.hospital.ID); err != nil {
			t.Fatalf("first complete failed: %v", err)
		}
		if _, err := f.service.CompleteCase(ctx, c.ID, f.hospital.ID); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		if got := f.occupied(t, "Emergency"); got != 0 {
			t.Errorf("occupancy must stay 0, got %d", got)
		}
	})

	t.Run("release failure does not block completion", func(t *testing.T) {
		f := newFixture(t)
		c := accepted(t, f)

		// Force a discrepancy: the bed is freed out of band, so the
		// release on completion would underflow and is refused.
		if _, err := f.registry.AdjustBeds(ctx, f.hospital.ID, "Emergency", -1); err != nil {
			t.Fatalf("AdjustBeds failed: %v", err)
		}

		done, err := f.service.CompleteCase(ctx, c.ID, f.hospital.ID)
		if err != nil {
			t.Fatalf("CompleteCase failed: %v", err)
		}
		if done.Status != casedomain.StatusCompleted {
			t.Errorf("expected completed, got %s", done.Status)
		}
		if got := f.occupied(t, "Emergency"); got != 0 {
			t.Errorf("occupancy must not go negative, got %d", got)
		}
	})

	t.Run("pending case cannot complete", func(t *testing.T) {
		f := newFixture(t)
		c := f.submit(t, types.NewID())

		_, err := f.service.CompleteCase(ctx, c.ID, f.hospital.ID)
		if !errors.Is(err, apperrors.ErrInvalidTransition) {
			t.Errorf("expected invalid transition, got %v", err)
		}
	})
}

func TestListCandidateHospitals(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivated hospitals never appear", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.registry.Deactivate(ctx, f.hospital.ID); err != nil {
			t.Fatalf("Deactivate failed: %v", err)
		}

		ranked, err := f.service.ListCandidateHospitals(ctx, types.Location{Latitude: 34.68, Longitude: 3.25}, false)
		if err != nil {
			t.Fatalf("ListCandidateHospitals failed: %v", err)
		}
		if len(ranked) != 0 {
			t.Errorf("expected empty ranking, got %d hospitals", len(ranked))
		}
	})

	t.Run("invalid origin is rejected", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.ListCandidateHospitals(ctx, types.Location{Latitude: 120, Longitude: 3}, false); err == nil {
			t.Error("expected error for out-of-range latitude")
		}
	})
}
