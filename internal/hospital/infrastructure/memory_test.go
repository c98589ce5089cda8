package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/djelfa-health/dispatch/internal/hospital/domain"
	apperrors "github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

func newStoredHospital(t *testing.T, r *MemoryRegistry) *domain.Hospital {
	t.Helper()
	h, err := domain.NewHospital("CHU Djelfa", &types.Location{Latitude: 34.6714, Longitude: 3.2631})
	if err != nil {
		t.Fatalf("NewHospital failed: %v", err)
	}
	if err := r.Create(context.Background(), h); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return h
}

func TestMemoryRegistryBasics(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns an isolated snapshot", func(t *testing.T) {
		r := NewMemoryRegistry()
		h := newStoredHospital(t, r)
		if _, err := r.SetBedTotals(ctx, h.ID, "Emergency", 2); err != nil {
			t.Fatalf("SetBedTotals failed: %v", err)
		}

		snap, err := r.Get(ctx, h.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		snap.Beds["Emergency"] = domain.BedCategory{Total: 99, Occupied: 99}

		fresh, err := r.Get(ctx, h.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if fresh.Beds["Emergency"].Total != 2 {
			t.Error("snapshot mutation leaked into the registry")
		}
	})

	t.Run("unknown hospital is not found", func(t *testing.T) {
		r := NewMemoryRegistry()
		if _, err := r.Get(ctx, types.NewID()); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
		if _, err := r.AdjustBeds(ctx, types.NewID(), "Emergency", 1); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("capacity violations map to capacity errors", func(t *testing.T) {
		r := NewMemoryRegistry()
		h := newStoredHospital(t, r)
		if _, err := r.SetBedTotals(ctx, h.ID, "ICU", 1); err != nil {
			t.Fatalf("SetBedTotals failed: %v", err)
		}
		if _, err := r.AdjustBeds(ctx, h.ID, "ICU", 2); !errors.Is(err, apperrors.ErrCapacity) {
			t.Errorf("expected capacity error, got %v", err)
		}
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		r := NewMemoryRegistry()
		h := newStoredHospital(t, r)
		if err := r.Create(ctx, h); !errors.Is(err, apperrors.ErrConflict) {
			t.Errorf("expected conflict, got %v", err)
		}
	})
}

// Many goroutines race to take the last bed; exactly one may win.
func TestMemoryRegistryConcurrentAdjust(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	h := newStoredHospital(t, r)
	if _, err := r.SetBedTotals(ctx, h.ID, "Emergency", 1); err != nil {
		t.Fatalf("SetBedTotals failed: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.AdjustBeds(ctx, h.ID, "Emergency", 1); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	won := 0
	for range successes {
		won++
	}
	if won != 1 {
		t.Errorf("expected exactly one winner, got %d", won)
	}

	final, err := r.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if beds := final.Beds["Emergency"]; beds.Occupied != 1 || beds.Total != 1 {
		t.Errorf("expected 1/1 occupancy, got %d/%d", beds.Occupied, beds.Total)
	}
}
