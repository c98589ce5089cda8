package ambulance

import (
	"testing"
	"time"

	"github.com/djelfa-health/dispatch/internal/shared/types"
)

func TestTrackerReport(t *testing.T) {
	tracker := NewTracker(time.Minute)

	t.Run("valid report is stored", func(t *testing.T) {
		id := types.NewID()
		pos, err := tracker.Report(id, types.Location{Latitude: 34.67, Longitude: 3.26})
		if err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		if pos.AmbulanceID != id || pos.ReportedAt.IsZero() {
			t.Errorf("unexpected position %+v", pos)
		}
	})

	t.Run("missing ID is rejected", func(t *testing.T) {
		if _, err := tracker.Report("", types.Location{Latitude: 34.67, Longitude: 3.26}); err == nil {
			t.Error("expected error for missing ambulance ID")
		}
	})

	t.Run("invalid location is rejected", func(t *testing.T) {
		if _, err := tracker.Report(types.NewID(), types.Location{Latitude: 99, Longitude: 200}); err == nil {
			t.Error("expected error for out-of-range location")
		}
	})
}

func TestTrackerNearby(t *testing.T) {
	origin := types.Location{Latitude: 34.6714, Longitude: 3.2631}

	t.Run("ordered by distance", func(t *testing.T) {
		tracker := NewTracker(time.Minute)
		far := types.NewID()
		near := types.NewID()

		if _, err := tracker.Report(far, types.Location{Latitude: 34.80, Longitude: 3.26}); err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		if _, err := tracker.Report(near, types.Location{Latitude: 34.675, Longitude: 3.263}); err != nil {
			t.Fatalf("Report failed: %v", err)
		}

		nearby, err := tracker.Nearby(origin, 0)
		if err != nil {
			t.Fatalf("Nearby failed: %v", err)
		}
		if len(nearby) != 2 {
			t.Fatalf("expected 2 ambulances, got %d", len(nearby))
		}
		if nearby[0].AmbulanceID != near || nearby[1].AmbulanceID != far {
			t.Error("ambulances not ordered by distance")
		}
	})

	t.Run("re-report moves the ambulance", func(t *testing.T) {
		tracker := NewTracker(time.Minute)
		id := types.NewID()

		if _, err := tracker.Report(id, types.Location{Latitude: 34.80, Longitude: 3.26}); err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		if _, err := tracker.Report(id, types.Location{Latitude: 34.672, Longitude: 3.263}); err != nil {
			t.Fatalf("Report failed: %v", err)
		}

		nearby, err := tracker.Nearby(origin, 0)
		if err != nil {
			t.Fatalf("Nearby failed: %v", err)
		}
		if len(nearby) != 1 {
			t.Fatalf("expected a single entry per ambulance, got %d", len(nearby))
		}
		if nearby[0].DistanceKm > 1 {
			t.Errorf("expected latest position, got %.2f km away", nearby[0].DistanceKm)
		}
	})

	t.Run("limit caps results", func(t *testing.T) {
		tracker := NewTracker(time.Minute)
		for i := 0; i < 5; i++ {
			if _, err := tracker.Report(types.NewID(), types.Location{Latitude: 34.67, Longitude: 3.26}); err != nil {
				t.Fatalf("Report failed: %v", err)
			}
		}
		nearby, err := tracker.Nearby(origin, 3)
		if err != nil {
			t.Fatalf("Nearby failed: %v", err)
		}
		if len(nearby) != 3 {
			t.Errorf("expected 3 ambulances, got %d", len(nearby))
		}
	})

	t.Run("stale positions age out", func(t *testing.T) {
		tracker := NewTracker(10 * time.Millisecond)
		if _, err := tracker.Report(types.NewID(), types.Location{Latitude: 34.67, Longitude: 3.26}); err != nil {
			t.Fatalf("Report failed: %v", err)
		}

		time.Sleep(30 * time.Millisecond)
		nearby, err := tracker.Nearby(origin, 0)
		if err != nil {
			t.Fatalf("Nearby failed: %v", err)
		}
		if len(nearby) != 0 {
			t.Errorf("expected stale position to expire, got %d", len(nearby))
		}
	})
}
