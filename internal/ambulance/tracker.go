// Package ambulance tracks live ambulance positions. Positions are held in
// a TTL cache: an ambulance that stops reporting simply ages out, so there
// is no offline bookkeeping.
package ambulance

import (
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/djelfa-health/dispatch/internal/geo"
	"github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Position is one reported ambulance position
type Position struct {
	AmbulanceID types.ID       `json:"ambulance_id"`
	Location    types.Location `json:"location"`
	ReportedAt  time.Time      `json:"reported_at"`
}

// NearbyPosition pairs a position with its distance from a query origin
type NearbyPosition struct {
	Position
	DistanceKm float64 `json:"distance_km"`
}

// Tracker holds recent ambulance positions
type Tracker struct {
	positions *cache.Cache
}

// NewTracker creates a tracker whose positions expire after ttl
func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		positions: cache.New(ttl, ttl/2),
	}
}

// Report records an ambulance position, resetting its TTL
func (t *Tracker) Report(ambulanceID types.ID, location types.Location) (*Position, error) {
	if ambulanceID.IsZero() {
		return nil, errors.BadRequest("ambulance ID is required")
	}
	if !location.Valid() {
		return nil, errors.BadRequest("a valid location is required")
	}

	pos := Position{
		AmbulanceID: ambulanceID,
		Location:    location,
		ReportedAt:  time.Now(),
	}
	t.positions.SetDefault(ambulanceID.String(), pos)
	return &pos, nil
}

// Nearby returns live positions ordered by distance from origin. A limit of
// zero means no cap.
func (t *Tracker) Nearby(origin types.Location, limit int) ([]NearbyPosition, error) {
	if !origin.Valid() {
		return nil, errors.BadRequest("a valid origin location is required")
	}

	items := t.positions.Items()
	out := make([]NearbyPosition, 0, len(items))
	for _, item := range items {
		pos, ok := item.Object.(Position)
		if !ok {
			continue
		}
		out = append(out, NearbyPosition{
			Position:   pos,
			DistanceKm: geo.Distance(origin, pos.Location),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].AmbulanceID < out[j].AmbulanceID
	})

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
