// Package geo ranks hospitals by great-circle distance from an origin
// point. It is pure: every call recomputes from the snapshot it is given,
// nothing is cached.
package geo

import (
	"math"
	"sort"

	"github.com/djelfa-health/dispatch/internal/hospital/domain"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

const earthRadiusKm = 6371.0

// RankedHospital is a hospital snapshot paired with its distance from the
// request origin. DistanceKm is unrounded; round only for display.
type RankedHospital struct {
	Hospital   domain.Hospital `json:"hospital"`
	DistanceKm float64         `json:"distance_km"`
	Eligible   bool            `json:"eligible"`
}

// Filter controls which hospitals appear in the ranking
type Filter struct {
	// OnlyAvailable excludes hospitals with ERAvailable=false entirely
	// rather than sorting them last.
	OnlyAvailable bool
}

// Rank orders hospitals by ascending distance from origin, ties broken by
// hospital id. Hospitals without a valid location are unrankable and are
// skipped without error.
func Rank(origin types.Location, hospitals []domain.Hospital, filter Filter) []RankedHospital {
	out := make([]RankedHospital, 0, len(hospitals))
	for _, h := range hospitals {
		if h.Location == nil || !h.Location.Valid() {
			continue
		}

		eligible := h.ERAvailable
		if filter.OnlyAvailable && !eligible {
			continue
		}

		out = append(out, RankedHospital{
			Hospital:   h,
			DistanceKm: Distance(origin, *h.Location),
			Eligible:   eligible,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Hospital.ID < out[j].Hospital.ID
	})

	return out
}

// Distance computes the haversine great-circle distance in kilometers
func Distance(a, b types.Location) float64 {
	dLat := degreesToRadians(b.Latitude - a.Latitude)
	dLon := degreesToRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(a.Latitude))*math.Cos(degreesToRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// RoundKm rounds a distance to one decimal place for display
func RoundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
