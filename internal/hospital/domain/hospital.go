// Package domain holds the hospital aggregate and the registry contract.
// Bed counters are mutated only through these methods so the capacity
// invariant (0 <= occupied <= total) can never be observed broken.
package domain

import (
	"fmt"
	"time"

	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// BedCategory is one named capacity pool inside a hospital
type BedCategory struct {
	Total    int `json:"total"`
	Occupied int `json:"occupied"`
}

// Free returns the number of unoccupied beds in the pool
func (b BedCategory) Free() int {
	return b.Total - b.Occupied
}

// Hospital is the aggregate root for emergency readiness and bed capacity
type Hospital struct {
	ID       types.ID        `json:"id"`
	Name     string          `json:"name"`
	Location *types.Location `json:"location,omitempty"`

	// ERAvailable is the coarse readiness flag, independent of bed counts.
	ERAvailable bool `json:"er_available"`

	// Active is false once the hospital account is deactivated. Deactivated
	// hospitals stay resolvable for existing case references but take no
	// new cases.
	Active bool `json:"active"`

	Beds map[string]BedCategory `json:"bed_categories"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewHospital creates a hospital with validation. Beds start empty; totals
// are set per category through SetBedTotals.
func NewHospital(name string, location *types.Location) (*Hospital, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if location != nil && !location.Valid() {
		return nil, fmt.Errorf("location out of WGS-84 range")
	}

	now := time.Now()
	return &Hospital{
		ID:        types.NewID(),
		Name:      name,
		Location:  location,
		Active:    true,
		Beds:      make(map[string]BedCategory),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ErrCapacity signals a bed mutation that would violate the capacity
// invariant. The hospital's counts are unchanged when it is returned.
type ErrCapacity struct {
	Category string
	Total    int
	Occupied int
	Requested int
}

func (e *ErrCapacity) Error() string {
	return fmt.Sprintf("capacity violation in %q: occupied %d of %d, requested %d",
		e.Category, e.Occupied, e.Total, e.Requested)
}

// AdjustBeds changes the occupied count of a category by delta. The whole
// adjustment is refused if the result would fall outside [0, total]; a
// delta into an unknown category is a capacity violation against an empty
// pool.
func (h *Hospital) AdjustBeds(category string, delta int) error {
	beds := h.Beds[category]
	next := beds.Occupied + delta
	if next < 0 || next > beds.Total {
		return &ErrCapacity{
			Category:  category,
			Total:     beds.Total,
			Occupied:  beds.Occupied,
			Requested: next,
		}
	}

	beds.Occupied = next
	h.Beds[category] = beds
	h.UpdatedAt = time.Now()
	return nil
}

// SetBedTotals resizes a category. Shrinking below the current occupied
// count is refused.
func (h *Hospital) SetBedTotals(category string, total int) error {
	if total < 0 {
		return &ErrCapacity{Category: category, Total: total, Requested: total}
	}

	beds := h.Beds[category]
	if total < beds.Occupied {
		return &ErrCapacity{
			Category:  category,
			Total:     total,
			Occupied:  beds.Occupied,
			Requested: beds.Occupied,
		}
	}

	beds.Total = total
	h.Beds[category] = beds
	h.UpdatedAt = time.Now()
	return nil
}

// SetReadiness flips the coarse ER readiness flag
func (h *Hospital) SetReadiness(available bool) {
	h.ERAvailable = available
	h.UpdatedAt = time.Now()
}

// Deactivate soft-deletes the hospital
func (h *Hospital) Deactivate() {
	h.Active = false
	h.ERAvailable = false
	h.UpdatedAt = time.Now()
}

// AcceptsCases reports whether new cases may target this hospital
func (h *Hospital) AcceptsCases() bool {
	return h.Active && h.ERAvailable
}

// Clone returns a deep copy, used for registry snapshots so callers can
// never mutate shared state.
func (h *Hospital) Clone() Hospital {
	out := *h
	out.Beds = make(map[string]BedCategory, len(h.Beds))
	for k, v := range h.Beds {
		out.Beds[k] = v
	}
	if h.Location != nil {
		loc := *h.Location
		out.Location = &loc
	}
	return out
}
