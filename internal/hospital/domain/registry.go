package domain

import (
	"context"

	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Registry is the single source of truth for hospital readiness and bed
// capacity. All mutating operations are atomic per hospital: two concurrent
// AdjustBeds calls on the same hospital must not both succeed if their
// combined effect would break the capacity invariant.
type Registry interface {
	// Create registers a provisioned hospital account
	Create(ctx context.Context, h *Hospital) error

	// Get returns a snapshot of one hospital
	Get(ctx context.Context, id types.ID) (*Hospital, error)

	// List returns a snapshot of all hospitals
	List(ctx context.Context) ([]Hospital, error)

	// SetReadiness flips the ER readiness flag, immediately visible to
	// subsequent reads
	SetReadiness(ctx context.Context, id types.ID, available bool) (*Hospital, error)

	// AdjustBeds changes a category's occupied count by delta, all or
	// nothing against the capacity invariant
	AdjustBeds(ctx context.Context, id types.ID, category string, delta int) (*Hospital, error)

	// SetBedTotals resizes a category's total, refusing totals below the
	// current occupied count
	SetBedTotals(ctx context.Context, id types.ID, category string, total int) (*Hospital, error)

	// Deactivate soft-deletes a hospital account
	Deactivate(ctx context.Context, id types.ID) (*Hospital, error)
}
