package domain

import (
	"context"

	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Status      Status
	ParamedicID types.ID
	HospitalID  types.ID
	Limit       int
	Offset      int
}

// Repository persists cases. UpdateStatus is a compare-and-set: the write
// only applies if the stored case still carries the expected status, which
// serializes concurrent resolutions of the same case.
type Repository interface {
	Create(ctx context.Context, c *Case) error
	Get(ctx context.Context, id types.ID) (*Case, error)
	List(ctx context.Context, filter Filter) ([]*Case, error)
	UpdateStatus(ctx context.Context, c *Case, expected Status) error
}
