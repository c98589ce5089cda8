// Package infrastructure provides Registry implementations: an in-memory
// store for tests and database-less deployments, and a PostgreSQL store.
package infrastructure

import (
	"context"
	"sync"

	"github.com/djelfa-health/dispatch/internal/hospital/domain"
	"github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// MemoryRegistry keeps hospitals in a mutex-guarded map. The single lock
// makes every mutation linearizable, which is stronger than the required
// per-hospital exclusion.
type MemoryRegistry struct {
	mu        sync.RWMutex
	hospitals map[types.ID]*domain.Hospital
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		hospitals: make(map[types.ID]*domain.Hospital),
	}
}

// Create registers a hospital
func (r *MemoryRegistry) Create(_ context.Context, h *domain.Hospital) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.hospitals[h.ID]; exists {
		return errors.Conflict("hospital already registered")
	}
	stored := h.Clone()
	r.hospitals[h.ID] = &stored
	return nil
}

// Get returns a snapshot of one hospital
func (r *MemoryRegistry) Get(_ context.Context, id types.ID) (*domain.Hospital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hospitals[id]
	if !ok {
		return nil, errors.NotFound("hospital", id.String())
	}
	out := h.Clone()
	return &out, nil
}

// List returns a snapshot of all hospitals
func (r *MemoryRegistry) List(_ context.Context) ([]domain.Hospital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Hospital, 0, len(r.hospitals))
	for _, h := range r.hospitals {
		out = append(out, h.Clone())
	}
	return out, nil
}

// SetReadiness flips the ER readiness flag
func (r *MemoryRegistry) SetReadiness(_ context.Context, id types.ID, available bool) (*domain.Hospital, error) {
	return r.mutate(id, func(h *domain.Hospital) error {
		h.SetReadiness(available)
		return nil
	})
}

// AdjustBeds changes a category's occupied count, all or nothing
func (r *MemoryRegistry) AdjustBeds(_ context.Context, id types.ID, category string, delta int) (*domain.Hospital, error) {
	return r.mutate(id, func(h *domain.Hospital) error {
		return h.AdjustBeds(category, delta)
	})
}

// SetBedTotals resizes a category
func (r *MemoryRegistry) SetBedTotals(_ context.Context, id types.ID, category string, total int) (*domain.Hospital, error) {
	return r.mutate(id, func(h *domain.Hospital) error {
		return h.SetBedTotals(category, total)
	})
}

// Deactivate soft-deletes a hospital
func (r *MemoryRegistry) Deactivate(_ context.Context, id types.ID) (*domain.Hospital, error) {
	return r.mutate(id, func(h *domain.Hospital) error {
		h.Deactivate()
		return nil
	})
}

// mutate applies fn to the stored hospital under the write lock and returns
// a snapshot of the result. Domain capacity errors surface as CAPACITY_ERROR.
func (r *MemoryRegistry) mutate(id types.ID, fn func(*domain.Hospital) error) (*domain.Hospital, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hospitals[id]
	if !ok {
		return nil, errors.NotFound("hospital", id.String())
	}

	if err := fn(h); err != nil {
		if capErr, ok := err.(*domain.ErrCapacity); ok {
			return nil, errors.Capacity(capErr.Error())
		}
		return nil, errors.BadRequest(err.Error())
	}

	out := h.Clone()
	return &out, nil
}

var _ domain.Registry = (*MemoryRegistry)(nil)
