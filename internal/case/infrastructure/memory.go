// Package infrastructure provides case Repository implementations backed by
// an in-memory map and by PostgreSQL.
package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/djelfa-health/dispatch/internal/case/domain"
	"github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// MemoryRepository keeps cases in a mutex-guarded map
type MemoryRepository struct {
	mu    sync.RWMutex
	cases map[types.ID]*domain.Case
}

// NewMemoryRepository creates an empty in-memory case store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		cases: make(map[types.ID]*domain.Case),
	}
}

// Create stores a new case
func (r *MemoryRepository) Create(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cases[c.ID]; exists {
		return errors.Conflict("case already exists")
	}
	r.cases[c.ID] = c.Clone()
	return nil
}

// Get returns a snapshot of one case
func (r *MemoryRepository) Get(_ context.Context, id types.ID) (*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cases[id]
	if !ok {
		return nil, errors.NotFound("case", id.String())
	}
	return c.Clone(), nil
}

// List returns cases matching the filter, newest first
func (r *MemoryRepository) List(_ context.Context, filter domain.Filter) ([]*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*domain.Case, 0)
	for _, c := range r.cases {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if !filter.ParamedicID.IsZero() && c.ParamedicID != filter.ParamedicID {
			continue
		}
		if !filter.HospitalID.IsZero() && c.HospitalID != filter.HospitalID {
			continue
		}
		matched = append(matched, c.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*domain.Case{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// UpdateStatus writes the case back only if the stored status still matches
// expected. A mismatch means another actor resolved the case first.
func (r *MemoryRepository) UpdateStatus(_ context.Context, c *domain.Case, expected domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.cases[c.ID]
	if !ok {
		return errors.NotFound("case", c.ID.String())
	}
	if stored.Status != expected {
		return errors.Conflict("case was modified concurrently")
	}
	r.cases[c.ID] = c.Clone()
	return nil
}

var _ domain.Repository = (*MemoryRepository)(nil)
