package infrastructure

import (
	"context"
	"errors"
	"testing"

	"github.com/djelfa-health/dispatch/internal/case/domain"
	apperrors "github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

func newStoredCase(t *testing.T, repo *MemoryRepository, hospitalID types.ID) *domain.Case {
	t.Helper()
	c, err := domain.NewCase(domain.PatientInfo{
		FirstName:        "Karim",
		CurrentCondition: "chest pain",
	}, hospitalID, types.NewID())
	if err != nil {
		t.Fatalf("NewCase failed: %v", err)
	}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return c
}

func TestMemoryRepositoryUpdateStatus(t *testing.T) {
	ctx := context.Background()
	hospitalID := types.NewID()

	t.Run("matching expected status applies the write", func(t *testing.T) {
		repo := NewMemoryRepository()
		c := newStoredCase(t, repo, hospitalID)

		if _, err := c.Resolve(domain.StatusAccepted, hospitalID); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if err := repo.UpdateStatus(ctx, c, domain.StatusPending); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}

		stored, err := repo.Get(ctx, c.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if stored.Status != domain.StatusAccepted {
			t.Errorf("expected accepted, got %s", stored.Status)
		}
	})

	t.Run("stale expected status is a conflict", func(t *testing.T) {
		repo := NewMemoryRepository()
		c := newStoredCase(t, repo, hospitalID)

		first := c.Clone()
		if _, err := first.Resolve(domain.StatusAccepted, hospitalID); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if err := repo.UpdateStatus(ctx, first, domain.StatusPending); err != nil {
			t.Fatalf("first UpdateStatus failed: %v", err)
		}

		second := c.Clone()
		if _, err := second.Resolve(domain.StatusRejected, hospitalID); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		err := repo.UpdateStatus(ctx, second, domain.StatusPending)
		if !errors.Is(err, apperrors.ErrConflict) {
			t.Errorf("expected conflict, got %v", err)
		}
	})

	t.Run("unknown case is not found", func(t *testing.T) {
		repo := NewMemoryRepository()
		c, err := domain.NewCase(domain.PatientInfo{
			FirstName:        "Karim",
			CurrentCondition: "chest pain",
		}, hospitalID, types.NewID())
		if err != nil {
			t.Fatalf("NewCase failed: %v", err)
		}
		if err := repo.UpdateStatus(ctx, c, domain.StatusPending); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestMemoryRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	hospitalA := types.NewID()
	hospitalB := types.NewID()

	a := newStoredCase(t, repo, hospitalA)
	b := newStoredCase(t, repo, hospitalB)
	newStoredCase(t, repo, hospitalA)

	t.Run("filter by hospital", func(t *testing.T) {
		out, err := repo.List(ctx, domain.Filter{HospitalID: hospitalB})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(out) != 1 || out[0].ID != b.ID {
			t.Errorf("expected only hospital B's case, got %d cases", len(out))
		}
	})

	t.Run("filter by status after transition", func(t *testing.T) {
		c := a.Clone()
		if _, err := c.Resolve(domain.StatusAccepted, hospitalA); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if err := repo.UpdateStatus(ctx, c, domain.StatusPending); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}

		out, err := repo.List(ctx, domain.Filter{Status: domain.StatusAccepted})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(out) != 1 || out[0].ID != a.ID {
			t.Errorf("expected one accepted case, got %d", len(out))
		}
	})

	t.Run("limit caps results", func(t *testing.T) {
		out, err := repo.List(ctx, domain.Filter{Limit: 2})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(out) != 2 {
			t.Errorf("expected 2 cases, got %d", len(out))
		}
	})
}
