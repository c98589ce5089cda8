package infrastructure

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/djelfa-health/dispatch/internal/hospital/domain"
	"github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// PostgresRegistry implements domain.Registry on PostgreSQL. Capacity
// mutations are single conditional UPDATEs, so the invariant is enforced by
// the database without read-modify-write races.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a new PostgreSQL registry
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// Create registers a hospital and its initial bed categories
func (r *PostgresRegistry) Create(ctx context.Context, h *domain.Hospital) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var lat, lng *float64
	if h.Location != nil {
		lat, lng = &h.Location.Latitude, &h.Location.Longitude
	}

	query := `
		INSERT INTO dispatch.hospitals (
			id, name, latitude, longitude, er_available, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, query,
		h.ID, h.Name, lat, lng, h.ERAvailable, h.Active, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("hospital already registered")
		}
		return errors.Wrap(err, "failed to create hospital")
	}

	for category, beds := range h.Beds {
		_, err = tx.Exec(ctx, `
			INSERT INTO dispatch.hospital_beds (hospital_id, category, total, occupied)
			VALUES ($1, $2, $3, $4)`,
			h.ID, category, beds.Total, beds.Occupied,
		)
		if err != nil {
			return errors.Wrap(err, "failed to create bed category")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// Get returns one hospital with its bed categories
func (r *PostgresRegistry) Get(ctx context.Context, id types.ID) (*domain.Hospital, error) {
	h, err := r.scanHospital(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT category, total, occupied
		FROM dispatch.hospital_beds
		WHERE hospital_id = $1`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bed categories")
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var beds domain.BedCategory
		if err := rows.Scan(&category, &beds.Total, &beds.Occupied); err != nil {
			return nil, errors.Wrap(err, "failed to scan bed category")
		}
		h.Beds[category] = beds
	}

	return h, nil
}

// List returns all hospitals with their bed categories
func (r *PostgresRegistry) List(ctx context.Context) ([]domain.Hospital, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, latitude, longitude, er_available, active, created_at, updated_at
		FROM dispatch.hospitals`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list hospitals")
	}
	defer rows.Close()

	byID := make(map[types.ID]*domain.Hospital)
	var order []types.ID
	for rows.Next() {
		h := &domain.Hospital{Beds: make(map[string]domain.BedCategory)}
		var lat, lng *float64
		if err := rows.Scan(&h.ID, &h.Name, &lat, &lng, &h.ERAvailable, &h.Active, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan hospital")
		}
		if lat != nil && lng != nil {
			h.Location = &types.Location{Latitude: *lat, Longitude: *lng}
		}
		byID[h.ID] = h
		order = append(order, h.ID)
	}

	bedRows, err := r.pool.Query(ctx, `
		SELECT hospital_id, category, total, occupied
		FROM dispatch.hospital_beds`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bed categories")
	}
	defer bedRows.Close()

	for bedRows.Next() {
		var hospitalID types.ID
		var category string
		var beds domain.BedCategory
		if err := bedRows.Scan(&hospitalID, &category, &beds.Total, &beds.Occupied); err != nil {
			return nil, errors.Wrap(err, "failed to scan bed category")
		}
		if h, ok := byID[hospitalID]; ok {
			h.Beds[category] = beds
		}
	}

	out := make([]domain.Hospital, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// SetReadiness flips the ER readiness flag
func (r *PostgresRegistry) SetReadiness(ctx context.Context, id types.ID, available bool) (*domain.Hospital, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE dispatch.hospitals
		SET er_available = $2, updated_at = NOW()
		WHERE id = $1`, id, available)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set readiness")
	}
	if result.RowsAffected() == 0 {
		return nil, errors.NotFound("hospital", id.String())
	}

	return r.Get(ctx, id)
}

// AdjustBeds changes a category's occupied count with a conditional UPDATE,
// so two concurrent adjustments can never overcommit the pool.
func (r *PostgresRegistry) AdjustBeds(ctx context.Context, id types.ID, category string, delta int) (*domain.Hospital, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE dispatch.hospital_beds
		SET occupied = occupied + $3
		WHERE hospital_id = $1 AND category = $2
		  AND occupied + $3 >= 0 AND occupied + $3 <= total`,
		id, category, delta)
	if err != nil {
		return nil, errors.Wrap(err, "failed to adjust beds")
	}

	if result.RowsAffected() == 0 {
		// Distinguish a missing hospital from a refused adjustment. An
		// unknown category behaves as an empty pool.
		if _, err := r.scanHospital(ctx, id); err != nil {
			return nil, err
		}
		return nil, errors.Capacity("bed adjustment would violate capacity in " + category)
	}

	return r.Get(ctx, id)
}

// SetBedTotals upserts a category total, refusing totals below the current
// occupied count.
func (r *PostgresRegistry) SetBedTotals(ctx context.Context, id types.ID, category string, total int) (*domain.Hospital, error) {
	if total < 0 {
		return nil, errors.Capacity("bed total must not be negative")
	}

	if _, err := r.scanHospital(ctx, id); err != nil {
		return nil, err
	}

	result, err := r.pool.Exec(ctx, `
		INSERT INTO dispatch.hospital_beds (hospital_id, category, total, occupied)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (hospital_id, category) DO UPDATE
		SET total = EXCLUDED.total
		WHERE dispatch.hospital_beds.occupied <= EXCLUDED.total`,
		id, category, total)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set bed totals")
	}
	if result.RowsAffected() == 0 {
		return nil, errors.Capacity("bed total below current occupancy in " + category)
	}

	return r.Get(ctx, id)
}

// Deactivate soft-deletes a hospital
func (r *PostgresRegistry) Deactivate(ctx context.Context, id types.ID) (*domain.Hospital, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE dispatch.hospitals
		SET active = FALSE, er_available = FALSE, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to deactivate hospital")
	}
	if result.RowsAffected() == 0 {
		return nil, errors.NotFound("hospital", id.String())
	}

	return r.Get(ctx, id)
}

// scanHospital reads the hospitals row without bed categories
func (r *PostgresRegistry) scanHospital(ctx context.Context, id types.ID) (*domain.Hospital, error) {
	h := &domain.Hospital{Beds: make(map[string]domain.BedCategory)}
	var lat, lng *float64

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, latitude, longitude, er_available, active, created_at, updated_at
		FROM dispatch.hospitals
		WHERE id = $1`, id).Scan(
		&h.ID, &h.Name, &lat, &lng, &h.ERAvailable, &h.Active, &h.CreatedAt, &h.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("hospital", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get hospital")
	}

	if lat != nil && lng != nil {
		h.Location = &types.Location{Latitude: *lat, Longitude: *lng}
	}
	return h, nil
}

var _ domain.Registry = (*PostgresRegistry)(nil)
