package infrastructure

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/djelfa-health/dispatch/internal/case/domain"
	"github.com/djelfa-health/dispatch/internal/shared/errors"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// PostgresRepository implements domain.Repository on PostgreSQL. Status
// transitions use a conditional UPDATE on the previous status, so concurrent
// resolutions of the same case serialize at the database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL case store
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create stores a new case
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Case) error {
	query := `
		INSERT INTO dispatch.cases (
			id, first_name, last_name, blood_type, medical_history, current_condition,
			hospital_id, paramedic_id, status, bed_category,
			created_at, resolved_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.PatientInfo.FirstName, c.PatientInfo.LastName, string(c.PatientInfo.BloodType),
		c.PatientInfo.MedicalHistory, c.PatientInfo.CurrentCondition,
		c.HospitalID, c.ParamedicID, string(c.Status), c.BedCategory,
		c.CreatedAt, c.ResolvedAt, c.CompletedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("case already exists")
		}
		return errors.Wrap(err, "failed to create case")
	}
	return nil
}

// Get returns one case
func (r *PostgresRepository) Get(ctx context.Context, id types.ID) (*domain.Case, error) {
	row := r.pool.QueryRow(ctx, selectCases+` WHERE id = $1`, id)
	c, err := scanCase(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get case")
	}
	return c, nil
}

// List returns cases matching the filter, newest first
func (r *PostgresRepository) List(ctx context.Context, filter domain.Filter) ([]*domain.Case, error) {
	query := selectCases
	var conditions []string
	var args []any

	addCondition := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}

	if filter.Status != "" {
		addCondition("status", string(filter.Status))
	}
	if !filter.ParamedicID.IsZero() {
		addCondition("paramedic_id", filter.ParamedicID)
	}
	if !filter.HospitalID.IsZero() {
		addCondition("hospital_id", filter.HospitalID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cases")
	}
	defer rows.Close()

	var out []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan case")
		}
		out = append(out, c)
	}
	if out == nil {
		out = []*domain.Case{}
	}
	return out, nil
}

// UpdateStatus writes the case back only if the stored status still matches
// expected
func (r *PostgresRepository) UpdateStatus(ctx context.Context, c *domain.Case, expected domain.Status) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE dispatch.cases
		SET status = $2, bed_category = $3, resolved_at = $4, completed_at = $5
		WHERE id = $1 AND status = $6`,
		c.ID, string(c.Status), c.BedCategory,
		c.ResolvedAt, c.CompletedAt, string(expected),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update case status")
	}
	if result.RowsAffected() == 0 {
		if _, err := r.Get(ctx, c.ID); err != nil {
			return err
		}
		return errors.Conflict("case was modified concurrently")
	}
	return nil
}

const selectCases = `
	SELECT id, first_name, last_name, blood_type, medical_history, current_condition,
	       hospital_id, paramedic_id, status, bed_category,
	       created_at, resolved_at, completed_at
	FROM dispatch.cases`

func scanCase(row pgx.Row) (*domain.Case, error) {
	c := &domain.Case{}
	var bloodType, status string

	err := row.Scan(
		&c.ID, &c.PatientInfo.FirstName, &c.PatientInfo.LastName, &bloodType,
		&c.PatientInfo.MedicalHistory, &c.PatientInfo.CurrentCondition,
		&c.HospitalID, &c.ParamedicID, &status, &c.BedCategory,
		&c.CreatedAt, &c.ResolvedAt, &c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	c.PatientInfo.BloodType = domain.BloodType(bloodType)
	c.Status = domain.Status(status)
	return c, nil
}

var _ domain.Repository = (*PostgresRepository)(nil)
