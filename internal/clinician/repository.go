// Package clinician manages the doctors who own follow-up programmes:
// onboarding, contact details for alerts, and the default-protocol opt-in.
package clinician

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// Repository provides database operations for clinicians
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new clinician repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new clinician
func (r *Repository) Create(ctx context.Context, c *domain.Clinician) error {
	query := `
		INSERT INTO clinicians (id, name, phone, uses_default_protocol, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.Phone.String(), c.UsesDefaultProtocol, c.CreatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("clinician already exists")
		}
		return errors.Wrap(err, "failed to create clinician")
	}

	return nil
}

// Get retrieves a clinician by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*domain.Clinician, error) {
	query := `
		SELECT id, name, COALESCE(phone, ''), uses_default_protocol, created_at
		FROM clinicians
		WHERE id = $1`

	c := &domain.Clinician{}
	var phone string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &phone, &c.UsesDefaultProtocol, &c.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("clinician", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get clinician")
	}
	c.Phone = types.Phone(phone)

	return c, nil
}

// Update updates a clinician's name, phone and protocol opt-in
func (r *Repository) Update(ctx context.Context, c *domain.Clinician) error {
	query := `
		UPDATE clinicians SET
			name = $2, phone = $3, uses_default_protocol = $4
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.Phone.String(), c.UsesDefaultProtocol,
	)

	if err != nil {
		return errors.Wrap(err, "failed to update clinician")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("clinician", c.ID.String())
	}

	return nil
}

// ListFilter defines filters for listing clinicians
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// List lists clinicians with optional name search
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]domain.Clinician, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM clinicians %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count clinicians")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT id, name, COALESCE(phone, ''), uses_default_protocol, created_at
		FROM clinicians
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list clinicians")
	}
	defer rows.Close()

	var clinicians []domain.Clinician
	for rows.Next() {
		var c domain.Clinician
		var phone string
		if err := rows.Scan(&c.ID, &c.Name, &phone, &c.UsesDefaultProtocol, &c.CreatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan clinician")
		}
		c.Phone = types.Phone(phone)
		clinicians = append(clinicians, c)
	}

	return clinicians, total, nil
}
