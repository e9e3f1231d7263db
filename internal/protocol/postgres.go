package protocol

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const protocolColumns = `id, clinician_id, research_id, COALESCE(research_group, ''), surgery_type,
	day_range_start, day_range_end, category, priority, content, is_active, created_at`

func (s *PostgresStore) FindMatching(ctx context.Context, l Lookup) ([]Protocol, error) {
	query := `
		SELECT ` + protocolColumns + `
		FROM protocols
		WHERE clinician_id = $1
		  AND LOWER(surgery_type) = LOWER($2)
		  AND day_range_start <= $3
		  AND (day_range_end IS NULL OR day_range_end >= $3)
		  AND is_active`
	args := []any{l.ClinicianID, string(l.SurgeryType), l.Day}

	if l.ResearchID != nil {
		args = append(args, *l.ResearchID)
		query += fmt.Sprintf(" AND research_id = $%d", len(args))
	} else {
		query += " AND research_id IS NULL"
	}

	if l.ResearchGroup != "" {
		args = append(args, l.ResearchGroup)
		query += fmt.Sprintf(" AND research_group = $%d", len(args))
	} else {
		query += " AND research_group IS NULL"
	}

	query += " ORDER BY priority DESC, category"

	return s.queryProtocols(ctx, query, args...)
}

func (s *PostgresStore) CountForSurgeryType(ctx context.Context, clinicianID types.ID, surgeryType domain.SurgeryType) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM protocols
		WHERE clinician_id = $1
		  AND LOWER(surgery_type) = LOWER($2)
		  AND research_id IS NULL
		  AND is_active`

	var count int
	if err := s.pool.QueryRow(ctx, query, clinicianID, string(surgeryType)).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count protocols")
	}
	return count, nil
}

func (s *PostgresStore) FindDefault(ctx context.Context, surgeryType domain.SurgeryType, day int) ([]Protocol, error) {
	query := `
		SELECT ` + protocolColumns + `
		FROM protocols
		WHERE clinician_id IS NULL
		  AND research_id IS NULL
		  AND LOWER(surgery_type) = LOWER($1)
		  AND day_range_start <= $2
		  AND (day_range_end IS NULL OR day_range_end >= $2)
		  AND is_active
		ORDER BY priority DESC, category`

	return s.queryProtocols(ctx, query, string(surgeryType), day)
}

// ListForClinician returns every protocol owned by the clinician,
// including inactive and research-scoped ones
func (s *PostgresStore) ListForClinician(ctx context.Context, clinicianID types.ID) ([]Protocol, error) {
	query := `
		SELECT ` + protocolColumns + `
		FROM protocols
		WHERE clinician_id = $1
		ORDER BY surgery_type, day_range_start, priority DESC`

	return s.queryProtocols(ctx, query, clinicianID)
}

// ListDefaults returns the system-default protocols
func (s *PostgresStore) ListDefaults(ctx context.Context) ([]Protocol, error) {
	query := `
		SELECT ` + protocolColumns + `
		FROM protocols
		WHERE clinician_id IS NULL AND research_id IS NULL
		ORDER BY surgery_type, day_range_start, priority DESC`

	return s.queryProtocols(ctx, query)
}

func (s *PostgresStore) FindByID(ctx context.Context, id types.ID) (*Protocol, error) {
	query := `
		SELECT ` + protocolColumns + `
		FROM protocols
		WHERE id = $1`

	protocols, err := s.queryProtocols(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(protocols) == 0 {
		return nil, errors.NotFound("protocol", id.String())
	}
	return &protocols[0], nil
}

// Save inserts or replaces a protocol definition
func (s *PostgresStore) Save(ctx context.Context, p *Protocol) error {
	query := `
		INSERT INTO protocols (id, clinician_id, research_id, research_group, surgery_type,
			day_range_start, day_range_end, category, priority, content, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			day_range_start = EXCLUDED.day_range_start,
			day_range_end = EXCLUDED.day_range_end,
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			content = EXCLUDED.content,
			is_active = EXCLUDED.is_active`

	var group *string
	if p.ResearchGroup != "" {
		group = &p.ResearchGroup
	}

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.ClinicianID, p.ResearchID, group, string(p.SurgeryType),
		p.DayRangeStart, p.DayRangeEnd, p.Category, p.Priority, p.Content, p.IsActive, p.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save protocol")
	}
	return nil
}

func (s *PostgresStore) queryProtocols(ctx context.Context, query string, args ...any) ([]Protocol, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query protocols")
	}
	defer rows.Close()

	var protocols []Protocol
	for rows.Next() {
		var p Protocol
		err := rows.Scan(
			&p.ID, &p.ClinicianID, &p.ResearchID, &p.ResearchGroup, &p.SurgeryType,
			&p.DayRangeStart, &p.DayRangeEnd, &p.Category, &p.Priority, &p.Content, &p.IsActive, &p.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan protocol")
		}
		protocols = append(protocols, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read protocols")
	}
	return protocols, nil
}

var _ Store = (*PostgresStore)(nil)
