package infrastructure

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// --- Clinician operations ---

func (r *PostgresRepository) SaveClinician(ctx context.Context, c *domain.Clinician) error {
	query := `
		INSERT INTO clinicians (id, name, phone, uses_default_protocol, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.Phone.String(), c.UsesDefaultProtocol, c.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("clinician already exists")
		}
		return errors.Wrap(err, "failed to save clinician")
	}

	return nil
}

func (r *PostgresRepository) FindClinician(ctx context.Context, id types.ID) (*domain.Clinician, error) {
	query := `
		SELECT id, name, phone, uses_default_protocol, created_at
		FROM clinicians
		WHERE id = $1`

	c := &domain.Clinician{}
	var phone *string

	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &phone, &c.UsesDefaultProtocol, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("clinician", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find clinician")
	}

	if phone != nil {
		c.Phone = types.Phone(*phone)
	}
	return c, nil
}

// --- Patient operations ---

func (r *PostgresRepository) SavePatient(ctx context.Context, p *domain.Patient) error {
	query := `
		INSERT INTO patients (id, clinician_id, name, phone, research_id, research_group, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query, p.ID, p.ClinicianID, p.Name, p.Phone.String(), p.ResearchID, nullable(p.ResearchGroup), p.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("patient already exists")
		}
		return errors.Wrap(err, "failed to save patient")
	}

	return nil
}

func (r *PostgresRepository) FindPatient(ctx context.Context, id types.ID) (*domain.Patient, error) {
	return r.findPatient(ctx, `id = $1`, id)
}

func (r *PostgresRepository) FindPatientByPhone(ctx context.Context, phone types.Phone) (*domain.Patient, error) {
	return r.findPatient(ctx, `phone = $1`, phone.String())
}

func (r *PostgresRepository) findPatient(ctx context.Context, condition string, arg any) (*domain.Patient, error) {
	query := `
		SELECT id, clinician_id, name, phone, research_id, COALESCE(research_group, ''), created_at
		FROM patients
		WHERE ` + condition

	p := &domain.Patient{}
	var phone string

	err := r.pool.QueryRow(ctx, query, arg).Scan(&p.ID, &p.ClinicianID, &p.Name, &phone, &p.ResearchID, &p.ResearchGroup, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", "")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find patient")
	}

	p.Phone = types.Phone(phone)
	return p, nil
}

// --- Surgery operations ---

func (r *PostgresRepository) FindSurgery(ctx context.Context, id types.ID) (*domain.Surgery, error) {
	return r.findSurgery(ctx, `id = $1`, id)
}

func (r *PostgresRepository) FindSurgeryByExternalRef(ctx context.Context, ref string) (*domain.Surgery, error) {
	return r.findSurgery(ctx, `external_ref = $1`, ref)
}

func (r *PostgresRepository) FindActiveSurgeryByPatient(ctx context.Context, patientID types.ID) (*domain.Surgery, error) {
	return r.findSurgery(ctx, `patient_id = $1 AND status = 'active'`, patientID)
}

func (r *PostgresRepository) findSurgery(ctx context.Context, condition string, arg any) (*domain.Surgery, error) {
	query := `
		SELECT id, patient_id, clinician_id, surgery_type, surgery_date, status, COALESCE(external_ref, ''), created_at
		FROM surgeries
		WHERE ` + condition

	s := &domain.Surgery{}
	var surgeryDate time.Time

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&s.ID, &s.PatientID, &s.ClinicianID, &s.Type, &surgeryDate, &s.Status, &s.ExternalRef, &s.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("surgery", "")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find surgery")
	}

	s.Date = civil.DateOf(surgeryDate)
	return s, nil
}

func (r *PostgresRepository) UpdateSurgeryStatus(ctx context.Context, id types.ID, status domain.SurgeryStatus) error {
	result, err := r.pool.Exec(ctx, `UPDATE surgeries SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return errors.Wrap(err, "failed to update surgery status")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("surgery", id.String())
	}
	return nil
}

// CreateSchedule persists the surgery and its follow-ups atomically. The
// UNIQUE (surgery_id, day_number) constraint turns a concurrent duplicate
// into a conflict, leaving the first schedule untouched.
func (r *PostgresRepository) CreateSchedule(ctx context.Context, surgery *domain.Surgery, followUps []domain.FollowUp) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var externalRef *string
	if surgery.ExternalRef != "" {
		externalRef = &surgery.ExternalRef
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO surgeries (id, patient_id, clinician_id, surgery_type, surgery_date, status, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		surgery.ID, surgery.PatientID, surgery.ClinicianID, surgery.Type,
		surgery.Date.In(time.UTC), surgery.Status, externalRef, surgery.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("surgery already registered")
		}
		return errors.Wrap(err, "failed to save surgery")
	}

	for i := range followUps {
		f := &followUps[i]
		_, err = tx.Exec(ctx, `
			INSERT INTO follow_ups (id, surgery_id, day_number, scheduled_at, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			f.ID, f.SurgeryID, f.DayNumber, f.ScheduledAt, f.Status, f.CreatedAt,
		)
		if err != nil {
			if strings.Contains(err.Error(), "duplicate key") {
				return errors.Conflict("follow-up schedule already exists for this surgery")
			}
			return errors.Wrap(err, "failed to save follow-up")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit schedule")
	}

	return nil
}

// --- FollowUp operations ---

const followUpColumns = `id, surgery_id, day_number, scheduled_at, status, sent_at, responded_at, created_at`

func (r *PostgresRepository) FindFollowUp(ctx context.Context, id types.ID) (*domain.FollowUp, error) {
	query := `SELECT ` + followUpColumns + ` FROM follow_ups WHERE id = $1`

	f := &domain.FollowUp{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.SurgeryID, &f.DayNumber, &f.ScheduledAt, &f.Status, &f.SentAt, &f.RespondedAt, &f.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("follow-up", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find follow-up")
	}

	return f, nil
}

func (r *PostgresRepository) FindSchedule(ctx context.Context, surgeryID types.ID) ([]domain.FollowUp, error) {
	query := `SELECT ` + followUpColumns + ` FROM follow_ups WHERE surgery_id = $1 ORDER BY day_number`

	rows, err := r.pool.Query(ctx, query, surgeryID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load schedule")
	}
	defer rows.Close()

	var followUps []domain.FollowUp
	for rows.Next() {
		var f domain.FollowUp
		if err := rows.Scan(&f.ID, &f.SurgeryID, &f.DayNumber, &f.ScheduledAt, &f.Status, &f.SentAt, &f.RespondedAt, &f.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan follow-up")
		}
		followUps = append(followUps, f)
	}

	return followUps, nil
}

func (r *PostgresRepository) FindFollowUpByDay(ctx context.Context, surgeryID types.ID, dayNumber int) (*domain.FollowUp, error) {
	query := `SELECT ` + followUpColumns + ` FROM follow_ups WHERE surgery_id = $1 AND day_number = $2`

	f := &domain.FollowUp{}
	err := r.pool.QueryRow(ctx, query, surgeryID, dayNumber).Scan(
		&f.ID, &f.SurgeryID, &f.DayNumber, &f.ScheduledAt, &f.Status, &f.SentAt, &f.RespondedAt, &f.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("follow-up", surgeryID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find follow-up by day")
	}

	return f, nil
}

// FindDue returns pending follow-ups past their send time whose surgery is
// still active, joined with the patient contact details the dispatcher
// needs.
func (r *PostgresRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.DueFollowUp, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT f.id, f.surgery_id, f.day_number, f.scheduled_at, f.status, f.sent_at, f.responded_at, f.created_at,
			s.id, s.surgery_type, p.id, p.name, p.phone
		FROM follow_ups f
		JOIN surgeries s ON s.id = f.surgery_id
		JOIN patients p ON p.id = s.patient_id
		WHERE f.status = 'pending'
		  AND f.scheduled_at <= $1
		  AND s.status = 'active'
		ORDER BY f.scheduled_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find due follow-ups")
	}
	defer rows.Close()

	var due []domain.DueFollowUp
	for rows.Next() {
		var d domain.DueFollowUp
		var phone string
		err := rows.Scan(
			&d.FollowUp.ID, &d.FollowUp.SurgeryID, &d.FollowUp.DayNumber, &d.FollowUp.ScheduledAt,
			&d.FollowUp.Status, &d.FollowUp.SentAt, &d.FollowUp.RespondedAt, &d.FollowUp.CreatedAt,
			&d.SurgeryID, &d.SurgeryType, &d.PatientID, &d.PatientName, &phone,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan due follow-up")
		}
		d.PatientPhone = types.Phone(phone)
		due = append(due, d)
	}

	return due, nil
}

func (r *PostgresRepository) UpdateFollowUp(ctx context.Context, f *domain.FollowUp) error {
	query := `
		UPDATE follow_ups SET
			status = $2, sent_at = $3, responded_at = $4
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, f.ID, f.Status, f.SentAt, f.RespondedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update follow-up")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("follow-up", f.ID.String())
	}

	return nil
}

// --- Response operations ---

func (r *PostgresRepository) SaveResponse(ctx context.Context, resp *domain.FollowUpResponse) error {
	answersJSON, err := json.Marshal(resp.Answers)
	if err != nil {
		return errors.Wrap(err, "failed to marshal answers")
	}

	query := `
		INSERT INTO follow_up_responses (
			id, follow_up_id, pain_at_rest, pain_during_bowel_movement,
			had_bowel_movement, bristol_type, bleeding, temperature,
			urination_normal, answers, free_text,
			urgency, category, summary, doctor_alerted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	var bleeding *string
	if resp.Bleeding != "" {
		s := string(resp.Bleeding)
		bleeding = &s
	}

	_, err = r.pool.Exec(ctx, query,
		resp.ID, resp.FollowUpID, resp.PainAtRest, resp.PainDuringBowelMovement,
		resp.HadBowelMovement, resp.BristolType, bleeding, resp.Temperature,
		resp.UrinationNormal, answersJSON, resp.FreeText,
		nullable(resp.Urgency), nullable(resp.Category), resp.Summary, resp.DoctorAlerted, resp.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save response")
	}

	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FindDayRecords returns the latest response per follow-up day for a
// surgery, ordered by day number.
func (r *PostgresRepository) FindDayRecords(ctx context.Context, surgeryID types.ID) ([]domain.DayRecord, error) {
	query := `
		SELECT DISTINCT ON (f.day_number)
			f.day_number,
			resp.id, resp.follow_up_id, resp.pain_at_rest, resp.pain_during_bowel_movement,
			resp.had_bowel_movement, resp.bristol_type, COALESCE(resp.bleeding, ''), resp.temperature,
			resp.urination_normal, resp.answers, COALESCE(resp.free_text, ''),
			COALESCE(resp.urgency, ''), COALESCE(resp.category, ''), COALESCE(resp.summary, ''),
			resp.doctor_alerted, resp.created_at
		FROM follow_up_responses resp
		JOIN follow_ups f ON f.id = resp.follow_up_id
		WHERE f.surgery_id = $1
		ORDER BY f.day_number, resp.created_at DESC`

	rows, err := r.pool.Query(ctx, query, surgeryID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load day records")
	}
	defer rows.Close()

	var records []domain.DayRecord
	for rows.Next() {
		var rec domain.DayRecord
		var answersJSON []byte
		var bleeding string

		err := rows.Scan(
			&rec.DayNumber,
			&rec.Response.ID, &rec.Response.FollowUpID, &rec.Response.PainAtRest, &rec.Response.PainDuringBowelMovement,
			&rec.Response.HadBowelMovement, &rec.Response.BristolType, &bleeding, &rec.Response.Temperature,
			&rec.Response.UrinationNormal, &answersJSON, &rec.Response.FreeText,
			&rec.Response.Urgency, &rec.Response.Category, &rec.Response.Summary,
			&rec.Response.DoctorAlerted, &rec.Response.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan day record")
		}

		rec.Response.Bleeding = domain.BleedingLevel(bleeding)
		if err := json.Unmarshal(answersJSON, &rec.Response.Answers); err != nil {
			rec.Response.Answers = nil
		}

		records = append(records, rec)
	}

	return records, nil
}

// --- First bowel movement ---

func (r *PostgresRepository) RecordFirstBowelMovement(ctx context.Context, rec *domain.FirstBowelMovement) error {
	query := `
		INSERT INTO first_bowel_movements (surgery_id, recorded_on, day_number, bristol_type, pain_during, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		rec.SurgeryID, rec.RecordedOn.In(time.UTC), rec.DayNumber, rec.BristolType, rec.PainDuring, rec.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("first bowel movement already recorded")
		}
		return errors.Wrap(err, "failed to record first bowel movement")
	}

	return nil
}

func (r *PostgresRepository) FindFirstBowelMovement(ctx context.Context, surgeryID types.ID) (*domain.FirstBowelMovement, error) {
	query := `
		SELECT surgery_id, recorded_on, day_number, bristol_type, pain_during, created_at
		FROM first_bowel_movements
		WHERE surgery_id = $1`

	rec := &domain.FirstBowelMovement{}
	var recordedOn time.Time

	err := r.pool.QueryRow(ctx, query, surgeryID).Scan(
		&rec.SurgeryID, &recordedOn, &rec.DayNumber, &rec.BristolType, &rec.PainDuring, &rec.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("first bowel movement", surgeryID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find first bowel movement")
	}

	rec.RecordedOn = civil.DateOf(recordedOn)
	return rec, nil
}

// --- Advisory locking ---

// WithFollowUpLock serializes processing per follow-up using a session
// advisory lock pinned to one pooled connection. Concurrent webhook
// deliveries for the same check-in queue up instead of racing.
func (r *PostgresRepository) WithFollowUpLock(ctx context.Context, followUpID types.ID, fn func(ctx context.Context) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to acquire connection for lock")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, followUpID.String()); err != nil {
		return errors.Wrap(err, "failed to take follow-up lock")
	}
	defer func() {
		// The unlock must run even when the request context was cancelled
		// mid-fn; a failed unlock would return the connection to the pool
		// still holding the session lock, wedging this follow-up for good.
		unlockCtx, cancel := unlockContext(ctx)
		defer cancel()
		conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, followUpID.String())
	}()

	return fn(ctx)
}

// unlockContext detaches the advisory unlock from the caller's cancellation
// while keeping its values, bounded so a dead connection cannot hang release
func unlockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

var _ domain.Repository = (*PostgresRepository)(nil)
