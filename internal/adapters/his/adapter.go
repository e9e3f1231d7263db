// Package his polls a clinic's hospital information system for completed
// anorectal surgeries and enrolls them into the follow-up programme.
// Clinics running Heliant and similar Serbian HIS products expose their
// data over SQL Server, so the adapter speaks mssql directly.
package his

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/golang-sql/civil"
	"github.com/rs/zerolog/log"

	"github.com/vigia-health/platform/internal/followup"
	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/config"
	"github.com/vigia-health/platform/internal/shared/types"
)

// Registrar enrolls an imported surgery. followup.Service satisfies this;
// registration is idempotent on the external reference, so re-polling the
// same rows is safe.
type Registrar interface {
	RegisterSurgery(ctx context.Context, in followup.RegisterSurgeryInput) (*domain.Surgery, error)
}

// SurgeryRecord is one completed-surgery row from the HIS
type SurgeryRecord struct {
	RecordID     string
	PatientName  string
	PatientPhone string
	ProcedureCode string // HIS procedure code
	SurgeryDate  time.Time
	ClinicianRef string // system clinician ID provisioned at onboarding
}

// Adapter polls the HIS on an interval and feeds new rows to the registrar
type Adapter struct {
	db        *sql.DB
	cfg       config.HISConfig
	registrar Registrar

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	lastPoll time.Time
	wg       sync.WaitGroup
}

func New(cfg config.HISConfig, registrar Registrar) *Adapter {
	return &Adapter{cfg: cfg, registrar: registrar}
}

// Start opens the database connection and begins polling
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("his: adapter already running")
	}

	db, err := sql.Open("sqlserver", a.cfg.DSN)
	if err != nil {
		return fmt.Errorf("his: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("his: failed to ping database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.cfg.PollInterval)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	return nil
}

// Stop halts polling and closes the connection
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.cancel()
	a.wg.Wait()

	if a.db != nil {
		a.db.Close()
	}
	a.running = false
	return nil
}

// Health checks HIS connectivity
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return fmt.Errorf("his: adapter not running")
	}
	return a.db.PingContext(ctx)
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.pollOnce(ctx); err != nil {
				log.Error().Err(err).Msg("his poll failed")
			}
		}
	}
}

func (a *Adapter) pollOnce(ctx context.Context) error {
	since := a.lastPoll
	now := time.Now()

	records, err := a.fetchCompleted(ctx, since)
	if err != nil {
		return err
	}

	imported := 0
	for _, rec := range records {
		if err := a.enroll(ctx, rec); err != nil {
			log.Warn().Err(err).Str("record_id", rec.RecordID).Msg("failed to enroll imported surgery")
			continue
		}
		imported++
	}

	if imported > 0 {
		log.Info().Int("imported", imported).Int("seen", len(records)).Msg("his import pass complete")
	}

	a.mu.Lock()
	a.lastPoll = now
	a.mu.Unlock()
	return nil
}

func (a *Adapter) fetchCompleted(ctx context.Context, since time.Time) ([]SurgeryRecord, error) {
	query := `
		SELECT RecordID, PatientName, PatientPhone, ProcedureCode, SurgeryDate, ClinicianRef
		FROM dbo.CompletedSurgeries
		WHERE CompletedAt > @since AND Status = 'completed'
		ORDER BY CompletedAt`

	rows, err := a.db.QueryContext(ctx, query, sql.Named("since", since))
	if err != nil {
		return nil, fmt.Errorf("his: query failed: %w", err)
	}
	defer rows.Close()

	var records []SurgeryRecord
	for rows.Next() {
		var rec SurgeryRecord
		var phone, clinicianRef sql.NullString
		if err := rows.Scan(&rec.RecordID, &rec.PatientName, &phone, &rec.ProcedureCode, &rec.SurgeryDate, &clinicianRef); err != nil {
			return nil, fmt.Errorf("his: scan failed: %w", err)
		}
		rec.PatientPhone = phone.String
		rec.ClinicianRef = clinicianRef.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (a *Adapter) enroll(ctx context.Context, rec SurgeryRecord) error {
	surgeryType, err := MapProcedureCode(rec.ProcedureCode)
	if err != nil {
		return err
	}

	clinicianID, err := types.ParseID(rec.ClinicianRef)
	if err != nil {
		return fmt.Errorf("his: record %s has no usable clinician reference: %w", rec.RecordID, err)
	}

	_, err = a.registrar.RegisterSurgery(ctx, followup.RegisterSurgeryInput{
		ClinicianID:  clinicianID,
		PatientName:  rec.PatientName,
		PatientPhone: rec.PatientPhone,
		SurgeryType:  surgeryType,
		SurgeryDate:  civil.DateOf(rec.SurgeryDate),
		ExternalRef:  "his-" + rec.RecordID,
	})
	return err
}

// MapProcedureCode translates HIS procedure codes to surgery types. Codes
// follow the local coding list; full type names pass through unchanged.
func MapProcedureCode(code string) (domain.SurgeryType, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "HEM", "49.46":
		return domain.SurgeryTypeHemorrhoidectomy, nil
	case "FIS", "49.04":
		return domain.SurgeryTypeFissure, nil
	case "FST", "49.12":
		return domain.SurgeryTypeFistula, nil
	case "PIL", "86.21":
		return domain.SurgeryTypePilonidal, nil
	}

	switch t := domain.SurgeryType(strings.ToLower(strings.TrimSpace(code))); t {
	case domain.SurgeryTypeHemorrhoidectomy, domain.SurgeryTypeFissure, domain.SurgeryTypeFistula, domain.SurgeryTypePilonidal:
		return t, nil
	}
	return "", fmt.Errorf("his: unknown procedure code %q", code)
}
