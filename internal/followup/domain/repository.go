package domain

import (
	"context"
	"time"

	"github.com/golang-sql/civil"
	"github.com/vigia-health/platform/internal/shared/types"
)

// FirstBowelMovement is the one-shot record of a patient's first
// post-operative bowel movement. One row per surgery; repeat recordings
// are rejected.
type FirstBowelMovement struct {
	SurgeryID   types.ID   `json:"surgery_id"`
	RecordedOn  civil.Date `json:"recorded_on"`
	DayNumber   int        `json:"day_number"`
	BristolType *int       `json:"bristol_type,omitempty"`
	PainDuring  *int       `json:"pain_during,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DayRecord pairs a follow-up day number with its latest response, the
// shape the trend analyzer consumes.
type DayRecord struct {
	DayNumber int              `json:"day_number"`
	Response  FollowUpResponse `json:"response"`
}

// DueFollowUp joins a due follow-up with the dispatch context the sender
// needs in one query.
type DueFollowUp struct {
	FollowUp     FollowUp    `json:"follow_up"`
	SurgeryID    types.ID    `json:"surgery_id"`
	SurgeryType  SurgeryType `json:"surgery_type"`
	PatientID    types.ID    `json:"patient_id"`
	PatientName  string      `json:"patient_name"`
	PatientPhone types.Phone `json:"patient_phone"`
}

// Repository defines persistence for the follow-up bounded context
type Repository interface {
	// Clinician operations
	SaveClinician(ctx context.Context, c *Clinician) error
	FindClinician(ctx context.Context, id types.ID) (*Clinician, error)

	// Patient operations
	SavePatient(ctx context.Context, p *Patient) error
	FindPatient(ctx context.Context, id types.ID) (*Patient, error)
	FindPatientByPhone(ctx context.Context, phone types.Phone) (*Patient, error)

	// Surgery operations
	FindSurgery(ctx context.Context, id types.ID) (*Surgery, error)
	FindSurgeryByExternalRef(ctx context.Context, ref string) (*Surgery, error)
	FindActiveSurgeryByPatient(ctx context.Context, patientID types.ID) (*Surgery, error)
	UpdateSurgeryStatus(ctx context.Context, id types.ID, status SurgeryStatus) error

	// CreateSchedule persists the surgery and its full follow-up set in
	// one transaction. A schedule that already exists for the surgery
	// yields a conflict and nothing is written.
	CreateSchedule(ctx context.Context, surgery *Surgery, followUps []FollowUp) error

	// FollowUp operations
	FindFollowUp(ctx context.Context, id types.ID) (*FollowUp, error)
	FindSchedule(ctx context.Context, surgeryID types.ID) ([]FollowUp, error)
	FindFollowUpByDay(ctx context.Context, surgeryID types.ID, dayNumber int) (*FollowUp, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]DueFollowUp, error)
	UpdateFollowUp(ctx context.Context, f *FollowUp) error

	// Response operations
	SaveResponse(ctx context.Context, r *FollowUpResponse) error
	FindDayRecords(ctx context.Context, surgeryID types.ID) ([]DayRecord, error)

	// First bowel movement; repeat recording returns a conflict
	RecordFirstBowelMovement(ctx context.Context, rec *FirstBowelMovement) error
	FindFirstBowelMovement(ctx context.Context, surgeryID types.ID) (*FirstBowelMovement, error)

	// WithFollowUpLock runs fn while holding an advisory lock keyed on the
	// follow-up, serializing concurrent triage for the same check-in.
	WithFollowUpLock(ctx context.Context, followUpID types.ID, fn func(ctx context.Context) error) error
}
