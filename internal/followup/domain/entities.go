package domain

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	"github.com/vigia-health/platform/internal/shared/types"
)

// SurgeryType defines the kind of anorectal procedure being followed up
type SurgeryType string

const (
	SurgeryTypeHemorrhoidectomy SurgeryType = "hemorrhoidectomy"
	SurgeryTypeFissure          SurgeryType = "fissure"
	SurgeryTypeFistula          SurgeryType = "fistula"
	SurgeryTypePilonidal        SurgeryType = "pilonidal"
)

// SurgeryStatus defines the status of a surgery's follow-up programme
type SurgeryStatus string

const (
	SurgeryStatusActive    SurgeryStatus = "active"
	SurgeryStatusCompleted SurgeryStatus = "completed"
	SurgeryStatusCancelled SurgeryStatus = "cancelled"
)

// Clinician represents the treating doctor who owns a patient's follow-ups
type Clinician struct {
	ID    types.ID    `json:"id"`
	Name  string      `json:"name"`
	Phone types.Phone `json:"phone,omitempty"`

	// UsesDefaultProtocol opts this clinician into the system default
	// recovery guidance when they have no protocols of their own for a
	// surgery type. Without the opt-in, answers are collected but no
	// guidance is given.
	UsesDefaultProtocol bool `json:"uses_default_protocol"`

	CreatedAt time.Time `json:"created_at"`
}

// Patient represents a person enrolled in post-operative follow-up
type Patient struct {
	ID          types.ID    `json:"id"`
	ClinicianID types.ID    `json:"clinician_id"`
	Name        string      `json:"name"`
	Phone       types.Phone `json:"phone"`

	// ResearchID is set when the patient is enrolled in a clinical study;
	// study protocols then take precedence over clinician guidance.
	// ResearchGroup narrows that further to the patient's study arm.
	ResearchID    *types.ID `json:"research_id,omitempty"`
	ResearchGroup string    `json:"research_group,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Surgery is the anchor for a follow-up schedule. Its date is a civil date
// in the clinic's timezone; day numbers count from it, with surgery day
// being day 0.
type Surgery struct {
	ID          types.ID      `json:"id"`
	PatientID   types.ID      `json:"patient_id"`
	ClinicianID types.ID      `json:"clinician_id"`
	Type        SurgeryType   `json:"type"`
	Date        civil.Date    `json:"date"`
	Status      SurgeryStatus `json:"status"`

	// ExternalRef carries the source record key when the surgery was
	// imported from a clinic HIS, for dedupe on re-polls.
	ExternalRef string `json:"external_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewSurgery creates a surgery record with validation
func NewSurgery(patientID, clinicianID types.ID, surgeryType SurgeryType, date civil.Date) (*Surgery, error) {
	if patientID.IsZero() {
		return nil, fmt.Errorf("patient is required")
	}
	if clinicianID.IsZero() {
		return nil, fmt.Errorf("clinician is required")
	}
	switch surgeryType {
	case SurgeryTypeHemorrhoidectomy, SurgeryTypeFissure, SurgeryTypeFistula, SurgeryTypePilonidal:
	default:
		return nil, fmt.Errorf("unknown surgery type %q", surgeryType)
	}
	if !date.IsValid() {
		return nil, fmt.Errorf("surgery date is required")
	}

	return &Surgery{
		ID:          types.NewID(),
		PatientID:   patientID,
		ClinicianID: clinicianID,
		Type:        surgeryType,
		Date:        date,
		Status:      SurgeryStatusActive,
		CreatedAt:   time.Now(),
	}, nil
}

// Cancel stops further follow-up dispatches for this surgery
func (s *Surgery) Cancel() error {
	if s.Status != SurgeryStatusActive {
		return fmt.Errorf("surgery is not active")
	}
	s.Status = SurgeryStatusCancelled
	return nil
}

// Complete marks the follow-up programme finished
func (s *Surgery) Complete() error {
	if s.Status != SurgeryStatusActive {
		return fmt.Errorf("surgery is not active")
	}
	s.Status = SurgeryStatusCompleted
	return nil
}
