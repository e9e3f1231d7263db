package domain

import (
	"time"

	apperrors "github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// BleedingLevel describes reported bleeding severity
type BleedingLevel string

const (
	BleedingNone     BleedingLevel = "none"
	BleedingSpotting BleedingLevel = "spotting"
	BleedingModerate BleedingLevel = "moderate"
	BleedingSevere   BleedingLevel = "severe"
)

// FollowUpResponse captures one set of questionnaire answers for a
// follow-up day. A follow-up may accumulate several responses when the
// patient writes again; the latest row is the authoritative read.
type FollowUpResponse struct {
	ID         types.ID `json:"id"`
	FollowUpID types.ID `json:"follow_up_id"`

	// Structured answers. Pointers distinguish "not asked / not answered"
	// from zero values.
	PainAtRest              *int           `json:"pain_at_rest,omitempty"`
	PainDuringBowelMovement *int           `json:"pain_during_bowel_movement,omitempty"`
	HadBowelMovement        *bool          `json:"had_bowel_movement,omitempty"`
	BristolType             *int           `json:"bristol_type,omitempty"`
	Bleeding                BleedingLevel  `json:"bleeding,omitempty"`
	Temperature             *float64       `json:"temperature,omitempty"`
	UrinationNormal         *bool          `json:"urination_normal,omitempty"`
	Answers                 map[string]any `json:"answers,omitempty"`
	FreeText                string         `json:"free_text,omitempty"`

	// Triage outcome recorded against this response
	Urgency       string `json:"urgency,omitempty"`
	Category      string `json:"category,omitempty"`
	Summary       string `json:"summary,omitempty"`
	DoctorAlerted bool   `json:"doctor_alerted"`

	CreatedAt time.Time `json:"created_at"`
}

// NewFollowUpResponse creates a response with field validation
func NewFollowUpResponse(followUpID types.ID) *FollowUpResponse {
	return &FollowUpResponse{
		ID:         types.NewID(),
		FollowUpID: followUpID,
		Answers:    map[string]any{},
		CreatedAt:  time.Now(),
	}
}

// Validate checks structured answer ranges. Pain scores run 0-10, Bristol
// types 1-7, temperature must be physiologically plausible.
func (r *FollowUpResponse) Validate() error {
	details := map[string]string{}

	if r.FollowUpID.IsZero() {
		details["followUpId"] = "required"
	}
	if r.PainAtRest != nil && (*r.PainAtRest < 0 || *r.PainAtRest > 10) {
		details["painAtRest"] = "must be between 0 and 10"
	}
	if r.PainDuringBowelMovement != nil && (*r.PainDuringBowelMovement < 0 || *r.PainDuringBowelMovement > 10) {
		details["painDuringBowelMovement"] = "must be between 0 and 10"
	}
	if r.BristolType != nil && (*r.BristolType < 1 || *r.BristolType > 7) {
		details["bristolType"] = "must be between 1 and 7"
	}
	if r.Temperature != nil && (*r.Temperature < 34.0 || *r.Temperature > 43.0) {
		details["temperature"] = "must be between 34.0 and 43.0"
	}
	switch r.Bleeding {
	case "", BleedingNone, BleedingSpotting, BleedingModerate, BleedingSevere:
	default:
		details["bleeding"] = "unknown bleeding level"
	}

	if len(details) > 0 {
		return apperrors.Validation("invalid follow-up response", details)
	}
	return nil
}
