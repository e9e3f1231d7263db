// Package triage turns a patient's daily report into an urgency verdict and
// a reply. Classification is delegated to an external NLP collaborator; a
// deterministic keyword classifier stands in whenever that fails, so the
// patient always gets an answer.
package triage

import (
	"context"
	"fmt"

	"github.com/vigia-health/platform/internal/followup/domain"
)

// Urgency is the triage classification level
type Urgency string

const (
	UrgencyCritical Urgency = "CRITICAL"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyLow      Urgency = "LOW"
)

// valid reports whether the urgency is one of the four defined levels
func (u Urgency) valid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

// AtLeast reports whether u is at or above the given level
func (u Urgency) AtLeast(other Urgency) bool {
	return urgencyRank(u) >= urgencyRank(other)
}

func urgencyRank(u Urgency) int {
	switch u {
	case UrgencyCritical:
		return 3
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 1
	default:
		return 0
	}
}

// Request is the bounded input handed to a classifier: the day's clinical
// context, the protocol guidance in force, and what the patient reported.
type Request struct {
	ClinicalContext  string             `json:"clinical_context"`
	ProtocolGuidance string             `json:"protocol_guidance"`
	PatientMessage   string             `json:"patient_message"`
	Answers          map[string]any     `json:"answers,omitempty"`
	Day              int                `json:"day"`
	SurgeryType      domain.SurgeryType `json:"surgery_type"`
}

// Result is a classifier's verdict
type Result struct {
	Urgency            Urgency  `json:"urgency"`
	Category           string   `json:"category"`
	Summary            string   `json:"summary"`
	SuggestedResponse  string   `json:"suggestedResponse"`
	ShouldNotifyDoctor bool     `json:"shouldNotifyDoctor"`
	RedFlags           []string `json:"redFlags,omitempty"`
}

// Validate enforces the classifier output schema. A result that fails here
// is treated exactly like a transport failure: discarded in favor of the
// fallback classifier.
func (r *Result) Validate() error {
	if !r.Urgency.valid() {
		return fmt.Errorf("unknown urgency %q", r.Urgency)
	}
	if r.Summary == "" {
		return fmt.Errorf("missing summary")
	}
	if r.SuggestedResponse == "" {
		return fmt.Errorf("missing suggested response")
	}
	return nil
}

// Classifier produces a triage verdict for a patient report
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Result, error)
}
