package triage

import (
	"context"
	"strings"
)

// criticalKeywords are phrases that upgrade a fallback verdict to CRITICAL.
// Matching is deliberately crude: when the NLP service is down we accept
// false positives over missed emergencies.
var criticalKeywords = []string{
	"heavy bleeding",
	"bleeding a lot",
	"bleeding heavily",
	"soaked",
	"unbearable",
	"can't breathe",
	"cannot breathe",
	"chest pain",
	"fainted",
	"fainting",
	"passed out",
	"unconscious",
	"can't urinate",
	"cannot urinate",
	"high fever",
	"pus",
	"emergency",
}

// FallbackClassifier is the deterministic classifier used when the NLP
// service is unavailable or returns an invalid verdict. It is biased toward
// escalation: every verdict notifies the doctor and the floor is HIGH.
type FallbackClassifier struct{}

// Classify never fails; it grades the patient message by keyword scan only
func (FallbackClassifier) Classify(_ context.Context, req Request) (*Result, error) {
	message := strings.ToLower(req.PatientMessage)

	for _, kw := range criticalKeywords {
		if strings.Contains(message, kw) {
			return &Result{
				Urgency:            UrgencyCritical,
				Category:           "automated_escalation",
				Summary:            "Automated triage unavailable; patient message contains emergency wording.",
				SuggestedResponse:  "Your message suggests something serious. Please call your clinic now, or go to the nearest emergency department.",
				ShouldNotifyDoctor: true,
				RedFlags:           []string{"keyword: " + kw},
			}, nil
		}
	}

	return &Result{
		Urgency:            UrgencyHigh,
		Category:           "automated_escalation",
		Summary:            "Automated triage unavailable; report escalated for clinician review.",
		SuggestedResponse:  "Thank you for your report. A member of your care team will review it shortly and contact you if needed.",
		ShouldNotifyDoctor: true,
	}, nil
}
