package triage

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/metrics"
)

// emergencyDirective is forced to the front of every CRITICAL reply so the
// patient sees the instruction before anything the classifier wrote
const emergencyDirective = "⚠️ Based on what you reported, please contact your clinic immediately or go to the nearest emergency department."

// reviewDisclaimer closes every non-critical reply
const reviewDisclaimer = "Your report has been recorded for your care team, and they will reach out if anything needs attention."

// Verdict is the final triage outcome after local rules are applied on top
// of the classifier result
type Verdict struct {
	Result
	RedFlags []RedFlag
	Source   string // "nlp" or "fallback"
}

// Service combines the NLP classifier, the keyword fallback, and the hard
// red-flag rules into one verdict per patient report
type Service struct {
	classifier Classifier
	fallback   Classifier
}

func NewService(classifier Classifier) *Service {
	return &Service{
		classifier: classifier,
		fallback:   FallbackClassifier{},
	}
}

// Triage classifies a patient report. It never returns an error: when the
// NLP classifier fails or produces an invalid verdict the keyword fallback
// takes over, and structured red flags can only raise the urgency, never
// lower it.
func (s *Service) Triage(ctx context.Context, req Request, resp *domain.FollowUpResponse) *Verdict {
	source := "nlp"
	result, err := s.classifier.Classify(ctx, req)
	if err != nil {
		log.Warn().Err(err).Int("day", req.Day).Msg("nlp triage failed, using fallback classifier")
		source = "fallback"
		result, _ = s.fallback.Classify(ctx, req)
	}

	verdict := &Verdict{Result: *result, Source: source}

	if resp != nil {
		verdict.RedFlags = EvaluateRedFlags(resp, req.Day, req.SurgeryType)
	}
	if floor := HighestUrgency(verdict.RedFlags); floor.AtLeast(UrgencyHigh) && !verdict.Urgency.AtLeast(floor) {
		verdict.Urgency = floor
		verdict.ShouldNotifyDoctor = true
		for _, f := range verdict.RedFlags {
			verdict.Result.RedFlags = append(verdict.Result.RedFlags, f.Description)
		}
	}

	s.applyReplyRules(verdict)
	metrics.RecordTriageVerdict(string(verdict.Urgency), source)
	return verdict
}

// applyReplyRules enforces the invariants on the patient-facing reply that
// no classifier output is allowed to override
func (s *Service) applyReplyRules(v *Verdict) {
	if v.Urgency == UrgencyCritical {
		v.ShouldNotifyDoctor = true
		if !strings.Contains(strings.ToLower(v.SuggestedResponse), "emergency") {
			v.SuggestedResponse = emergencyDirective + "\n\n" + v.SuggestedResponse
		}
		return
	}

	if !strings.Contains(v.SuggestedResponse, reviewDisclaimer) {
		v.SuggestedResponse = v.SuggestedResponse + "\n\n" + reviewDisclaimer
	}
}
