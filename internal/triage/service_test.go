package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vigia-health/platform/internal/followup/domain"
)

type stubClassifier struct {
	result *Result
	err    error
}

func (s stubClassifier) Classify(_ context.Context, _ Request) (*Result, error) {
	return s.result, s.err
}

func TestTriageCriticalForcesNotifyAndDirective(t *testing.T) {
	svc := NewService(stubClassifier{result: &Result{
		Urgency:           UrgencyCritical,
		Summary:           "Severe bleeding reported",
		SuggestedResponse: "Please lie down and apply pressure.",
		// classifier tried to stay quiet; the service must override
		ShouldNotifyDoctor: false,
	}})

	v := svc.Triage(context.Background(), Request{Day: 2}, nil)

	if !v.ShouldNotifyDoctor {
		t.Error("critical verdicts must notify the doctor")
	}
	if !strings.HasPrefix(v.SuggestedResponse, emergencyDirective) {
		t.Errorf("critical reply must lead with the emergency directive, got %q", v.SuggestedResponse)
	}
}

func TestTriageCriticalKeepsExistingEmergencyWording(t *testing.T) {
	svc := NewService(stubClassifier{result: &Result{
		Urgency:            UrgencyCritical,
		Summary:            "s",
		SuggestedResponse:  "Go to the emergency department right now.",
		ShouldNotifyDoctor: true,
	}})

	v := svc.Triage(context.Background(), Request{Day: 2}, nil)

	if strings.Contains(v.SuggestedResponse, emergencyDirective) {
		t.Error("directive should not be duplicated when the reply already points to emergency care")
	}
}

func TestTriageNonCriticalAppendsDisclaimer(t *testing.T) {
	svc := NewService(stubClassifier{result: &Result{
		Urgency:           UrgencyLow,
		Summary:           "All fine",
		SuggestedResponse: "Keep up the sitz baths.",
	}})

	v := svc.Triage(context.Background(), Request{Day: 5}, nil)

	if !strings.HasSuffix(v.SuggestedResponse, reviewDisclaimer) {
		t.Errorf("non-critical reply must end with the review disclaimer, got %q", v.SuggestedResponse)
	}
	if strings.Contains(v.SuggestedResponse, emergencyDirective) {
		t.Error("non-critical reply must not carry the emergency directive")
	}
}

func TestTriageFallbackOnClassifierError(t *testing.T) {
	svc := NewService(stubClassifier{err: errors.New("connection refused")})

	v := svc.Triage(context.Background(), Request{
		Day:            3,
		PatientMessage: "mild soreness, nothing else",
	}, nil)

	if v.Source != "fallback" {
		t.Fatalf("expected fallback source, got %s", v.Source)
	}
	if v.Urgency != UrgencyHigh {
		t.Errorf("fallback floor is HIGH, got %s", v.Urgency)
	}
	if !v.ShouldNotifyDoctor {
		t.Error("fallback verdicts must notify the doctor")
	}
}

func TestTriageFallbackDetectsEmergencyWording(t *testing.T) {
	svc := NewService(stubClassifier{err: errors.New("timeout")})

	v := svc.Triage(context.Background(), Request{
		Day:            1,
		PatientMessage: "I am bleeding heavily and feel dizzy",
	}, nil)

	if v.Urgency != UrgencyCritical {
		t.Fatalf("expected CRITICAL from keyword scan, got %s", v.Urgency)
	}
	if !strings.HasPrefix(v.SuggestedResponse, emergencyDirective) {
		t.Error("critical fallback reply must lead with the emergency directive")
	}
}

func TestTriageRedFlagsRaiseUrgency(t *testing.T) {
	svc := NewService(stubClassifier{result: &Result{
		Urgency:           UrgencyLow,
		Summary:           "Patient sounds calm",
		SuggestedResponse: "Rest and hydrate.",
	}})

	temp := 39.4
	resp := &domain.FollowUpResponse{Temperature: &temp}

	v := svc.Triage(context.Background(), Request{
		Day:         4,
		SurgeryType: domain.SurgeryTypeHemorrhoidectomy,
	}, resp)

	if v.Urgency != UrgencyCritical {
		t.Fatalf("red flag must override a calm classifier, got %s", v.Urgency)
	}
	if !v.ShouldNotifyDoctor {
		t.Error("red-flag escalation must notify the doctor")
	}
	if len(v.Result.RedFlags) == 0 {
		t.Error("escalating red flags must appear in the verdict")
	}
}

func TestTriageRedFlagsNeverLowerUrgency(t *testing.T) {
	svc := NewService(stubClassifier{result: &Result{
		Urgency:            UrgencyCritical,
		Summary:            "Patient in distress",
		SuggestedResponse:  "Seek emergency care.",
		ShouldNotifyDoctor: true,
	}})

	pain := 2
	resp := &domain.FollowUpResponse{PainAtRest: &pain}

	v := svc.Triage(context.Background(), Request{
		Day:         4,
		SurgeryType: domain.SurgeryTypeFissure,
	}, resp)

	if v.Urgency != UrgencyCritical {
		t.Errorf("clean answers must not lower a CRITICAL verdict, got %s", v.Urgency)
	}
}
