package triage

import (
	"testing"

	"github.com/vigia-health/platform/internal/followup/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestEvaluateRedFlags(t *testing.T) {
	tests := []struct {
		name        string
		resp        domain.FollowUpResponse
		day         int
		surgeryType domain.SurgeryType
		want        Urgency
		wantCount   int
	}{
		{
			name:        "high fever is critical",
			resp:        domain.FollowUpResponse{Temperature: floatPtr(39.2)},
			day:         2,
			surgeryType: domain.SurgeryTypeHemorrhoidectomy,
			want:        UrgencyCritical,
			wantCount:   1,
		},
		{
			name:        "moderate fever is high",
			resp:        domain.FollowUpResponse{Temperature: floatPtr(38.3)},
			day:         2,
			surgeryType: domain.SurgeryTypeHemorrhoidectomy,
			want:        UrgencyHigh,
			wantCount:   1,
		},
		{
			name:        "severe bleeding is critical",
			resp:        domain.FollowUpResponse{Bleeding: domain.BleedingSevere},
			day:         1,
			surgeryType: domain.SurgeryTypeFissure,
			want:        UrgencyCritical,
			wantCount:   1,
		},
		{
			name:        "extreme rest pain is critical",
			resp:        domain.FollowUpResponse{PainAtRest: intPtr(9)},
			day:         4,
			surgeryType: domain.SurgeryTypeFissure,
			want:        UrgencyCritical,
			wantCount:   1,
		},
		{
			name:        "urinary retention after hemorrhoidectomy is critical",
			resp:        domain.FollowUpResponse{UrinationNormal: boolPtr(false)},
			day:         1,
			surgeryType: domain.SurgeryTypeHemorrhoidectomy,
			want:        UrgencyCritical,
			wantCount:   1,
		},
		{
			name:        "urinary retention after pilonidal is high",
			resp:        domain.FollowUpResponse{UrinationNormal: boolPtr(false)},
			day:         1,
			surgeryType: domain.SurgeryTypePilonidal,
			want:        UrgencyHigh,
			wantCount:   1,
		},
		{
			name:        "purulent discharge counts from day three",
			resp:        domain.FollowUpResponse{Answers: map[string]any{"discharge": "purulent"}},
			day:         3,
			surgeryType: domain.SurgeryTypeFistula,
			want:        UrgencyHigh,
			wantCount:   1,
		},
		{
			name:        "purulent discharge ignored before day three",
			resp:        domain.FollowUpResponse{Answers: map[string]any{"discharge": "purulent"}},
			day:         2,
			surgeryType: domain.SurgeryTypeFistula,
			want:        UrgencyLow,
			wantCount:   0,
		},
		{
			name:        "fissure bowel movement pain is high",
			resp:        domain.FollowUpResponse{PainDuringBowelMovement: intPtr(9)},
			day:         3,
			surgeryType: domain.SurgeryTypeFissure,
			want:        UrgencyHigh,
			wantCount:   1,
		},
		{
			name:        "pilonidal wound opening is high",
			resp:        domain.FollowUpResponse{Answers: map[string]any{"wound_opened": true}},
			day:         5,
			surgeryType: domain.SurgeryTypePilonidal,
			want:        UrgencyHigh,
			wantCount:   1,
		},
		{
			name:        "clean report has no flags",
			resp:        domain.FollowUpResponse{PainAtRest: intPtr(3), Temperature: floatPtr(36.8)},
			day:         3,
			surgeryType: domain.SurgeryTypeHemorrhoidectomy,
			want:        UrgencyLow,
			wantCount:   0,
		},
		{
			name: "multiple flags report the worst",
			resp: domain.FollowUpResponse{
				Temperature: floatPtr(38.5),
				Bleeding:    domain.BleedingSevere,
			},
			day:         2,
			surgeryType: domain.SurgeryTypeHemorrhoidectomy,
			want:        UrgencyCritical,
			wantCount:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := EvaluateRedFlags(&tt.resp, tt.day, tt.surgeryType)
			if len(flags) != tt.wantCount {
				t.Fatalf("expected %d flags, got %d: %+v", tt.wantCount, len(flags), flags)
			}
			if got := HighestUrgency(flags); got != tt.want {
				t.Errorf("expected highest urgency %s, got %s", tt.want, got)
			}
		})
	}
}
