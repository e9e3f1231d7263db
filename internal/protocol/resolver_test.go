package protocol

import (
	"context"
	"testing"

	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/types"
)

// memStore filters an in-memory protocol list the way the SQL store does
type memStore struct {
	protocols []Protocol
}

func (m *memStore) FindMatching(_ context.Context, l Lookup) ([]Protocol, error) {
	var out []Protocol
	for _, p := range m.protocols {
		if !p.IsActive || p.SurgeryType != l.SurgeryType || !p.CoversDay(l.Day) {
			continue
		}
		if p.ClinicianID == nil || *p.ClinicianID != l.ClinicianID {
			continue
		}
		if (l.ResearchID == nil) != (p.ResearchID == nil) {
			continue
		}
		if l.ResearchID != nil && *p.ResearchID != *l.ResearchID {
			continue
		}
		if p.ResearchGroup != l.ResearchGroup {
			continue
		}
		out = append(out, p)
	}
	sortByPriority(out)
	return out, nil
}

func (m *memStore) CountForSurgeryType(_ context.Context, clinicianID types.ID, surgeryType domain.SurgeryType) (int, error) {
	count := 0
	for _, p := range m.protocols {
		if p.IsActive && p.SurgeryType == surgeryType && p.ResearchID == nil &&
			p.ClinicianID != nil && *p.ClinicianID == clinicianID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) FindDefault(_ context.Context, surgeryType domain.SurgeryType, day int) ([]Protocol, error) {
	var out []Protocol
	for _, p := range m.protocols {
		if p.IsActive && p.ClinicianID == nil && p.ResearchID == nil &&
			p.SurgeryType == surgeryType && p.CoversDay(day) {
			out = append(out, p)
		}
	}
	sortByPriority(out)
	return out, nil
}

func sortByPriority(ps []Protocol) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].Priority > ps[j-1].Priority; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

var (
	clinicianID = types.NewID()
	researchID  = types.NewID()
)

func clinician(usesDefault bool) *domain.Clinician {
	return &domain.Clinician{ID: clinicianID, UsesDefaultProtocol: usesDefault}
}

func proto(p Protocol) Protocol {
	p.ID = types.NewID()
	p.IsActive = true
	if p.SurgeryType == "" {
		p.SurgeryType = domain.SurgeryTypeHemorrhoidectomy
	}
	return p
}

func dayRange(start, end int) (int, *int) { return start, &end }

func TestResolveResearchGroupBeatsStudyWide(t *testing.T) {
	start, end := dayRange(1, 14)
	store := &memStore{protocols: []Protocol{
		proto(Protocol{
			ClinicianID: &clinicianID, ResearchID: &researchID,
			DayRangeStart: start, DayRangeEnd: end,
			Category: "pain", Content: "study-wide wording",
		}),
		proto(Protocol{
			ClinicianID: &clinicianID, ResearchID: &researchID, ResearchGroup: "arm-b",
			DayRangeStart: start, DayRangeEnd: end,
			Category: "pain", Content: "arm-b wording",
		}),
	}}

	res, err := NewResolver(store).Resolve(context.Background(), Query{
		Clinician: clinician(false), SurgeryType: domain.SurgeryTypeHemorrhoidectomy,
		Day: 3, ResearchID: &researchID, ResearchGroup: "arm-b",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeStrict {
		t.Errorf("research protocols must resolve strict, got %s", res.Mode)
	}
	if res.Guidance != "arm-b wording" {
		t.Errorf("expected arm-b wording, got %q", res.Guidance)
	}
}

func TestResolveResearchFallsBackToStudyWide(t *testing.T) {
	start, end := dayRange(1, 14)
	store := &memStore{protocols: []Protocol{
		proto(Protocol{
			ClinicianID: &clinicianID, ResearchID: &researchID,
			DayRangeStart: start, DayRangeEnd: end,
			Category: "pain", Content: "study-wide wording",
		}),
	}}

	res, err := NewResolver(store).Resolve(context.Background(), Query{
		Clinician: clinician(false), SurgeryType: domain.SurgeryTypeHemorrhoidectomy,
		Day: 3, ResearchID: &researchID, ResearchGroup: "arm-b",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeStrict || res.Guidance != "study-wide wording" {
		t.Errorf("expected strict study-wide resolution, got %s %q", res.Mode, res.Guidance)
	}
}

func TestResolveResearchWithoutProtocolIsCollectionOnly(t *testing.T) {
	// the clinician has a perfectly good protocol, but a research patient
	// must never hear it
	start, end := dayRange(1, 14)
	store := &memStore{protocols: []Protocol{
		proto(Protocol{
			ClinicianID:   &clinicianID,
			DayRangeStart: start, DayRangeEnd: end,
			Category: "pain", Content: "clinician wording",
		}),
	}}

	res, err := NewResolver(store).Resolve(context.Background(), Query{
		Clinician: clinician(true), SurgeryType: domain.SurgeryTypeHemorrhoidectomy,
		Day: 3, ResearchID: &researchID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeCollectionOnly {
		t.Errorf("expected collection-only sentinel, got %s", res.Mode)
	}
	if res.AllowsCareInstructions() {
		t.Error("collection-only must forbid care instructions")
	}
}

func TestResolveClinicianProtocol(t *testing.T) {
	start, end := dayRange(1, 7)
	store := &memStore{protocols: []Protocol{
		proto(Protocol{
			ClinicianID:   &clinicianID,
			DayRangeStart: start, DayRangeEnd: end,
			Category: "pain", Priority: 1, Content: "low priority",
		}),
		proto(Protocol{
			ClinicianID:   &clinicianID,
			DayRangeStart: start, DayRangeEnd: end,
			Category: "pain", Priority: 5, Content: "high priority",
		}),
	}}

	res, err := NewResolver(store).Resolve(context.Background(), Query{
		Clinician: clinician(false), SurgeryType: domain.SurgeryTypeHemorrhoidectomy, Day: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeStandard {
		t.Errorf("expected standard mode, got %s", res.Mode)
	}
	if res.Guidance != "high priority" {
		t.Errorf("expected highest-priority protocol to win, got %q", res.Guidance)
	}
}

func TestResolveContactClinicWhenDayUncovered(t *testing.T) {
	start, end := dayRange(1, 5)
	store := &memStore{protocols: []Protocol{
		proto(Protocol{
			ClinicianID:   &clinicianID,
			DayRangeStart: start, DayRangeEnd: end,
			Category: "pain", Content: "early days only",
		}),
	}}

	res, err := NewResolver(store).Resolve(context.Background(), Query{
		Clinician: clinician(true), SurgeryType: domain.SurgeryTypeHemorrhoidectomy, Day: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeContactClinic {
		t.Errorf("expected contact-clinic sentinel, got %s", res.Mode)
	}
	if res.Guidance == "" {
		t.Error("contact-clinic sentinel must tell the patient where to turn")
	}
}

func TestResolveSystemDefaultRequiresOptIn(t *testing.T) {
	start, end := dayRange(1, 14)
	store := &memStore{protocols: []Protocol{
		proto(Protocol{
			DayRangeStart: start, DayRangeEnd: end,
			Category: "pain", Content: "system default wording",
		}),
	}}

	t.Run("opted in", func(t *testing.T) {
		res, err := NewResolver(store).Resolve(context.Background(), Query{
			Clinician: clinician(true), SurgeryType: domain.SurgeryTypeHemorrhoidectomy, Day: 3,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Mode != ModeStandard || res.Guidance != "system default wording" {
			t.Errorf("expected system default, got %s %q", res.Mode, res.Guidance)
		}
	})

	t.Run("not opted in", func(t *testing.T) {
		res, err := NewResolver(store).Resolve(context.Background(), Query{
			Clinician: clinician(false), SurgeryType: domain.SurgeryTypeHemorrhoidectomy, Day: 3,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Mode != ModeCollectionOnly {
			t.Errorf("expected collection-only without opt-in, got %s", res.Mode)
		}
	})
}

func TestProtocolCoversDay(t *testing.T) {
	end := 7
	tests := []struct {
		name string
		p    Protocol
		day  int
		want bool
	}{
		{"inside range", Protocol{DayRangeStart: 1, DayRangeEnd: &end}, 5, true},
		{"at start", Protocol{DayRangeStart: 3, DayRangeEnd: &end}, 3, true},
		{"at end", Protocol{DayRangeStart: 1, DayRangeEnd: &end}, 7, true},
		{"before start", Protocol{DayRangeStart: 3, DayRangeEnd: &end}, 2, false},
		{"after end", Protocol{DayRangeStart: 1, DayRangeEnd: &end}, 8, false},
		{"open ended", Protocol{DayRangeStart: 5}, 14, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.CoversDay(tt.day); got != tt.want {
				t.Errorf("CoversDay(%d) = %v, want %v", tt.day, got, tt.want)
			}
		})
	}
}
