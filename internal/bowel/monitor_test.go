package bowel

import "testing"

// TestAssessTiers walks the escalation ladder day by day
func TestAssessTiers(t *testing.T) {
	tests := []struct {
		days  int
		level UrgencyLevel
		alert bool
	}{
		{0, UrgencyNormal, false},
		{1, UrgencyNormal, false},
		{2, UrgencyNormal, false},
		{3, UrgencyReminder, false},
		{4, UrgencyConcern, false},
		{5, UrgencyUrgent, true},
		{6, UrgencyUrgent, true},
		{9, UrgencyUrgent, true},
	}

	for _, tt := range tests {
		a := Assess(tt.days)
		if a.Level != tt.level {
			t.Errorf("Assess(%d): expected level %s, got %s", tt.days, tt.level, a.Level)
		}
		if a.AlertDoctor != tt.alert {
			t.Errorf("Assess(%d): expected alert=%v, got %v", tt.days, tt.alert, a.AlertDoctor)
		}
		if a.PatientMessage == "" {
			t.Errorf("Assess(%d): expected a patient message", tt.days)
		}
		if a.DaysWithout != tt.days {
			t.Errorf("Assess(%d): DaysWithout = %d", tt.days, a.DaysWithout)
		}
	}
}

// TestAnalyzeBristol covers the stool scale categories
func TestAnalyzeBristol(t *testing.T) {
	tests := []struct {
		bristolType int
		category    BristolCategory
		alert       bool
	}{
		{1, BristolConstipated, false},
		{2, BristolConstipated, false},
		{3, BristolNormal, false},
		{4, BristolNormal, false},
		{5, BristolNormal, false},
		{6, BristolLoose, false},
		{7, BristolDiarrhea, true},
	}

	for _, tt := range tests {
		a, err := AnalyzeBristol(tt.bristolType)
		if err != nil {
			t.Fatalf("AnalyzeBristol(%d): %v", tt.bristolType, err)
		}
		if a.Category != tt.category {
			t.Errorf("type %d: expected %s, got %s", tt.bristolType, tt.category, a.Category)
		}
		if a.AlertDoctor != tt.alert {
			t.Errorf("type %d: expected alert=%v, got %v", tt.bristolType, tt.alert, a.AlertDoctor)
		}
	}
}

// TestAnalyzeBristolRange rejects out-of-scale values
func TestAnalyzeBristolRange(t *testing.T) {
	for _, v := range []int{0, 8, -1} {
		if _, err := AnalyzeBristol(v); err == nil {
			t.Errorf("AnalyzeBristol(%d): expected error", v)
		}
	}
}
