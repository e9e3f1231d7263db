// Package bowel tracks post-operative bowel function: days without a first
// movement escalate through reminder, concern and urgent tiers, and Bristol
// stool types classify the movement itself once it happens.
package bowel

import "fmt"

// UrgencyLevel is the escalation tier for days without a bowel movement
type UrgencyLevel string

const (
	UrgencyNormal   UrgencyLevel = "normal"
	UrgencyReminder UrgencyLevel = "reminder"
	UrgencyConcern  UrgencyLevel = "concern"
	UrgencyUrgent   UrgencyLevel = "urgent"
)

// Assessment is the verdict for a patient who has not yet had their first
// post-operative bowel movement.
type Assessment struct {
	Level          UrgencyLevel `json:"level"`
	DaysWithout    int          `json:"days_without"`
	AlertDoctor    bool         `json:"alert_doctor"`
	PatientMessage string       `json:"patient_message"`
	ClinicalNote   string       `json:"clinical_note,omitempty"`
}

// Assess maps days without a first bowel movement to an escalation tier.
// Up to two days is normal after anorectal surgery; five or more needs the
// doctor involved the same day.
func Assess(daysWithout int) Assessment {
	a := Assessment{DaysWithout: daysWithout}

	switch {
	case daysWithout <= 2:
		a.Level = UrgencyNormal
		a.PatientMessage = "No bowel movement yet is completely normal in the first couple of days. Keep drinking plenty of water and taking your stool softener."
	case daysWithout == 3:
		a.Level = UrgencyReminder
		a.PatientMessage = "It has been 3 days without a bowel movement. Please make sure you are taking the prescribed laxative, drinking 2+ liters of water and moving around gently."
		a.ClinicalNote = "day 3 without bowel movement; reminder sent"
	case daysWithout == 4:
		a.Level = UrgencyConcern
		a.PatientMessage = "4 days without a bowel movement needs attention. Take the laxative as prescribed today; if nothing changes by tomorrow morning, contact the clinic."
		a.ClinicalNote = "day 4 without bowel movement; approaching intervention threshold"
	default:
		a.Level = UrgencyUrgent
		a.AlertDoctor = true
		a.PatientMessage = fmt.Sprintf("It has been %d days without a bowel movement. Your doctor has been notified and will contact you today about next steps.", daysWithout)
		a.ClinicalNote = fmt.Sprintf("%d days without bowel movement; doctor alerted", daysWithout)
	}

	return a
}

// BristolCategory classifies a Bristol stool scale type
type BristolCategory string

const (
	BristolConstipated BristolCategory = "constipated"
	BristolNormal      BristolCategory = "normal"
	BristolLoose       BristolCategory = "loose"
	BristolDiarrhea    BristolCategory = "diarrhea"
)

// BristolAnalysis is the verdict for a reported stool type
type BristolAnalysis struct {
	Category       BristolCategory `json:"category"`
	AlertDoctor    bool            `json:"alert_doctor"`
	PatientMessage string          `json:"patient_message"`
}

// AnalyzeBristol classifies a Bristol type 1-7. Types 1-2 suggest the
// stool softener dose is insufficient; type 7 after anorectal surgery risks
// wound contamination and gets the doctor involved.
func AnalyzeBristol(bristolType int) (BristolAnalysis, error) {
	if bristolType < 1 || bristolType > 7 {
		return BristolAnalysis{}, fmt.Errorf("bristol type %d out of range 1-7", bristolType)
	}

	switch {
	case bristolType <= 2:
		return BristolAnalysis{
			Category:       BristolConstipated,
			PatientMessage: "Hard stools strain the surgical site. Increase your water intake and check with the clinic whether to adjust the stool softener dose.",
		}, nil
	case bristolType <= 5:
		return BristolAnalysis{
			Category:       BristolNormal,
			PatientMessage: "Stool consistency looks good for this stage of recovery.",
		}, nil
	case bristolType == 6:
		return BristolAnalysis{
			Category:       BristolLoose,
			PatientMessage: "Stools are on the loose side. If you are taking a laxative, consider reducing the dose and mention it at your next check-in.",
		}, nil
	default:
		return BristolAnalysis{
			Category:       BristolDiarrhea,
			AlertDoctor:    true,
			PatientMessage: "Watery stools after surgery need attention. Your doctor has been notified; keep the area clean and stay hydrated.",
		}, nil
	}
}
