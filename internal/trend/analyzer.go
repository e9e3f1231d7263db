// Package trend classifies a patient's pain trajectory across follow-up
// days. The analyzer is a pure function over day-ordered pain reports;
// callers decide what to do with the verdict.
package trend

import "fmt"

// Pattern is the overall pain trajectory classification
type Pattern string

const (
	PatternImproving   Pattern = "improving"
	PatternStable      Pattern = "stable"
	PatternFluctuating Pattern = "fluctuating"
	PatternWorsening   Pattern = "worsening"
)

// Concern grades how worrying the latest report is, independent of the
// trajectory shape. Severe always alerts; moderate is watched.
type Concern string

const (
	ConcernNone     Concern = "none"
	ConcernMild     Concern = "mild"
	ConcernModerate Concern = "moderate"
	ConcernSevere   Concern = "severe"
)

var concernRank = map[Concern]int{
	ConcernNone:     0,
	ConcernMild:     1,
	ConcernModerate: 2,
	ConcernSevere:   3,
}

// Band is the expected pain range for a given post-operative day on a 0-10
// scale.
type Band struct {
	Min int
	Max int
}

// expectedBands maps post-operative day to the expected pain range. Day 1
// is low because the local anesthetic block is still active; day 2 peaks
// as it wears off, then the range tapers toward day 14.
var expectedBands = map[int]Band{
	1:  {0, 4},
	2:  {2, 7},
	3:  {2, 6},
	4:  {1, 5},
	5:  {1, 5},
	7:  {0, 4},
	10: {0, 3},
	14: {0, 2},
}

var bandDays = []int{1, 2, 3, 4, 5, 7, 10, 14}

// ExpectedBand returns the band for a day. Days without an exact entry get
// the nearest earlier band; anything past day 14 gets the day-14 band.
func ExpectedBand(day int) Band {
	if b, ok := expectedBands[day]; ok {
		return b
	}
	if day > 14 {
		return expectedBands[14]
	}
	best := 1
	for _, d := range bandDays {
		if d > day {
			break
		}
		best = d
	}
	return expectedBands[best]
}

// DayPain is one day's pain report
type DayPain struct {
	Day                     int
	PainAtRest              int
	PainDuringBowelMovement *int
}

// Analysis is the trend verdict for the latest report
type Analysis struct {
	Pattern            Pattern  `json:"pattern"`
	Concern            Concern  `json:"concern"`
	AlertDoctor        bool     `json:"alert_doctor"`
	WithinExpectedBand bool     `json:"within_expected_band"`
	Insights           []string `json:"insights,omitempty"`
	PatientMessage     string   `json:"patient_message"`
}

// raiseConcern escalates the concern tier; it never lowers it
func (a *Analysis) raiseConcern(c Concern) {
	if concernRank[c] > concernRank[a.Concern] {
		a.Concern = c
	}
}

// Analyze classifies the pain trajectory. Records must be ordered by day
// ascending; the verdict describes the latest record in the context of the
// ones before it.
func Analyze(records []DayPain) Analysis {
	if len(records) == 0 {
		return Analysis{
			Pattern:            PatternStable,
			Concern:            ConcernNone,
			WithinExpectedBand: true,
			PatientMessage:     patientMessage(false, ConcernNone, PatternStable),
		}
	}

	current := records[len(records)-1]
	band := ExpectedBand(current.Day)

	a := Analysis{
		Pattern:            PatternStable,
		Concern:            ConcernNone,
		WithinExpectedBand: current.PainAtRest >= band.Min && current.PainAtRest <= band.Max,
	}

	switch {
	case current.PainAtRest > band.Max:
		a.Insights = append(a.Insights, fmt.Sprintf("pain %d/10 is above the expected %d-%d range for day %d", current.PainAtRest, band.Min, band.Max, current.Day))
		if current.PainAtRest >= 8 {
			a.raiseConcern(ConcernSevere)
			a.AlertDoctor = true
		} else {
			a.raiseConcern(ConcernModerate)
		}
	case current.PainAtRest < band.Min:
		a.Insights = append(a.Insights, fmt.Sprintf("pain %d/10 is below the expected %d-%d range for day %d; better than expected", current.PainAtRest, band.Min, band.Max, current.Day))
	}

	if len(records) >= 2 {
		previous := records[len(records)-2]
		change := current.PainAtRest - previous.PainAtRest

		switch {
		case previous.Day == 1 && current.Day == 2 && change > 0:
			// The day-1 score is taken under residual local anesthetic;
			// a day-2 rise is the block wearing off, not deterioration.
			a.Pattern = PatternStable
			a.Insights = append(a.Insights, "day 1 to day 2 increase is expected as the anesthetic block wears off")
		case change > 2 && current.Day >= 3:
			// Past the anesthetic-block window pain should plateau or fall;
			// a sharp rise needs a clinician's eyes today.
			a.Pattern = PatternWorsening
			a.AlertDoctor = true
			a.raiseConcern(ConcernModerate)
			a.Insights = append(a.Insights, fmt.Sprintf("pain rose by %d points between day %d and day %d", change, previous.Day, current.Day))
		case change > 0:
			a.Pattern = PatternFluctuating
			a.raiseConcern(ConcernMild)
		case change < -1:
			a.Pattern = PatternImproving
		default:
			a.Pattern = PatternStable
		}
	}

	switch p := bmPain(current); {
	case p >= 8:
		a.raiseConcern(ConcernSevere)
		a.AlertDoctor = true
		a.Insights = append(a.Insights, fmt.Sprintf("severe pain during bowel movement (%d/10); risk of constipation from fear of passing stool", p))
	case p >= 6:
		a.raiseConcern(ConcernMild)
		a.Insights = append(a.Insights, fmt.Sprintf("notable pain during bowel movement (%d/10)", p))
	}
	if p := bmPain(current); p-current.PainAtRest >= 4 {
		a.Insights = append(a.Insights, "large gap between rest and bowel movement pain; consider analgesia 30-45 minutes before bowel movements")
	}

	if persistentHigh(records) && current.Day >= 4 {
		a.raiseConcern(ConcernSevere)
		a.AlertDoctor = true
		a.Insights = append(a.Insights, "pain 7/10 or higher on most recent days; persistent high pain past day 3")
	}

	a.PatientMessage = patientMessage(a.AlertDoctor, a.Concern, a.Pattern)
	return a
}

// patientMessage is the reply decision table. The alert wording always tells
// the patient the doctor is being informed; the moderate tier tells them the
// trend is being watched.
func patientMessage(alert bool, concern Concern, pattern Pattern) string {
	switch {
	case alert:
		return "Your pain is above what we expect at this stage. I will let your doctor know so they can review your pain management."
	case concern == ConcernModerate:
		return "Your pain is a little above the usual range for today. I will share it with your doctor so they can keep an eye on how it evolves."
	case pattern == PatternImproving:
		return "Your pain is trending down — recovery is on track. Keep up your current care routine."
	case pattern == PatternFluctuating:
		return "A small rise in pain can happen during recovery. Keep taking your prescribed analgesia and rest today."
	default:
		return "Your pain is within the expected range for this stage of recovery."
	}
}

func bmPain(r DayPain) int {
	if r.PainDuringBowelMovement == nil {
		return 0
	}
	return *r.PainDuringBowelMovement
}

// persistentHigh reports whether at least two of the last three reports are
// at pain 7 or above.
func persistentHigh(records []DayPain) bool {
	start := len(records) - 3
	if start < 0 {
		start = 0
	}
	high := 0
	for _, r := range records[start:] {
		if r.PainAtRest >= 7 {
			high++
		}
	}
	return high >= 2
}
