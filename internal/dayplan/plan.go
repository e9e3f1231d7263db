// Package dayplan assembles the daily check-in: which questions to ask on a
// given post-operative day, the greeting that opens the conversation, and
// the clinical context narrative handed to triage. Everything here is a
// pure function of the day and the patient's bowel status.
package dayplan

import (
	"fmt"

	"github.com/vigia-health/platform/internal/bowel"
	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/trend"
)

// QuestionType describes the expected answer shape
type QuestionType string

const (
	TypeScale  QuestionType = "scale"  // 0-10
	TypeYesNo  QuestionType = "yes_no"
	TypeChoice QuestionType = "choice"
	TypeText   QuestionType = "text"
)

// Question is one item of the daily questionnaire
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
}

// Input describes the patient's situation on the day being planned
type Input struct {
	Day                   int
	SurgeryType           domain.SurgeryType
	HadFirstBowelMovement bool
	DaysWithoutMovement   int
}

// Plan is the assembled daily check-in
type Plan struct {
	Day             int        `json:"day"`
	Intro           string     `json:"intro"`
	Questions       []Question `json:"questions"`
	ClinicalContext string     `json:"clinical_context"`
}

// entry gates a question on the day's situation. The table is evaluated in
// order, so the questionnaire sequence lives here, not in caller code.
type entry struct {
	when  func(Input) bool
	build func(Input) Question
}

func always(Input) bool { return true }

func static(q Question) func(Input) Question {
	return func(Input) Question { return q }
}

var questionTable = []entry{
	// Pain first: it anchors the trend analysis.
	{always, static(Question{
		ID:   "pain_at_rest",
		Text: "On a scale of 0-10, how much pain do you feel right now while resting?",
		Type: TypeScale,
	})},

	// Bowel question branches on whether the first movement happened.
	{always, func(in Input) Question {
		if in.HadFirstBowelMovement {
			return Question{
				ID:   "bowel_movement_today",
				Text: "Did you have a bowel movement since yesterday? If yes, how much pain did it cause (0-10)?",
				Type: TypeScale,
			}
		}
		return Question{
			ID:   "first_bowel_movement",
			Text: "Have you had your first bowel movement since the surgery?",
			Type: TypeYesNo,
		}
	}},

	// Day-specific items.
	{func(in Input) bool { return in.Day == 1 }, static(Question{
		ID:   "local_care_adherence",
		Text: "Have you been able to do the sitz baths and local care as instructed?",
		Type: TypeYesNo,
	})},
	{func(in Input) bool { return in.Day >= 7 }, static(Question{
		ID:   "activity_level",
		Text: "How is your daily activity? Are you able to walk and handle light tasks comfortably?",
		Type: TypeChoice,
		Options: []string{
			"back to normal",
			"light activity only",
			"mostly resting",
		},
	})},

	// Common symptom screen.
	{always, static(Question{
		ID:   "bleeding",
		Text: "Have you noticed any bleeding today?",
		Type: TypeChoice,
		Options: []string{
			"none",
			"spotting on paper",
			"moderate",
			"heavy or continuous",
		},
	})},
	{always, static(Question{
		ID:   "urination",
		Text: "Are you urinating normally?",
		Type: TypeYesNo,
	})},
	{always, static(Question{
		ID:   "fever",
		Text: "Have you measured a fever? If yes, what was the temperature?",
		Type: TypeText,
	})},
	{func(in Input) bool { return in.Day >= 3 }, static(Question{
		ID:   "discharge",
		Text: "Is there any discharge from the wound, and if so, what does it look like?",
		Type: TypeText,
	})},

	// Analgesia battery.
	{always, static(Question{
		ID:   "taking_meds",
		Text: "Are you taking your pain medication as prescribed?",
		Type: TypeYesNo,
	})},
	{always, static(Question{
		ID:   "pain_controlled",
		Text: "Does the medication keep your pain at a manageable level?",
		Type: TypeYesNo,
	})},
	{always, static(Question{
		ID:   "medication_side_effects",
		Text: "Any side effects from the medication (nausea, dizziness, constipation)?",
		Type: TypeText,
	})},

	// Day 14 wrap-up battery.
	{func(in Input) bool { return in.Day == domain.FinalDay }, static(Question{
		ID:   "satisfaction_rating",
		Text: "This is your last scheduled check-in. How satisfied are you with your recovery follow-up, 0-10?",
		Type: TypeScale,
	})},
	{func(in Input) bool { return in.Day == domain.FinalDay }, static(Question{
		ID:   "would_recommend",
		Text: "Would you recommend this follow-up programme to someone having the same surgery?",
		Type: TypeYesNo,
	})},
	{func(in Input) bool { return in.Day == domain.FinalDay }, static(Question{
		ID:   "positive_feedback",
		Text: "What worked well for you during these two weeks?",
		Type: TypeText,
	})},
	{func(in Input) bool { return in.Day == domain.FinalDay }, static(Question{
		ID:   "improvement_suggestions",
		Text: "Anything we should improve?",
		Type: TypeText,
	})},

	// Open floor last, so nothing the patient wants to say gets lost.
	{always, static(Question{
		ID:   "concerns",
		Text: "Is there anything else worrying you or that you would like to ask?",
		Type: TypeText,
	})},
}

var intros = map[int]string{
	1:  "Hello! This is your day-after check-in. The first day can be rough, so let's see how you are doing.",
	2:  "Good morning! Day 2 is often the most uncomfortable as the anesthetic fully wears off. That is expected — let's check in.",
	3:  "Hi! Day 3 check-in. Many patients have their first bowel movement around now, so today's questions focus on that.",
	5:  "Hello! Day 5 already. Pain should slowly be easing — let's see where you stand.",
	7:  "Hi! One week since your surgery. Time to look at how your recovery is progressing overall.",
	10: "Hello! Day 10 check-in. Most of the hard part should be behind you.",
	14: "Hi! This is your final scheduled check-in, two weeks after surgery. A few last questions, including some feedback ones.",
}

// BuildPlan assembles the questionnaire for a day
func BuildPlan(in Input) Plan {
	questions := make([]Question, 0, len(questionTable))
	for _, e := range questionTable {
		if e.when(in) {
			questions = append(questions, e.build(in))
		}
	}

	intro, ok := intros[in.Day]
	if !ok {
		intro = fmt.Sprintf("Hello! This is your day %d recovery check-in.", in.Day)
	}

	return Plan{
		Day:             in.Day,
		Intro:           intro,
		Questions:       questions,
		ClinicalContext: buildClinicalContext(in),
	}
}

// buildClinicalContext produces the narrative handed to triage alongside
// the patient's answers: what is normal today, what to watch for, and how
// to pitch the tone.
func buildClinicalContext(in Input) string {
	band := trend.ExpectedBand(in.Day)

	ctx := fmt.Sprintf(
		"Post-operative day %d after %s. Expected pain at rest is %d-%d on a 0-10 scale.",
		in.Day, in.SurgeryType, band.Min, band.Max,
	)

	if in.Day == 2 {
		ctx += " A pain increase versus day 1 is expected as the local anesthetic block wears off; do not treat it as deterioration on its own."
	}

	if !in.HadFirstBowelMovement {
		assessment := bowel.Assess(in.DaysWithoutMovement)
		switch assessment.Level {
		case bowel.UrgencyNormal:
			ctx += " No first bowel movement yet, which is still normal."
		case bowel.UrgencyReminder:
			ctx += " Three days without a first bowel movement: reinforce laxative, fluids and mobility."
		case bowel.UrgencyConcern:
			ctx += " Four days without a first bowel movement: this needs attention today."
		case bowel.UrgencyUrgent:
			ctx += fmt.Sprintf(" %d days without a first bowel movement: urgent, the doctor must be involved.", in.DaysWithoutMovement)
		}
	}

	ctx += " Keep the tone calm and practical; escalate only on the defined red flags."
	return ctx
}
