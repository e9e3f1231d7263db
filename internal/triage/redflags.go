package triage

import (
	"fmt"

	"github.com/vigia-health/platform/internal/followup/domain"
)

// RedFlag is a structured warning derived from the patient's answers,
// independent of any NLP verdict
type RedFlag struct {
	Description string
	Urgency     Urgency
}

// EvaluateRedFlags applies hard clinical rules to a structured report.
// These fire regardless of what the NLP classifier says, so a model that
// underplays a dangerous answer cannot suppress the escalation.
func EvaluateRedFlags(resp *domain.FollowUpResponse, day int, surgeryType domain.SurgeryType) []RedFlag {
	var flags []RedFlag

	if resp.Temperature != nil {
		switch {
		case *resp.Temperature >= 39.0:
			flags = append(flags, RedFlag{
				Description: fmt.Sprintf("fever %.1f°C", *resp.Temperature),
				Urgency:     UrgencyCritical,
			})
		case *resp.Temperature >= 38.0:
			flags = append(flags, RedFlag{
				Description: fmt.Sprintf("elevated temperature %.1f°C", *resp.Temperature),
				Urgency:     UrgencyHigh,
			})
		}
	}

	switch resp.Bleeding {
	case domain.BleedingSevere:
		flags = append(flags, RedFlag{
			Description: "severe bleeding reported",
			Urgency:     UrgencyCritical,
		})
	case domain.BleedingModerate:
		flags = append(flags, RedFlag{
			Description: "moderate bleeding reported",
			Urgency:     UrgencyHigh,
		})
	}

	if resp.PainAtRest != nil && *resp.PainAtRest >= 9 {
		flags = append(flags, RedFlag{
			Description: fmt.Sprintf("extreme pain at rest (%d/10)", *resp.PainAtRest),
			Urgency:     UrgencyCritical,
		})
	}

	if resp.UrinationNormal != nil && !*resp.UrinationNormal {
		// Urinary retention after hemorrhoidectomy is a known early
		// complication and needs same-day intervention.
		urgency := UrgencyHigh
		if surgeryType == domain.SurgeryTypeHemorrhoidectomy {
			urgency = UrgencyCritical
		}
		flags = append(flags, RedFlag{
			Description: "unable to urinate",
			Urgency:     urgency,
		})
	}

	if day >= 3 {
		if v, ok := resp.Answers["discharge"].(string); ok && v == "purulent" {
			flags = append(flags, RedFlag{
				Description: "purulent wound discharge",
				Urgency:     UrgencyHigh,
			})
		}
	}

	switch surgeryType {
	case domain.SurgeryTypeFissure, domain.SurgeryTypeFistula:
		if resp.PainDuringBowelMovement != nil && *resp.PainDuringBowelMovement >= 9 {
			flags = append(flags, RedFlag{
				Description: fmt.Sprintf("extreme pain during bowel movement (%d/10)", *resp.PainDuringBowelMovement),
				Urgency:     UrgencyHigh,
			})
		}
	case domain.SurgeryTypePilonidal:
		if v, ok := resp.Answers["wound_opened"].(bool); ok && v {
			flags = append(flags, RedFlag{
				Description: "wound dehiscence reported",
				Urgency:     UrgencyHigh,
			})
		}
	}

	return flags
}

// HighestUrgency returns the most severe urgency among the flags, or
// UrgencyLow when there are none
func HighestUrgency(flags []RedFlag) Urgency {
	highest := UrgencyLow
	for _, f := range flags {
		if f.Urgency.AtLeast(highest) {
			highest = f.Urgency
		}
	}
	return highest
}
