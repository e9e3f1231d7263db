// Package protocol decides which care instructions may be stated to a
// patient on a given recovery day. Research-study integrity comes first:
// an enrolled patient only ever hears study-approved wording, and when no
// study protocol covers the day the system collects data without advising.
package protocol

import (
	"time"

	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/types"
)

// Protocol is a unit of approved care guidance. ClinicianID and ResearchID
// scope ownership; a protocol with neither is a system default. The day
// range is inclusive; a nil DayRangeEnd means open-ended.
type Protocol struct {
	ID            types.ID           `json:"id"`
	ClinicianID   *types.ID          `json:"clinician_id,omitempty"`
	ResearchID    *types.ID          `json:"research_id,omitempty"`
	ResearchGroup string             `json:"research_group,omitempty"`
	SurgeryType   domain.SurgeryType `json:"surgery_type"`
	DayRangeStart int                `json:"day_range_start"`
	DayRangeEnd   *int               `json:"day_range_end,omitempty"`
	Category      string             `json:"category"`
	Priority      int                `json:"priority"`
	Content       string             `json:"content"`
	IsActive      bool               `json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
}

// CoversDay reports whether the protocol's inclusive day range contains day
func (p *Protocol) CoversDay(day int) bool {
	if day < p.DayRangeStart {
		return false
	}
	return p.DayRangeEnd == nil || day <= *p.DayRangeEnd
}

// Mode classifies what a resolution permits downstream
type Mode string

const (
	// ModeStrict carries study-approved wording that must be relayed
	// verbatim; no improvisation is permitted downstream.
	ModeStrict Mode = "strict"
	// ModeStandard carries clinician or system-default guidance that the
	// reply composer may adapt.
	ModeStandard Mode = "standard"
	// ModeContactClinic means the clinician maintains protocols for this
	// surgery type but none covers this day; the patient is referred to
	// the clinic instead of advised.
	ModeContactClinic Mode = "contact_clinic"
	// ModeCollectionOnly forbids any care instruction: answers are still
	// collected and emergency escalation still applies.
	ModeCollectionOnly Mode = "collection_only"
)

// Resolution is the outcome of a protocol lookup. Emergency-escalation
// wording (bleeding, fever, urinary retention) is never subject to it:
// that override applies in every mode, sentinels included.
type Resolution struct {
	Mode     Mode      `json:"mode"`
	Protocol *Protocol `json:"protocol,omitempty"`
	Guidance string    `json:"guidance,omitempty"`
}

// AllowsCareInstructions reports whether any care guidance may be given
func (r *Resolution) AllowsCareInstructions() bool {
	return r.Mode == ModeStrict || r.Mode == ModeStandard
}

// Strict reports whether the guidance must be relayed verbatim
func (r *Resolution) Strict() bool {
	return r.Mode == ModeStrict
}
