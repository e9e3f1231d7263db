package domain

import (
	"time"

	"github.com/vigia-health/platform/internal/shared/clock"
	"github.com/vigia-health/platform/internal/shared/types"
)

// ScheduleDays are the canonical post-operative check-in offsets, in days
// after surgery. Chosen to track the typical anorectal recovery arc: daily
// through the acute phase, then thinning out to the day-14 wrap-up.
var ScheduleDays = []int{1, 2, 3, 5, 7, 10, 14}

// FinalDay is the last scheduled check-in day.
const FinalDay = 14

// BuildSchedule produces the full set of follow-ups for a surgery, one per
// canonical day, each scheduled at the clinic's send hour in the clinic's
// timezone. The result is either all seven or nothing; persistence commits
// it atomically.
func BuildSchedule(surgery *Surgery, zone clock.ClinicZone, now time.Time) []FollowUp {
	followUps := make([]FollowUp, 0, len(ScheduleDays))

	for _, day := range ScheduleDays {
		f := FollowUp{
			ID:          types.NewID(),
			SurgeryID:   surgery.ID,
			DayNumber:   day,
			ScheduledAt: zone.SendTime(surgery.Date, day),
			Status:      FollowUpStatusPending,
			CreatedAt:   now,
		}
		f.addEvent(FollowUpEventScheduled, now, map[string]any{
			"scheduled_at": f.ScheduledAt,
		})
		followUps = append(followUps, f)
	}

	return followUps
}
