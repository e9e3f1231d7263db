package domain

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/vigia-health/platform/internal/shared/clock"
	"github.com/vigia-health/platform/internal/shared/types"
)

func belgradeZone(t *testing.T) clock.ClinicZone {
	t.Helper()
	zone, err := clock.LoadClinicZone("Europe/Belgrade", 10)
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return zone
}

func testSurgery(t *testing.T, date civil.Date) *Surgery {
	t.Helper()
	s, err := NewSurgery(types.NewID(), types.NewID(), SurgeryTypeHemorrhoidectomy, date)
	if err != nil {
		t.Fatalf("new surgery: %v", err)
	}
	return s
}

// TestBuildScheduleDays verifies the canonical day set and count
func TestBuildScheduleDays(t *testing.T) {
	zone := belgradeZone(t)
	surgery := testSurgery(t, civil.Date{Year: 2026, Month: time.March, Day: 2})

	followUps := BuildSchedule(surgery, zone, time.Now())

	if len(followUps) != 7 {
		t.Fatalf("Expected 7 follow-ups, got %d", len(followUps))
	}

	wantDays := []int{1, 2, 3, 5, 7, 10, 14}
	for i, f := range followUps {
		if f.DayNumber != wantDays[i] {
			t.Errorf("follow-up %d: expected day %d, got %d", i, wantDays[i], f.DayNumber)
		}
		if f.Status != FollowUpStatusPending {
			t.Errorf("day %d: expected status pending, got %s", f.DayNumber, f.Status)
		}
		if f.SurgeryID != surgery.ID {
			t.Errorf("day %d: follow-up not linked to surgery", f.DayNumber)
		}
		if f.ID.IsZero() {
			t.Errorf("day %d: expected non-zero ID", f.DayNumber)
		}
	}
}

// TestBuildScheduleSendTimes verifies each follow-up lands at the clinic
// send hour on the right civil day.
func TestBuildScheduleSendTimes(t *testing.T) {
	zone := belgradeZone(t)
	surgeryDate := civil.Date{Year: 2026, Month: time.March, Day: 2}
	surgery := testSurgery(t, surgeryDate)

	followUps := BuildSchedule(surgery, zone, time.Now())

	for _, f := range followUps {
		local := f.ScheduledAt.In(zone.Loc)
		if local.Hour() != 10 || local.Minute() != 0 {
			t.Errorf("day %d: expected 10:00 clinic time, got %02d:%02d", f.DayNumber, local.Hour(), local.Minute())
		}

		wantDate := surgeryDate.AddDays(f.DayNumber)
		if got := civil.DateOf(local); got != wantDate {
			t.Errorf("day %d: expected civil date %v, got %v", f.DayNumber, wantDate, got)
		}
	}
}

// TestBuildScheduleAcrossDSTChange verifies send times survive the spring
// clock change: the day-14 follow-up still fires at civil 10:00 even though
// the UTC offset shifted mid-schedule.
func TestBuildScheduleAcrossDSTChange(t *testing.T) {
	zone := belgradeZone(t)
	// Europe/Belgrade moves to CEST on 2026-03-29.
	surgery := testSurgery(t, civil.Date{Year: 2026, Month: time.March, Day: 25})

	followUps := BuildSchedule(surgery, zone, time.Now())

	for _, f := range followUps {
		local := f.ScheduledAt.In(zone.Loc)
		if local.Hour() != 10 {
			t.Errorf("day %d: expected 10:00 clinic time across DST, got %02d:%02d", f.DayNumber, local.Hour(), local.Minute())
		}
	}

	_, firstOffset := followUps[0].ScheduledAt.In(zone.Loc).Zone()
	_, lastOffset := followUps[len(followUps)-1].ScheduledAt.In(zone.Loc).Zone()
	if firstOffset == lastOffset {
		t.Error("Expected schedule to span a DST offset change")
	}
}

// TestBuildScheduleEmitsScheduledEvents verifies each follow-up carries a
// scheduled event for the audit bus.
func TestBuildScheduleEmitsScheduledEvents(t *testing.T) {
	zone := belgradeZone(t)
	surgery := testSurgery(t, civil.Date{Year: 2026, Month: time.June, Day: 10})

	followUps := BuildSchedule(surgery, zone, time.Now())

	for _, f := range followUps {
		events := f.DomainEvents()
		if len(events) != 1 {
			t.Fatalf("day %d: expected 1 event, got %d", f.DayNumber, len(events))
		}
		if events[0].Type != FollowUpEventScheduled {
			t.Errorf("day %d: expected scheduled event, got %s", f.DayNumber, events[0].Type)
		}
	}
}
