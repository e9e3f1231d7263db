// Package clock provides civil-time helpers for follow-up scheduling.
// All schedule math is done on civil dates in the clinic's timezone so that
// "day 3 at 10:00" means the patient's wall clock, not server UTC.
package clock

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"
)

// Clock abstracts time for services so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a test clock frozen at a single instant.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// ClinicZone wraps a loaded location plus the civil hour follow-ups go out.
type ClinicZone struct {
	Loc      *time.Location
	SendHour int
}

// LoadClinicZone resolves the IANA zone name once at startup.
func LoadClinicZone(name string, sendHour int) (ClinicZone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return ClinicZone{}, fmt.Errorf("load clinic timezone %q: %w", name, err)
	}
	if sendHour < 0 || sendHour > 23 {
		return ClinicZone{}, fmt.Errorf("send hour %d out of range", sendHour)
	}
	return ClinicZone{Loc: loc, SendHour: sendHour}, nil
}

// CivilDate extracts the civil date of an instant as seen in the clinic zone.
func (z ClinicZone) CivilDate(t time.Time) civil.Date {
	return civil.DateOf(t.In(z.Loc))
}

// SendTime maps a civil date plus a day offset to the instant the follow-up
// message goes out: offset days after the date, at SendHour:00 clinic time.
// DST transitions are absorbed by AddDate on the zoned time.
func (z ClinicZone) SendTime(surgeryDate civil.Date, offsetDays int) time.Time {
	d := surgeryDate.AddDays(offsetDays)
	return time.Date(d.Year, d.Month, d.Day, z.SendHour, 0, 0, 0, z.Loc)
}

// DaysSince returns the number of whole civil days between a surgery date
// and "now" in the clinic zone. Day 0 is the day of surgery.
func (z ClinicZone) DaysSince(surgeryDate civil.Date, now time.Time) int {
	return z.CivilDate(now).DaysSince(surgeryDate)
}
