// Package timerange provides wall-clock times, clock intervals and ISO week helpers shared by slot
// validation, tutor availability checks and session materialization.
package timerange

import (
	"fmt"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a ClockTime.
const MinutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day expressed in minutes since midnight.
type ClockTime int

// ParseClock parses a strict HH:MM value (00:00 - 23:59).
func ParseClock(raw string) (ClockTime, error) {
	if len(raw) != 5 || raw[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	hours, ok := twoDigits(raw[0], raw[1])
	if !ok || hours > 23 {
		return 0, fmt.Errorf("invalid time %q: hour out of range", raw)
	}
	minutes, ok := twoDigits(raw[3], raw[4])
	if !ok || minutes > 59 {
		return 0, fmt.Errorf("invalid time %q: minute out of range", raw)
	}
	return ClockTime(hours*60 + minutes), nil
}

// ValidClock reports whether raw is a well-formed HH:MM value.
func ValidClock(raw string) bool {
	_, err := ParseClock(raw)
	return err == nil
}

// ClockOf extracts the wall-clock time of t in its own location.
func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

// Hour returns the hour component.
func (c ClockTime) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c ClockTime) Minute() int { return int(c) % 60 }

// String renders the value as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On combines the calendar date of day with the clock time in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// Interval is a half-open [Start, End) range of wall-clock time within one day.
type Interval struct {
	Start ClockTime
	End   ClockTime
}

// ParseInterval parses start/end HH:MM values and requires start < end.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	iv := Interval{Start: s, End: e}
	if !iv.Valid() {
		return Interval{}, fmt.Errorf("start time %s must be before end time %s", start, end)
	}
	return iv, nil
}

// Valid reports whether the interval is non-empty.
func (i Interval) Valid() bool {
	return i.Start < i.End
}

// Overlaps reports whether two intervals share any instant. Adjacent intervals do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

// Covers reports whether other lies entirely inside i.
func (i Interval) Covers(other Interval) bool {
	return i.Start <= other.Start && i.End >= other.End
}

// Duration returns the interval length.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.End-i.Start) * time.Minute
}

// Equal compares two intervals.
func (i Interval) Equal(other Interval) bool {
	return i.Start == other.Start && i.End == other.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// WeekStart normalizes t to Monday 00:00 of its ISO week in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
}

// DayOffset returns the number of days between the Monday week start and dayOfWeek, where
// dayOfWeek follows time.Weekday numbering (0 = Sunday). Sunday closes the ISO week.
func DayOffset(dayOfWeek int) int {
	return (dayOfWeek + 6) % 7
}

// DateInWeek returns midnight of dayOfWeek inside the week beginning at weekStart.
func DateInWeek(weekStart time.Time, dayOfWeek int) time.Time {
	return weekStart.AddDate(0, 0, DayOffset(dayOfWeek))
}

// AddWeeks shifts a week start by n calendar weeks, staying on local midnight across DST changes.
func AddWeeks(weekStart time.Time, n int) time.Time {
	return weekStart.AddDate(0, 0, 7*n)
}

// DaysBetween counts calendar days from a to b in loc, ignoring wall-clock components.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// SameDate reports whether a and b fall on the same calendar day in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
	return DaysBetween(a, b, loc) == 0
}

// Window is a concrete [From, To) time range.
type Window struct {
	From time.Time
	To   time.Time
}

// WeekWindow returns the full ISO week beginning at weekStart.
func WeekWindow(weekStart time.Time) Window {
	return Window{From: weekStart, To: AddWeeks(weekStart, 1)}
}

// Contains reports whether t lies in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}
