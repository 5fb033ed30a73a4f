package models

import (
	"time"

	"github.com/noah-isme/session-scheduler-api/pkg/timerange"
)

// TimeSlot is a weekly recurring teaching window for a class and subject.
// DayOfWeek follows time.Weekday numbering (0 = Sunday).
type TimeSlot struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Subject   string    `db:"subject" json:"subject"`
	DayOfWeek int       `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Interval parses the slot's start/end times.
func (s TimeSlot) Interval() (timerange.Interval, error) {
	return timerange.ParseInterval(s.StartTime, s.EndTime)
}

// SameShape reports whether both slots describe the same weekly window and subject.
func (s TimeSlot) SameShape(other TimeSlot) bool {
	return s.DayOfWeek == other.DayOfWeek &&
		s.StartTime == other.StartTime &&
		s.EndTime == other.EndTime &&
		s.Subject == other.Subject
}

// TimeSlotConflict describes an existing active slot that overlaps a candidate.
type TimeSlotConflict struct {
	TimeSlotID string `json:"time_slot_id"`
	Subject    string `json:"subject"`
	DayOfWeek  int    `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

// TimeSlotConflictError is returned when a slot overlaps another active slot of the same class.
type TimeSlotConflictError struct {
	Message  string           `json:"message"`
	Conflict TimeSlotConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *TimeSlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
