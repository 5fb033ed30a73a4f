package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RecurrencePattern selects the rotation rule of an assignment.
type RecurrencePattern string

const (
	RecurrenceRoundRobin      RecurrencePattern = "ROUND_ROBIN"
	RecurrenceWeekly          RecurrencePattern = "WEEKLY"
	RecurrenceConsecutiveDays RecurrencePattern = "CONSECUTIVE_DAYS"
	RecurrenceManual          RecurrencePattern = "MANUAL"
)

// Valid reports whether p is a known pattern.
func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurrenceRoundRobin, RecurrenceWeekly, RecurrenceConsecutiveDays, RecurrenceManual:
		return true
	}
	return false
}

// AssignmentStatus is the tutor's response to an assignment.
type AssignmentStatus string

const (
	AssignmentStatusPending  AssignmentStatus = "PENDING"
	AssignmentStatusAccepted AssignmentStatus = "ACCEPTED"
	AssignmentStatusDeclined AssignmentStatus = "DECLINED"
)

// TutorAssignment places a tutor into the rotation of a class subject, optionally for one slot.
type TutorAssignment struct {
	ID                string            `db:"id" json:"id"`
	ClassID           string            `db:"class_id" json:"class_id"`
	TimeSlotID        *string           `db:"time_slot_id" json:"time_slot_id,omitempty"`
	Subject           string            `db:"subject" json:"subject"`
	TutorID           string            `db:"tutor_id" json:"tutor_id"`
	RecurrencePattern RecurrencePattern `db:"recurrence_pattern" json:"recurrence_pattern"`
	RecurrenceConfig  types.JSONText    `db:"recurrence_config" json:"recurrence_config"`
	StartDate         *time.Time        `db:"start_date" json:"start_date,omitempty"`
	EndDate           *time.Time        `db:"end_date" json:"end_date,omitempty"`
	Status            AssignmentStatus  `db:"status" json:"status"`
	IsActive          bool              `db:"is_active" json:"is_active"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// Participates reports whether the assignment takes part in rotation.
func (a TutorAssignment) Participates() bool {
	return a.IsActive && a.Status == AssignmentStatusAccepted
}

// RecurrenceConfig is the union of pattern-specific settings stored as JSON.
type RecurrenceConfig struct {
	Weeks           []int  `json:"weeks,omitempty"`
	Pattern         string `json:"pattern,omitempty"`
	StartWeek       *int   `json:"startWeek,omitempty"`
	ConsecutiveDays *int   `json:"consecutiveDays,omitempty"`
}
