package models

import "time"

// SessionStatus describes the lifecycle of a materialized session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusConfirmed SessionStatus = "CONFIRMED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// Terminal reports whether the status can no longer change through scheduling.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCancelled || s == SessionStatusCompleted
}

// CancellationKind records why a session was cancelled and so whether it still holds its identity key.
type CancellationKind string

const (
	// CancellationOccurrence withdraws one dated occurrence; generation must not bring it back.
	CancellationOccurrence CancellationKind = "OCCURRENCE"
	// CancellationSlotChange follows a slot reshape or removal and releases the identity key.
	CancellationSlotChange CancellationKind = "SLOT_CHANGE"
)

// Session is a concrete dated occurrence of a class subject.
// (ClassID, ScheduledStart, ScheduledEnd) identifies a non-cancelled session.
type Session struct {
	ID                 string            `db:"id" json:"id"`
	ClassID            string            `db:"class_id" json:"class_id"`
	TimeSlotID         *string           `db:"time_slot_id" json:"time_slot_id,omitempty"`
	TutorID            *string           `db:"tutor_id" json:"tutor_id"`
	Subject            string            `db:"subject" json:"subject"`
	ScheduledStart     time.Time         `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd       time.Time         `db:"scheduled_end" json:"scheduled_end"`
	Price              float64           `db:"price" json:"price"`
	Status             SessionStatus     `db:"status" json:"status"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancellationKind   *CancellationKind `db:"cancellation_kind" json:"cancellation_kind,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// SessionFilter narrows session listings for a class.
type SessionFilter struct {
	ClassID  string
	Subject  string
	From     *time.Time
	To       *time.Time
	Statuses []SessionStatus
}

// SessionAssignment is the outcome of tutor resolution for one session.
type SessionAssignment struct {
	SessionID string        `db:"id"`
	TutorID   string        `db:"tutor_id"`
	Price     float64       `db:"price"`
	Status    SessionStatus `db:"status"`
}
