package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationType categorises scheduling notifications.
type NotificationType string

const (
	NotificationSessionsGenerated NotificationType = "SESSIONS_GENERATED"
	NotificationSessionsCancelled NotificationType = "SESSIONS_CANCELLED"
	NotificationWeekCancelled     NotificationType = "WEEK_CANCELLED"
	NotificationWeekReinstated    NotificationType = "WEEK_REINSTATED"
	NotificationAssignmentCreated NotificationType = "ASSIGNMENT_CREATED"
)

// Notification is one message for one user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Type      NotificationType `db:"type" json:"type"`
	Data      types.JSONText   `db:"data" json:"data"`
	ReadAt    *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
