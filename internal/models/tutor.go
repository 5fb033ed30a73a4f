package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// Tutor is a teaching user with an hourly rate.
type Tutor struct {
	ID           string         `db:"id" json:"id"`
	FullName     string         `db:"full_name" json:"full_name"`
	HourlyRate   float64        `db:"hourly_rate" json:"hourly_rate"`
	Subjects     pq.StringArray `db:"subjects" json:"subjects"`
	Availability types.JSONText `db:"availability" json:"availability"`
	IsActive     bool           `db:"is_active" json:"is_active"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// AvailabilityWindow is a weekly window during which a tutor can teach.
type AvailabilityWindow struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// TeachesSubject reports whether the tutor lists subject.
func (t Tutor) TeachesSubject(subject string) bool {
	for _, s := range t.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}
