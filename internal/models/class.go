package models

import (
	"time"

	"github.com/lib/pq"
)

// Class is the owner of slots, assignments and sessions. Subjects lists the subjects it may schedule.
type Class struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	OwnerID   string         `db:"owner_id" json:"owner_id"`
	Subjects  pq.StringArray `db:"subjects" json:"subjects"`
	IsActive  bool           `db:"is_active" json:"is_active"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// HasSubject reports whether subject belongs to the class.
func (c Class) HasSubject(subject string) bool {
	for _, s := range c.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}
