package models

import "time"

// WeekCancellation suspends one weekly occurrence of a time slot. WeekStart is Monday 00:00.
type WeekCancellation struct {
	ID         string    `db:"id" json:"id"`
	TimeSlotID string    `db:"time_slot_id" json:"time_slot_id"`
	WeekStart  time.Time `db:"week_start" json:"week_start"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
	CreatedBy  string    `db:"created_by" json:"created_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
