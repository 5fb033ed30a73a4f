package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

const timeSlotColumns = `id, class_id, subject, day_of_week, start_time, end_time, is_active, created_at, updated_at`

// TimeSlotRepository persists weekly recurring time slots.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs the repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

func (r *TimeSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a slot regardless of its active flag.
func (r *TimeSlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE id = $1`
	var slot models.TimeSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get time slot: %w", err)
	}
	return &slot, nil
}

// ListByClass returns the slots of a class ordered by weekday and start time.
func (r *TimeSlotRepository) ListByClass(ctx context.Context, exec sqlx.ExtContext, classID string, activeOnly bool) ([]models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE class_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY day_of_week ASC, start_time ASC, created_at ASC`
	var slots []models.TimeSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, classID); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// Create inserts a new slot.
func (r *TimeSlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
	const query = `INSERT INTO time_slots (id, class_id, subject, day_of_week, start_time, end_time, is_active, created_at, updated_at)
VALUES (:id, :class_id, :subject, :day_of_week, :start_time, :end_time, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}

// Update rewrites the schedule shape of a slot.
func (r *TimeSlotRepository) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE time_slots
SET subject = :subject, day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot)
	if err != nil {
		return fmt.Errorf("update time slot: %w", err)
	}
	return requireAffected(result, "update time slot")
}

// Deactivate soft-deletes a slot.
func (r *TimeSlotRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE time_slots SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate time slot: %w", err)
	}
	return requireAffected(result, "deactivate time slot")
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
