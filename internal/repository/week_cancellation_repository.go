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

// WeekCancellationRepository stores per-week slot suspensions.
type WeekCancellationRepository struct {
	db *sqlx.DB
}

// NewWeekCancellationRepository constructs the repository.
func NewWeekCancellationRepository(db *sqlx.DB) *WeekCancellationRepository {
	return &WeekCancellationRepository{db: db}
}

func (r *WeekCancellationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Find returns the override for a slot week.
func (r *WeekCancellationRepository) Find(ctx context.Context, exec sqlx.ExtContext, timeSlotID string, weekStart time.Time) (*models.WeekCancellation, error) {
	const query = `SELECT id, time_slot_id, week_start, reason, created_by, created_at
FROM week_cancellations WHERE time_slot_id = $1 AND week_start = $2`
	var cancellation models.WeekCancellation
	if err := sqlx.GetContext(ctx, r.exec(exec), &cancellation, query, timeSlotID, weekStart); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get week cancellation: %w", err)
	}
	return &cancellation, nil
}

// ListBySlot returns every override of a slot, newest week first.
func (r *WeekCancellationRepository) ListBySlot(ctx context.Context, exec sqlx.ExtContext, timeSlotID string) ([]models.WeekCancellation, error) {
	const query = `SELECT id, time_slot_id, week_start, reason, created_by, created_at
FROM week_cancellations WHERE time_slot_id = $1 ORDER BY week_start DESC`
	var cancellations []models.WeekCancellation
	if err := sqlx.SelectContext(ctx, r.exec(exec), &cancellations, query, timeSlotID); err != nil {
		return nil, fmt.Errorf("list week cancellations: %w", err)
	}
	return cancellations, nil
}

// ListWeeks returns the cancelled week starts of a slot within [from, to).
func (r *WeekCancellationRepository) ListWeeks(ctx context.Context, exec sqlx.ExtContext, timeSlotID string, from, to time.Time) ([]time.Time, error) {
	const query = `SELECT week_start FROM week_cancellations
WHERE time_slot_id = $1 AND week_start >= $2 AND week_start < $3 ORDER BY week_start ASC`
	var weeks []time.Time
	if err := sqlx.SelectContext(ctx, r.exec(exec), &weeks, query, timeSlotID, from, to); err != nil {
		return nil, fmt.Errorf("list cancelled weeks: %w", err)
	}
	return weeks, nil
}

// Create inserts an override. Duplicates surface as unique violations.
func (r *WeekCancellationRepository) Create(ctx context.Context, exec sqlx.ExtContext, cancellation *models.WeekCancellation) error {
	if cancellation.ID == "" {
		cancellation.ID = uuid.NewString()
	}
	if cancellation.CreatedAt.IsZero() {
		cancellation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO week_cancellations (id, time_slot_id, week_start, reason, created_by, created_at)
VALUES (:id, :time_slot_id, :week_start, :reason, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, cancellation); err != nil {
		return fmt.Errorf("create week cancellation: %w", err)
	}
	return nil
}

// Delete removes the override for a slot week.
func (r *WeekCancellationRepository) Delete(ctx context.Context, exec sqlx.ExtContext, timeSlotID string, weekStart time.Time) error {
	const query = `DELETE FROM week_cancellations WHERE time_slot_id = $1 AND week_start = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, timeSlotID, weekStart)
	if err != nil {
		return fmt.Errorf("delete week cancellation: %w", err)
	}
	return requireAffected(result, "delete week cancellation")
}
