package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

// NotificationRepository stores delivered notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts notifications in one transaction.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) (err error) {
	if len(notifications) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO notifications (id, user_id, title, message, type, data, created_at)
VALUES (:id, :user_id, :title, :message, :type, :data, :created_at)`
	now := time.Now().UTC()
	for i := range notifications {
		n := &notifications[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if len(n.Data) == 0 {
			n.Data = []byte("{}")
		}
		if _, err = tx.NamedExecContext(ctx, query, n); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit notification batch: %w", err)
	}
	return nil
}
