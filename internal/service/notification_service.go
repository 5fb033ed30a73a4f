package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/pkg/config"
	"github.com/noah-isme/session-scheduler-api/pkg/jobs"
)

const notificationJobType = "notification.batch"

type notificationWriter interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
}

// NotificationService delivers scheduling notifications in the background. Delivery is best-effort:
// failures are retried by the queue and logged, never reported to the caller.
type NotificationService struct {
	repo    notificationWriter
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService wires the dispatcher queue. Call Start before use.
func NewNotificationService(repo notificationWriter, cfg config.NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{repo: repo, metrics: metrics, logger: logger, enabled: cfg.Enabled && repo != nil}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the dispatcher workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the dispatcher workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify queues a batch for delivery.
func (s *NotificationService) Notify(ctx context.Context, batch []models.Notification) {
	if s == nil || !s.enabled || len(batch) == 0 {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: notificationJobType, Payload: batch}
	if err := s.queue.Enqueue(job); err != nil {
		s.metrics.NotificationOutcome("dropped", len(batch))
		s.logger.Warn("notification batch dropped", zap.Int("size", len(batch)), zap.Error(err))
		return
	}
	s.metrics.NotificationOutcome("queued", len(batch))
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	batch, ok := job.Payload.([]models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		s.metrics.NotificationOutcome("failed", len(batch))
		return err
	}
	s.metrics.NotificationOutcome("delivered", len(batch))
	return nil
}

// notificationsFor builds one notification per recipient sharing title, message and data.
func notificationsFor(recipients []string, kind models.NotificationType, title, message string, data map[string]any) []models.Notification {
	if len(recipients) == 0 {
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	seen := make(map[string]struct{}, len(recipients))
	out := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		out = append(out, models.Notification{
			UserID:  userID,
			Title:   title,
			Message: message,
			Type:    kind,
			Data:    payload,
		})
	}
	return out
}
