package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/pkg/config"
)

type notificationWriterStub struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	delivered chan []models.Notification
}

func (s *notificationWriterStub) CreateBatch(ctx context.Context, batch []models.Notification) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failFirst
	s.mu.Unlock()
	if fail {
		return errors.New("db unavailable")
	}
	s.delivered <- batch
	return nil
}

func notificationConfig() config.NotificationConfig {
	return config.NotificationConfig{Enabled: true, Workers: 1, BufferSize: 4, MaxRetries: 2, RetryDelay: 10 * time.Millisecond}
}

func waitForBatch(t *testing.T, ch <-chan []models.Notification) []models.Notification {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("notification batch was not delivered")
		return nil
	}
}

func TestNotificationServiceDeliversBatch(t *testing.T) {
	writer := &notificationWriterStub{delivered: make(chan []models.Notification, 1)}
	metrics := NewMetricsService()
	svc := NewNotificationService(writer, notificationConfig(), metrics, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	batch := notificationsFor([]string{"member-1", "member-2"}, models.NotificationSessionsGenerated, "Sessions scheduled", "4 new sessions", nil)
	svc.Notify(context.Background(), batch)

	got := waitForBatch(t, writer.delivered)
	assert.Len(t, got, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.notifications.WithLabelValues("queued")))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.notifications.WithLabelValues("delivered")) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestNotificationServiceRetriesFailedDelivery(t *testing.T) {
	writer := &notificationWriterStub{failFirst: 1, delivered: make(chan []models.Notification, 1)}
	svc := NewNotificationService(writer, notificationConfig(), nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Notify(context.Background(), notificationsFor([]string{"tutor-a"}, models.NotificationAssignmentCreated, "t", "m", nil))

	got := waitForBatch(t, writer.delivered)
	require.Len(t, got, 1)
	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Equal(t, 2, writer.calls)
}

func TestNotificationServiceDisabledIsSilent(t *testing.T) {
	writer := &notificationWriterStub{delivered: make(chan []models.Notification, 1)}
	cfg := notificationConfig()
	cfg.Enabled = false
	svc := NewNotificationService(writer, cfg, nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Notify(context.Background(), notificationsFor([]string{"member-1"}, models.NotificationSessionsGenerated, "t", "m", nil))

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Zero(t, writer.calls)
}

func TestNotificationsForSkipsBlankAndDuplicateRecipients(t *testing.T) {
	out := notificationsFor([]string{"a", "", "b", "a"}, models.NotificationWeekCancelled, "Week cancelled", "msg", map[string]any{"weekStart": "2025-01-13"})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].UserID)
	assert.Equal(t, "b", out[1].UserID)

	var data map[string]string
	require.NoError(t, json.Unmarshal(out[0].Data, &data))
	assert.Equal(t, "2025-01-13", data["weekStart"])

	assert.Nil(t, notificationsFor(nil, models.NotificationWeekCancelled, "t", "m", nil))
}
