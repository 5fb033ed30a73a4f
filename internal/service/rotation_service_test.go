package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func TestReapplyAssignsPendingSessionsInRange(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	slot := f.addSlot("math", 1, "14:00", "16:00")
	expectCommits(f.mock, 2)

	_, err := f.materializer.GenerateForSlot(ctx, slot.ID, dto.GenerateSessionsRequest{WeeksAhead: 3}, owner)
	require.NoError(t, err)
	f.addAcceptedAssignment("tutor-a", "math", models.RecurrenceWeekly, `{"weeks":[2]}`)
	f.addAcceptedAssignment("tutor-b", "math", models.RecurrenceRoundRobin, "{}")

	resp, err := f.rotation.Reapply(ctx, "class-1", dto.ApplyRotationRequest{From: ptr("2025-01-01"), To: ptr("2025-01-13")}, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Considered)
	assert.Equal(t, 2, resp.Assigned)

	byStart := map[int]string{}
	for _, session := range f.store.live("class-1") {
		if session.TutorID != nil {
			byStart[session.ScheduledStart.Day()] = *session.TutorID
		}
	}
	// week 2 counted from the assignment's creation week goes to the weekly tutor
	assert.Equal(t, map[int]string{6: "tutor-b", 13: "tutor-a"}, byStart)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReapplyValidatesRangeAndOwner(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	_, err := f.rotation.Reapply(ctx, "class-1", dto.ApplyRotationRequest{From: ptr("2025-02-01"), To: ptr("2025-01-01")}, owner)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.rotation.Reapply(ctx, "class-1", dto.ApplyRotationRequest{}, student)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.rotation.Reapply(ctx, "class-9", dto.ApplyRotationRequest{}, owner)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestApplyWithoutParticipantsLeavesSessionsPending(t *testing.T) {
	f := newSchedulingFixture(t)
	sessions := []models.Session{{ID: "s-1", ClassID: "class-1", Subject: "math", Status: models.SessionStatusPending}}
	f.addAcceptedAssignment("tutor-a", "math", models.RecurrenceManual, "{}")

	assigned, err := f.rotation.Apply(context.Background(), nil, "class-1", sessions)
	require.NoError(t, err)
	assert.Zero(t, assigned)
	assert.Nil(t, sessions[0].TutorID)
	assert.Equal(t, models.SessionStatusPending, sessions[0].Status)
}

func TestSessionHistoryUsesCacheOnlyWhenAllowed(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	cache := newMemCache()
	f.rotation.cache = NewCacheService(cache, nil, time.Minute, nil, true)
	start := time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC)
	f.store.sessions = append(f.store.sessions, models.Session{ID: "s-1", ClassID: "class-1", Subject: "math", ScheduledStart: start, Status: models.SessionStatusPending})

	cached := &sessionHistory{svc: f.rotation, cached: true}
	starts, err := cached.SessionStarts(ctx, "class-1", "math")
	require.NoError(t, err)
	require.Len(t, starts, 1)
	assert.Contains(t, cache.entries, historyKey("class-1", "math"))

	f.store.sessions = append(f.store.sessions, models.Session{ID: "s-2", ClassID: "class-1", Subject: "math", ScheduledStart: start.AddDate(0, 0, 7)})
	starts, err = cached.SessionStarts(ctx, "class-1", "math")
	require.NoError(t, err)
	assert.Len(t, starts, 1, "served from cache")

	fresh := &sessionHistory{svc: f.rotation}
	starts, err = fresh.SessionStarts(ctx, "class-1", "math")
	require.NoError(t, err)
	assert.Len(t, starts, 2)

	f.rotation.InvalidateHistory(ctx, "class-1")
	assert.Equal(t, []string{"scheduler:history:class-1:*"}, cache.deleted)
	assert.Empty(t, cache.entries)
}
