package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
)

func TestCancelledWeekIsSkippedByGeneration(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	slot := f.addSlot("math", 1, "14:00", "16:00")
	expectCommits(f.mock, 2)

	resp, err := f.weeks.CancelForWeek(ctx, slot.ID, dto.CancelWeekRequest{WeekStart: "2025-01-15", Reason: ptr("exam week")}, owner)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), resp.Cancellation.WeekStart)
	assert.Zero(t, resp.CancelledSessions)

	generated, err := f.materializer.GenerateForSlot(ctx, slot.ID, dto.GenerateSessionsRequest{WeeksAhead: 2}, owner)
	require.NoError(t, err)
	require.Equal(t, 1, generated.Count)
	assert.Equal(t, time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC), generated.Created[0].ScheduledStart)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelAndReinstateWeekRoundTrip(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	slot := f.addSlot("math", 1, "14:00", "16:00")
	f.addAcceptedAssignment("tutor-a", "math", models.RecurrenceRoundRobin, "{}")
	expectCommits(f.mock, 3)

	_, err := f.materializer.GenerateForSlot(ctx, slot.ID, dto.GenerateSessionsRequest{WeeksAhead: 2}, owner)
	require.NoError(t, err)

	cancelled, err := f.weeks.CancelForWeek(ctx, slot.ID, dto.CancelWeekRequest{WeekStart: "2025-01-13"}, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled.CancelledSessions)
	assert.Len(t, f.store.live("class-1"), 1)
	// two members plus the tutor of the cancelled session
	assert.Len(t, f.notifier.ofType(models.NotificationWeekCancelled), 3)

	reinstated, err := f.weeks.ReinstateForWeek(ctx, slot.ID, "2025-01-13", owner)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-13", reinstated.WeekStart)
	require.Len(t, reinstated.Created, 1)
	assert.Equal(t, time.Date(2025, 1, 13, 14, 0, 0, 0, time.UTC), reinstated.Created[0].ScheduledStart)
	assert.Equal(t, "tutor-a", *reinstated.Created[0].TutorID)

	assert.Len(t, f.store.live("class-1"), 2)
	assert.NotEmpty(t, f.notifier.ofType(models.NotificationWeekReinstated))

	overrides, err := f.weeks.List(ctx, slot.ID)
	require.NoError(t, err)
	assert.Empty(t, overrides)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelWeekTwiceConflicts(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	slot := f.addSlot("math", 1, "14:00", "16:00")
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.weeks.CancelForWeek(ctx, slot.ID, dto.CancelWeekRequest{WeekStart: "2025-01-13"}, owner)
	require.NoError(t, err)

	_, err = f.weeks.CancelForWeek(ctx, slot.ID, dto.CancelWeekRequest{WeekStart: "2025-01-19"}, owner)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReinstateUnknownWeekIsNotFound(t *testing.T) {
	f := newSchedulingFixture(t)
	slot := f.addSlot("math", 1, "14:00", "16:00")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.weeks.ReinstateForWeek(context.Background(), slot.ID, "2025-01-13", owner)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.weeks.ReinstateForWeek(context.Background(), slot.ID, "13/01/2025", owner)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelWeekForbiddenForNonOwner(t *testing.T) {
	f := newSchedulingFixture(t)
	slot := f.addSlot("math", 1, "14:00", "16:00")

	_, err := f.weeks.CancelForWeek(context.Background(), slot.ID, dto.CancelWeekRequest{WeekStart: "2025-01-13"}, student)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
