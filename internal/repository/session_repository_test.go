package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

var sessionRowColumns = []string{"id", "class_id", "time_slot_id", "tutor_id", "subject", "scheduled_start", "scheduled_end", "price", "status",
	"cancellation_reason", "cancellation_kind", "created_at", "updated_at"}

func TestSessionRepositoryCreateIfAbsent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	ctx := context.Background()

	slotID := "slot-1"
	start := time.Date(2026, 10, 12, 14, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (class_id, scheduled_start, scheduled_end) WHERE status <> 'CANCELLED' DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "class-1", &slotID, nil, "Math", start, end, 0.0, models.SessionStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("session-1"))

	session := &models.Session{ClassID: "class-1", TimeSlotID: &slotID, Subject: "Math", ScheduledStart: start, ScheduledEnd: end}
	created, err := repo.CreateIfAbsent(ctx, nil, session)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.SessionStatusPending, session.Status)

	mock.ExpectQuery("INSERT INTO sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	created, err = repo.CreateIfAbsent(ctx, nil, &models.Session{ClassID: "class-1", Subject: "Math", ScheduledStart: start, ScheduledEnd: end})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryIdentityTaken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 10, 12, 14, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	identityQuery := regexp.QuoteMeta("AND (status <> 'CANCELLED' OR (NOT $4 AND cancellation_kind = 'OCCURRENCE'))")
	mock.ExpectQuery(identityQuery).
		WithArgs("class-1", start, end, false).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(identityQuery).
		WithArgs("class-1", start, end, true).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	taken, err := repo.IdentityTaken(ctx, nil, "class-1", start, end, false)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.IdentityTaken(ctx, nil, "class-1", start, end, true)
	require.NoError(t, err)
	assert.False(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = 'CANCELLED'")).
		WithArgs(pq.StringArray{"s-1", "s-2"}, "time slot removed", sqlmock.AnyArg(), pq.StringArray{"PENDING", "CONFIRMED"}, "SLOT_CHANGE").
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.Cancel(context.Background(), nil, []string{"s-1", "s-2"}, "time slot removed", models.CancellationSlotChange)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = repo.Cancel(context.Background(), nil, nil, "noop", models.CancellationOccurrence)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListStartsAndOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	ctx := context.Background()

	first := time.Date(2026, 10, 5, 14, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT scheduled_start FROM sessions WHERE class_id = $1 AND subject = $2")).
		WithArgs("class-1", "Math").
		WillReturnRows(sqlmock.NewRows([]string{"scheduled_start"}).AddRow(first).AddRow(first.AddDate(0, 0, 7)))

	starts, err := repo.ListStarts(ctx, nil, "class-1", "Math")
	require.NoError(t, err)
	assert.Len(t, starts, 2)

	mock.ExpectQuery(regexp.QuoteMeta("AND status = ANY($3) AND scheduled_start >= $4 AND scheduled_start < $5")).
		WithArgs("class-1", "Math", pq.StringArray{"PENDING", "CONFIRMED"}, first, first.AddDate(0, 0, 7)).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("session-1", "class-1", nil, "tutor-1", "Math", first, first.Add(2*time.Hour), 300.0, "CONFIRMED", nil, nil, first, first))

	open, err := repo.ListOpen(ctx, nil, "class-1", "Math", first, first.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 300.0, open[0].Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	from := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE class_id = $1 AND subject = $2 AND scheduled_start >= $3 AND scheduled_start < $4 AND status = ANY($5)")).
		WithArgs("class-1", "Math", from, to, pq.StringArray{"PENDING"}).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))

	sessions, err := repo.List(context.Background(), nil, models.SessionFilter{
		ClassID:  "class-1",
		Subject:  "Math",
		From:     &from,
		To:       &to,
		Statuses: []models.SessionStatus{models.SessionStatusPending},
	})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryAssignAndCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET tutor_id = $2, price = $3, status = $4")).
		WithArgs("session-1", "tutor-1", 300.0, models.SessionStatusConfirmed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Assign(ctx, nil, models.SessionAssignment{SessionID: "session-1", TutorID: "tutor-1", Price: 300, Status: models.SessionStatusConfirmed}))

	from := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sessions")).
		WithArgs("class-1", from, from.AddDate(0, 0, 7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	count, err := repo.CountActiveInRange(ctx, nil, "class-1", from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	mock.ExpectQuery(regexp.QuoteMeta("AND tutor_id IS NULL AND scheduled_start >= $3 AND subject = $4")).
		WithArgs("class-1", models.SessionStatusPending, from, "Math").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	_, err = repo.ListUnassigned(ctx, nil, "class-1", "Math", from, time.Time{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
