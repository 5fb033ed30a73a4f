package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
)

func generatedFixture(t *testing.T) *schedulingFixture {
	t.Helper()
	f := newSchedulingFixture(t)
	slot := f.addSlot("math", 1, "14:00", "16:00")
	f.addSlot("physics", 3, "09:00", "10:30")
	expectCommits(f.mock, 2)
	_, err := f.materializer.GenerateForClass(context.Background(), "class-1", dto.GenerateSessionsRequest{WeeksAhead: 2}, owner)
	require.NoError(t, err)
	_, err = f.materializer.CancelFutureForSlot(context.Background(), slot.ID, dto.CancelSessionsRequest{Reason: "holiday"}, owner)
	require.NoError(t, err)
	return f
}

func TestSessionListFilters(t *testing.T) {
	f := generatedFixture(t)
	ctx := context.Background()

	all, err := f.sessions.List(ctx, "class-1", dto.SessionListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	math, err := f.sessions.List(ctx, "class-1", dto.SessionListQuery{Subject: "math", Status: []string{"CANCELLED"}})
	require.NoError(t, err)
	require.Len(t, math, 1)
	assert.Equal(t, "holiday", *math[0].CancellationReason)

	firstWeek, err := f.sessions.List(ctx, "class-1", dto.SessionListQuery{From: "2025-01-06", To: "2025-01-08"})
	require.NoError(t, err)
	assert.Len(t, firstWeek, 2, "to is inclusive")

	_, err = f.sessions.List(ctx, "class-1", dto.SessionListQuery{Status: []string{"LOST"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.sessions.List(ctx, "class-9", dto.SessionListQuery{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportRendersCSVAndPDF(t *testing.T) {
	f := generatedFixture(t)
	svc := NewExportService(f.sessions, true, nil)

	csv, err := svc.Export(context.Background(), "class-1", dto.SessionListQuery{})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", csv.ContentType)
	assert.Equal(t, "sessions-class-1.csv", csv.Filename)
	lines := bytes.Split(bytes.TrimSpace(csv.Body), []byte("\n"))
	require.Len(t, lines, 5)
	assert.Equal(t, "Date,Start,End,Subject,Tutor,Status,Price,Cancellation Reason", string(lines[0]))
	assert.Equal(t, "2025-01-06,14:00,16:00,math,,PENDING,0.00,", string(lines[1]))

	pdf, err := svc.Export(context.Background(), "class-1", dto.SessionListQuery{Format: "PDF"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.True(t, bytes.HasPrefix(pdf.Body, []byte("%PDF")))
}

func TestExportDisabled(t *testing.T) {
	f := newSchedulingFixture(t)
	svc := NewExportService(f.sessions, false, nil)

	_, err := svc.Export(context.Background(), "class-1", dto.SessionListQuery{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSessionDatasetIncludesTutorAndPrice(t *testing.T) {
	f := newSchedulingFixture(t)
	tutor := "tutor-a"
	data := sessionDataset("class-1", []models.Session{{
		Subject: "math", TutorID: &tutor, Price: 600, Status: models.SessionStatusConfirmed,
		ScheduledStart: fixtureNow, ScheduledEnd: fixtureNow.Add(90 * time.Minute),
	}}, f.sessions.loc)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "tutor-a", data.Rows[0]["Tutor"])
	assert.Equal(t, "600.00", data.Rows[0]["Price"])
	assert.Equal(t, "11:30", data.Rows[0]["End"])
}
