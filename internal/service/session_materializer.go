package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
	"github.com/noah-isme/session-scheduler-api/pkg/timerange"
)

// Cancellation causes recorded on sessions and in metrics.
const (
	causeSlotRemoved     = "slot_removed"
	causeSlotRescheduled = "slot_rescheduled"
	causeWeekCancelled   = "week_cancelled"
	causeManual          = "manual"
)

type materializerSessionStore interface {
	IdentityTaken(ctx context.Context, exec sqlx.ExtContext, classID string, start, end time.Time, ignoreCancelled bool) (bool, error)
	CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, session *models.Session) (bool, error)
	ListOpen(ctx context.Context, exec sqlx.ExtContext, classID, subject string, from, to time.Time) ([]models.Session, error)
	CountActiveInRange(ctx context.Context, exec sqlx.ExtContext, classID string, from, to time.Time) (int, error)
	Cancel(ctx context.Context, exec sqlx.ExtContext, ids []string, reason string, kind models.CancellationKind) (int, error)
}

type cancelledWeeks interface {
	ListWeeks(ctx context.Context, exec sqlx.ExtContext, timeSlotID string, from, to time.Time) ([]time.Time, error)
}

type rotationApplier interface {
	Apply(ctx context.Context, exec sqlx.ExtContext, classID string, sessions []models.Session) (int, error)
	InvalidateHistory(ctx context.Context, classID string)
}

// MaterializerConfig bounds the generation horizon.
type MaterializerConfig struct {
	Location          *time.Location
	DefaultWeeksAhead int
	MaxWeeksAhead     int
}

// SessionMaterializer turns weekly time slots into dated sessions.
type SessionMaterializer struct {
	slots         slotReader
	cancellations cancelledWeeks
	sessions      materializerSessionStore
	classes       classDirectory
	rotation      rotationApplier
	notifier      notifier
	metrics       *MetricsService
	tx            txProvider
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           MaterializerConfig
	now           func() time.Time
}

// NewSessionMaterializer wires the materializer.
func NewSessionMaterializer(
	slots slotReader,
	cancellations cancelledWeeks,
	sessions materializerSessionStore,
	classes classDirectory,
	rotation rotationApplier,
	notifier notifier,
	metrics *MetricsService,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg MaterializerConfig,
) *SessionMaterializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultWeeksAhead <= 0 {
		cfg.DefaultWeeksAhead = 4
	}
	if cfg.MaxWeeksAhead < cfg.DefaultWeeksAhead {
		cfg.MaxWeeksAhead = cfg.DefaultWeeksAhead
	}
	return &SessionMaterializer{
		slots:         slots,
		cancellations: cancellations,
		sessions:      sessions,
		classes:       classes,
		rotation:      rotation,
		notifier:      notifier,
		metrics:       metrics,
		tx:            tx,
		validator:     newSchedulingValidator(validate),
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
	}
}

// materialization collects the outcome of one generation unit of work.
type materialization struct {
	created  []models.Session
	assigned int
}

// GenerateForSlot materializes one slot over the requested weeks.
func (m *SessionMaterializer) GenerateForSlot(ctx context.Context, slotID string, req dto.GenerateSessionsRequest, actor models.Actor) (*dto.GenerateSessionsResponse, error) {
	weeks, from, err := m.horizon(req)
	if err != nil {
		return nil, err
	}
	slot, err := m.slots.FindByID(ctx, nil, slotID)
	if err != nil {
		return nil, lookupError(err, "time slot")
	}
	if !slot.IsActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time slot is inactive")
	}
	if _, err := ownedClass(ctx, m.classes, nil, slot.ClassID, actor); err != nil {
		return nil, err
	}

	result, err := m.generateInTx(ctx, slot.ClassID, []models.TimeSlot{*slot}, from, weeks)
	if err != nil {
		return nil, err
	}
	m.afterGenerate(ctx, slot.ClassID, result, from, weeks)
	return m.response(result, from, weeks), nil
}

// GenerateForClass materializes every active slot of a class and notifies each member once.
func (m *SessionMaterializer) GenerateForClass(ctx context.Context, classID string, req dto.GenerateSessionsRequest, actor models.Actor) (*dto.GenerateSessionsResponse, error) {
	weeks, from, err := m.horizon(req)
	if err != nil {
		return nil, err
	}
	if _, err := ownedClass(ctx, m.classes, nil, classID, actor); err != nil {
		return nil, err
	}
	slots, err := m.slots.ListByClass(ctx, nil, classID, true)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load time slots")
	}

	result, err := m.generateInTx(ctx, classID, slots, from, weeks)
	if err != nil {
		return nil, err
	}
	m.afterGenerate(ctx, classID, result, from, weeks)
	return m.response(result, from, weeks), nil
}

// FillGaps generates every active slot for each week in [start, end] that has no live session.
func (m *SessionMaterializer) FillGaps(ctx context.Context, classID string, req dto.FillGapsRequest, actor models.Actor) (resp *dto.FillGapsResponse, err error) {
	if err := m.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	start, err := parseDate(req.Start, m.cfg.Location)
	if err != nil {
		return nil, err
	}
	end, err := parseDate(req.End, m.cfg.Location)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end must not be before start")
	}
	first := timerange.WeekStart(start, m.cfg.Location)
	last := timerange.WeekStart(end, m.cfg.Location)
	span := timerange.DaysBetween(first, last, m.cfg.Location)/7 + 1
	if span > m.cfg.MaxWeeksAhead {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("range spans %d weeks, at most %d allowed", span, m.cfg.MaxWeeksAhead))
	}

	if _, err := ownedClass(ctx, m.classes, nil, classID, actor); err != nil {
		return nil, err
	}
	slots, err := m.slots.ListByClass(ctx, nil, classID, true)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load time slots")
	}

	tx, err := m.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	resp = &dto.FillGapsResponse{Weeks: []string{}, Created: []models.Session{}}
	var created []models.Session
	for i := 0; i < span; i++ {
		week := timerange.AddWeeks(first, i)
		count, cerr := m.sessions.CountActiveInRange(ctx, tx, classID, week, timerange.AddWeeks(week, 1))
		if cerr != nil {
			err = appErrors.Internal(cerr, "failed to count sessions")
			return nil, err
		}
		if count > 0 {
			continue
		}
		weekCreated, gerr := m.materialize(ctx, tx, slots, week, 1, false)
		if gerr != nil {
			err = gerr
			return nil, err
		}
		if len(weekCreated) == 0 {
			continue
		}
		resp.Weeks = append(resp.Weeks, formatDate(week, m.cfg.Location))
		created = append(created, weekCreated...)
	}

	assigned, err := m.rotation.Apply(ctx, tx, classID, created)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit generated sessions")
	}

	result := materialization{created: created, assigned: assigned}
	m.afterGenerate(ctx, classID, result, first, span)
	if len(created) > 0 {
		resp.Created = created
	}
	resp.Count = len(created)
	resp.Assigned = assigned
	return resp, nil
}

// CancelFutureForSlot cancels every live session of the slot dated from now on.
func (m *SessionMaterializer) CancelFutureForSlot(ctx context.Context, slotID string, req dto.CancelSessionsRequest, actor models.Actor) (count int, err error) {
	if err := m.validator.Struct(req); err != nil {
		return 0, validationError(err)
	}
	slot, err := m.slots.FindByID(ctx, nil, slotID)
	if err != nil {
		return 0, lookupError(err, "time slot")
	}
	if _, err := ownedClass(ctx, m.classes, nil, slot.ClassID, actor); err != nil {
		return 0, err
	}

	tx, err := m.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cancelled, err := m.cancelFuture(ctx, tx, *slot, req.Reason, models.CancellationOccurrence)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, appErrors.Internal(err, "failed to commit cancellation")
	}
	m.afterCancel(ctx, *slot, cancelled, causeManual, req.Reason)
	return len(cancelled), nil
}

// cancelFuture cancels live sessions of slot starting at or after now inside exec.
func (m *SessionMaterializer) cancelFuture(ctx context.Context, exec sqlx.ExtContext, slot models.TimeSlot, reason string, kind models.CancellationKind) ([]models.Session, error) {
	return m.cancelMatching(ctx, exec, slot, m.now(), time.Time{}, reason, kind)
}

// cancelMatching cancels live sessions belonging to slot that start in [from, to).
func (m *SessionMaterializer) cancelMatching(ctx context.Context, exec sqlx.ExtContext, slot models.TimeSlot, from, to time.Time, reason string, kind models.CancellationKind) ([]models.Session, error) {
	open, err := m.sessions.ListOpen(ctx, exec, slot.ClassID, slot.Subject, from, to)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load sessions")
	}
	var matched []models.Session
	ids := make([]string, 0, len(open))
	for _, session := range open {
		if m.belongsToSlot(session, slot) {
			matched = append(matched, session)
			ids = append(ids, session.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := m.sessions.Cancel(ctx, exec, ids, reason, kind); err != nil {
		return nil, appErrors.Internal(err, "failed to cancel sessions")
	}
	return matched, nil
}

// belongsToSlot matches by slot reference, falling back to the slot's weekly shape for sessions
// stored without one.
func (m *SessionMaterializer) belongsToSlot(session models.Session, slot models.TimeSlot) bool {
	if session.TimeSlotID != nil {
		return *session.TimeSlotID == slot.ID
	}
	interval, err := slot.Interval()
	if err != nil {
		return false
	}
	start := session.ScheduledStart.In(m.cfg.Location)
	end := session.ScheduledEnd.In(m.cfg.Location)
	return session.Subject == slot.Subject &&
		int(start.Weekday()) == slot.DayOfWeek &&
		timerange.ClockOf(start) == interval.Start &&
		timerange.ClockOf(end) == interval.End
}

func (m *SessionMaterializer) generateInTx(ctx context.Context, classID string, slots []models.TimeSlot, from time.Time, weeks int) (result materialization, err error) {
	tx, err := m.tx.BeginTxx(ctx, nil)
	if err != nil {
		return result, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err = m.generateTx(ctx, tx, classID, slots, from, weeks, false)
	if err != nil {
		return result, err
	}
	if err = tx.Commit(); err != nil {
		return result, appErrors.Internal(err, "failed to commit generated sessions")
	}
	return result, nil
}

// generateTx materializes slots for weeks inside exec and passes the new sessions to rotation as
// one batch. reinstate lets cancelled occurrences be regenerated and is only set when a cancelled
// week is reinstated.
func (m *SessionMaterializer) generateTx(ctx context.Context, exec sqlx.ExtContext, classID string, slots []models.TimeSlot, from time.Time, weeks int, reinstate bool) (materialization, error) {
	created, err := m.materialize(ctx, exec, slots, from, weeks, reinstate)
	if err != nil {
		return materialization{}, err
	}
	assigned, err := m.rotation.Apply(ctx, exec, classID, created)
	if err != nil {
		return materialization{}, err
	}
	return materialization{created: created, assigned: assigned}, nil
}

func (m *SessionMaterializer) materialize(ctx context.Context, exec sqlx.ExtContext, slots []models.TimeSlot, from time.Time, weeks int, reinstate bool) ([]models.Session, error) {
	var created []models.Session
	for _, slot := range slots {
		if !slot.IsActive {
			continue
		}
		slotCreated, err := m.materializeSlot(ctx, exec, slot, from, weeks, reinstate)
		if err != nil {
			return nil, err
		}
		created = append(created, slotCreated...)
	}
	return created, nil
}

func (m *SessionMaterializer) materializeSlot(ctx context.Context, exec sqlx.ExtContext, slot models.TimeSlot, from time.Time, weeks int, reinstate bool) ([]models.Session, error) {
	interval, err := slot.Interval()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "time slot has an invalid time range")
	}
	loc := m.cfg.Location
	horizonEnd := timerange.AddWeeks(from, weeks)

	skipped, err := m.cancellations.ListWeeks(ctx, exec, slot.ID, from, horizonEnd)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load week cancellations")
	}
	cancelled := make(map[int64]struct{}, len(skipped))
	for _, week := range skipped {
		cancelled[timerange.WeekStart(week, loc).Unix()] = struct{}{}
	}

	var created []models.Session
	for i := 0; i < weeks; i++ {
		week := timerange.AddWeeks(from, i)
		if _, ok := cancelled[week.Unix()]; ok {
			lingering, err := m.cancelMatching(ctx, exec, slot, week, timerange.AddWeeks(week, 1), "week cancelled", models.CancellationOccurrence)
			if err != nil {
				return nil, err
			}
			m.metrics.SessionsCancelled(causeWeekCancelled, len(lingering))
			continue
		}

		day := timerange.DateInWeek(week, slot.DayOfWeek)
		start := interval.Start.On(day, loc)
		end := interval.End.On(day, loc)

		taken, err := m.sessions.IdentityTaken(ctx, exec, slot.ClassID, start, end, reinstate)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to check existing session")
		}
		if taken {
			continue
		}

		slotID := slot.ID
		session := models.Session{
			ClassID:        slot.ClassID,
			TimeSlotID:     &slotID,
			Subject:        slot.Subject,
			ScheduledStart: start,
			ScheduledEnd:   end,
			Status:         models.SessionStatusPending,
		}
		inserted, err := m.sessions.CreateIfAbsent(ctx, exec, &session)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to create session")
		}
		if !inserted {
			m.metrics.MaterializationRace()
			m.logger.Warn("session already materialized concurrently",
				zap.String("class_id", slot.ClassID), zap.String("time_slot_id", slot.ID), zap.Time("scheduled_start", start))
			continue
		}
		created = append(created, session)
	}
	return created, nil
}

func (m *SessionMaterializer) horizon(req dto.GenerateSessionsRequest) (int, time.Time, error) {
	if err := m.validator.Struct(req); err != nil {
		return 0, time.Time{}, validationError(err)
	}
	weeks := req.WeeksAhead
	if weeks == 0 {
		weeks = m.cfg.DefaultWeeksAhead
	}
	if weeks > m.cfg.MaxWeeksAhead {
		return 0, time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("weeksAhead must not exceed %d", m.cfg.MaxWeeksAhead))
	}
	anchor := m.now()
	if req.StartFromWeek != nil {
		parsed, err := parseDate(*req.StartFromWeek, m.cfg.Location)
		if err != nil {
			return 0, time.Time{}, err
		}
		anchor = parsed
	}
	return weeks, timerange.WeekStart(anchor, m.cfg.Location), nil
}

func (m *SessionMaterializer) response(result materialization, from time.Time, weeks int) *dto.GenerateSessionsResponse {
	created := result.created
	if created == nil {
		created = []models.Session{}
	}
	return &dto.GenerateSessionsResponse{
		Created:  created,
		Count:    len(created),
		Assigned: result.assigned,
		From:     formatDate(from, m.cfg.Location),
		To:       formatDate(timerange.AddWeeks(from, weeks).AddDate(0, 0, -1), m.cfg.Location),
	}
}

// afterGenerate runs post-commit side effects: cache invalidation, metrics and one summary per member.
func (m *SessionMaterializer) afterGenerate(ctx context.Context, classID string, result materialization, from time.Time, weeks int) {
	if len(result.created) == 0 {
		return
	}
	m.rotation.InvalidateHistory(ctx, classID)
	m.metrics.SessionsCreated(len(result.created))

	members, err := m.classes.ListActiveMemberIDs(ctx, nil, classID)
	if err != nil {
		m.logger.Warn("skipping generation notifications", zap.String("class_id", classID), zap.Error(err))
		return
	}
	fromDate := formatDate(from, m.cfg.Location)
	toDate := formatDate(timerange.AddWeeks(from, weeks).AddDate(0, 0, -1), m.cfg.Location)
	message := fmt.Sprintf("%d new sessions scheduled between %s and %s", len(result.created), fromDate, toDate)
	m.notifier.Notify(ctx, notificationsFor(members, models.NotificationSessionsGenerated, "Sessions scheduled", message, map[string]any{
		"classId":  classID,
		"count":    len(result.created),
		"assigned": result.assigned,
		"from":     fromDate,
		"to":       toDate,
	}))
}

// afterCancel notifies class members and the distinct tutors of cancelled sessions.
func (m *SessionMaterializer) afterCancel(ctx context.Context, slot models.TimeSlot, cancelled []models.Session, cause, reason string) {
	if len(cancelled) == 0 {
		return
	}
	m.metrics.SessionsCancelled(cause, len(cancelled))
	recipients, err := m.classes.ListActiveMemberIDs(ctx, nil, slot.ClassID)
	if err != nil {
		m.logger.Warn("skipping cancellation notifications", zap.String("time_slot_id", slot.ID), zap.Error(err))
		return
	}
	recipients = append(recipients, tutorsOf(cancelled)...)
	message := fmt.Sprintf("%d upcoming %s sessions were cancelled: %s", len(cancelled), slot.Subject, reason)
	m.notifier.Notify(ctx, notificationsFor(recipients, models.NotificationSessionsCancelled, "Sessions cancelled", message, map[string]any{
		"classId":    slot.ClassID,
		"timeSlotId": slot.ID,
		"count":      len(cancelled),
		"reason":     reason,
	}))
}

func tutorsOf(sessions []models.Session) []string {
	var out []string
	for _, s := range sessions {
		if s.TutorID != nil {
			out = append(out, *s.TutorID)
		}
	}
	return out
}
