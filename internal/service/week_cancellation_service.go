package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/pkg/database"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
	"github.com/noah-isme/session-scheduler-api/pkg/timerange"
)

type weekCancellationStore interface {
	Find(ctx context.Context, exec sqlx.ExtContext, timeSlotID string, weekStart time.Time) (*models.WeekCancellation, error)
	ListBySlot(ctx context.Context, exec sqlx.ExtContext, timeSlotID string) ([]models.WeekCancellation, error)
	Create(ctx context.Context, exec sqlx.ExtContext, cancellation *models.WeekCancellation) error
	Delete(ctx context.Context, exec sqlx.ExtContext, timeSlotID string, weekStart time.Time) error
}

// WeekCancellationService suspends and reinstates single weekly occurrences of a slot.
type WeekCancellationService struct {
	slots         slotReader
	cancellations weekCancellationStore
	classes       classDirectory
	materializer  *SessionMaterializer
	notifier      notifier
	tx            txProvider
	validator     *validator.Validate
	logger        *zap.Logger
	loc           *time.Location
}

// NewWeekCancellationService constructs the service.
func NewWeekCancellationService(
	slots slotReader,
	cancellations weekCancellationStore,
	classes classDirectory,
	materializer *SessionMaterializer,
	notifier notifier,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	loc *time.Location,
) *WeekCancellationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &WeekCancellationService{
		slots:         slots,
		cancellations: cancellations,
		classes:       classes,
		materializer:  materializer,
		notifier:      notifier,
		tx:            tx,
		validator:     newSchedulingValidator(validate),
		logger:        logger,
		loc:           loc,
	}
}

// List returns the overrides of a slot.
func (s *WeekCancellationService) List(ctx context.Context, slotID string) ([]models.WeekCancellation, error) {
	if _, err := s.slots.FindByID(ctx, nil, slotID); err != nil {
		return nil, lookupError(err, "time slot")
	}
	cancellations, err := s.cancellations.ListBySlot(ctx, nil, slotID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list week cancellations")
	}
	return cancellations, nil
}

// CancelForWeek stores an override for the week containing req.WeekStart and cancels the slot's
// live sessions in that week.
func (s *WeekCancellationService) CancelForWeek(ctx context.Context, slotID string, req dto.CancelWeekRequest, actor models.Actor) (resp *dto.CancelWeekResponse, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	day, err := parseDate(req.WeekStart, s.loc)
	if err != nil {
		return nil, err
	}
	week := timerange.WeekStart(day, s.loc)

	slot, err := s.slots.FindByID(ctx, nil, slotID)
	if err != nil {
		return nil, lookupError(err, "time slot")
	}
	if _, err := ownedClass(ctx, s.classes, nil, slot.ClassID, actor); err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, ferr := s.cancellations.Find(ctx, tx, slot.ID, week); ferr == nil {
		err = s.alreadyCancelled(week)
		return nil, err
	} else if !errors.Is(ferr, sql.ErrNoRows) {
		err = appErrors.Internal(ferr, "failed to check week cancellation")
		return nil, err
	}

	cancellation := &models.WeekCancellation{
		TimeSlotID: slot.ID,
		WeekStart:  week,
		Reason:     req.Reason,
		CreatedBy:  actor.UserID,
	}
	if err = s.cancellations.Create(ctx, tx, cancellation); err != nil {
		if database.IsUniqueViolation(err) {
			err = s.alreadyCancelled(week)
			return nil, err
		}
		err = appErrors.Internal(err, "failed to create week cancellation")
		return nil, err
	}

	reason := "week cancelled"
	if req.Reason != nil && *req.Reason != "" {
		reason = *req.Reason
	}
	cancelled, err := s.materializer.cancelMatching(ctx, tx, *slot, week, timerange.AddWeeks(week, 1), reason, models.CancellationOccurrence)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit week cancellation")
	}

	s.materializer.metrics.SessionsCancelled(causeWeekCancelled, len(cancelled))
	s.notifyWeek(ctx, *slot, week, models.NotificationWeekCancelled, "Session week cancelled",
		fmt.Sprintf("%s on the week of %s is cancelled: %s", slot.Subject, formatDate(week, s.loc), reason), tutorsOf(cancelled))

	s.logger.Info("week cancelled", zap.String("time_slot_id", slot.ID), zap.Time("week_start", week), zap.Int("cancelled_sessions", len(cancelled)))
	return &dto.CancelWeekResponse{Cancellation: cancellation, CancelledSessions: len(cancelled)}, nil
}

// ReinstateForWeek removes the override and regenerates the slot's session for that week only.
func (s *WeekCancellationService) ReinstateForWeek(ctx context.Context, slotID, weekStart string, actor models.Actor) (resp *dto.ReinstateWeekResponse, err error) {
	day, err := parseDate(weekStart, s.loc)
	if err != nil {
		return nil, err
	}
	week := timerange.WeekStart(day, s.loc)

	slot, err := s.slots.FindByID(ctx, nil, slotID)
	if err != nil {
		return nil, lookupError(err, "time slot")
	}
	if _, err := ownedClass(ctx, s.classes, nil, slot.ClassID, actor); err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.cancellations.Delete(ctx, tx, slot.ID, week); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "week is not cancelled")
			return nil, err
		}
		err = appErrors.Internal(err, "failed to delete week cancellation")
		return nil, err
	}

	var result materialization
	if slot.IsActive {
		if result, err = s.materializer.generateTx(ctx, tx, slot.ClassID, []models.TimeSlot{*slot}, week, 1, true); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit reinstatement")
	}

	if len(result.created) > 0 {
		s.materializer.rotation.InvalidateHistory(ctx, slot.ClassID)
		s.materializer.metrics.SessionsCreated(len(result.created))
	}
	s.notifyWeek(ctx, *slot, week, models.NotificationWeekReinstated, "Session week reinstated",
		fmt.Sprintf("%s on the week of %s is back on schedule", slot.Subject, formatDate(week, s.loc)), tutorsOf(result.created))

	created := result.created
	if created == nil {
		created = []models.Session{}
	}
	return &dto.ReinstateWeekResponse{WeekStart: formatDate(week, s.loc), Created: created}, nil
}

func (s *WeekCancellationService) alreadyCancelled(week time.Time) error {
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("week of %s is already cancelled", formatDate(week, s.loc)))
}

// notifyWeek sends one notification per class member and per distinct affected tutor.
func (s *WeekCancellationService) notifyWeek(ctx context.Context, slot models.TimeSlot, week time.Time, kind models.NotificationType, title, message string, tutors []string) {
	members, err := s.classes.ListActiveMemberIDs(ctx, nil, slot.ClassID)
	if err != nil {
		s.logger.Warn("skipping week notifications", zap.String("time_slot_id", slot.ID), zap.Error(err))
		return
	}
	s.notifier.Notify(ctx, notificationsFor(append(members, tutors...), kind, title, message, map[string]any{
		"classId":    slot.ClassID,
		"timeSlotId": slot.ID,
		"weekStart":  formatDate(week, s.loc),
	}))
}
