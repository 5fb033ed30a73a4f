package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
)

type timeSlotStore interface {
	slotReader
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error
	Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// TimeSlotService manages the weekly slots of a class.
type TimeSlotService struct {
	slots        timeSlotStore
	classes      classDirectory
	materializer *SessionMaterializer
	tx           txProvider
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewTimeSlotService constructs the service.
func NewTimeSlotService(
	slots timeSlotStore,
	classes classDirectory,
	materializer *SessionMaterializer,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *TimeSlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSlotService{
		slots:        slots,
		classes:      classes,
		materializer: materializer,
		tx:           tx,
		validator:    newSchedulingValidator(validate),
		logger:       logger,
	}
}

// List returns the active slots of a class.
func (s *TimeSlotService) List(ctx context.Context, classID string) ([]models.TimeSlot, error) {
	if _, err := s.classes.FindByID(ctx, nil, classID); err != nil {
		return nil, lookupError(err, "class")
	}
	slots, err := s.slots.ListByClass(ctx, nil, classID, true)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list time slots")
	}
	return slots, nil
}

// Get returns a slot by id.
func (s *TimeSlotService) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, err := s.slots.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "time slot")
	}
	return slot, nil
}

// Create adds a slot after checking it does not overlap another active slot of the class.
func (s *TimeSlotService) Create(ctx context.Context, classID string, req dto.TimeSlotRequest, actor models.Actor) (*models.TimeSlot, error) {
	slot, err := s.candidate(req)
	if err != nil {
		return nil, err
	}
	class, err := ownedClass(ctx, s.classes, nil, classID, actor)
	if err != nil {
		return nil, err
	}
	if !class.HasSubject(slot.Subject) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %q is not taught in this class", slot.Subject))
	}
	slot.ClassID = class.ID
	slot.IsActive = true

	if err := s.checkOverlap(ctx, nil, slot); err != nil {
		return nil, err
	}
	if err := s.slots.Create(ctx, nil, &slot); err != nil {
		return nil, appErrors.Internal(err, "failed to create time slot")
	}
	s.logger.Info("time slot created", zap.String("class_id", slot.ClassID), zap.String("time_slot_id", slot.ID))
	return &slot, nil
}

// Update reshapes a slot. When the weekly window or subject changes, the old shape's future
// sessions are cancelled in the same transaction.
func (s *TimeSlotService) Update(ctx context.Context, id string, req dto.TimeSlotRequest, actor models.Actor) (resp *dto.TimeSlotMutationResponse, err error) {
	candidate, err := s.candidate(req)
	if err != nil {
		return nil, err
	}
	current, err := s.slots.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "time slot")
	}
	if !current.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
	}
	class, err := ownedClass(ctx, s.classes, nil, current.ClassID, actor)
	if err != nil {
		return nil, err
	}
	if !class.HasSubject(candidate.Subject) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %q is not taught in this class", candidate.Subject))
	}

	updated := *current
	updated.Subject = candidate.Subject
	updated.DayOfWeek = candidate.DayOfWeek
	updated.StartTime = candidate.StartTime
	updated.EndTime = candidate.EndTime

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.checkOverlap(ctx, tx, updated); err != nil {
		return nil, err
	}
	var cancelled []models.Session
	if !current.SameShape(updated) {
		if cancelled, err = s.materializer.cancelFuture(ctx, tx, *current, "time slot rescheduled", models.CancellationSlotChange); err != nil {
			return nil, err
		}
	}
	if err = s.slots.Update(ctx, tx, &updated); err != nil {
		err = appErrors.Internal(err, "failed to update time slot")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit time slot update")
	}

	s.materializer.afterCancel(ctx, *current, cancelled, causeSlotRescheduled, "time slot rescheduled")
	return &dto.TimeSlotMutationResponse{Slot: &updated, CancelledSessions: len(cancelled)}, nil
}

// Delete deactivates a slot and cancels its future sessions. It returns the cancelled count.
func (s *TimeSlotService) Delete(ctx context.Context, id string, actor models.Actor) (count int, err error) {
	slot, err := s.slots.FindByID(ctx, nil, id)
	if err != nil {
		return 0, lookupError(err, "time slot")
	}
	if _, err := ownedClass(ctx, s.classes, nil, slot.ClassID, actor); err != nil {
		return 0, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cancelled, err := s.materializer.cancelFuture(ctx, tx, *slot, "time slot removed", models.CancellationSlotChange)
	if err != nil {
		return 0, err
	}
	if err = s.slots.Deactivate(ctx, tx, slot.ID); err != nil {
		return 0, lookupError(err, "time slot")
	}
	if err = tx.Commit(); err != nil {
		return 0, appErrors.Internal(err, "failed to commit time slot removal")
	}

	s.materializer.afterCancel(ctx, *slot, cancelled, causeSlotRemoved, "time slot removed")
	s.logger.Info("time slot removed", zap.String("time_slot_id", slot.ID), zap.Int("cancelled_sessions", len(cancelled)))
	return len(cancelled), nil
}

func (s *TimeSlotService) candidate(req dto.TimeSlotRequest) (models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.TimeSlot{}, validationError(err)
	}
	slot := models.TimeSlot{
		Subject:   strings.TrimSpace(req.Subject),
		DayOfWeek: *req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if _, err := slot.Interval(); err != nil {
		return models.TimeSlot{}, appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	return slot, nil
}

// checkOverlap rejects slot when another active slot of the class overlaps it on the same day.
func (s *TimeSlotService) checkOverlap(ctx context.Context, exec sqlx.ExtContext, slot models.TimeSlot) error {
	interval, err := slot.Interval()
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	existing, err := s.slots.ListByClass(ctx, exec, slot.ClassID, true)
	if err != nil {
		return appErrors.Internal(err, "failed to load time slots")
	}
	for _, other := range existing {
		if other.ID == slot.ID || other.DayOfWeek != slot.DayOfWeek {
			continue
		}
		otherInterval, err := other.Interval()
		if err != nil {
			continue
		}
		if interval.Overlaps(otherInterval) {
			return overlapError(other)
		}
	}
	return nil
}

func overlapError(other models.TimeSlot) error {
	conflict := &models.TimeSlotConflictError{
		Message: fmt.Sprintf("time slot overlaps %s on day %d from %s to %s", other.Subject, other.DayOfWeek, other.StartTime, other.EndTime),
		Conflict: models.TimeSlotConflict{
			TimeSlotID: other.ID,
			Subject:    other.Subject,
			DayOfWeek:  other.DayOfWeek,
			StartTime:  other.StartTime,
			EndTime:    other.EndTime,
		},
	}
	return appErrors.Wrap(conflict, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, conflict.Message)
}

