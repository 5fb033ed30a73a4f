package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/internal/rotation"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
	"github.com/noah-isme/session-scheduler-api/pkg/timerange"
)

type tutorAssignmentStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TutorAssignment, error)
	ListByClass(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.TutorAssignment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.TutorAssignment) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AssignmentStatus, active bool) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type tutorDirectory interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tutor, error)
}

type rotationReapplier interface {
	reapplyTx(ctx context.Context, exec sqlx.ExtContext, classID, subject string, from, to time.Time) (int, int, error)
}

// TutorAssignmentService manages which tutors rotate through a class subject.
type TutorAssignmentService struct {
	assignments tutorAssignmentStore
	tutors      tutorDirectory
	slots       slotReader
	classes     classDirectory
	rotation    rotationReapplier
	notifier    notifier
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
	loc         *time.Location
	now         func() time.Time
}

// NewTutorAssignmentService constructs the service.
func NewTutorAssignmentService(
	assignments tutorAssignmentStore,
	tutors tutorDirectory,
	slots slotReader,
	classes classDirectory,
	rotation rotationReapplier,
	notifier notifier,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	loc *time.Location,
) *TutorAssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TutorAssignmentService{
		assignments: assignments,
		tutors:      tutors,
		slots:       slots,
		classes:     classes,
		rotation:    rotation,
		notifier:    notifier,
		tx:          tx,
		validator:   newSchedulingValidator(validate),
		logger:      logger,
		loc:         loc,
		now:         time.Now,
	}
}

// List returns the assignments of a class.
func (s *TutorAssignmentService) List(ctx context.Context, classID string) ([]models.TutorAssignment, error) {
	if _, err := s.classes.FindByID(ctx, nil, classID); err != nil {
		return nil, lookupError(err, "class")
	}
	assignments, err := s.assignments.ListByClass(ctx, nil, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list tutor assignments")
	}
	return assignments, nil
}

// Create stores a PENDING assignment and asks the tutor to respond.
func (s *TutorAssignmentService) Create(ctx context.Context, classID string, req dto.CreateTutorAssignmentRequest, actor models.Actor) (*models.TutorAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	class, err := ownedClass(ctx, s.classes, nil, classID, actor)
	if err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(req.Subject)
	if !class.HasSubject(subject) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %q is not taught in this class", subject))
	}

	pattern := models.RecurrencePattern(strings.ToUpper(req.RecurrencePattern))
	config := types.JSONText("{}")
	if len(req.RecurrenceConfig) > 0 && string(req.RecurrenceConfig) != "null" {
		config = types.JSONText(req.RecurrenceConfig)
	}
	if _, err := rotation.ParseRule(pattern, config); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	var slot *models.TimeSlot
	if req.TimeSlotID != nil {
		if slot, err = s.slots.FindByID(ctx, nil, *req.TimeSlotID); err != nil {
			return nil, lookupError(err, "time slot")
		}
		if slot.ClassID != class.ID || !slot.IsActive {
			return nil, appErrors.Clone(appErrors.ErrValidation, "time slot does not belong to this class")
		}
		if slot.Subject != subject {
			return nil, appErrors.Clone(appErrors.ErrValidation, "time slot subject does not match assignment subject")
		}
	}

	tutor, err := s.tutors.FindByID(ctx, nil, req.TutorID)
	if err != nil {
		return nil, lookupError(err, "tutor")
	}
	if !tutor.IsActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tutor is not active")
	}
	if !tutor.TeachesSubject(subject) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("tutor does not teach %q", subject))
	}
	if slot != nil {
		available, err := availableFor(*tutor, *slot)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, appErrors.Clone(appErrors.ErrConflict, "tutor is not available during this time slot")
		}
	}

	startDate, endDate, err := s.window(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	assignment := &models.TutorAssignment{
		ClassID:           class.ID,
		TimeSlotID:        req.TimeSlotID,
		Subject:           subject,
		TutorID:           tutor.ID,
		RecurrencePattern: pattern,
		RecurrenceConfig:  config,
		StartDate:         startDate,
		EndDate:           endDate,
		Status:            models.AssignmentStatusPending,
		IsActive:          true,
	}
	if err := s.assignments.Create(ctx, nil, assignment); err != nil {
		return nil, appErrors.Internal(err, "failed to create tutor assignment")
	}

	s.notifier.Notify(ctx, notificationsFor([]string{tutor.ID}, models.NotificationAssignmentCreated, "New tutoring assignment",
		fmt.Sprintf("You were assigned to teach %s in %s", subject, class.Name), map[string]any{
			"classId":      class.ID,
			"assignmentId": assignment.ID,
			"subject":      subject,
		}))
	s.logger.Info("tutor assignment created", zap.String("class_id", class.ID), zap.String("assignment_id", assignment.ID), zap.String("tutor_id", tutor.ID))
	return assignment, nil
}

// UpdateStatus records the tutor's answer. Accepting re-resolves the subject's future unassigned
// sessions in the same transaction; declining removes the assignment from rotation.
func (s *TutorAssignmentService) UpdateStatus(ctx context.Context, id string, req dto.UpdateAssignmentStatusRequest, actor models.Actor) (resp *dto.AssignmentStatusResponse, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	assignment, err := s.assignments.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "tutor assignment")
	}
	if !actor.Privileged() && assignment.TutorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned tutor can respond to this assignment")
	}
	if !assignment.IsActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "tutor assignment is no longer active")
	}

	status := models.AssignmentStatus(req.Status)
	active := status == models.AssignmentStatusAccepted

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.assignments.UpdateStatus(ctx, tx, assignment.ID, status, active); err != nil {
		err = lookupError(err, "tutor assignment")
		return nil, err
	}
	assigned := 0
	if active {
		if assigned, _, err = s.rotation.reapplyTx(ctx, tx, assignment.ClassID, assignment.Subject, s.now(), time.Time{}); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit assignment status")
	}

	assignment.Status = status
	assignment.IsActive = active
	s.logger.Info("tutor assignment answered", zap.String("assignment_id", assignment.ID), zap.String("status", string(status)), zap.Int("assigned", assigned))
	return &dto.AssignmentStatusResponse{Assignment: assignment, Assigned: assigned}, nil
}

// Remove takes an assignment out of rotation. Sessions already assigned keep their tutor.
func (s *TutorAssignmentService) Remove(ctx context.Context, id string, actor models.Actor) error {
	assignment, err := s.assignments.FindByID(ctx, nil, id)
	if err != nil {
		return lookupError(err, "tutor assignment")
	}
	if _, err := ownedClass(ctx, s.classes, nil, assignment.ClassID, actor); err != nil {
		return err
	}
	if err := s.assignments.Deactivate(ctx, nil, assignment.ID); err != nil {
		return lookupError(err, "tutor assignment")
	}
	return nil
}

func (s *TutorAssignmentService) window(rawStart, rawEnd *string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if rawStart != nil {
		t, err := parseDate(*rawStart, s.loc)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if rawEnd != nil {
		t, err := parseDate(*rawEnd, s.loc)
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "endDate must not be before startDate")
	}
	return start, end, nil
}

// availableFor reports whether one of the tutor's windows covers the slot. A tutor without
// windows is available at any time.
func availableFor(tutor models.Tutor, slot models.TimeSlot) (bool, error) {
	var windows []models.AvailabilityWindow
	if len(tutor.Availability) > 0 {
		if err := json.Unmarshal(tutor.Availability, &windows); err != nil {
			return false, appErrors.Internal(err, "failed to read tutor availability")
		}
	}
	if len(windows) == 0 {
		return true, nil
	}
	interval, err := slot.Interval()
	if err != nil {
		return false, appErrors.Internal(err, "time slot has an invalid time range")
	}
	for _, w := range windows {
		if w.DayOfWeek != slot.DayOfWeek {
			continue
		}
		window, err := timerange.ParseInterval(w.StartTime, w.EndTime)
		if err != nil {
			continue
		}
		if window.Covers(interval) {
			return true, nil
		}
	}
	return false, nil
}

