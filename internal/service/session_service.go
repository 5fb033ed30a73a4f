package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
)

type sessionLister interface {
	List(ctx context.Context, exec sqlx.ExtContext, filter models.SessionFilter) ([]models.Session, error)
}

// SessionService lists materialized sessions of a class.
type SessionService struct {
	sessions  sessionLister
	classes   classDirectory
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
}

// NewSessionService constructs the service.
func NewSessionService(sessions sessionLister, classes classDirectory, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SessionService{
		sessions:  sessions,
		classes:   classes,
		validator: newSchedulingValidator(validate),
		logger:    logger,
		loc:       loc,
	}
}

// List returns the sessions of a class ordered by start. The To date is inclusive.
func (s *SessionService) List(ctx context.Context, classID string, query dto.SessionListQuery) ([]models.Session, error) {
	filter, err := s.filter(classID, query)
	if err != nil {
		return nil, err
	}
	if _, err := s.classes.FindByID(ctx, nil, classID); err != nil {
		return nil, lookupError(err, "class")
	}
	sessions, err := s.sessions.List(ctx, nil, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sessions")
	}
	return sessions, nil
}

func (s *SessionService) filter(classID string, query dto.SessionListQuery) (models.SessionFilter, error) {
	if err := s.validator.Struct(query); err != nil {
		return models.SessionFilter{}, validationError(err)
	}
	filter := models.SessionFilter{ClassID: classID, Subject: strings.TrimSpace(query.Subject)}
	if query.From != "" {
		from, err := parseDate(query.From, s.loc)
		if err != nil {
			return filter, err
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := parseDate(query.To, s.loc)
		if err != nil {
			return filter, err
		}
		to = to.AddDate(0, 0, 1)
		if filter.From != nil && !to.After(*filter.From) {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
		}
		filter.To = &to
	}
	for _, status := range query.Status {
		filter.Statuses = append(filter.Statuses, models.SessionStatus(status))
	}
	return filter, nil
}
