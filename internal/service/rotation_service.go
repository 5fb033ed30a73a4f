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
	"github.com/noah-isme/session-scheduler-api/internal/pricing"
	"github.com/noah-isme/session-scheduler-api/internal/rotation"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
)

type rotationSessionStore interface {
	ListStarts(ctx context.Context, exec sqlx.ExtContext, classID, subject string) ([]time.Time, error)
	ListUnassigned(ctx context.Context, exec sqlx.ExtContext, classID, subject string, from, to time.Time) ([]models.Session, error)
	Assign(ctx context.Context, exec sqlx.ExtContext, assignment models.SessionAssignment) error
}

type participatingAssignments interface {
	ListParticipating(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.TutorAssignment, error)
}

type tutorRates interface {
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Tutor, error)
}

// RotationService resolves tutors for pending sessions and prices the result.
type RotationService struct {
	sessions    rotationSessionStore
	assignments participatingAssignments
	tutors      tutorRates
	classes     classDirectory
	cache       *CacheService
	metrics     *MetricsService
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
	loc         *time.Location
	historyTTL  time.Duration
	now         func() time.Time
}

// RotationConfig tunes rotation behaviour.
type RotationConfig struct {
	Location   *time.Location
	HistoryTTL time.Duration
}

// NewRotationService constructs the service.
func NewRotationService(
	sessions rotationSessionStore,
	assignments participatingAssignments,
	tutors tutorRates,
	classes classDirectory,
	cache *CacheService,
	metrics *MetricsService,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg RotationConfig,
) *RotationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &RotationService{
		sessions:    sessions,
		assignments: assignments,
		tutors:      tutors,
		classes:     classes,
		cache:       cache,
		metrics:     metrics,
		tx:          tx,
		validator:   newSchedulingValidator(validate),
		logger:      logger,
		loc:         cfg.Location,
		historyTTL:  cfg.HistoryTTL,
		now:         time.Now,
	}
}

// Reapply re-resolves the class's PENDING sessions without a tutor in the requested range.
func (s *RotationService) Reapply(ctx context.Context, classID string, req dto.ApplyRotationRequest, actor models.Actor) (result *dto.ApplyRotationResponse, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if _, err := ownedClass(ctx, s.classes, nil, classID, actor); err != nil {
		return nil, err
	}

	from := s.now()
	if req.From != nil {
		if from, err = parseDate(*req.From, s.loc); err != nil {
			return nil, err
		}
	}
	var to time.Time
	if req.To != nil {
		if to, err = parseDate(*req.To, s.loc); err != nil {
			return nil, err
		}
		to = to.AddDate(0, 0, 1)
		if !to.After(from) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
		}
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

	assigned, considered, err := s.reapplyTx(ctx, tx, classID, "", from, to)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit rotation")
	}

	s.logger.Info("rotation reapplied", zap.String("class_id", classID), zap.Int("considered", considered), zap.Int("assigned", assigned))
	return &dto.ApplyRotationResponse{Considered: considered, Assigned: assigned}, nil
}

// reapplyTx resolves unassigned sessions already persisted; no sessions are created so the cached
// history stays valid.
func (s *RotationService) reapplyTx(ctx context.Context, exec sqlx.ExtContext, classID, subject string, from, to time.Time) (assigned, considered int, err error) {
	pending, err := s.sessions.ListUnassigned(ctx, exec, classID, subject, from, to)
	if err != nil {
		return 0, 0, appErrors.Internal(err, "failed to load unassigned sessions")
	}
	assigned, err = s.apply(ctx, exec, classID, pending, true)
	return assigned, len(pending), err
}

// Apply resolves tutors for the PENDING sessions without a tutor and persists tutor, price and
// CONFIRMED status. The slice is updated in place. It returns how many sessions were assigned.
func (s *RotationService) Apply(ctx context.Context, exec sqlx.ExtContext, classID string, sessions []models.Session) (int, error) {
	return s.apply(ctx, exec, classID, sessions, false)
}

func (s *RotationService) apply(ctx context.Context, exec sqlx.ExtContext, classID string, sessions []models.Session, cachedHistory bool) (int, error) {
	open := make([]models.Session, 0, len(sessions))
	for _, session := range sessions {
		if session.Status == models.SessionStatusPending && session.TutorID == nil {
			open = append(open, session)
		}
	}
	if len(open) == 0 {
		return 0, nil
	}

	assignments, err := s.assignments.ListParticipating(ctx, exec, classID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to load tutor assignments")
	}
	if len(assignments) == 0 {
		s.metrics.RotationOutcome(0, len(open))
		return 0, nil
	}

	history := &sessionHistory{svc: s, exec: exec, cached: cachedHistory}
	resolved, err := rotation.NewEngine(history, s.loc, s.logger).Resolve(ctx, open, assignments)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to resolve tutors")
	}
	if len(resolved) == 0 {
		s.metrics.RotationOutcome(0, len(open))
		return 0, nil
	}

	rates, err := s.rates(ctx, exec, resolved)
	if err != nil {
		return 0, err
	}
	roster, err := s.classes.CountActiveMembers(ctx, exec, classID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count class members")
	}

	assigned := 0
	for i := range sessions {
		session := &sessions[i]
		tutorID, ok := resolved[session.ID]
		if !ok {
			continue
		}
		price := pricing.Price(rates[tutorID], session.ScheduledStart, session.ScheduledEnd, roster)
		update := models.SessionAssignment{SessionID: session.ID, TutorID: tutorID, Price: price, Status: models.SessionStatusConfirmed}
		if err := s.sessions.Assign(ctx, exec, update); err != nil {
			return assigned, appErrors.Internal(err, "failed to assign tutor")
		}
		session.TutorID = &tutorID
		session.Price = price
		session.Status = models.SessionStatusConfirmed
		assigned++
	}
	s.metrics.RotationOutcome(assigned, len(open)-assigned)
	return assigned, nil
}

func (s *RotationService) rates(ctx context.Context, exec sqlx.ExtContext, resolved map[string]string) (map[string]float64, error) {
	seen := make(map[string]struct{}, len(resolved))
	ids := make([]string, 0, len(resolved))
	for _, tutorID := range resolved {
		if _, ok := seen[tutorID]; ok {
			continue
		}
		seen[tutorID] = struct{}{}
		ids = append(ids, tutorID)
	}
	tutors, err := s.tutors.FindByIDs(ctx, exec, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load tutor rates")
	}
	rates := make(map[string]float64, len(tutors))
	for _, t := range tutors {
		rates[t.ID] = t.HourlyRate
	}
	for _, id := range ids {
		if _, ok := rates[id]; !ok {
			s.logger.Warn("resolved tutor has no record, pricing at zero", zap.String("tutor_id", id))
		}
	}
	return rates, nil
}

// InvalidateHistory drops cached session history for a class after sessions were created.
func (s *RotationService) InvalidateHistory(ctx context.Context, classID string) {
	s.cache.Invalidate(ctx, historyKey(classID, "*"))
}

func historyKey(classID, subject string) string {
	return fmt.Sprintf("scheduler:history:%s:%s", classID, subject)
}

// sessionHistory feeds the rotation engine. The cache is consulted only when the unit of work
// creates no sessions, otherwise cached starts would miss rows inserted in the same transaction.
type sessionHistory struct {
	svc    *RotationService
	exec   sqlx.ExtContext
	cached bool
}

func (h *sessionHistory) SessionStarts(ctx context.Context, classID, subject string) ([]time.Time, error) {
	key := historyKey(classID, subject)
	if h.cached {
		var starts []time.Time
		if h.svc.cache.Get(ctx, key, &starts) {
			return starts, nil
		}
	}
	starts, err := h.svc.sessions.ListStarts(ctx, h.exec, classID, subject)
	if err != nil {
		return nil, err
	}
	if h.cached {
		h.svc.cache.Set(ctx, key, starts, h.svc.historyTTL)
	}
	return starts, nil
}
