package app

import (
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/repository"
	"github.com/noah-isme/session-scheduler-api/internal/service"
	"github.com/noah-isme/session-scheduler-api/pkg/config"
)

// Container holds the repositories and services shared by the HTTP server and the materializer command.
type Container struct {
	Classes    *repository.ClassRepository
	CacheStore *repository.CacheRepository

	Metrics       *service.MetricsService
	Cache         *service.CacheService
	Notifications *service.NotificationService
	Rotation      *service.RotationService
	Materializer  *service.SessionMaterializer
	TimeSlots     *service.TimeSlotService
	Weeks         *service.WeekCancellationService
	Assignments   *service.TutorAssignmentService
	Sessions      *service.SessionService
	Exports       *service.ExportService
	Auth          *service.AuthService
}

// New wires every scheduling service against db. rdb may be nil when Redis is disabled.
func New(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, logger *zap.Logger) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	loc := cfg.Scheduler.Location()

	classRepo := repository.NewClassRepository(db)
	slotRepo := repository.NewTimeSlotRepository(db)
	weekRepo := repository.NewWeekCancellationRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	assignmentRepo := repository.NewTutorAssignmentRepository(db)
	tutorRepo := repository.NewTutorRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	cacheRepo := repository.NewCacheRepository(rdb)

	metrics := service.NewMetricsService()
	cache := service.NewCacheService(
		cacheRepo,
		metrics,
		cfg.Scheduler.HistoryCacheTTL,
		logger,
		cfg.Scheduler.HistoryCacheEnabled && rdb != nil,
	)
	notifications := service.NewNotificationService(notificationRepo, cfg.Notifications, metrics, logger)

	rotation := service.NewRotationService(
		sessionRepo,
		assignmentRepo,
		tutorRepo,
		classRepo,
		cache,
		metrics,
		db,
		validate,
		logger,
		service.RotationConfig{Location: loc, HistoryTTL: cfg.Scheduler.HistoryCacheTTL},
	)
	materializer := service.NewSessionMaterializer(
		slotRepo,
		weekRepo,
		sessionRepo,
		classRepo,
		rotation,
		notifications,
		metrics,
		db,
		validate,
		logger,
		service.MaterializerConfig{
			Location:          loc,
			DefaultWeeksAhead: cfg.Scheduler.DefaultWeeksAhead,
			MaxWeeksAhead:     cfg.Scheduler.MaxWeeksAhead,
		},
	)
	sessions := service.NewSessionService(sessionRepo, classRepo, validate, logger, loc)

	return &Container{
		Classes:       classRepo,
		CacheStore:    cacheRepo,
		Metrics:       metrics,
		Cache:         cache,
		Notifications: notifications,
		Rotation:      rotation,
		Materializer:  materializer,
		TimeSlots:     service.NewTimeSlotService(slotRepo, classRepo, materializer, db, validate, logger),
		Weeks:         service.NewWeekCancellationService(slotRepo, weekRepo, classRepo, materializer, notifications, db, validate, logger, loc),
		Assignments:   service.NewTutorAssignmentService(assignmentRepo, tutorRepo, slotRepo, classRepo, rotation, notifications, db, validate, logger, loc),
		Sessions:      sessions,
		Exports:       service.NewExportService(sessions, cfg.Exports.Enabled, logger),
		Auth:          service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret}),
	}
}
