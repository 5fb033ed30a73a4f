package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/session-scheduler-api/api/swagger"
	"github.com/noah-isme/session-scheduler-api/internal/app"
	"github.com/noah-isme/session-scheduler-api/internal/handler"
	"github.com/noah-isme/session-scheduler-api/internal/middleware"
	"github.com/noah-isme/session-scheduler-api/pkg/cache"
	"github.com/noah-isme/session-scheduler-api/pkg/config"
	"github.com/noah-isme/session-scheduler-api/pkg/database"
	"github.com/noah-isme/session-scheduler-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/session-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/session-scheduler-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title Session Scheduler API
// @version 1.0.0
// @description Recurring class schedules, session materialization and tutor rotation
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsDir, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, history cache disabled", zap.Error(err))
		rdb = nil
	}

	container := app.New(cfg, db, rdb, logr)
	defer container.CacheStore.Close() //nolint:errcheck

	container.Notifications.Start(ctx)
	defer container.Notifications.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(container.Metrics, "/health", "/ready", cfg.Metrics.Path))

	metricsHandler := handler.NewMetricsHandler(container.Metrics, map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
		"cache":    handler.PingFunc(container.CacheStore.Ping),
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), container)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func registerRoutes(api *gin.RouterGroup, c *app.Container) {
	slots := handler.NewTimeSlotHandler(c.TimeSlots, c.Materializer, c.Weeks)
	sessions := handler.NewSessionHandler(c.Materializer, c.Sessions, c.Exports, c.Rotation)
	assignments := handler.NewTutorAssignmentHandler(c.Assignments)

	secured := api.Group("")
	secured.Use(middleware.JWT(c.Auth))

	classes := secured.Group("/classes/:classId")
	classes.GET("/time-slots", slots.List)
	classes.POST("/time-slots", slots.Create)
	classes.POST("/sessions/generate", sessions.Generate)
	classes.POST("/sessions/fill-gaps", sessions.FillGaps)
	classes.GET("/sessions", sessions.List)
	classes.GET("/sessions/export", sessions.Export)
	classes.POST("/rotation/apply", sessions.ApplyRotation)
	classes.GET("/tutor-assignments", assignments.List)
	classes.POST("/tutor-assignments", assignments.Create)

	timeSlots := secured.Group("/time-slots/:id")
	timeSlots.PUT("", slots.Update)
	timeSlots.DELETE("", slots.Delete)
	timeSlots.POST("/sessions/generate", slots.Generate)
	timeSlots.POST("/sessions/cancel", slots.CancelSessions)
	timeSlots.GET("/cancellations", slots.ListCancellations)
	timeSlots.POST("/cancellations", slots.CancelWeek)
	timeSlots.DELETE("/cancellations/:weekStart", slots.ReinstateWeek)

	tutorAssignments := secured.Group("/tutor-assignments/:id")
	tutorAssignments.PATCH("/status", assignments.UpdateStatus)
	tutorAssignments.DELETE("", assignments.Remove)
}
