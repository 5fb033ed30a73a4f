package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/app"
	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/pkg/cache"
	"github.com/noah-isme/session-scheduler-api/pkg/config"
	"github.com/noah-isme/session-scheduler-api/pkg/database"
	"github.com/noah-isme/session-scheduler-api/pkg/logger"
)

// session-materializer extends every active class schedule by a number of weeks and repairs
// weeks that have no sessions. It is meant to run from cron.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	weeks := flag.Int("weeks", cfg.Scheduler.DefaultWeeksAhead, "weeks to generate ahead of the current week")
	fillGapsWeeks := flag.Int("fill-gaps-weeks", cfg.Scheduler.FillGapsWeeks, "weeks scanned for missing sessions, 0 disables the scan")
	classID := flag.String("class", "", "restrict the run to a single class id")
	flag.Parse()

	logr, err := logger.New(cfg)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return 1
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Error("failed to connect database", zap.Error(err))
		return 1
	}
	defer db.Close()

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, history cache disabled", zap.Error(err))
		rdb = nil
	}

	container := app.New(cfg, db, rdb, logr)
	defer container.CacheStore.Close() //nolint:errcheck

	container.Notifications.Start(ctx)
	defer container.Notifications.Stop()

	classIDs := []string{*classID}
	if *classID == "" {
		if classIDs, err = container.Classes.ListActiveIDs(ctx); err != nil {
			logr.Error("failed to list classes", zap.Error(err))
			return 1
		}
	}

	res := materializeClasses(ctx, container.Materializer, classIDs, options{
		weeks:         *weeks,
		fillGapsWeeks: *fillGapsWeeks,
		today:         time.Now().In(cfg.Scheduler.Location()),
	}, logr)

	logr.Info("materialization finished",
		zap.Int("classes", len(classIDs)),
		zap.Int("created", res.created),
		zap.Int("repaired_weeks", res.repaired),
		zap.Int("failed", res.failed),
	)
	if res.failed > 0 {
		return 1
	}
	return 0
}

type classMaterializer interface {
	GenerateForClass(ctx context.Context, classID string, req dto.GenerateSessionsRequest, actor models.Actor) (*dto.GenerateSessionsResponse, error)
	FillGaps(ctx context.Context, classID string, req dto.FillGapsRequest, actor models.Actor) (*dto.FillGapsResponse, error)
}

type options struct {
	weeks         int
	fillGapsWeeks int
	today         time.Time
}

type summary struct {
	created  int
	repaired int
	failed   int
}

// gapRange spans fillGapsWeeks weeks starting today.
func (o options) gapRange() dto.FillGapsRequest {
	return dto.FillGapsRequest{
		Start: o.today.Format(dto.DateLayout),
		End:   o.today.AddDate(0, 0, 7*o.fillGapsWeeks).Format(dto.DateLayout),
	}
}

// materializeClasses runs generation then gap repair per class. A failing class is counted and skipped.
func materializeClasses(ctx context.Context, m classMaterializer, classIDs []string, opts options, logr *zap.Logger) summary {
	var out summary
	gapRange := opts.gapRange()
	for _, id := range classIDs {
		if ctx.Err() != nil {
			break
		}
		classLog := logr.With(zap.String("class_id", id))

		result, err := m.GenerateForClass(ctx, id, dto.GenerateSessionsRequest{WeeksAhead: opts.weeks}, models.SystemActor)
		if err != nil {
			out.failed++
			classLog.Error("generate sessions failed", zap.Error(err))
			continue
		}
		out.created += result.Count
		classLog.Info("sessions generated",
			zap.Int("created", result.Count),
			zap.Int("assigned", result.Assigned),
			zap.String("from", result.From),
			zap.String("to", result.To),
		)

		if opts.fillGapsWeeks <= 0 {
			continue
		}
		gaps, err := m.FillGaps(ctx, id, gapRange, models.SystemActor)
		if err != nil {
			out.failed++
			classLog.Error("fill gaps failed", zap.Error(err))
			continue
		}
		out.created += gaps.Count
		out.repaired += len(gaps.Weeks)
		if len(gaps.Weeks) > 0 {
			classLog.Info("gaps filled", zap.Strings("weeks", gaps.Weeks), zap.Int("created", gaps.Count))
		}
	}
	return out
}
