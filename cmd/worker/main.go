package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/locadora/console/internal/alerts"
	"github.com/locadora/console/internal/app"
	"github.com/locadora/console/internal/backend"
	"github.com/locadora/console/internal/platform/cache"
	"github.com/locadora/console/internal/platform/db"
	"github.com/locadora/console/internal/rental"
	"github.com/locadora/console/internal/shared"
	"github.com/locadora/console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	rental.SetLocation(cfg.BusinessTimezone)

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, backend.WithLogger(logger))
	alertsCache := alerts.NewCache(redisClient, cfg.AlertsCacheTTL)
	alertsService := alerts.NewService(backendClient, backendClient, alertsCache, cfg.LowStockThreshold, logger)

	overdueJob := jobs.NewOverdueScanJob(backendClient, alertsService, logger, nil)
	lowStockJob := jobs.NewLowStockScanJob(backendClient, cfg.LowStockThreshold, logger, nil)

	overdueTask, err := jobs.NewOverdueScanTask(time.Now())
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}
	lowStockTask, err := jobs.NewLowStockScanTask(0)
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskOverdueScan, Handler: overdueJob.Handle},
		{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.OverdueScanCron, Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: cfg.LowStockScanCron, Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		logger.Warn("postgres unavailable, idempotency cleanup disabled", slog.Any("error", err))
	} else {
		defer pool.Close()
		cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, nil)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: cfg.IdempotencyCleanupCron, Task: jobs.NewIdempotencyCleanupTask()})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    rental.Location(),
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
