package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/locadora/console/internal/alerts"
	"github.com/locadora/console/internal/app"
	"github.com/locadora/console/internal/audit"
	audithttp "github.com/locadora/console/internal/audit/http"
	"github.com/locadora/console/internal/backend"
	"github.com/locadora/console/internal/console"
	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/observability"
	"github.com/locadora/console/internal/platform/cache"
	"github.com/locadora/console/internal/platform/db"
	"github.com/locadora/console/internal/rental"
	"github.com/locadora/console/internal/shared"
	"github.com/locadora/console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	readiness := map[string]app.Pinger{}

	// Audit and idempotency live in Postgres; the console runs without them.
	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 8, MaxConnIdleTime: 5 * time.Minute})
	if err != nil {
		if cfg.IsProduction() {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("postgres unavailable, audit and idempotency disabled", slog.Any("error", err))
	} else {
		defer dbpool.Close()
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		readiness["postgres"] = dbpool
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, alerts cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		readiness["redis"] = app.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	metrics := observability.NewMetrics()

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout,
		backend.WithLogger(logger),
		backend.WithMetrics(metrics),
	)
	readiness["backend"] = backendClient

	var alertsCache *alerts.Cache
	if redisClient != nil {
		alertsCache = alerts.NewCache(redisClient, cfg.AlertsCacheTTL)
	}
	alertsService := alerts.NewService(backendClient, backendClient, alertsCache, cfg.LowStockThreshold, logger)

	opts := []console.Option{
		console.WithMetrics(metrics),
		console.WithStaleAfter(cfg.WorkingSetMaxAge),
	}
	var inventoryAudit inventory.AuditPort
	auditService := audit.NewService(nil)
	if dbpool != nil {
		auditService = audit.NewService(audit.NewRepository(dbpool))
		auditLogger := shared.NewAuditLogger(dbpool)
		inventoryAudit = auditLogger
		opts = append(opts,
			console.WithAudit(auditLogger),
			console.WithIdempotency(shared.NewIdempotencyStore(dbpool)),
		)
	}
	inventoryService := inventory.NewService(backendClient, inventoryAudit, logger)
	consoleService := console.NewService(backendClient, inventoryService, alertsService, logger, opts...)

	if err := alertsCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Debug("alerts version bumped elsewhere", slog.Int64("version", version))
		consoleService.MarkStale()
	}); err != nil {
		logger.Warn("subscribe alerts invalidation", slog.Any("error", err))
	}

	if n, err := consoleService.Refresh(ctx); err != nil {
		logger.Warn("initial working set load", slog.Any("error", err))
	} else {
		logger.Info("working set loaded", slog.Int("rentals", n))
	}

	jobHandler := jobs.NewHandler(nil, logger)
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger).WithEnqueuer(jobClient)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ConsoleHandler:   console.NewHandler(logger, consoleService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, cfg.LowStockThreshold),
		AuditHandler:     audithttp.NewHandler(logger, auditService),
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Readiness:        readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.BackendURL))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

