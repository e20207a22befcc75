package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pinboard/pinboard/internal/app"
	"github.com/pinboard/pinboard/internal/auth"
	jobmetrics "github.com/pinboard/pinboard/internal/jobs"
	"github.com/pinboard/pinboard/internal/platform/db"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
	"github.com/pinboard/pinboard/internal/users"
	"github.com/pinboard/pinboard/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	storage, err := app.NewImageStorage(ctx, cfg)
	if err != nil {
		logger.Error("open image storage", slog.Any("error", err))
		os.Exit(1)
	}
	fetcher := app.NewImageFetcher(cfg, pool, storage, logger)
	rbacService := rbac.NewService(rbac.NewRepository(pool))
	// The worker only creates pins; it never re-enqueues.
	pinsService := app.NewPinService(cfg, pool, fetcher, rbacService, nil, logger)

	usersService := users.NewService(users.NewRepository(pool), users.ServiceConfig{})
	authService := auth.NewService(auth.NewRepository(pool), usersService)

	metrics := jobmetrics.NewMetrics(nil)
	fetchJob := jobs.NewImageFetchJob(pinsService, logger, metrics)
	maintenance := jobs.NewMaintenanceJob(authService, shared.NewIdempotencyStore(pool), logger, metrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskImageFetch, Handler: fetchJob.Handle},
			{Type: jobs.TaskSessionPurge, Handler: maintenance.HandleSessionPurge},
			{Type: jobs.TaskIdempotencyCleanup, Handler: maintenance.HandleIdempotencyCleanup},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 1h", Task: jobs.NewSessionPurgeTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
