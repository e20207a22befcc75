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

	"github.com/pinboard/pinboard/internal/app"
	"github.com/pinboard/pinboard/internal/auth"
	"github.com/pinboard/pinboard/internal/boards"
	"github.com/pinboard/pinboard/internal/observability"
	"github.com/pinboard/pinboard/internal/pins"
	"github.com/pinboard/pinboard/internal/platform/cache"
	"github.com/pinboard/pinboard/internal/platform/db"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
	"github.com/pinboard/pinboard/internal/users"
	"github.com/pinboard/pinboard/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "pinboard_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	usersService := users.NewService(users.NewRepository(dbpool), users.ServiceConfig{
		AllowRegistrations: cfg.AllowNewRegistrations,
		BcryptCost:         cfg.BcryptCost,
	})
	authService := auth.NewService(auth.NewRepository(dbpool), usersService)

	storage, err := app.NewImageStorage(ctx, cfg)
	if err != nil {
		logger.Error("open image storage", slog.Any("error", err))
		os.Exit(1)
	}
	fetcher := app.NewImageFetcher(cfg, dbpool, storage, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	var enqueuer pins.Enqueuer
	if cfg.ImageFetchAsync {
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		enqueuer = jobClient
	}

	boardsService := boards.NewService(boards.NewRepository(dbpool), logger)
	pinsService := app.NewPinService(cfg, dbpool, fetcher, rbacService, enqueuer, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var media http.Handler
	if cfg.ImageStorage == app.StorageFS {
		media = http.FileServer(http.Dir(cfg.MediaRoot))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthService:        authService,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, csrfManager),
		UsersHandler:       users.NewHandler(logger, usersService, sessionManager, rbacMiddleware),
		BoardsHandler:      boards.NewHandler(logger, boardsService, rbacMiddleware),
		PinsHandler:        pins.NewHandler(logger, pinsService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            observability.NewMetrics(),
		MediaHandler:       media,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("async_fetch", cfg.ImageFetchAsync))
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
