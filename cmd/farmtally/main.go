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

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/farmtally/farmtally/internal/advances"
	"github.com/farmtally/farmtally/internal/app"
	"github.com/farmtally/farmtally/internal/farmers"
	"github.com/farmtally/farmtally/internal/lorries"
	"github.com/farmtally/farmtally/internal/notify"
	"github.com/farmtally/farmtally/internal/platform/cache"
	"github.com/farmtally/farmtally/internal/platform/db"
	"github.com/farmtally/farmtally/internal/settlement"
	"github.com/farmtally/farmtally/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, lorry locking degrades to row locks only", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	mutex := shared.NewMutex(redisClient)
	auditLogger := shared.NewAuditLogger(pool)
	notifier := notify.NewEmitter(asynqClient, logger)

	advancesRepo := advances.NewRepository(pool)
	advancesService := advances.NewService(advancesRepo, notifier)
	advancesHandler := advances.NewHandler(logger, advancesService, validate)

	farmersRepo := farmers.NewRepository(pool)
	farmersHandler := farmers.NewHandler(logger, farmersRepo)

	lorriesRepo := lorries.NewRepository(pool)
	lorriesService := lorries.NewService(lorriesRepo, mutex, notifier, cfg.LorryLockTTL)
	lorriesHandler := lorries.NewHandler(logger, lorriesService, validate)

	settlementRepo := settlement.NewRepository(pool)
	settlementService := settlement.NewService(
		settlementRepo,
		advancesService,
		mutex,
		notifier,
		auditLogger,
		cfg.LorryLockTTL,
	)
	settlementHandler := settlement.NewHandler(logger, settlementService, validate)

	router := app.NewRouter(app.RouterDeps{
		Middleware: app.MiddlewareStack(app.MiddlewareConfig{Logger: logger, Config: cfg}),
		Mounters: []interface{ MountRoutes(chi.Router) }{
			settlementHandler,
			lorriesHandler,
			advancesHandler,
			farmersHandler,
		},
		Health: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("farmtally listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", slog.Any("error", err))
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
