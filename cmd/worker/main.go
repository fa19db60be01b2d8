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

	"github.com/odyssey-erp/odyssey-gl/internal/app"
	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/observability"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gl/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithApplicationName("odyssey-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	if err := consol.SetupMetrics(metrics.Registerer()); err != nil {
		logger.Error("register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var consolCache consol.Cache
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis cache unavailable", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		consolCache = consol.NewRedisCache(redisClient, cfg.ConsolCacheTTL)
	}

	rates := fx.NewService(fx.NewRepository(pool), fx.NewStore(), cfg.FXAnchorCurrency, logger)
	if err := rates.Refresh(ctx); err != nil {
		logger.Error("load rate table", slog.Any("error", err))
		os.Exit(1)
	}
	consolService := consol.NewService(consol.NewRepository(pool), rates, consolCache, logger)

	consolidator := jobs.NewConsolidateRefreshJob(consolService, logger, metrics.Jobs())
	fxRefresher := jobs.NewFXRefreshJob(rates, logger, metrics.Jobs())
	integrity := jobs.NewGLIntegrityJob(jobs.PGPostedLedger{Pool: pool}, logger, metrics.Jobs())

	consolidateTask, err := jobs.NewConsolidateRefreshTask(time.Time{})
	if err != nil {
		logger.Error("build consolidate task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsolidateRefresh, Handler: func(ctx context.Context, t *asynq.Task) error {
				// rates appended since the last fx:refresh must be visible to the run
				if err := rates.Refresh(ctx); err != nil {
					return err
				}
				return consolidator.Handle(ctx, t)
			}},
			{Type: jobs.TaskFXRefresh, Handler: fxRefresher.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrity.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ConsolRefreshCron, Task: consolidateTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.FXRefreshCron, Task: jobs.NewFXRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.IntegrityCron, Task: jobs.NewGLIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
