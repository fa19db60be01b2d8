package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/subcommands"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/app"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-gl/internal/audit/http"
	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	consolhttp "github.com/odyssey-erp/odyssey-gl/internal/consol/http"
	"github.com/odyssey-erp/odyssey-gl/internal/observability"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
	"github.com/odyssey-erp/odyssey-gl/jobs"
)

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the ledger HTTP API" }
func (*serveCmd) Usage() string {
	return `serve

Run the ledger HTTP API until interrupted. This is the default command.
`
}

func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (*serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	d, err := openDeps(ctx)
	if err != nil {
		slog.Default().Error("startup", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	defer d.Close()
	if err := serve(ctx, d); err != nil {
		d.logger.Error("serve", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func serve(ctx context.Context, d *deps) error {
	cfg, logger := d.cfg, d.logger
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	metrics := observability.NewMetrics()
	if err := consol.SetupMetrics(metrics.Registerer()); err != nil {
		return err
	}

	var consolCache consol.Cache
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, consolidation cache disabled", slog.Any("error", err))
	} else {
		defer closeRedis(logger, redisClient)
		consolCache = consol.NewRedisCache(redisClient, cfg.ConsolCacheTTL)
	}

	authenticator, err := app.ParseAPITokens(cfg.APITokens)
	if err != nil {
		return err
	}
	if !authenticator.Enabled() {
		logger.Warn("API_TOKENS not set, requests run as the system actor")
	}

	rates, err := d.rates(ctx)
	if err != nil {
		return err
	}
	go reloadRates(ctx, logger, rates, cfg.FXReloadInterval)

	accountService := accounts.NewService(accounts.NewRepository(d.pool), logger)
	periodService := periods.NewService(periods.NewRepository(d.pool), logger)
	journalService := journals.NewService(journals.NewRepository(d.pool), periodService, rates, logger)
	journalService.WithObserver(metrics)
	consolService := consol.NewService(consol.NewRepository(d.pool), rates, consolCache, logger)
	auditService := audit.NewService(audit.NewRepository(d.pool), cfg.AuditPageSize)

	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Auth:            authenticator,
		AccountsHandler: accounts.NewHandler(logger, accountService),
		PeriodsHandler:  periods.NewHandler(logger, periodService),
		JournalsHandler: journals.NewHandler(logger, journalService, shared.NewIdempotencyStore(d.pool)),
		FXHandler:       fx.NewHandler(logger, rates),
		ConsolHandler:   consolhttp.NewHandler(logger, consolService),
		AuditHandler:    audithttp.NewHandler(logger, auditService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// reloadRates picks up rates appended by the CLI or another API instance.
func reloadRates(ctx context.Context, logger *slog.Logger, rates *fx.Service, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rates.Refresh(ctx); err != nil {
				logger.Warn("reload rates", slog.Any("error", err))
			}
		}
	}
}

func closeRedis(logger *slog.Logger, client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
