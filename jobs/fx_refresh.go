package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

// RateRefresher reloads a versioned rate table.
type RateRefresher interface {
	Refresh(ctx context.Context) error
	Version() int64
}

// FXRefreshJob keeps worker and API rate tables in step with storage.
type FXRefreshJob struct {
	Rates   RateRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewFXRefreshJob constructs the job handler.
func NewFXRefreshJob(rates RateRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *FXRefreshJob {
	return &FXRefreshJob{Rates: rates, Logger: logger, Metrics: metrics}
}

// Handle reloads the rate table.
func (j *FXRefreshJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Rates == nil {
		return errors.New("fx refresh: dependencies not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskFXRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskFXRefresh))
	before := j.Rates.Version()
	if err := j.Rates.Refresh(ctx); err != nil {
		logger.Error("reload rates", slog.Any("error", err))
		return err
	}
	logger.Info("reloaded rates", slog.Int64("from_version", before), slog.Int64("version", j.Rates.Version()))
	return nil
}
