package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

// ConsolidationService rebuilds and persists consolidation runs.
type ConsolidationService interface {
	RefreshAll(ctx context.Context, asOf time.Time) (int, error)
}

// ConsolidateRefreshJob coordinates the refresh workflow.
type ConsolidateRefreshJob struct {
	Service ConsolidationService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewConsolidateRefreshJob constructs the job handler.
func NewConsolidateRefreshJob(service ConsolidationService, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidateRefreshJob {
	return &ConsolidateRefreshJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the consolidate refresh job.
func (j *ConsolidateRefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("consolidate refresh: dependencies not configured")
	}
	var payload AsOfPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf, err := payload.resolve(j.now())
	if err != nil {
		j.log().Error("resolve as_of", slog.String("as_of", payload.AsOf), slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskConsolidateRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	refreshed, err := j.Service.RefreshAll(ctx, asOf)
	if err != nil {
		resultErr = err
		j.log().Error("refresh consolidation", slog.String("as_of", asOf.Format(dateLayout)), slog.Int("refreshed", refreshed), slog.Any("error", err))
		return resultErr
	}
	if refreshed == 0 {
		j.log().Info("no parent companies to consolidate", slog.String("as_of", asOf.Format(dateLayout)))
		return resultErr
	}
	j.log().Info("refreshed consolidation runs", slog.String("as_of", asOf.Format(dateLayout)), slog.Int("parents", refreshed), slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *ConsolidateRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ConsolidateRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolidateRefresh))
	}
	return slog.Default().With(slog.String("job", TaskConsolidateRefresh))
}

func (j *ConsolidateRefreshJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ConsolidateRefreshJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
