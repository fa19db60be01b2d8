package cli

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// ConsolOpsCLI exposes helpers for managing consolidation refresh jobs.
type ConsolOpsCLI struct {
	jobs *JobsCLI
}

// NewConsolOpsCLI constructs the helper over an existing jobs helper.
func NewConsolOpsCLI(base *JobsCLI) (*ConsolOpsCLI, error) {
	if base == nil {
		return nil, errors.New("consol cli: jobs helper required")
	}
	return &ConsolOpsCLI{jobs: base}, nil
}

// TriggerRefresh enqueues a refresh of every group's consolidation as of the given date.
// A zero date lets the worker resolve today.
func (c *ConsolOpsCLI) TriggerRefresh(ctx context.Context, asOf time.Time) (*asynq.TaskInfo, error) {
	if c == nil || c.jobs == nil || c.jobs.client == nil {
		return nil, errors.New("consol cli: client not configured")
	}
	return c.jobs.client.EnqueueConsolidateRefresh(ctx, asOf)
}

// InspectQueue proxies queue statistics for observability.
func (c *ConsolOpsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.jobs == nil {
		return QueueStats{}, errors.New("consol cli: inspector not configured")
	}
	return c.jobs.InspectQueue(ctx)
}
