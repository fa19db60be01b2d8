package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidateRefresh persists a fresh consolidation run for every parent company.
	TaskConsolidateRefresh = "consol:refresh"
	// TaskFXRefresh reloads the in-memory rate table from storage.
	TaskFXRefresh = "fx:refresh"
	// TaskGLIntegrity checks that every posted entry still balances.
	TaskGLIntegrity = "gl:integrity"
)

const dateLayout = "2006-01-02"

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AsOfPayload carries the as-of date of date driven jobs. An empty or "today"
// value resolves to the current UTC date when the job runs.
type AsOfPayload struct {
	AsOf string `json:"as_of"`
}

func (p AsOfPayload) resolve(now time.Time) (time.Time, error) {
	v := strings.TrimSpace(p.AsOf)
	if v == "" || strings.EqualFold(v, "today") {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid as_of %q: %w", p.AsOf, err)
	}
	return t, nil
}

func newAsOfTask(taskType string, asOf time.Time) (*asynq.Task, error) {
	payload := AsOfPayload{AsOf: "today"}
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(dateLayout)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// NewConsolidateRefreshTask creates a consolidation refresh task. A zero asOf
// refreshes as of the day the task runs.
func NewConsolidateRefreshTask(asOf time.Time) (*asynq.Task, error) {
	return newAsOfTask(TaskConsolidateRefresh, asOf)
}

// NewFXRefreshTask creates a rate table reload task.
func NewFXRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskFXRefresh, nil, asynq.Queue(QueueDefault))
}

// NewGLIntegrityTask creates a ledger integrity check task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil, asynq.Queue(QueueDefault))
}
