package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

type stubLedger struct {
	rows []EntryTotals
	err  error
}

func (s stubLedger) PostedEntryTotals(context.Context) ([]EntryTotals, error) {
	return s.rows, s.err
}

type stubRates struct {
	version int64
	err     error
}

func (s *stubRates) Refresh(context.Context) error {
	if s.err != nil {
		return s.err
	}
	s.version++
	return nil
}

func (s *stubRates) Version() int64 { return s.version }

type stubConsol struct {
	asOf []time.Time
}

func (s *stubConsol) RefreshAll(_ context.Context, asOf time.Time) (int, error) {
	s.asOf = append(s.asOf, asOf)
	return 1, nil
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestCheckIntegrity(t *testing.T) {
	rows := []EntryTotals{
		{EntryID: 1, CompanyID: 1, Lines: 2, Debit: dec("10.00"), Credit: dec("10")},
		{EntryID: 2, CompanyID: 1, Lines: 3, Debit: dec("10"), Credit: dec("9.99")},
		{EntryID: 3, CompanyID: 2, Lines: 1, Debit: dec("0"), Credit: dec("0")},
	}
	issues := CheckIntegrity(rows)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %+v", issues)
	}
	if issues[0].EntryID != 2 || issues[0].Rule != RuleUnbalanced {
		t.Fatalf("unexpected first issue %+v", issues[0])
	}
	if issues[1].EntryID != 3 || issues[1].Rule != RuleTooFewLines {
		t.Fatalf("unexpected second issue %+v", issues[1])
	}
}

func TestGLIntegrityJobCountsIssues(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewGLIntegrityJob(stubLedger{rows: []EntryTotals{
		{EntryID: 7, CompanyID: 4, Lines: 2, Debit: dec("5"), Credit: dec("4")},
		{EntryID: 8, CompanyID: 4, Lines: 2, Debit: dec("1"), Credit: dec("2")},
	}}, nil, metrics)

	if err := job.Handle(context.Background(), NewGLIntegrityTask()); err != nil {
		t.Fatalf("violations must not fail the task: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, fam := range families {
		if fam.GetName() != "odyssey_gl_integrity_issues_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	if total != 2 {
		t.Fatalf("expected 2 issues counted, got %v", total)
	}
}

func TestGLIntegrityJobPropagatesLoadErrors(t *testing.T) {
	job := NewGLIntegrityJob(stubLedger{err: errors.New("db down")}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	if err := job.Handle(context.Background(), NewGLIntegrityTask()); err == nil {
		t.Fatal("expected load error")
	}
}

func TestFXRefreshJob(t *testing.T) {
	rates := &stubRates{version: 3}
	job := NewFXRefreshJob(rates, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	if err := job.Handle(context.Background(), NewFXRefreshTask()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rates.version != 4 {
		t.Fatalf("expected version 4, got %d", rates.version)
	}
	rates.err = errors.New("boom")
	if err := job.Handle(context.Background(), NewFXRefreshTask()); err == nil {
		t.Fatal("expected refresh error")
	}
}

func TestConsolidateRefreshResolvesAsOf(t *testing.T) {
	svc := &stubConsol{}
	job := NewConsolidateRefreshJob(svc, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return time.Date(2025, 3, 9, 22, 15, 0, 0, time.UTC) })

	today, err := NewConsolidateRefreshTask(time.Time{})
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	var payload AsOfPayload
	if err := json.Unmarshal(today.Payload(), &payload); err != nil || payload.AsOf != "today" {
		t.Fatalf("unexpected payload %s", today.Payload())
	}
	fixed, err := NewConsolidateRefreshTask(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	for _, task := range []*asynq.Task{today, fixed} {
		if err := job.Handle(context.Background(), task); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(svc.asOf) != 2 {
		t.Fatalf("expected 2 refreshes, got %d", len(svc.asOf))
	}
	if got := svc.asOf[0].Format(dateLayout); got != "2025-03-09" {
		t.Fatalf("today resolved to %s", got)
	}
	if got := svc.asOf[1].Format(dateLayout); got != "2024-12-31" {
		t.Fatalf("fixed date resolved to %s", got)
	}

	bad := asynq.NewTask(TaskConsolidateRefresh, []byte(`{"as_of":"31/12/2024"}`))
	if err := job.Handle(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthReportsQueueDepth(t *testing.T) {
	get := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	rec := get(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body queueHealth
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Pending != 3 || body.Retry != 1 {
		t.Fatalf("unexpected health %+v", body)
	}

	rec = get(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestNewWorkerRejectsEmptyHandler(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskFXRefresh}},
	})
	if err == nil {
		t.Fatal("expected an error for a handler without a func")
	}
}
