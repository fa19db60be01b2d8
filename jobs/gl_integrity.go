package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

// Integrity rules reported by the check.
const (
	RuleUnbalanced  = "unbalanced"
	RuleTooFewLines = "too_few_lines"
)

// EntryTotals summarises the lines of one posted entry.
type EntryTotals struct {
	EntryID   int64
	CompanyID int64
	Number    int64
	Currency  string
	Lines     int
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Issue is a posted entry failing an integrity rule.
type Issue struct {
	EntryTotals
	Rule string
}

// PostedLedger lists the totals of every posted entry.
type PostedLedger interface {
	PostedEntryTotals(ctx context.Context) ([]EntryTotals, error)
}

// CheckIntegrity applies the integrity rules to rows.
func CheckIntegrity(rows []EntryTotals) []Issue {
	var issues []Issue
	for _, row := range rows {
		switch {
		case row.Lines < 2:
			issues = append(issues, Issue{EntryTotals: row, Rule: RuleTooFewLines})
		case !row.Debit.Equal(row.Credit):
			issues = append(issues, Issue{EntryTotals: row, Rule: RuleUnbalanced})
		}
	}
	return issues
}

// GLIntegrityJob verifies that posted entries still satisfy the posting invariants.
type GLIntegrityJob struct {
	Ledger  PostedLedger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(ledger PostedLedger, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle runs the check. Violations are logged and counted; they do not fail the task
// since a retry cannot repair them.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("gl integrity: dependencies not configured")
	}
	_, err = j.Run(ctx)
	return err
}

// Run executes the check and returns the violations found.
func (j *GLIntegrityJob) Run(ctx context.Context) (issues []Issue, err error) {
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskGLIntegrity)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskGLIntegrity))

	rows, err := j.Ledger.PostedEntryTotals(ctx)
	if err != nil {
		logger.Error("load posted totals", slog.Any("error", err))
		return nil, err
	}
	issues = CheckIntegrity(rows)
	type scope struct {
		rule    string
		company int64
	}
	counts := map[scope]int{}
	for _, is := range issues {
		logger.Error("posted entry failed integrity check",
			slog.String("rule", is.Rule),
			slog.Int64("entry_id", is.EntryID),
			slog.Int64("number", is.Number),
			slog.Int64("company_id", is.CompanyID),
			slog.String("debit", is.Debit.String()),
			slog.String("credit", is.Credit.String()),
		)
		counts[scope{is.Rule, is.CompanyID}]++
	}
	for k, n := range counts {
		metrics.AddIntegrityIssues(k.rule, k.company, n)
	}
	logger.Info("gl integrity check executed", slog.Int("entries", len(rows)), slog.Int("issues", len(issues)))
	return issues, nil
}

// PGPostedLedger reads posted entry totals from PostgreSQL.
type PGPostedLedger struct {
	Pool *pgxpool.Pool
}

// PostedEntryTotals implements PostedLedger.
func (l PGPostedLedger) PostedEntryTotals(ctx context.Context) ([]EntryTotals, error) {
	if l.Pool == nil {
		return nil, nil
	}
	rows, err := l.Pool.Query(ctx, `SELECT je.id, je.company_id, je.number, je.currency, COUNT(jl.line_no),
        COALESCE(SUM(jl.debit), 0), COALESCE(SUM(jl.credit), 0)
FROM journal_entries je
LEFT JOIN journal_lines jl ON jl.entry_id = je.id
WHERE je.status = 'POSTED'
GROUP BY je.id
ORDER BY je.id`)
	if err != nil {
		return nil, fmt.Errorf("gl integrity: query posted totals: %w", err)
	}
	defer rows.Close()
	var out []EntryTotals
	for rows.Next() {
		var t EntryTotals
		if err := rows.Scan(&t.EntryID, &t.CompanyID, &t.Number, &t.Currency, &t.Lines, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
