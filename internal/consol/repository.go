package consol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// PGRepository provides persistence helpers for consolidation workloads.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a consolidation repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type runPayload struct {
	Members []Member `json:"members"`
	Records []Record `json:"records"`
	Totals  Totals   `json:"totals"`
}

// Parents implements Repository.
func (r *PGRepository) Parents(ctx context.Context) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, currency FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.CompanyID, &m.Code, &m.Name, &m.Currency); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Members implements Repository.
func (r *PGRepository) Members(ctx context.Context, parentCompanyID int64) ([]Member, error) {
	parent := Member{CompanyID: parentCompanyID}
	err := r.pool.QueryRow(ctx, `SELECT code, name, currency FROM companies WHERE id=$1`, parentCompanyID).
		Scan(&parent.Code, &parent.Name, &parent.Currency)
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("company %d: %w", parentCompanyID, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	members := []Member{parent}
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, currency FROM subsidiaries WHERE company_id=$1 AND active ORDER BY id`, parentCompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m  = Member{CompanyID: parentCompanyID}
			id int64
		)
		if err := rows.Scan(&id, &m.Code, &m.Name, &m.Currency); err != nil {
			return nil, err
		}
		m.SubsidiaryID = &id
		members = append(members, m)
	}
	return members, rows.Err()
}

// Balances implements Repository.
func (r *PGRepository) Balances(ctx context.Context, m Member, asOf time.Time) ([]BalanceRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.code, a.name, a.type, e.currency, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.status = 'POSTED' AND e.company_id = $1 AND e.subsidiary_id IS NOT DISTINCT FROM $2 AND e.entry_date <= $3
GROUP BY a.code, a.name, a.type, e.currency
ORDER BY a.code, e.currency`, m.CompanyID, m.SubsidiaryID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceRow
	for rows.Next() {
		var b BalanceRow
		if err := rows.Scan(&b.AccountCode, &b.AccountName, &b.AccountType, &b.Currency, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Watermark implements Repository. Posted entries are terminal, so the count only grows.
func (r *PGRepository) Watermark(ctx context.Context, parentCompanyID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE company_id=$1 AND status='POSTED'`, parentCompanyID).Scan(&n)
	return n, err
}

// SaveRun implements Repository.
func (r *PGRepository) SaveRun(ctx context.Context, run Run) (Run, error) {
	payload, err := json.Marshal(runPayload{Members: run.Members, Records: run.Records, Totals: run.Totals})
	if err != nil {
		return Run{}, err
	}
	err = db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE consolidation_runs SET superseded_at=$4
WHERE parent_company_id=$1 AND as_of=$2 AND reporting_currency=$3 AND superseded_at IS NULL`,
			run.ParentCompanyID, run.AsOf, run.ReportingCurrency, run.CreatedAt); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `INSERT INTO consolidation_runs (external_id, parent_company_id, as_of, reporting_currency, ledger_watermark, rate_version, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			run.ExternalID, run.ParentCompanyID, run.AsOf, run.ReportingCurrency, run.LedgerWatermark, run.RateVersion, payload, run.CreatedAt).Scan(&run.ID)
	})
	return run, err
}

// LatestRun implements Repository.
func (r *PGRepository) LatestRun(ctx context.Context, req Request) (Run, error) {
	var (
		run = Run{ParentCompanyID: req.ParentCompanyID, AsOf: req.AsOf, ReportingCurrency: req.ReportingCurrency}
		raw []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT id, external_id, ledger_watermark, rate_version, payload, created_at
FROM consolidation_runs
WHERE parent_company_id=$1 AND as_of=$2 AND reporting_currency=$3 AND superseded_at IS NULL
ORDER BY id DESC LIMIT 1`, req.ParentCompanyID, req.AsOf, req.ReportingCurrency).
		Scan(&run.ID, &run.ExternalID, &run.LedgerWatermark, &run.RateVersion, &raw, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("consolidation run: %w", shared.ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	var payload runPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Run{}, fmt.Errorf("decode consolidation run %d: %w", run.ID, err)
	}
	run.Members = payload.Members
	run.Records = payload.Records
	run.Totals = payload.Totals
	return run, nil
}
