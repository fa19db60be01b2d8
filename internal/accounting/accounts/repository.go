package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

const accountColumns = `id, external_id, company_id, subsidiary_id, code, name, type, subtype, parent_id, postable, active, created_at, updated_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository stores accounts in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the account repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a read-committed transaction; LockChart provides serialization.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get implements Repository.
func (r *PGRepository) Get(ctx context.Context, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
	a, err := scanAccount(row)
	if db.IsNoRows(err) {
		return Account{}, fmt.Errorf("account %d: %w", id, shared.ErrNotFound)
	}
	return a, err
}

// List implements Repository.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	return listAccounts(ctx, r.pool, filter)
}

// PostedTotals implements Repository.
func (r *PGRepository) PostedTotals(ctx context.Context, ids []int64, asOf time.Time) (Balance, error) {
	var b Balance
	if len(ids) == 0 {
		return b, nil
	}
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = ANY($1) AND e.status = 'POSTED' AND e.entry_date <= $2`, ids, asOf).Scan(&b.Debit, &b.Credit)
	return b, err
}

func (r *txRepository) LockChart(ctx context.Context, companyID int64) error {
	return db.AdvisoryXactLock(ctx, r.tx, internalShared.ChartLockKey(companyID))
}

func (r *txRepository) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	return listAccounts(ctx, r.tx, filter)
}

func (r *txRepository) Insert(ctx context.Context, a Account) (Account, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (external_id, company_id, subsidiary_id, code, name, type, subtype, parent_id, postable, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		a.ExternalID, a.CompanyID, a.SubsidiaryID, a.Code, a.Name, a.Type, a.Subtype, a.ParentID, a.Postable, a.Active, a.CreatedAt, a.UpdatedAt).Scan(&a.ID)
	if db.IsUniqueViolation(err) {
		return Account{}, fmt.Errorf("code %s: %w", a.Code, shared.ErrDuplicateCode)
	}
	return a, err
}

func (r *txRepository) Update(ctx context.Context, a Account) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET name=$2, parent_id=$3, postable=$4, active=$5, updated_at=$6 WHERE id=$1`,
		a.ID, a.Name, a.ParentID, a.Postable, a.Active, a.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) HasPostings(ctx context.Context, id int64) (bool, error) {
	var used bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = $1 AND e.status = 'POSTED')`, id).Scan(&used)
	return used, err
}

func (r *txRepository) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	return audit.Insert(ctx, r.tx, log)
}

func listAccounts(ctx context.Context, q querier, filter ListFilter) ([]Account, error) {
	var (
		where = []string{"company_id = $1"}
		args  = []any{filter.CompanyID}
	)
	if filter.SubsidiaryID != nil {
		args = append(args, *filter.SubsidiaryID)
		where = append(where, fmt.Sprintf("(subsidiary_id IS NULL OR subsidiary_id = $%d)", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "active")
	}
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+strings.Join(where, " AND ")+` ORDER BY code, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.ExternalID, &a.CompanyID, &a.SubsidiaryID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.Postable, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
