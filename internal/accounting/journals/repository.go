package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// Get returns the entry with lines ordered by line number.
	Get(ctx context.Context, id int64) (JournalEntry, error)
	// List returns headers only.
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// InsertEntry stores header and lines, assigning ID and Number.
	InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error)
	// LinkSource fails with ErrDuplicateSource when module/ref already produced an entry.
	LinkSource(ctx context.Context, module, ref string, entryID int64) error
	UnlinkSource(ctx context.Context, module, ref string) error
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	GetPeriodForUpdate(ctx context.Context, id int64) (periods.Period, error)
	AccountsByID(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	// LedgerCurrencies fails with ErrScopeMismatch when the subsidiary is not owned by the company.
	LedgerCurrencies(ctx context.Context, companyID int64, subsidiaryID *int64) (LedgerCurrencies, error)
	// SaveDraft rewrites header fields and replaces all lines.
	SaveDraft(ctx context.Context, e JournalEntry) error
	SetStatus(ctx context.Context, e JournalEntry) error
	RecordAudit(ctx context.Context, log internalShared.AuditLog) error
}

const entryColumns = `id, external_id, number, company_id, subsidiary_id, period_id, entry_date, currency, memo, source_module, source_ref, reversal_of, status, created_by, posted_by, posted_at, created_at, updated_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository stores journals in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the journal repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction; row locks order concurrent writers.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("journals repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get implements Repository.
func (r *PGRepository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return loadEntry(ctx, r.pool, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
}

// List implements Repository.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	var (
		where = []string{"company_id = $1"}
		args  = []any{filter.CompanyID}
	)
	if filter.SubsidiaryID != nil {
		args = append(args, *filter.SubsidiaryID)
		where = append(where, fmt.Sprintf("subsidiary_id = $%d", len(args)))
	}
	if filter.PeriodID > 0 {
		args = append(args, filter.PeriodID)
		where = append(where, fmt.Sprintf("period_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT `+entryColumns+` FROM journal_entries WHERE %s ORDER BY number DESC LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (external_id, company_id, subsidiary_id, period_id, entry_date, currency, memo, source_module, source_ref, reversal_of, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id, number`,
		e.ExternalID, e.CompanyID, e.SubsidiaryID, e.PeriodID, e.EntryDate, e.Currency, e.Memo, e.SourceModule, e.SourceRef, e.ReversalOf, e.Status, nullInt(e.CreatedBy), e.CreatedAt, e.UpdatedAt).
		Scan(&e.ID, &e.Number)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := r.insertLines(ctx, e.ID, e.Lines); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *txRepository) insertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, line_no, account_id, debit, credit, department_id, location_id, class_id, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, entryID, l.LineNo, l.AccountID, l.Debit, l.Credit, l.DepartmentID, l.LocationID, l.ClassID, l.Memo)
	}
	br := r.tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if db.IsForeignKeyViolation(err) {
				return fmt.Errorf("journal line account: %w", shared.ErrAccountNotPostable)
			}
			return err
		}
	}
	return br.Close()
}

func (r *txRepository) LinkSource(ctx context.Context, module, ref string, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref, entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%s/%s: %w", module, ref, shared.ErrDuplicateSource)
	}
	return err
}

func (r *txRepository) UnlinkSource(ctx context.Context, module, ref string) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM source_links WHERE module=$1 AND ref=$2`, module, ref)
	return err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return loadEntry(ctx, r.tx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, id int64) (periods.Period, error) {
	return periods.GetForUpdate(ctx, r.tx, id)
}

func (r *txRepository) AccountsByID(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, subsidiary_id, code, type, postable, active FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]accounts.Account, len(ids))
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.SubsidiaryID, &a.Code, &a.Type, &a.Postable, &a.Active); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) LedgerCurrencies(ctx context.Context, companyID int64, subsidiaryID *int64) (LedgerCurrencies, error) {
	var (
		out   LedgerCurrencies
		owned bool
	)
	err := r.tx.QueryRow(ctx, `SELECT c.currency, COALESCE(s.currency, c.currency), s.id IS NOT NULL
FROM companies c LEFT JOIN subsidiaries s ON s.id = $2 AND s.company_id = c.id
WHERE c.id = $1`, companyID, subsidiaryID).Scan(&out.Company, &out.Scope, &owned)
	if db.IsNoRows(err) {
		return LedgerCurrencies{}, fmt.Errorf("company %d: %w", companyID, shared.ErrNotFound)
	}
	if err != nil {
		return LedgerCurrencies{}, err
	}
	if subsidiaryID != nil && !owned {
		return LedgerCurrencies{}, fmt.Errorf("subsidiary %d of company %d: %w", *subsidiaryID, companyID, shared.ErrScopeMismatch)
	}
	out.Company = strings.TrimSpace(out.Company)
	out.Scope = strings.TrimSpace(out.Scope)
	return out, nil
}

func (r *txRepository) SaveDraft(ctx context.Context, e JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET period_id=$2, entry_date=$3, memo=$4, updated_at=$5 WHERE id=$1 AND status='DRAFT'`,
		e.ID, e.PeriodID, e.EntryDate, e.Memo, e.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("draft %d: %w", e.ID, shared.ErrNotFound)
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, e.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, e.ID, e.Lines)
}

func (r *txRepository) SetStatus(ctx context.Context, e JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_by=$3, posted_at=$4, updated_at=$5 WHERE id=$1`,
		e.ID, e.Status, e.PostedBy, e.PostedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("entry %d: %w", e.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	return audit.Insert(ctx, r.tx, log)
}

func loadEntry(ctx context.Context, q querier, query string, id int64) (JournalEntry, error) {
	e, err := scanEntry(q.QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return JournalEntry{}, fmt.Errorf("journal entry %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT line_no, account_id, debit, credit, department_id, location_id, class_id, memo
FROM journal_lines WHERE entry_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.LineNo, &l.AccountID, &l.Debit, &l.Credit, &l.DepartmentID, &l.LocationID, &l.ClassID, &l.Memo); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e         JournalEntry
		createdBy *int64
	)
	err := row.Scan(&e.ID, &e.ExternalID, &e.Number, &e.CompanyID, &e.SubsidiaryID, &e.PeriodID, &e.EntryDate, &e.Currency, &e.Memo,
		&e.SourceModule, &e.SourceRef, &e.ReversalOf, &e.Status, &createdBy, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if createdBy != nil {
		e.CreatedBy = *createdBy
	}
	return e, err
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
