package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Columns selects a fiscal_periods row in the order ScanPeriod expects.
const Columns = `id, external_id, company_id, subsidiary_id, fiscal_year, code, name, start_date, end_date, adjusting, status, closed_at, closed_by, created_at, updated_at`

// PGRepository stores periods in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the period repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction so FOR UPDATE waits instead of aborting.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("periods repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get implements Repository.
func (r *PGRepository) Get(ctx context.Context, id int64) (Period, error) {
	p, err := ScanPeriod(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM fiscal_periods WHERE id=$1`, id))
	if db.IsNoRows(err) {
		return Period{}, fmt.Errorf("period %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

// List implements Repository.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Period, error) {
	args := []any{filter.CompanyID, filter.SubsidiaryID}
	query := `SELECT ` + Columns + ` FROM fiscal_periods
WHERE company_id=$1 AND subsidiary_id IS NOT DISTINCT FROM $2`
	if filter.FiscalYear > 0 {
		args = append(args, filter.FiscalYear)
		query += ` AND fiscal_year=$3`
	}
	query += ` ORDER BY start_date, id`
	return collect(r.pool.Query(ctx, query, args...))
}

// FindCovering implements Repository.
func (r *PGRepository) FindCovering(ctx context.Context, companyID int64, subsidiaryID *int64, date time.Time) (Period, error) {
	p, err := ScanPeriod(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM fiscal_periods
WHERE company_id=$1 AND subsidiary_id IS NOT DISTINCT FROM $2 AND NOT adjusting AND $3 BETWEEN start_date AND end_date
ORDER BY start_date LIMIT 1`, companyID, subsidiaryID, date))
	if db.IsNoRows(err) {
		return Period{}, shared.ErrNotFound
	}
	return p, err
}

func (r *txRepository) LockCalendar(ctx context.Context, companyID int64, subsidiaryID *int64) error {
	return db.AdvisoryXactLock(ctx, r.tx, internalShared.CalendarLockKey(companyID, subsidiaryID))
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return GetForUpdate(ctx, r.tx, id)
}

func (r *txRepository) ListScope(ctx context.Context, companyID int64, subsidiaryID *int64) ([]Period, error) {
	return collect(r.tx.Query(ctx, `SELECT `+Columns+` FROM fiscal_periods
WHERE company_id=$1 AND subsidiary_id IS NOT DISTINCT FROM $2 ORDER BY start_date, id`, companyID, subsidiaryID))
}

func (r *txRepository) Insert(ctx context.Context, p Period) (Period, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO fiscal_periods (external_id, company_id, subsidiary_id, fiscal_year, code, name, start_date, end_date, adjusting, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		p.ExternalID, p.CompanyID, p.SubsidiaryID, p.FiscalYear, p.Code, p.Name, p.StartDate, p.EndDate, p.Adjusting, p.Status, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if db.IsUniqueViolation(err) {
		return Period{}, fmt.Errorf("period code %s: %w", p.Code, shared.ErrPeriodOverlap)
	}
	return p, err
}

func (r *txRepository) UpdateStatus(ctx context.Context, p Period) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, closed_at=$3, closed_by=$4, updated_at=$5 WHERE id=$1`,
		p.ID, p.Status, p.ClosedAt, p.ClosedBy, p.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	return audit.Insert(ctx, r.tx, log)
}

// GetForUpdate loads and row-locks a period inside tx. Posting uses it to serialize
// against Close.
func GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Period, error) {
	p, err := ScanPeriod(tx.QueryRow(ctx, `SELECT `+Columns+` FROM fiscal_periods WHERE id=$1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return Period{}, fmt.Errorf("period %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

// ScanPeriod scans a row selected with Columns.
func ScanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.ExternalID, &p.CompanyID, &p.SubsidiaryID, &p.FiscalYear, &p.Code, &p.Name, &p.StartDate, &p.EndDate, &p.Adjusting, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collect(rows pgx.Rows, err error) ([]Period, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := ScanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
