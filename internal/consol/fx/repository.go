package fx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// PGRepository stores rates and currencies in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the rate repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx implements Repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("fx repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListRates implements Loader.
func (r *PGRepository) ListRates(ctx context.Context) ([]Rate, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, base_currency, quote_currency, rate_type, effective_date, rate, created_at
FROM exchange_rates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rate
	for rows.Next() {
		var rate Rate
		if err := rows.Scan(&rate.ID, &rate.Base, &rate.Quote, &rate.Type, &rate.EffectiveDate, &rate.Rate, &rate.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}

// ListCurrencies implements Loader.
func (r *PGRepository) ListCurrencies(ctx context.Context) ([]Currency, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name, precision, active, created_at FROM currencies ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Currency
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.Code, &c.Name, &c.Precision, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertRate(ctx context.Context, rate Rate) (Rate, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO exchange_rates (base_currency, quote_currency, rate_type, effective_date, rate, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, rate.Base, rate.Quote, rate.Type, rate.EffectiveDate, rate.Rate, rate.CreatedAt).Scan(&rate.ID)
	if db.IsForeignKeyViolation(err) {
		return Rate{}, fmt.Errorf("%s/%s not registered: %w", rate.Base, rate.Quote, shared.ErrNotFound)
	}
	return rate, err
}

func (r *txRepository) InsertCurrency(ctx context.Context, c Currency) (Currency, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO currencies (code, name, precision, active, created_at) VALUES ($1,$2,$3,$4,$5)`,
		c.Code, c.Name, c.Precision, c.Active, c.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Currency{}, fmt.Errorf("currency %s already registered: %w", c.Code, shared.ErrInvalidInput)
	}
	return c, err
}

func (r *txRepository) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	return audit.Insert(ctx, r.tx, log)
}
