package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrIdempotencyConflict means the key was already used. Reserve returns the id the
	// first request produced alongside it when there is one.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrIdempotencyInFlight means the first request holding the key has not finished.
	ErrIdempotencyInFlight = errors.New("idempotent request still in progress")
)

// IdempotencyStore remembers which record an Idempotency-Key produced.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Reserve claims key for module. It returns 0 and nil when the key is new.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, module string) (int64, error) {
	if key == "" || module == "" {
		return 0, errors.New("idempotency key and module required")
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, key, module)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 1 {
		return 0, nil
	}

	var (
		owner    string
		resultID *int64
	)
	err = s.pool.QueryRow(ctx, `SELECT module, result_id FROM idempotency_keys WHERE key = $1`, key).Scan(&owner, &resultID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// released between the insert and the read
		return s.Reserve(ctx, key, module)
	case err != nil:
		return 0, err
	case owner != module:
		return 0, ErrIdempotencyConflict
	case resultID == nil:
		return 0, ErrIdempotencyInFlight
	}
	return *resultID, ErrIdempotencyConflict
}

// Complete records the id produced under key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resultID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET result_id = $2 WHERE key = $1`, key, resultID)
	return err
}

// Release frees key after the request failed so the caller may retry with it.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND result_id IS NULL`, key)
	return err
}
