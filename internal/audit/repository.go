package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the audit reader.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// HistoryPage implements Repository with keyset pagination on (occurred_at, id).
func (r *PGRepository) HistoryPage(ctx context.Context, entity, entityID string, after Cursor, limit int) ([]shared.AuditLog, error) {
	args := []any{entity, entityID, limit}
	query := `SELECT id, COALESCE(actor_id, 0), action, entity, entity_id, before_state, after_state, meta, occurred_at
FROM audit_logs WHERE entity = $1 AND entity_id = $2`
	if !after.IsZero() {
		query += ` AND (occurred_at, id) > ($4, $5)`
		args = append(args, after.At, after.ID)
	}
	query += ` ORDER BY occurred_at ASC, id ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shared.AuditLog
	for rows.Next() {
		var (
			rec           shared.AuditLog
			before, after []byte
			meta          []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.Entity, &rec.EntityID, &before, &after, &meta, &rec.At); err != nil {
			return nil, err
		}
		rec.Before = json.RawMessage(before)
		rec.After = json.RawMessage(after)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
