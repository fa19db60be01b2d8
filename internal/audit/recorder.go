package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx, so records can be written inside the
// transaction of the mutation they describe.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder writes records into audit_logs outside any caller transaction.
type Recorder struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool, now: time.Now}
}

// Record persists the log entry.
func (r *Recorder) Record(ctx context.Context, log shared.AuditLog) error {
	if r == nil || r.pool == nil {
		return errors.New("audit recorder not initialised")
	}
	if log.At.IsZero() {
		log.At = r.now()
	}
	return Insert(ctx, r.pool, log)
}

// Insert appends log through db. Append-only: rows are never updated or deleted.
func Insert(ctx context.Context, db Execer, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	log = Stamp(log, time.Now)
	_, err := db.Exec(ctx, `INSERT INTO audit_logs (id, actor_id, action, entity, entity_id, before_state, after_state, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		log.ID, nullActor(log.ActorID), log.Action, log.Entity, log.EntityID, nullJSON(log.Before), nullJSON(log.After), log.Meta, log.At.UTC())
	return err
}

// Stamp fills the id and timestamp of log when missing.
func Stamp(log shared.AuditLog, now func() time.Time) shared.AuditLog {
	if log.At.IsZero() {
		log.At = now()
	}
	if log.ID == "" {
		log.ID = shared.NewID(log.At)
	}
	return log
}

func nullActor(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
