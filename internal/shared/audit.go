package shared

import (
	"encoding/json"
	"errors"
	"time"
)

// AuditLog represents a record stored in audit_logs. Before and After hold JSON snapshots of the
// entity around the mutation; either may be empty for creations and removals.
type AuditLog struct {
	ID       string
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Before   json.RawMessage
	After    json.RawMessage
	Meta     map[string]any
	At       time.Time
}

// ErrAuditIncomplete indicates a record without action, entity or entity id.
var ErrAuditIncomplete = errors.New("audit log requires action/entity/entity_id")

// NewAuditLog snapshots before and after into JSON.
func NewAuditLog(actorID int64, entity, entityID, action string, before, after any) (AuditLog, error) {
	log := AuditLog{ActorID: actorID, Entity: entity, EntityID: entityID, Action: action}
	var err error
	if log.Before, err = snapshot(before); err != nil {
		return AuditLog{}, err
	}
	if log.After, err = snapshot(after); err != nil {
		return AuditLog{}, err
	}
	return log, nil
}

// Validate checks the mandatory fields.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return ErrAuditIncomplete
	}
	return nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
