package audit

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// Repository reads one page of history strictly after the cursor.
type Repository interface {
	HistoryPage(ctx context.Context, entity, entityID string, after Cursor, limit int) ([]shared.AuditLog, error)
}

// Service exposes audit history reads.
type Service struct {
	repo     Repository
	pageSize int
}

// NewService builds the history service. pageSize <= 0 selects the default.
func NewService(repo Repository, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Service{repo: repo, pageSize: pageSize}
}

// History yields the records of one entity oldest first. Pages are fetched lazily as the
// sequence is consumed; ranging over the sequence again restarts from the first record.
// The sequence ends after the last stored record or the first error.
func (s *Service) History(ctx context.Context, entity, entityID string) iter.Seq2[shared.AuditLog, error] {
	entity = strings.TrimSpace(entity)
	entityID = strings.TrimSpace(entityID)
	return func(yield func(shared.AuditLog, error) bool) {
		if s == nil || s.repo == nil {
			yield(shared.AuditLog{}, fmt.Errorf("audit: repository not configured"))
			return
		}
		if entity == "" || entityID == "" {
			yield(shared.AuditLog{}, shared.ErrAuditIncomplete)
			return
		}
		var cursor Cursor
		for {
			if err := ctx.Err(); err != nil {
				yield(shared.AuditLog{}, err)
				return
			}
			page, err := s.repo.HistoryPage(ctx, entity, entityID, cursor, s.pageSize)
			if err != nil {
				yield(shared.AuditLog{}, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = Cursor{At: last.At, ID: last.ID}
		}
	}
}

// Collect drains History into a slice.
func (s *Service) Collect(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error) {
	var out []shared.AuditLog
	for rec, err := range s.History(ctx, entity, entityID) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
