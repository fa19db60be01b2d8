// Package memstore is an in-memory implementation of every ledger repository. Transactions
// run one at a time against a private copy of the state that replaces the shared state on
// commit, which gives the same isolation the row locks give in PostgreSQL.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// ErrAuditUnavailable is returned by RecordAudit while audit failures are injected.
var ErrAuditUnavailable = errors.New("memstore: audit sink unavailable")

// Company is a parent ledger.
type Company struct {
	ID       int64
	Code     string
	Name     string
	Currency string
}

// Subsidiary is a ledger owned by a company.
type Subsidiary struct {
	ID        int64
	CompanyID int64
	Code      string
	Name      string
	Currency  string
	Active    bool
}

type state struct {
	nextID       int64
	nextNumber   int64
	companies    map[int64]Company
	subsidiaries map[int64]Subsidiary
	accounts     map[int64]accounts.Account
	periods      map[int64]periods.Period
	entries      map[int64]journals.JournalEntry
	sources      map[string]int64
	rates        []fx.Rate
	currencies   map[string]fx.Currency
	runs         []consol.Run
	audit        []internalShared.AuditLog
}

func (s *state) clone() *state {
	return &state{
		nextID:       s.nextID,
		nextNumber:   s.nextNumber,
		companies:    maps.Clone(s.companies),
		subsidiaries: maps.Clone(s.subsidiaries),
		accounts:     maps.Clone(s.accounts),
		periods:      maps.Clone(s.periods),
		entries:      maps.Clone(s.entries),
		sources:      maps.Clone(s.sources),
		rates:        slices.Clone(s.rates),
		currencies:   maps.Clone(s.currencies),
		runs:         slices.Clone(s.runs),
		audit:        slices.Clone(s.audit),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store holds the shared state.
type Store struct {
	txMu      sync.Mutex
	mu        sync.RWMutex
	st        *state
	now       func() time.Time
	failAudit atomic.Bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st: &state{
			companies:    map[int64]Company{},
			subsidiaries: map[int64]Subsidiary{},
			accounts:     map[int64]accounts.Account{},
			periods:      map[int64]periods.Period{},
			entries:      map[int64]journals.JournalEntry{},
			sources:      map[string]int64{},
			currencies:   map[string]fx.Currency{},
		},
		now: time.Now,
	}
}

// FailAudit makes every subsequent audit write fail until called with false.
func (s *Store) FailAudit(fail bool) {
	s.failAudit.Store(fail)
}

// AddCompany registers a parent company.
func (s *Store) AddCompany(c Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.companies[c.ID] = c
}

// AddSubsidiary registers a subsidiary of a company.
func (s *Store) AddSubsidiary(sub Subsidiary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.subsidiaries[sub.ID] = sub
}

// AuditLogs returns every committed audit record in insertion order.
func (s *Store) AuditLogs() []internalShared.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.audit)
}

// withTx runs fn on a private copy and publishes it only when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.RLock()
	working := s.st.clone()
	s.mu.RUnlock()
	if err := fn(working); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = working
	s.mu.Unlock()
	return nil
}

func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

func (s *Store) recordAudit(st *state, log internalShared.AuditLog) error {
	if s.failAudit.Load() {
		return ErrAuditUnavailable
	}
	if err := log.Validate(); err != nil {
		return err
	}
	st.audit = append(st.audit, audit.Stamp(log, s.now))
	return nil
}

func sameSubsidiary(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, shared.ErrNotFound)
}
