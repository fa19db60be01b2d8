package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Accounts returns the accounts.Repository view of the store.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Periods returns the periods.Repository view of the store.
func (s *Store) Periods() *PeriodRepo { return &PeriodRepo{s: s} }

// Journals returns the journals.Repository view of the store.
func (s *Store) Journals() *JournalRepo { return &JournalRepo{s: s} }

// AccountRepo implements accounts.Repository.
type AccountRepo struct{ s *Store }

type accountTx struct {
	s  *Store
	st *state
}

func (r *AccountRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.s.withTx(ctx, func(st *state) error {
		return fn(ctx, &accountTx{s: r.s, st: st})
	})
}

func (r *AccountRepo) Get(ctx context.Context, id int64) (accounts.Account, error) {
	a, ok := r.s.read().accounts[id]
	if !ok {
		return accounts.Account{}, notFound("account", id)
	}
	return a, nil
}

func (r *AccountRepo) List(ctx context.Context, filter accounts.ListFilter) ([]accounts.Account, error) {
	return listAccounts(r.s.read(), filter), nil
}

func (r *AccountRepo) PostedTotals(ctx context.Context, ids []int64, asOf time.Time) (accounts.Balance, error) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var b accounts.Balance
	for _, e := range r.s.read().entries {
		if e.Status != journals.JournalStatusPosted || e.EntryDate.After(asOf) {
			continue
		}
		for _, l := range e.Lines {
			if _, ok := want[l.AccountID]; ok {
				b = b.Add(accounts.Balance{Debit: l.Debit, Credit: l.Credit})
			}
		}
	}
	return b, nil
}

func (t *accountTx) LockChart(ctx context.Context, companyID int64) error { return nil }

func (t *accountTx) List(ctx context.Context, filter accounts.ListFilter) ([]accounts.Account, error) {
	return listAccounts(t.st, filter), nil
}

func (t *accountTx) Insert(ctx context.Context, a accounts.Account) (accounts.Account, error) {
	for _, existing := range t.st.accounts {
		if existing.CompanyID == a.CompanyID && sameSubsidiary(existing.SubsidiaryID, a.SubsidiaryID) && existing.Code == a.Code {
			return accounts.Account{}, fmt.Errorf("code %s: %w", a.Code, shared.ErrDuplicateCode)
		}
	}
	a.ID = t.st.id()
	t.st.accounts[a.ID] = a
	return a, nil
}

func (t *accountTx) Update(ctx context.Context, a accounts.Account) error {
	if _, ok := t.st.accounts[a.ID]; !ok {
		return notFound("account", a.ID)
	}
	t.st.accounts[a.ID] = a
	return nil
}

func (t *accountTx) HasPostings(ctx context.Context, id int64) (bool, error) {
	for _, e := range t.st.entries {
		if e.Status != journals.JournalStatusPosted {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *accountTx) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	return t.s.recordAudit(t.st, log)
}

func listAccounts(st *state, filter accounts.ListFilter) []accounts.Account {
	var out []accounts.Account
	for _, a := range st.accounts {
		if a.CompanyID != filter.CompanyID {
			continue
		}
		if filter.SubsidiaryID != nil && a.SubsidiaryID != nil && *a.SubsidiaryID != *filter.SubsidiaryID {
			continue
		}
		if filter.ActiveOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PeriodRepo implements periods.Repository.
type PeriodRepo struct{ s *Store }

type periodTx struct {
	s  *Store
	st *state
}

func (r *PeriodRepo) WithTx(ctx context.Context, fn func(context.Context, periods.TxRepository) error) error {
	return r.s.withTx(ctx, func(st *state) error {
		return fn(ctx, &periodTx{s: r.s, st: st})
	})
}

func (r *PeriodRepo) Get(ctx context.Context, id int64) (periods.Period, error) {
	p, ok := r.s.read().periods[id]
	if !ok {
		return periods.Period{}, notFound("period", id)
	}
	return p, nil
}

func (r *PeriodRepo) List(ctx context.Context, filter periods.ListFilter) ([]periods.Period, error) {
	var out []periods.Period
	for _, p := range scopePeriods(r.s.read(), filter.CompanyID, filter.SubsidiaryID) {
		if filter.FiscalYear > 0 && p.FiscalYear != filter.FiscalYear {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PeriodRepo) FindCovering(ctx context.Context, companyID int64, subsidiaryID *int64, date time.Time) (periods.Period, error) {
	for _, p := range scopePeriods(r.s.read(), companyID, subsidiaryID) {
		if !p.Adjusting && p.Contains(date) {
			return p, nil
		}
	}
	return periods.Period{}, shared.ErrNotFound
}

func (t *periodTx) LockCalendar(ctx context.Context, companyID int64, subsidiaryID *int64) error {
	return nil
}

func (t *periodTx) GetForUpdate(ctx context.Context, id int64) (periods.Period, error) {
	p, ok := t.st.periods[id]
	if !ok {
		return periods.Period{}, notFound("period", id)
	}
	return p, nil
}

func (t *periodTx) ListScope(ctx context.Context, companyID int64, subsidiaryID *int64) ([]periods.Period, error) {
	return scopePeriods(t.st, companyID, subsidiaryID), nil
}

func (t *periodTx) Insert(ctx context.Context, p periods.Period) (periods.Period, error) {
	p.ID = t.st.id()
	t.st.periods[p.ID] = p
	return p, nil
}

func (t *periodTx) UpdateStatus(ctx context.Context, p periods.Period) error {
	current, ok := t.st.periods[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	current.Status = p.Status
	current.ClosedAt = p.ClosedAt
	current.ClosedBy = p.ClosedBy
	current.UpdatedAt = p.UpdatedAt
	t.st.periods[p.ID] = current
	return nil
}

func (t *periodTx) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	return t.s.recordAudit(t.st, log)
}

func scopePeriods(st *state, companyID int64, subsidiaryID *int64) []periods.Period {
	var out []periods.Period
	for _, p := range st.periods {
		if p.CompanyID == companyID && sameSubsidiary(p.SubsidiaryID, subsidiaryID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// JournalRepo implements journals.Repository.
type JournalRepo struct{ s *Store }

type journalTx struct {
	s  *Store
	st *state
}

func (r *JournalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.s.withTx(ctx, func(st *state) error {
		return fn(ctx, &journalTx{s: r.s, st: st})
	})
}

func (r *JournalRepo) Get(ctx context.Context, id int64) (journals.JournalEntry, error) {
	e, ok := r.s.read().entries[id]
	if !ok {
		return journals.JournalEntry{}, notFound("journal entry", id)
	}
	return cloneEntry(e), nil
}

func (r *JournalRepo) List(ctx context.Context, filter journals.ListFilter) ([]journals.JournalEntry, error) {
	var out []journals.JournalEntry
	for _, e := range r.s.read().entries {
		if e.CompanyID != filter.CompanyID {
			continue
		}
		if filter.SubsidiaryID != nil && !sameSubsidiary(e.SubsidiaryID, filter.SubsidiaryID) {
			continue
		}
		if filter.PeriodID > 0 && e.PeriodID != filter.PeriodID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		e.Lines = nil
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *journalTx) InsertEntry(ctx context.Context, e journals.JournalEntry) (journals.JournalEntry, error) {
	for _, l := range e.Lines {
		if _, ok := t.st.accounts[l.AccountID]; !ok {
			return journals.JournalEntry{}, fmt.Errorf("journal line account: %w", shared.ErrAccountNotPostable)
		}
	}
	e.ID = t.st.id()
	t.st.nextNumber++
	e.Number = t.st.nextNumber
	e = cloneEntry(e)
	t.st.entries[e.ID] = e
	return cloneEntry(e), nil
}

func (t *journalTx) LinkSource(ctx context.Context, module, ref string, entryID int64) error {
	key := sourceKey(module, ref)
	if _, taken := t.st.sources[key]; taken {
		return fmt.Errorf("%s/%s: %w", module, ref, shared.ErrDuplicateSource)
	}
	t.st.sources[key] = entryID
	return nil
}

func (t *journalTx) UnlinkSource(ctx context.Context, module, ref string) error {
	delete(t.st.sources, sourceKey(module, ref))
	return nil
}

func (t *journalTx) GetEntryForUpdate(ctx context.Context, id int64) (journals.JournalEntry, error) {
	e, ok := t.st.entries[id]
	if !ok {
		return journals.JournalEntry{}, notFound("journal entry", id)
	}
	return cloneEntry(e), nil
}

func (t *journalTx) GetPeriodForUpdate(ctx context.Context, id int64) (periods.Period, error) {
	p, ok := t.st.periods[id]
	if !ok {
		return periods.Period{}, notFound("period", id)
	}
	return p, nil
}

func (t *journalTx) AccountsByID(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if a, ok := t.st.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (t *journalTx) LedgerCurrencies(ctx context.Context, companyID int64, subsidiaryID *int64) (journals.LedgerCurrencies, error) {
	c, ok := t.st.companies[companyID]
	if !ok {
		return journals.LedgerCurrencies{}, notFound("company", companyID)
	}
	out := journals.LedgerCurrencies{Company: c.Currency, Scope: c.Currency}
	if subsidiaryID == nil {
		return out, nil
	}
	sub, ok := t.st.subsidiaries[*subsidiaryID]
	if !ok || sub.CompanyID != companyID {
		return journals.LedgerCurrencies{}, fmt.Errorf("subsidiary %d of company %d: %w", *subsidiaryID, companyID, shared.ErrScopeMismatch)
	}
	out.Scope = sub.Currency
	return out, nil
}

func (t *journalTx) SaveDraft(ctx context.Context, e journals.JournalEntry) error {
	current, ok := t.st.entries[e.ID]
	if !ok || current.Status != journals.JournalStatusDraft {
		return fmt.Errorf("draft %d: %w", e.ID, shared.ErrNotFound)
	}
	current.PeriodID = e.PeriodID
	current.EntryDate = e.EntryDate
	current.Memo = e.Memo
	current.UpdatedAt = e.UpdatedAt
	current.Lines = slices.Clone(e.Lines)
	t.st.entries[e.ID] = current
	return nil
}

func (t *journalTx) SetStatus(ctx context.Context, e journals.JournalEntry) error {
	current, ok := t.st.entries[e.ID]
	if !ok {
		return notFound("journal entry", e.ID)
	}
	current.Status = e.Status
	current.PostedBy = e.PostedBy
	current.PostedAt = e.PostedAt
	current.UpdatedAt = e.UpdatedAt
	t.st.entries[e.ID] = current
	return nil
}

func (t *journalTx) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	return t.s.recordAudit(t.st, log)
}

func cloneEntry(e journals.JournalEntry) journals.JournalEntry {
	e.Lines = slices.Clone(e.Lines)
	return e
}

func sourceKey(module, ref string) string {
	return strings.Join([]string{module, ref}, "\x00")
}
