package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// FX returns the fx.Repository view of the store.
func (s *Store) FX() *RateRepo { return &RateRepo{s: s} }

// Audit returns the audit.Repository view of the store.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{s: s} }

// Consol returns the consol.Repository view of the store.
func (s *Store) Consol() *GroupRepo { return &GroupRepo{s: s} }

// RateRepo implements fx.Repository.
type RateRepo struct{ s *Store }

type rateTx struct {
	s  *Store
	st *state
}

func (r *RateRepo) WithTx(ctx context.Context, fn func(context.Context, fx.TxRepository) error) error {
	return r.s.withTx(ctx, func(st *state) error {
		return fn(ctx, &rateTx{s: r.s, st: st})
	})
}

func (r *RateRepo) ListRates(ctx context.Context) ([]fx.Rate, error) {
	return slices.Clone(r.s.read().rates), nil
}

func (r *RateRepo) ListCurrencies(ctx context.Context) ([]fx.Currency, error) {
	st := r.s.read()
	out := make([]fx.Currency, 0, len(st.currencies))
	for _, c := range st.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *rateTx) InsertRate(ctx context.Context, rate fx.Rate) (fx.Rate, error) {
	_, okBase := t.st.currencies[rate.Base]
	_, okQuote := t.st.currencies[rate.Quote]
	if !okBase || !okQuote {
		return fx.Rate{}, fmt.Errorf("%s/%s not registered: %w", rate.Base, rate.Quote, shared.ErrNotFound)
	}
	rate.ID = t.st.id()
	t.st.rates = append(t.st.rates, rate)
	return rate, nil
}

func (t *rateTx) InsertCurrency(ctx context.Context, c fx.Currency) (fx.Currency, error) {
	if _, ok := t.st.currencies[c.Code]; ok {
		return fx.Currency{}, fmt.Errorf("currency %s already registered: %w", c.Code, shared.ErrInvalidInput)
	}
	t.st.currencies[c.Code] = c
	return c, nil
}

func (t *rateTx) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	return t.s.recordAudit(t.st, log)
}

// AuditRepo implements audit.Repository.
type AuditRepo struct{ s *Store }

func (r *AuditRepo) HistoryPage(ctx context.Context, entity, entityID string, after audit.Cursor, limit int) ([]internalShared.AuditLog, error) {
	var out []internalShared.AuditLog
	for _, rec := range r.s.read().audit {
		if rec.Entity != entity || rec.EntityID != entityID {
			continue
		}
		if !after.IsZero() && !laterThan(rec, after) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func laterThan(rec internalShared.AuditLog, c audit.Cursor) bool {
	if !rec.At.Equal(c.At) {
		return rec.At.After(c.At)
	}
	return strings.Compare(rec.ID, c.ID) > 0
}

// GroupRepo implements consol.Repository.
type GroupRepo struct{ s *Store }

func (r *GroupRepo) Parents(ctx context.Context) ([]consol.Member, error) {
	st := r.s.read()
	out := make([]consol.Member, 0, len(st.companies))
	for _, c := range st.companies {
		out = append(out, consol.Member{CompanyID: c.ID, Code: c.Code, Name: c.Name, Currency: c.Currency})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

func (r *GroupRepo) Members(ctx context.Context, parentCompanyID int64) ([]consol.Member, error) {
	st := r.s.read()
	c, ok := st.companies[parentCompanyID]
	if !ok {
		return nil, notFound("company", parentCompanyID)
	}
	out := []consol.Member{{CompanyID: c.ID, Code: c.Code, Name: c.Name, Currency: c.Currency}}
	var subs []Subsidiary
	for _, sub := range st.subsidiaries {
		if sub.CompanyID == parentCompanyID && sub.Active {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	for _, sub := range subs {
		id := sub.ID
		out = append(out, consol.Member{CompanyID: sub.CompanyID, SubsidiaryID: &id, Code: sub.Code, Name: sub.Name, Currency: sub.Currency})
	}
	return out, nil
}

func (r *GroupRepo) Balances(ctx context.Context, m consol.Member, asOf time.Time) ([]consol.BalanceRow, error) {
	st := r.s.read()
	type key struct{ code, currency string }
	rows := make(map[key]*consol.BalanceRow)
	for _, e := range st.entries {
		if e.Status != journals.JournalStatusPosted || e.CompanyID != m.CompanyID || !sameSubsidiary(e.SubsidiaryID, m.SubsidiaryID) {
			continue
		}
		if e.EntryDate.After(asOf) {
			continue
		}
		for _, l := range e.Lines {
			a := st.accounts[l.AccountID]
			k := key{a.Code, e.Currency}
			row, ok := rows[k]
			if !ok {
				row = &consol.BalanceRow{AccountCode: a.Code, AccountName: a.Name, AccountType: string(a.Type), Currency: e.Currency}
				rows[k] = row
			}
			row.Debit = row.Debit.Add(l.Debit)
			row.Credit = row.Credit.Add(l.Credit)
		}
	}
	out := make([]consol.BalanceRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountCode != out[j].AccountCode {
			return out[i].AccountCode < out[j].AccountCode
		}
		return out[i].Currency < out[j].Currency
	})
	return out, nil
}

func (r *GroupRepo) Watermark(ctx context.Context, parentCompanyID int64) (int64, error) {
	var n int64
	for _, e := range r.s.read().entries {
		if e.CompanyID == parentCompanyID && e.Status == journals.JournalStatusPosted {
			n++
		}
	}
	return n, nil
}

func (r *GroupRepo) SaveRun(ctx context.Context, run consol.Run) (consol.Run, error) {
	err := r.s.withTx(ctx, func(st *state) error {
		now := r.s.now()
		for i, prev := range st.runs {
			if prev.SupersededAt == nil && sameRequest(prev, run) {
				st.runs[i].SupersededAt = &now
			}
		}
		run.ID = st.id()
		st.runs = append(st.runs, run)
		return nil
	})
	if err != nil {
		return consol.Run{}, err
	}
	return run, nil
}

func (r *GroupRepo) LatestRun(ctx context.Context, req consol.Request) (consol.Run, error) {
	probe := consol.Run{ParentCompanyID: req.ParentCompanyID, AsOf: req.AsOf, ReportingCurrency: req.ReportingCurrency}
	for _, run := range slices.Backward(r.s.read().runs) {
		if run.SupersededAt == nil && sameRequest(run, probe) {
			return run, nil
		}
	}
	return consol.Run{}, fmt.Errorf("consolidation run: %w", shared.ErrNotFound)
}

// Runs returns every stored run, superseded ones included.
func (s *Store) Runs() []consol.Run {
	return slices.Clone(s.read().runs)
}

func sameRequest(a, b consol.Run) bool {
	return a.ParentCompanyID == b.ParentCompanyID && a.AsOf.Equal(b.AsOf) && a.ReportingCurrency == b.ReportingCurrency
}
