// Package ledgertest assembles the ledger services over memstore for scenario tests.
package ledgertest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/testing/memstore"
)

// Fixture ids.
const (
	ParentID     int64 = 1
	SubsidiaryID int64 = 10
	ActorID      int64 = 7
)

// Clock is a settable test clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current test time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Ledger bundles the services of one in-memory ledger.
type Ledger struct {
	Store    *memstore.Store
	Clock    *Clock
	Accounts *accounts.Service
	Periods  *periods.Service
	FX       *fx.Service
	Journals *journals.Service
	Consol   *consol.Service
	Audit    *audit.Service
}

// New returns a ledger with USD, EUR and JPY registered, a USD parent company and one EUR
// subsidiary.
func New(t testing.TB) *Ledger {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &Clock{now: time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)}
	store := memstore.New()
	store.AddCompany(memstore.Company{ID: ParentID, Code: "PARENT", Name: "Parent Co", Currency: "USD"})
	store.AddSubsidiary(memstore.Subsidiary{ID: SubsidiaryID, CompanyID: ParentID, Code: "EU", Name: "EU Sub", Currency: "EUR", Active: true})

	l := &Ledger{
		Store:    store,
		Clock:    clock,
		Accounts: accounts.NewService(store.Accounts(), logger),
		Periods:  periods.NewService(store.Periods(), logger),
		FX:       fx.NewService(store.FX(), nil, "USD", logger),
		Audit:    audit.NewService(store.Audit(), 2),
	}
	l.Accounts.WithNow(clock.Now)
	l.Periods.WithNow(clock.Now)
	l.FX.WithNow(clock.Now)
	l.Journals = journals.NewService(store.Journals(), l.Periods, l.FX, logger)
	l.Journals.WithNow(clock.Now)
	l.Consol = consol.NewService(store.Consol(), l.FX, nil, logger)
	l.Consol.WithClock(clock.Now)

	ctx := context.Background()
	for _, code := range []string{"USD", "EUR", "JPY"} {
		_, err := l.FX.AddCurrency(ctx, fx.CurrencyInput{Code: code, ActorID: ActorID})
		require.NoError(t, err)
	}
	return l
}

// Account creates a postable account, or a header account when postable is false.
func (l *Ledger) Account(t testing.TB, sub *int64, code string, typ accounts.AccountType, parent *int64, postable bool) accounts.Account {
	t.Helper()
	a, err := l.Accounts.CreateAccount(context.Background(), accounts.CreateInput{
		CompanyID:    ParentID,
		SubsidiaryID: sub,
		Code:         code,
		Name:         code,
		Type:         typ,
		ParentID:     parent,
		Postable:     postable,
		ActorID:      ActorID,
	})
	require.NoError(t, err)
	return a
}

// Month creates the regular period covering the calendar month of 2025.
func (l *Ledger) Month(t testing.TB, sub *int64, month time.Month) periods.Period {
	t.Helper()
	start := time.Date(2025, month, 1, 0, 0, 0, 0, time.UTC)
	p, err := l.Periods.CreatePeriod(context.Background(), periods.CreateInput{
		CompanyID:    ParentID,
		SubsidiaryID: sub,
		FiscalYear:   2025,
		Code:         start.Format("2006-01"),
		StartDate:    start,
		EndDate:      start.AddDate(0, 1, -1),
		ActorID:      ActorID,
	})
	require.NoError(t, err)
	return p
}

// Rate appends a rate row.
func (l *Ledger) Rate(t testing.TB, base, quote string, typ fx.RateType, date time.Time, rate string) {
	t.Helper()
	_, err := l.FX.AddRate(context.Background(), fx.RateInput{
		Base: base, Quote: quote, Type: typ, EffectiveDate: date, Rate: Dec(rate), ActorID: ActorID,
	})
	require.NoError(t, err)
}

// Post submits and posts a balanced entry.
func (l *Ledger) Post(t testing.TB, in journals.DraftInput) journals.JournalEntry {
	t.Helper()
	ctx := context.Background()
	draft, err := l.Journals.SubmitDraft(ctx, in)
	require.NoError(t, err)
	posted, err := l.Journals.Post(ctx, draft.ID, ActorID)
	require.NoError(t, err)
	return posted
}

// Draft is a parent-scope USD entry dated d with lines.
func Draft(d time.Time, lines ...journals.LineInput) journals.DraftInput {
	return journals.DraftInput{CompanyID: ParentID, EntryDate: d, Currency: "USD", ActorID: ActorID, Lines: lines}
}

// Debit is a debit line.
func Debit(accountID int64, amount string) journals.LineInput {
	return journals.LineInput{AccountID: accountID, Debit: Dec(amount)}
}

// Credit is a credit line.
func Credit(accountID int64, amount string) journals.LineInput {
	return journals.LineInput{AccountID: accountID, Credit: Dec(amount)}
}

// Dec parses a decimal literal.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Day returns midnight UTC of the 2025 date.
func Day(month time.Month, day int) time.Time {
	return time.Date(2025, month, day, 0, 0, 0, 0, time.UTC)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
