package fx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

type stubRepo struct {
	mu         sync.Mutex
	rates      []Rate
	currencies []Currency
	audits     []internalShared.AuditLog
	failAudit  bool
}

func (s *stubRepo) ListRates(ctx context.Context) ([]Rate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Rate(nil), s.rates...), nil
}

func (s *stubRepo) ListCurrencies(ctx context.Context) ([]Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Currency(nil), s.currencies...), nil
}

func (s *stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &stubTx{repo: s, rates: s.rates, currencies: s.currencies, audits: s.audits}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.rates, s.currencies, s.audits = tx.rates, tx.currencies, tx.audits
	return nil
}

type stubTx struct {
	repo       *stubRepo
	rates      []Rate
	currencies []Currency
	audits     []internalShared.AuditLog
}

func (t *stubTx) InsertRate(ctx context.Context, r Rate) (Rate, error) {
	r.ID = int64(len(t.rates) + 1)
	t.rates = append(append([]Rate(nil), t.rates...), r)
	return r, nil
}

func (t *stubTx) InsertCurrency(ctx context.Context, c Currency) (Currency, error) {
	t.currencies = append(append([]Currency(nil), t.currencies...), c)
	return c, nil
}

func (t *stubTx) RecordAudit(ctx context.Context, log internalShared.AuditLog) error {
	if t.repo.failAudit {
		return errors.New("audit store unavailable")
	}
	t.audits = append(append([]internalShared.AuditLog(nil), t.audits...), log)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T, anchor string) (*Service, *stubRepo, *time.Time) {
	t.Helper()
	repo := &stubRepo{}
	svc := NewService(repo, NewStore(), anchor, nil)
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return svc, repo, &clock
}

func addRate(t *testing.T, svc *Service, base, quote string, typ RateType, eff time.Time, rate string) Rate {
	t.Helper()
	r, err := svc.AddRate(context.Background(), RateInput{Base: base, Quote: quote, Type: typ, EffectiveDate: eff, Rate: decimal.RequireFromString(rate)})
	require.NoError(t, err)
	return r
}

func TestRateSameCurrencyIsOne(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	rate, err := svc.Rate(context.Background(), "usd", "USD", RateTypeSpot, day(2025, 2, 1))
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestRatePicksLatestEffectiveOnOrBefore(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	addRate(t, svc, "EUR", "USD", RateTypeSpot, day(2025, 1, 1), "1.10")
	addRate(t, svc, "EUR", "USD", RateTypeSpot, day(2025, 2, 1), "1.20")

	ctx := context.Background()
	r, err := svc.Rate(ctx, "EUR", "USD", RateTypeSpot, day(2025, 1, 31))
	require.NoError(t, err)
	require.Equal(t, "1.1", r.String())

	r, err = svc.Rate(ctx, "EUR", "USD", RateTypeSpot, day(2025, 2, 1))
	require.NoError(t, err)
	require.Equal(t, "1.2", r.String())

	_, err = svc.Rate(ctx, "EUR", "USD", RateTypeSpot, day(2024, 12, 31))
	var notFound *RateNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.ErrorIs(t, err, shared.ErrRateNotFound)
	require.Equal(t, shared.KindLookup, shared.KindOf(err))
}

func TestRateEarlierRateAddedLaterDoesNotShadow(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	addRate(t, svc, "EUR", "USD", RateTypeSpot, day(2025, 3, 1), "1.30")
	addRate(t, svc, "EUR", "USD", RateTypeSpot, day(2025, 1, 15), "1.05")

	r, err := svc.Rate(context.Background(), "EUR", "USD", RateTypeSpot, day(2025, 3, 10))
	require.NoError(t, err)
	require.Equal(t, "1.3", r.String())

	r, err = svc.Rate(context.Background(), "EUR", "USD", RateTypeSpot, day(2025, 2, 10))
	require.NoError(t, err)
	require.Equal(t, "1.05", r.String())
}

func TestRateCorrectionWinsTieByCreation(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	addRate(t, svc, "GBP", "USD", RateTypeClosing, day(2025, 1, 31), "1.25")
	addRate(t, svc, "GBP", "USD", RateTypeClosing, day(2025, 1, 31), "1.26")

	r, err := svc.Rate(context.Background(), "GBP", "USD", RateTypeClosing, day(2025, 2, 5))
	require.NoError(t, err)
	require.Equal(t, "1.26", r.String())
}

func TestRateTypesAreIndependent(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	addRate(t, svc, "EUR", "USD", RateTypeAverage, day(2025, 1, 1), "1.10")
	_, err := svc.Rate(context.Background(), "EUR", "USD", RateTypeConsolidation, day(2025, 1, 2))
	require.ErrorIs(t, err, shared.ErrRateNotFound)
}

func TestRateTriangulatesThroughAnchor(t *testing.T) {
	svc, _, _ := newTestService(t, "USD")
	addRate(t, svc, "EUR", "USD", RateTypeConsolidation, day(2025, 1, 1), "1.10")
	addRate(t, svc, "USD", "IDR", RateTypeConsolidation, day(2025, 1, 1), "15000")

	r, err := svc.Rate(context.Background(), "EUR", "IDR", RateTypeConsolidation, day(2025, 1, 10))
	require.NoError(t, err)
	require.True(t, r.Equal(decimal.RequireFromString("16500")), "got %s", r)
}

func TestRateTriangulationNeedsBothLegsOnDate(t *testing.T) {
	svc, _, _ := newTestService(t, "USD")
	addRate(t, svc, "EUR", "USD", RateTypeConsolidation, day(2025, 1, 1), "1.10")
	addRate(t, svc, "USD", "IDR", RateTypeConsolidation, day(2025, 2, 1), "15000")

	_, err := svc.Rate(context.Background(), "EUR", "IDR", RateTypeConsolidation, day(2025, 1, 10))
	require.ErrorIs(t, err, shared.ErrRateNotFound)
}

func TestAddRateRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	ctx := context.Background()
	cases := []RateInput{
		{Base: "EUR", Quote: "EUR", Type: RateTypeSpot, EffectiveDate: day(2025, 1, 1), Rate: decimal.NewFromInt(1)},
		{Base: "EUR", Quote: "USD", Type: RateTypeSpot, EffectiveDate: day(2025, 1, 1), Rate: decimal.Zero},
		{Base: "EUR", Quote: "USD", Type: "MONTHLY", EffectiveDate: day(2025, 1, 1), Rate: decimal.NewFromInt(1)},
		{Base: "ZZZ1", Quote: "USD", Type: RateTypeSpot, EffectiveDate: day(2025, 1, 1), Rate: decimal.NewFromInt(1)},
	}
	for _, in := range cases {
		_, err := svc.AddRate(ctx, in)
		require.ErrorIs(t, err, shared.ErrInvalidInput)
	}
}

func TestAddRateFailsWhenAuditFails(t *testing.T) {
	svc, repo, _ := newTestService(t, "")
	repo.failAudit = true
	_, err := svc.AddRate(context.Background(), RateInput{Base: "EUR", Quote: "USD", Type: RateTypeSpot, EffectiveDate: day(2025, 1, 1), Rate: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrDurability)
	require.Empty(t, repo.rates)
	require.Zero(t, svc.Version())
}

func TestRefreshLoadsSnapshotAndVersion(t *testing.T) {
	repo := &stubRepo{
		rates: []Rate{
			{ID: 4, Base: "EUR", Quote: "USD", Type: RateTypeSpot, EffectiveDate: day(2025, 1, 1), Rate: decimal.RequireFromString("1.1")},
			{ID: 9, Base: "EUR", Quote: "USD", Type: RateTypeSpot, EffectiveDate: day(2025, 2, 1), Rate: decimal.RequireFromString("1.2")},
		},
		currencies: []Currency{{Code: "EUR", Precision: 2, Active: true}},
	}
	svc := NewService(repo, NewStore(), "", nil)
	require.Zero(t, svc.Version())
	require.NoError(t, svc.Refresh(context.Background()))
	require.EqualValues(t, 9, svc.Version())

	r, err := svc.Rate(context.Background(), "EUR", "USD", RateTypeSpot, day(2025, 1, 20))
	require.NoError(t, err)
	require.Equal(t, "1.1", r.String())

	c, err := svc.Currency(context.Background(), "eur")
	require.NoError(t, err)
	require.EqualValues(t, 2, c.Precision)
}

// racingLoader publishes a rate into the store after the table was read, as a concurrent
// AddRate would.
type racingLoader struct {
	*stubRepo
	store *Store
	late  Rate
}

func (l racingLoader) ListCurrencies(ctx context.Context) ([]Currency, error) {
	out, err := l.stubRepo.ListCurrencies(ctx)
	l.store.appendRate(l.late)
	l.store.putCurrency(Currency{Code: "GBP", Precision: 2, Active: true})
	return out, err
}

func TestLoadKeepsRatesPublishedDuringRead(t *testing.T) {
	repo := &stubRepo{
		rates:      []Rate{{ID: 4, Base: "EUR", Quote: "USD", Type: RateTypeSpot, EffectiveDate: day(2025, 1, 1), Rate: decimal.RequireFromString("1.1")}},
		currencies: []Currency{{Code: "EUR", Precision: 2, Active: true}},
	}
	store := NewStore()
	late := Rate{ID: 5, Base: "EUR", Quote: "USD", Type: RateTypeSpot, EffectiveDate: day(2025, 2, 1), Rate: decimal.RequireFromString("1.2")}
	require.NoError(t, store.Load(context.Background(), racingLoader{stubRepo: repo, store: store, late: late}))

	require.EqualValues(t, 5, store.Version())
	rows := store.history("EUR", "USD", RateTypeSpot)
	require.Len(t, rows, 2)
	require.EqualValues(t, 4, rows[0].ID)
	require.EqualValues(t, 5, rows[1].ID)
	_, ok := store.currency("GBP")
	require.True(t, ok)

	require.NoError(t, store.Load(context.Background(), repo))
	require.Len(t, store.history("EUR", "USD", RateTypeSpot), 2, "a reload without the row does not drop it")
}

func TestAddCurrencyUsesISODefaults(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	ctx := context.Background()
	jpy, err := svc.AddCurrency(ctx, CurrencyInput{Code: "jpy"})
	require.NoError(t, err)
	require.Equal(t, "JPY", jpy.Code)
	require.EqualValues(t, 0, jpy.Precision)

	usd, err := svc.AddCurrency(ctx, CurrencyInput{Code: "USD", Name: "US Dollar"})
	require.NoError(t, err)
	require.EqualValues(t, 2, usd.Precision)

	_, err = svc.AddCurrency(ctx, CurrencyInput{Code: "USD"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.AddCurrency(ctx, CurrencyInput{Code: "ABCD"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestConvertRoundsToTargetPrecision(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	ctx := context.Background()
	_, err := svc.AddCurrency(ctx, CurrencyInput{Code: "USD"})
	require.NoError(t, err)
	addRate(t, svc, "EUR", "USD", RateTypeSpot, day(2025, 1, 1), "1.0837")

	out, err := svc.Convert(ctx, decimal.RequireFromString("100.55"), "EUR", "USD", RateTypeSpot, day(2025, 1, 2))
	require.NoError(t, err)
	require.Equal(t, "108.97", out.StringFixed(2))
}

func TestParseCSV(t *testing.T) {
	in := "base,quote,type,effective_date,rate\nEUR,USD,spot,2025-01-01,1.10\nusd,idr,CONSOLIDATION,2025-01-31,15500.5\n"
	rows, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "USD", rows[1].Base)
	require.Equal(t, RateTypeConsolidation, rows[1].Type)
	require.Equal(t, "15500.5", rows[1].Rate.String())

	_, err = ParseCSV(strings.NewReader("base,quote,type,effective_date,rate\nEUR,USD,SPOT,2025-01-01,-1\n"))
	require.ErrorContains(t, err, "line 2")
}
