package perf

import (
	"context"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	lt "github.com/odyssey-erp/odyssey-gl/internal/testing/ledgertest"
)

type fixture struct {
	*lt.Ledger
	header  accounts.Account
	leaves  []accounts.Account
	revenue accounts.Account
}

// newFixture builds a two level chart with a month of postings on the in-memory store.
func newFixture(tb testing.TB, entries int) fixture {
	tb.Helper()
	l := lt.New(tb)
	l.Month(tb, nil, time.January)
	f := fixture{Ledger: l}
	f.header = l.Account(tb, nil, "1000", accounts.AccountTypeAsset, nil, false)
	for i := 0; i < 20; i++ {
		f.leaves = append(f.leaves, l.Account(tb, nil, "11"+strconv.Itoa(10+i), accounts.AccountTypeAsset, &f.header.ID, true))
	}
	f.revenue = l.Account(tb, nil, "4000", accounts.AccountTypeRevenue, nil, true)
	for i := 0; i < entries; i++ {
		f.post(tb, i)
	}
	return f
}

func (f fixture) post(tb testing.TB, i int) {
	leaf := f.leaves[i%len(f.leaves)]
	f.Post(tb, lt.Draft(lt.Day(time.January, 1+i%28), lt.Debit(leaf.ID, "12.34"), lt.Credit(f.revenue.ID, "12.34")))
}

func BenchmarkPost(b *testing.B) {
	f := newFixture(b, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.post(b, i)
	}
}

func BenchmarkRollupBalance(b *testing.B) {
	f := newFixture(b, 500)
	ctx := context.Background()
	asOf := lt.Day(time.January, 31)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.Accounts.RollupBalance(ctx, f.header.ID, asOf); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRateTriangulated(b *testing.B) {
	l := lt.New(b)
	l.Rate(b, "EUR", "USD", fx.RateTypeSpot, lt.Day(time.January, 1), "1.08")
	l.Rate(b, "USD", "JPY", fx.RateTypeSpot, lt.Day(time.January, 1), "148.2")
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := l.FX.Rate(ctx, "EUR", "JPY", fx.RateTypeSpot, lt.Day(time.January, 20)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConsolidate(b *testing.B) {
	f := newFixture(b, 300)
	f.Rate(b, "EUR", "USD", fx.RateTypeConsolidation, lt.Day(time.January, 1), "1.08")
	ctx := context.Background()
	req := consol.Request{ParentCompanyID: lt.ParentID, AsOf: lt.Day(time.January, 31), ReportingCurrency: "USD"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.Consol.Consolidate(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

// TestPostingLatencyBudget keeps the in-memory posting path well under the API timeout so a
// regression in validation cost shows up before it reaches PostgreSQL.
func TestPostingLatencyBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("latency sampling skipped in short mode")
	}
	f := newFixture(t, 0)
	samples := make([]time.Duration, 0, 200)
	for i := 0; i < cap(samples); i++ {
		start := time.Now()
		f.post(t, i)
		samples = append(samples, time.Since(start))
	}
	p95 := percentile95(samples)
	require.Less(t, p95, 50*time.Millisecond, "posting p95=%s", p95)
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
