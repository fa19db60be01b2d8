package fx

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

type rateKey struct {
	base  string
	quote string
	typ   RateType
}

// snapshot is immutable once published.
type snapshot struct {
	version    int64
	rates      map[rateKey][]Rate
	currencies map[string]Currency
}

// Loader reads the full rate table and currency list.
type Loader interface {
	ListRates(ctx context.Context) ([]Rate, error)
	ListCurrencies(ctx context.Context) ([]Currency, error)
}

// Store is a process-wide, read-mostly view of rates and currencies. Readers never block:
// they work on the snapshot published at the time of the call. Refresh and appends publish
// a new snapshot atomically.
type Store struct {
	current atomic.Pointer[snapshot]
}

// NewStore returns an empty store at version 0.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&snapshot{rates: map[rateKey][]Rate{}, currencies: map[string]Currency{}})
	return s
}

// Load replaces the snapshot with the loader's content. Rows and currencies published
// while the loader was reading are kept, since rates are never deleted.
func (s *Store) Load(ctx context.Context, loader Loader) error {
	rates, err := loader.ListRates(ctx)
	if err != nil {
		return err
	}
	currencies, err := loader.ListCurrencies(ctx)
	if err != nil {
		return err
	}
	for {
		cur := s.current.Load()
		next := buildSnapshot(rates, currencies, cur)
		if s.current.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// buildSnapshot indexes the loaded rows and adds what cur holds beyond them.
func buildSnapshot(rates []Rate, currencies []Currency, cur *snapshot) *snapshot {
	next := &snapshot{rates: make(map[rateKey][]Rate), currencies: make(map[string]Currency, len(currencies))}
	maps.Copy(next.currencies, cur.currencies)
	for _, c := range currencies {
		next.currencies[c.Code] = c
	}
	loaded := make(map[int64]struct{}, len(rates))
	for _, r := range rates {
		loaded[r.ID] = struct{}{}
		k := rateKey{r.Base, r.Quote, r.Type}
		next.rates[k] = append(next.rates[k], r)
		next.version = max(next.version, r.ID)
	}
	for k, rows := range cur.rates {
		for _, r := range rows {
			if _, ok := loaded[r.ID]; ok {
				continue
			}
			next.rates[k] = append(next.rates[k], r)
			next.version = max(next.version, r.ID)
		}
	}
	for k := range next.rates {
		sortRates(next.rates[k])
	}
	return next
}

// Version identifies the rate table content: the highest rate id seen. Rates are
// append-only, so equal versions imply equal tables.
func (s *Store) Version() int64 {
	return s.current.Load().version
}

func (s *Store) appendRate(r Rate) {
	for {
		cur := s.current.Load()
		k := rateKey{r.Base, r.Quote, r.Type}
		rows := append(slices.Clone(cur.rates[k]), r)
		sortRates(rows)
		next := &snapshot{
			version:    max(cur.version, r.ID),
			rates:      maps.Clone(cur.rates),
			currencies: cur.currencies,
		}
		next.rates[k] = rows
		if s.current.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (s *Store) putCurrency(c Currency) {
	for {
		cur := s.current.Load()
		next := &snapshot{version: cur.version, rates: cur.rates, currencies: maps.Clone(cur.currencies)}
		next.currencies[c.Code] = c
		if s.current.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (s *Store) currency(code string) (Currency, bool) {
	c, ok := s.current.Load().currencies[code]
	return c, ok
}

func (s *Store) currencies() []Currency {
	snap := s.current.Load()
	out := make([]Currency, 0, len(snap.currencies))
	for _, c := range snap.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *Store) history(base, quote string, t RateType) []Rate {
	return slices.Clone(s.current.Load().rates[rateKey{base, quote, t}])
}

// resolve picks the last row with EffectiveDate <= date. Rows are ordered by
// (EffectiveDate, CreatedAt, ID), so among equal effective dates the latest created wins.
func (snap *snapshot) resolve(base, quote string, t RateType, date time.Time) (decimal.Decimal, bool) {
	rows := snap.rates[rateKey{base, quote, t}]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].EffectiveDate.After(date) })
	if i == 0 {
		return decimal.Decimal{}, false
	}
	return rows[i-1].Rate, true
}

func sortRates(rows []Rate) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.Before(b.EffectiveDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
