package consol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
)

const (
	memberFanOut = 4
	buildTimeout = 2 * time.Minute
)

// Repository reads posted balances and stores consolidation runs.
type Repository interface {
	// Parents lists every company as a parent member.
	Parents(ctx context.Context) ([]Member, error)
	// Members returns the parent company followed by its active subsidiaries ordered by id.
	Members(ctx context.Context, parentCompanyID int64) ([]Member, error)
	// Balances returns posted totals of m dated on or before asOf.
	Balances(ctx context.Context, m Member, asOf time.Time) ([]BalanceRow, error)
	// Watermark changes whenever an entry of the company group is posted.
	Watermark(ctx context.Context, parentCompanyID int64) (int64, error)
	// SaveRun stores run and supersedes the previous run of the same request.
	SaveRun(ctx context.Context, run Run) (Run, error)
	LatestRun(ctx context.Context, req Request) (Run, error)
}

// RateSource converts member balances into the reporting currency.
type RateSource interface {
	Rate(ctx context.Context, base, quote string, t fx.RateType, date time.Time) (decimal.Decimal, error)
	Currency(ctx context.Context, code string) (fx.Currency, error)
	Version() int64
}

// Cache stores runs by key. Get returns ErrCacheMiss when absent.
type Cache interface {
	Get(ctx context.Context, key string) (Run, error)
	Set(ctx context.Context, key string, run Run) error
}

// ErrCacheMiss is returned by Cache.Get for unknown keys.
var ErrCacheMiss = errors.New("consol: cache miss")

// Service orchestrates consolidation operations.
type Service struct {
	repo   Repository
	rates  RateSource
	cache  Cache
	logger *slog.Logger
	flight singleflight.Group
	now    func() time.Time
}

// NewService constructs a consolidation service instance. cache may be nil.
func NewService(repo Repository, rates RateSource, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, rates: rates, cache: cache, logger: logger, now: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Consolidate returns the group's converted balances. Results are served from cache while
// neither the posted ledger nor the rate table changed; identical concurrent calls share
// one computation.
func (s *Service) Consolidate(ctx context.Context, req Request) (Run, error) {
	if s == nil || s.repo == nil {
		return Run{}, fmt.Errorf("consol service not initialised")
	}
	req, err := req.normalize()
	if err != nil {
		return Run{}, err
	}
	watermark, err := s.repo.Watermark(ctx, req.ParentCompanyID)
	if err != nil {
		return Run{}, err
	}
	version := s.rates.Version()
	key := cacheKey(req, watermark, version)
	if run, ok := s.cached(ctx, key, req); ok {
		return run, nil
	}
	recordCacheMiss(req.ParentCompanyID)
	ch := s.flight.DoChan(key, func() (any, error) {
		// shared by every caller waiting on key, so no single caller's cancellation applies
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		run, err := s.build(bctx, req, watermark, version)
		if err != nil {
			return Run{}, err
		}
		s.store(bctx, key, run)
		return run, nil
	})
	select {
	case <-ctx.Done():
		return Run{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Run{}, res.Err
		}
		return res.Val.(Run), nil
	}
}

// Refresh recomputes the consolidation, persists it as the latest run and supersedes the
// previous one.
func (s *Service) Refresh(ctx context.Context, req Request) (Run, error) {
	if s == nil || s.repo == nil {
		return Run{}, fmt.Errorf("consol service not initialised")
	}
	req, err := req.normalize()
	if err != nil {
		return Run{}, err
	}
	watermark, err := s.repo.Watermark(ctx, req.ParentCompanyID)
	if err != nil {
		return Run{}, err
	}
	version := s.rates.Version()
	run, err := s.build(ctx, req, watermark, version)
	if err != nil {
		return Run{}, err
	}
	saved, err := s.repo.SaveRun(ctx, run)
	if err != nil {
		return Run{}, shared.Durable("save consolidation run", err)
	}
	s.store(ctx, cacheKey(req, watermark, version), saved)
	s.logger.Info("consolidation refreshed",
		slog.Int64("parent_company_id", req.ParentCompanyID),
		slog.String("as_of", req.AsOf.Format(time.DateOnly)),
		slog.String("currency", req.ReportingCurrency),
		slog.Int64("run_id", saved.ID),
		slog.Int("records", len(saved.Records)))
	return saved, nil
}

// RefreshAll refreshes every company group as of asOf in the parent's own currency.
// Failures are logged; the first one is returned after every group ran.
func (s *Service) RefreshAll(ctx context.Context, asOf time.Time) (int, error) {
	parents, err := s.repo.Parents(ctx)
	if err != nil {
		return 0, err
	}
	var (
		refreshed int
		firstErr  error
	)
	for _, p := range parents {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		_, err := s.Refresh(ctx, Request{ParentCompanyID: p.CompanyID, AsOf: asOf, ReportingCurrency: p.Currency})
		if err != nil {
			s.logger.Error("consolidation refresh failed", slog.Int64("parent_company_id", p.CompanyID), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		refreshed++
	}
	return refreshed, firstErr
}

// LatestRun returns the most recent persisted run of req.
func (s *Service) LatestRun(ctx context.Context, req Request) (Run, error) {
	req, err := req.normalize()
	if err != nil {
		return Run{}, err
	}
	return s.repo.LatestRun(ctx, req)
}

func (s *Service) build(ctx context.Context, req Request, watermark, version int64) (Run, error) {
	started := s.now()
	reporting, err := s.rates.Currency(ctx, req.ReportingCurrency)
	if err != nil {
		return Run{}, err
	}
	members, err := s.repo.Members(ctx, req.ParentCompanyID)
	if err != nil {
		return Run{}, err
	}
	balances := make([][]BalanceRow, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memberFanOut)
	for i, m := range members {
		g.Go(func() error {
			rows, err := s.repo.Balances(gctx, m, req.AsOf)
			if err != nil {
				return fmt.Errorf("balances of %s: %w", m.Label(), err)
			}
			balances[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Run{}, err
	}

	rates := make(map[string]decimal.Decimal)
	byCode := make(map[string]*Record)
	for i, m := range members {
		for _, row := range balances[i] {
			currency := row.Currency
			if currency == "" {
				currency = m.Currency
			}
			rate, ok := rates[currency]
			if !ok {
				rate, err = s.rates.Rate(ctx, currency, reporting.Code, fx.RateTypeConsolidation, req.AsOf)
				if err != nil {
					return Run{}, err
				}
				rates[currency] = rate
			}
			local := row.Debit.Sub(row.Credit)
			converted := fx.Apply(local, rate, reporting.Precision)
			rec, ok := byCode[row.AccountCode]
			if !ok {
				rec = &Record{AccountCode: row.AccountCode, AccountName: row.AccountName, AccountType: row.AccountType}
				byCode[row.AccountCode] = rec
			}
			rec.Amount = rec.Amount.Add(converted)
			rec.Contributions = append(rec.Contributions, Contribution{
				Member:      m.Label(),
				Currency:    currency,
				LocalAmount: local,
				Rate:        rate,
				Amount:      converted,
			})
		}
	}
	records := make([]Record, 0, len(byCode))
	for _, rec := range byCode {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].AccountCode < records[j].AccountCode })

	run := Run{
		ExternalID:        uuid.New(),
		ParentCompanyID:   req.ParentCompanyID,
		AsOf:              req.AsOf,
		ReportingCurrency: reporting.Code,
		LedgerWatermark:   watermark,
		RateVersion:       version,
		Members:           members,
		Records:           records,
		Totals:            totalsOf(records),
		CreatedAt:         s.now(),
	}
	observeBuildDuration(req.ParentCompanyID, s.now().Sub(started))
	return run, nil
}

func (s *Service) cached(ctx context.Context, key string, req Request) (Run, bool) {
	if s.cache == nil {
		return Run{}, false
	}
	run, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("consolidation cache read", slog.String("key", key), slog.Any("error", err))
		}
		return Run{}, false
	}
	recordCacheHit(req.ParentCompanyID)
	return run, true
}

func (s *Service) store(ctx context.Context, key string, run Run) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, run); err != nil {
		s.logger.Warn("consolidation cache write", slog.String("key", key), slog.Any("error", err))
	}
}

func cacheKey(req Request, watermark, version int64) string {
	return "consol:" + strconv.FormatInt(req.ParentCompanyID, 10) +
		":" + req.AsOf.Format(time.DateOnly) +
		":" + req.ReportingCurrency +
		":w" + strconv.FormatInt(watermark, 10) +
		":r" + strconv.FormatInt(version, 10)
}
