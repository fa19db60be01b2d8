package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Repository persists rates and currencies.
type Repository interface {
	Loader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository appends rates and currencies inside one transaction.
type TxRepository interface {
	InsertRate(ctx context.Context, r Rate) (Rate, error)
	InsertCurrency(ctx context.Context, c Currency) (Currency, error)
	RecordAudit(ctx context.Context, log internalShared.AuditLog) error
}

// Service resolves exchange rates against a versioned Store.
type Service struct {
	repo   Repository
	store  *Store
	anchor string
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the currency service. anchor is the currency used to triangulate cross
// rates; empty disables triangulation.
func NewService(repo Repository, store *Store, anchor string, logger *slog.Logger) *Service {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if code, err := NormalizeCode(anchor); err == nil {
		anchor = code
	} else {
		anchor = ""
	}
	return &Service{repo: repo, store: store, anchor: anchor, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Refresh reloads the store from the repository.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.store.Load(ctx, s.repo); err != nil {
		return shared.Durable("load rate table", err)
	}
	s.logger.Debug("fx store refreshed", slog.Int64("version", s.store.Version()))
	return nil
}

// Version returns the version of the rate table currently served.
func (s *Service) Version() int64 {
	return s.store.Version()
}

// Rate returns how many units of quote one unit of base buys on date.
func (s *Service) Rate(ctx context.Context, base, quote string, t RateType, date time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}
	b, err := NormalizeCode(base)
	if err != nil {
		return decimal.Decimal{}, err
	}
	q, err := NormalizeCode(quote)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if b == q {
		return decimal.NewFromInt(1), nil
	}
	if !t.Valid() {
		return decimal.Decimal{}, fmt.Errorf("rate type %q: %w", t, shared.ErrInvalidInput)
	}
	day := shared.Day(date)
	snap := s.store.current.Load()
	if r, ok := snap.resolve(b, q, t, day); ok {
		return r, nil
	}
	if s.anchor != "" && b != s.anchor && q != s.anchor {
		first, ok1 := snap.resolve(b, s.anchor, t, day)
		second, ok2 := snap.resolve(s.anchor, q, t, day)
		if ok1 && ok2 {
			return first.Mul(second), nil
		}
	}
	return decimal.Decimal{}, &RateNotFoundError{Base: b, Quote: q, Type: t, Date: day}
}

// Convert translates amount from one currency into another, rounded to the target precision.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string, t RateType, date time.Time) (decimal.Decimal, error) {
	rate, err := s.Rate(ctx, from, to, t, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	target, err := s.Currency(ctx, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return Apply(amount, rate, target.Precision), nil
}

// AddRate appends a rate row. Existing rows are never modified; a correction is a new
// row that wins ties on effective date by its later creation time.
func (s *Service) AddRate(ctx context.Context, in RateInput) (Rate, error) {
	base, err := NormalizeCode(in.Base)
	if err != nil {
		return Rate{}, err
	}
	quote, err := NormalizeCode(in.Quote)
	if err != nil {
		return Rate{}, err
	}
	if base == quote {
		return Rate{}, fmt.Errorf("base equals quote: %w", shared.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return Rate{}, fmt.Errorf("rate type %q: %w", in.Type, shared.ErrInvalidInput)
	}
	if !in.Rate.IsPositive() {
		return Rate{}, fmt.Errorf("rate must be positive: %w", shared.ErrInvalidInput)
	}
	if in.EffectiveDate.IsZero() {
		return Rate{}, fmt.Errorf("effective date required: %w", shared.ErrInvalidInput)
	}
	now := s.now()
	rate := Rate{
		Base:          base,
		Quote:         quote,
		Type:          in.Type,
		EffectiveDate: shared.Day(in.EffectiveDate),
		Rate:          in.Rate,
		CreatedAt:     now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertRate(ctx, rate)
		if err != nil {
			return err
		}
		rate = inserted
		return recordAudit(ctx, tx, in.ActorID, "exchange_rate", fmt.Sprint(rate.ID), "fx.rate.add", rate, now)
	})
	if err != nil {
		return Rate{}, shared.Durable("add rate", err)
	}
	s.store.appendRate(rate)
	s.logger.Info("fx rate added",
		slog.String("pair", base+quote), slog.String("type", string(rate.Type)),
		slog.String("effective_date", rate.EffectiveDate.Format(time.DateOnly)), slog.String("rate", rate.Rate.String()))
	return rate, nil
}

// AddCurrency registers a currency. Precision is fixed once registered.
func (s *Service) AddCurrency(ctx context.Context, in CurrencyInput) (Currency, error) {
	c, err := newCurrency(in)
	if err != nil {
		return Currency{}, err
	}
	if _, exists := s.store.currency(c.Code); exists {
		return Currency{}, fmt.Errorf("currency %s already registered: %w", c.Code, shared.ErrInvalidInput)
	}
	now := s.now()
	c.CreatedAt = now
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertCurrency(ctx, c)
		if err != nil {
			return err
		}
		c = inserted
		return recordAudit(ctx, tx, in.ActorID, "currency", c.Code, "fx.currency.add", c, now)
	})
	if err != nil {
		return Currency{}, shared.Durable("add currency", err)
	}
	s.store.putCurrency(c)
	return c, nil
}

// Currency returns a registered currency or ErrNotFound.
func (s *Service) Currency(ctx context.Context, code string) (Currency, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return Currency{}, err
	}
	c, ok := s.store.currency(normalized)
	if !ok {
		return Currency{}, fmt.Errorf("currency %s: %w", normalized, shared.ErrNotFound)
	}
	return c, nil
}

// Currencies lists registered currencies ordered by code.
func (s *Service) Currencies(ctx context.Context) []Currency {
	return s.store.currencies()
}

// History returns every row stored for a pair and type, oldest first.
func (s *Service) History(ctx context.Context, base, quote string, t RateType) ([]Rate, error) {
	b, err := NormalizeCode(base)
	if err != nil {
		return nil, err
	}
	q, err := NormalizeCode(quote)
	if err != nil {
		return nil, err
	}
	return s.store.history(b, q, t), nil
}

// QuoteAvailable implements RateChecker for Validate.
func (s *Service) QuoteAvailable(ctx context.Context, base, quote string, t RateType, date time.Time) (bool, error) {
	_, err := s.Rate(ctx, base, quote, t, date)
	if errors.Is(err, shared.ErrRateNotFound) {
		return false, nil
	}
	return err == nil, err
}

func recordAudit(ctx context.Context, tx TxRepository, actorID int64, entity, id, action string, after any, at time.Time) error {
	log, err := internalShared.NewAuditLog(actorID, entity, id, action, nil, after)
	if err != nil {
		return err
	}
	log.At = at
	if err := tx.RecordAudit(ctx, log); err != nil {
		return shared.Durable("record fx audit", err)
	}
	return nil
}
