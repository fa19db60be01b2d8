package fx

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// RateType names the quoting method of a rate. Identical currency pairs are resolved
// independently per type.
type RateType string

const (
	RateTypeSpot          RateType = "SPOT"
	RateTypeAverage       RateType = "AVERAGE"
	RateTypeClosing       RateType = "CLOSING"
	RateTypeConsolidation RateType = "CONSOLIDATION"
)

// Valid reports whether t is a known rate type.
func (t RateType) Valid() bool {
	switch t {
	case RateTypeSpot, RateTypeAverage, RateTypeClosing, RateTypeConsolidation:
		return true
	}
	return false
}

// Rate is one append-only row of the rate table: 1 Base = Rate Quote.
type Rate struct {
	ID            int64           `json:"id"`
	Base          string          `json:"base"`
	Quote         string          `json:"quote"`
	Type          RateType        `json:"type"`
	EffectiveDate time.Time       `json:"effective_date"`
	Rate          decimal.Decimal `json:"rate"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Currency describes an ISO 4217 currency and the number of fractional digits amounts carry.
type Currency struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Precision int32     `json:"precision"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// RateInput is a rate to append.
type RateInput struct {
	Base          string
	Quote         string
	Type          RateType
	EffectiveDate time.Time
	Rate          decimal.Decimal
	ActorID       int64
}

// CurrencyInput registers a currency. A nil Precision selects the ISO default.
type CurrencyInput struct {
	Code      string
	Name      string
	Precision *int32
	ActorID   int64
}

// RateNotFoundError reports the request that could not be resolved.
type RateNotFoundError struct {
	Base  string
	Quote string
	Type  RateType
	Date  time.Time
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("fx: no %s rate %s/%s on or before %s", e.Type, e.Base, e.Quote, e.Date.Format(time.DateOnly))
}

func (e *RateNotFoundError) Unwrap() error { return shared.ErrRateNotFound }
