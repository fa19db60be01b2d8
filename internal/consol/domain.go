package consol

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Request selects one consolidation: a parent company's group as of a date, in one currency.
type Request struct {
	ParentCompanyID   int64
	AsOf              time.Time
	ReportingCurrency string
}

func (r Request) normalize() (Request, error) {
	if r.ParentCompanyID <= 0 {
		return Request{}, fmt.Errorf("parent company id required: %w", shared.ErrInvalidInput)
	}
	if r.AsOf.IsZero() {
		return Request{}, fmt.Errorf("as-of date required: %w", shared.ErrInvalidInput)
	}
	r.AsOf = shared.Day(r.AsOf)
	r.ReportingCurrency = strings.ToUpper(strings.TrimSpace(r.ReportingCurrency))
	if r.ReportingCurrency == "" {
		return Request{}, fmt.Errorf("reporting currency required: %w", shared.ErrInvalidInput)
	}
	return r, nil
}

// Member is one ledger included in a consolidation: the parent company itself (nil
// SubsidiaryID) or one of its active subsidiaries.
type Member struct {
	CompanyID    int64  `json:"company_id"`
	SubsidiaryID *int64 `json:"subsidiary_id,omitempty"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Currency     string `json:"currency"`
}

// Label identifies the member in logs and contributions.
func (m Member) Label() string {
	if m.SubsidiaryID == nil {
		return fmt.Sprintf("company:%d", m.CompanyID)
	}
	return fmt.Sprintf("subsidiary:%d", *m.SubsidiaryID)
}

// BalanceRow is the posted total of one account of one member in one transaction currency.
type BalanceRow struct {
	AccountCode string
	AccountName string
	AccountType string
	Currency    string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Contribution is a member's converted share of a consolidated account.
type Contribution struct {
	Member      string          `json:"member"`
	Currency    string          `json:"currency"`
	LocalAmount decimal.Decimal `json:"local_amount"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// Record is one consolidated account line. Amount is debit-positive net in the reporting currency.
type Record struct {
	AccountCode   string          `json:"account_code"`
	AccountName   string          `json:"account_name"`
	AccountType   string          `json:"account_type"`
	Amount        decimal.Decimal `json:"amount"`
	Contributions []Contribution  `json:"contributions"`
}

// Totals splits record amounts into debit and credit columns. Difference is non-zero when
// translation at a single rate per currency leaves the group out of balance.
type Totals struct {
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	Difference decimal.Decimal `json:"difference"`
}

// Run is a consolidation result together with the inputs it was computed from.
// ID, ExternalID, CreatedAt and SupersededAt identify one computation; two runs over the
// same ledger watermark and rate version carry equal Members, Records and Totals.
type Run struct {
	ID                int64      `json:"id,omitempty"`
	ExternalID        uuid.UUID  `json:"external_id"`
	ParentCompanyID   int64      `json:"parent_company_id"`
	AsOf              time.Time  `json:"as_of"`
	ReportingCurrency string     `json:"reporting_currency"`
	LedgerWatermark   int64      `json:"ledger_watermark"`
	RateVersion       int64      `json:"rate_version"`
	Members           []Member   `json:"members"`
	Records           []Record   `json:"records"`
	Totals            Totals     `json:"totals"`
	CreatedAt         time.Time  `json:"created_at"`
	SupersededAt      *time.Time `json:"superseded_at,omitempty"`
}

func totalsOf(records []Record) Totals {
	var t Totals
	for _, r := range records {
		if r.Amount.IsNegative() {
			t.Credit = t.Credit.Add(r.Amount.Neg())
		} else {
			t.Debit = t.Debit.Add(r.Amount)
		}
	}
	t.Difference = t.Debit.Sub(t.Credit)
	return t
}
