package shared

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals accumulates the debit and credit sides of a set of journal lines.
type Totals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Add returns the side-wise sum.
func (t Totals) Add(o Totals) Totals {
	return Totals{Debit: t.Debit.Add(o.Debit), Credit: t.Credit.Add(o.Credit)}
}

// Net is debit minus credit.
func (t Totals) Net() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// Balanced reports exact equality of both sides. No tolerance is applied.
func (t Totals) Balanced() bool {
	return t.Debit.Equal(t.Credit)
}

// Equal compares both sides numerically.
func (t Totals) Equal(o Totals) bool {
	return t.Debit.Equal(o.Debit) && t.Credit.Equal(o.Credit)
}

// WithinPrecision reports whether d carries no more than places fractional digits.
func WithinPrecision(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
