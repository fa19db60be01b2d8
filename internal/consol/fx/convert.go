package fx

import "github.com/shopspring/decimal"

// Apply multiplies amount by rate and rounds half away from zero to places.
func Apply(amount, rate decimal.Decimal, places int32) decimal.Decimal {
	return amount.Mul(rate).Round(places)
}
