package fx

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// maxPrecision bounds the scale of stored amounts.
const maxPrecision = 8

// NormalizeCode upper-cases code and checks it against the ISO 4217 table.
func NormalizeCode(code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("currency %q: %w", code, shared.ErrInvalidInput)
	}
	return unit.String(), nil
}

// DefaultPrecision returns the standard number of fractional digits for an ISO code.
func DefaultPrecision(code string) (int32, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, fmt.Errorf("currency %q: %w", code, shared.ErrInvalidInput)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

func newCurrency(in CurrencyInput) (Currency, error) {
	code, err := NormalizeCode(in.Code)
	if err != nil {
		return Currency{}, err
	}
	precision, err := DefaultPrecision(code)
	if err != nil {
		return Currency{}, err
	}
	if in.Precision != nil {
		if *in.Precision < 0 || *in.Precision > maxPrecision {
			return Currency{}, fmt.Errorf("precision %d out of range: %w", *in.Precision, shared.ErrInvalidInput)
		}
		precision = *in.Precision
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = code
	}
	return Currency{Code: code, Name: name, Precision: precision, Active: true}, nil
}
