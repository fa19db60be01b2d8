package fx

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var importHeader = []string{"base", "quote", "type", "effective_date", "rate"}

// ParseCSV reads rate rows with the header base,quote,type,effective_date,rate.
// Every row is validated before any is returned.
func ParseCSV(r io.Reader) ([]RateInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("fx import: read header: %w", err)
	}
	if len(header) != len(importHeader) {
		return nil, fmt.Errorf("fx import: expected header %s", strings.Join(importHeader, ","))
	}
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(col)) != importHeader[i] {
			return nil, fmt.Errorf("fx import: expected header %s", strings.Join(importHeader, ","))
		}
	}
	var out []RateInput
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fx import: line %d: %w", line, err)
		}
		in, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("fx import: line %d: %w", line, err)
		}
		out = append(out, in)
	}
	return out, nil
}

func parseRow(rec []string) (RateInput, error) {
	base, err := NormalizeCode(rec[0])
	if err != nil {
		return RateInput{}, err
	}
	quote, err := NormalizeCode(rec[1])
	if err != nil {
		return RateInput{}, err
	}
	t := RateType(strings.ToUpper(strings.TrimSpace(rec[2])))
	if !t.Valid() {
		return RateInput{}, fmt.Errorf("unknown rate type %q", rec[2])
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(rec[3]))
	if err != nil {
		return RateInput{}, fmt.Errorf("effective date %q: %w", rec[3], err)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(rec[4]))
	if err != nil {
		return RateInput{}, fmt.Errorf("rate %q: %w", rec[4], err)
	}
	if !rate.IsPositive() {
		return RateInput{}, fmt.Errorf("rate %s must be positive", rate)
	}
	return RateInput{Base: base, Quote: quote, Type: t, EffectiveDate: date, Rate: rate}, nil
}
