package fx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RateChecker reports whether a rate resolves for a pair, type and date.
type RateChecker interface {
	QuoteAvailable(ctx context.Context, base, quote string, t RateType, date time.Time) (bool, error)
}

// Requirement declares which rate types must resolve for a pair such as "IDR/USD".
type Requirement struct {
	Pair  string
	Types []RateType
}

// Gap contains the rate types missing for a pair.
type Gap struct {
	Pair  string
	Types []RateType
}

// Result summarises the validation outcome.
type Result struct {
	AsOf      time.Time
	Checked   int
	Gaps      []Gap
	Available map[string][]RateType
}

// ParsePair splits "IDR/USD", "IDR-USD" or "IDRUSD" into normalized codes.
func ParsePair(pair string) (string, string, error) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	var base, quote string
	switch {
	case strings.ContainsAny(p, "/-"):
		parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '-' })
		if len(parts) != 2 {
			return "", "", fmt.Errorf("fx: invalid pair %q", pair)
		}
		base, quote = parts[0], parts[1]
	case len(p) == 6:
		base, quote = p[:3], p[3:]
	default:
		return "", "", fmt.Errorf("fx: invalid pair %q", pair)
	}
	b, err := NormalizeCode(base)
	if err != nil {
		return "", "", err
	}
	q, err := NormalizeCode(quote)
	if err != nil {
		return "", "", err
	}
	return b, q, nil
}

// Validate checks that every requested rate type resolves for each pair as of asOf.
func Validate(ctx context.Context, checker RateChecker, asOf time.Time, reqs []Requirement) (Result, error) {
	var res Result
	if checker == nil {
		return res, fmt.Errorf("fx: rate checker required")
	}
	if asOf.IsZero() {
		return res, fmt.Errorf("fx: as-of date is required")
	}
	res.AsOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	res.Available = map[string][]RateType{}
	if len(reqs) == 0 {
		return res, nil
	}
	pairs := make(map[string]map[RateType]struct{})
	for _, req := range reqs {
		base, quote, err := ParsePair(req.Pair)
		if err != nil {
			return Result{}, err
		}
		pair := base + "/" + quote
		if len(req.Types) == 0 {
			return Result{}, fmt.Errorf("fx: rate types required for pair %s", pair)
		}
		typeSet := pairs[pair]
		if typeSet == nil {
			typeSet = make(map[RateType]struct{}, len(req.Types))
			pairs[pair] = typeSet
		}
		for _, t := range req.Types {
			if !t.Valid() {
				return Result{}, fmt.Errorf("fx: unsupported rate type %q for pair %s", t, pair)
			}
			typeSet[t] = struct{}{}
		}
	}
	res.Gaps = make([]Gap, 0)
	keys := make([]string, 0, len(pairs))
	for pair := range pairs {
		keys = append(keys, pair)
	}
	sort.Strings(keys)
	for _, pair := range keys {
		base, quote, _ := strings.Cut(pair, "/")
		var missing, present []RateType
		for _, t := range sortedTypes(pairs[pair]) {
			ok, err := checker.QuoteAvailable(ctx, base, quote, t, res.AsOf)
			if err != nil {
				return Result{}, err
			}
			if ok {
				present = append(present, t)
			} else {
				missing = append(missing, t)
			}
		}
		res.Checked++
		if len(present) > 0 {
			res.Available[pair] = present
		}
		if len(missing) > 0 {
			res.Gaps = append(res.Gaps, Gap{Pair: pair, Types: missing})
		}
	}
	return res, nil
}

func sortedTypes(types map[RateType]struct{}) []RateType {
	out := make([]RateType, 0, len(types))
	for t := range types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i]) < string(out[j]) })
	return out
}
