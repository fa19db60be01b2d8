package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
)

// FXValidateOptions defines available flags for the fx validate command.
type FXValidateOptions struct {
	AsOf       string
	Pairs      []string
	Types      []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// FXValidateSummary describes the JSON response for fx validate.
type FXValidateSummary struct {
	OK              bool                       `json:"ok"`
	AsOf            string                     `json:"as_of"`
	Gaps            []FXValidationGap          `json:"gaps"`
	AvailableQuotes []FXValidationAvailability `json:"available_quotes"`
}

// FXValidationGap captures a rate type that does not resolve for a pair.
type FXValidationGap struct {
	Pair string `json:"pair"`
	Type string `json:"type"`
}

// FXValidationAvailability reports a resolvable rate type.
type FXValidationAvailability struct {
	Pair string `json:"pair"`
	Type string `json:"type"`
}

// ValidateCommand checks that every requested rate resolves on the as-of date. It exits
// with 10 when gaps exist so schedulers can alert on it.
func (c *FXOpsCLI) ValidateCommand(ctx context.Context, opts FXValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	asOf, err := time.Parse(time.DateOnly, strings.TrimSpace(opts.AsOf))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fx validate: invalid -as-of %q (expected YYYY-MM-DD)\n", opts.AsOf)
		return 1
	}
	if len(opts.Pairs) == 0 {
		fmt.Fprintln(opts.Stderr, "fx validate: at least one -pair is required")
		return 1
	}
	types := []fx.RateType{fx.RateTypeConsolidation}
	if len(opts.Types) > 0 {
		types = types[:0]
		for _, t := range opts.Types {
			types = append(types, fx.RateType(strings.ToUpper(strings.TrimSpace(t))))
		}
	}
	reqs := make([]fx.Requirement, 0, len(opts.Pairs))
	for _, pair := range opts.Pairs {
		reqs = append(reqs, fx.Requirement{Pair: pair, Types: types})
	}
	result, err := fx.Validate(ctx, c.rates, asOf, reqs)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fx validate: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(buildValidateSummary(result)); err != nil {
			fmt.Fprintf(opts.Stderr, "fx validate: encode json: %v\n", err)
			return 1
		}
	} else {
		renderValidateHuman(opts.Stdout, result)
	}
	if len(result.Gaps) > 0 {
		return 10
	}
	return 0
}

func buildValidateSummary(result fx.Result) FXValidateSummary {
	gaps := make([]FXValidationGap, 0, len(result.Gaps))
	for _, gap := range result.Gaps {
		for _, t := range gap.Types {
			gaps = append(gaps, FXValidationGap{Pair: gap.Pair, Type: string(t)})
		}
	}
	available := make([]FXValidationAvailability, 0, len(result.Available))
	for pair, types := range result.Available {
		for _, t := range types {
			available = append(available, FXValidationAvailability{Pair: pair, Type: string(t)})
		}
	}
	sort.Slice(available, func(i, j int) bool {
		if available[i].Pair == available[j].Pair {
			return available[i].Type < available[j].Type
		}
		return available[i].Pair < available[j].Pair
	})
	return FXValidateSummary{
		OK:              len(gaps) == 0,
		AsOf:            result.AsOf.Format(time.DateOnly),
		Gaps:            gaps,
		AvailableQuotes: available,
	}
}

func renderValidateHuman(out io.Writer, result fx.Result) {
	fmt.Fprintf(out, "FX validation as of %s: %d pair(s) checked\n", result.AsOf.Format(time.DateOnly), result.Checked)
	if len(result.Gaps) == 0 {
		fmt.Fprintln(out, "All required rates resolve.")
		return
	}
	fmt.Fprintf(out, "%d gap(s) detected:\n", len(result.Gaps))
	for _, gap := range result.Gaps {
		missing := make([]string, len(gap.Types))
		for i, t := range gap.Types {
			missing[i] = string(t)
		}
		fmt.Fprintf(out, " - %s missing %s\n", gap.Pair, strings.Join(missing, ", "))
	}
}
