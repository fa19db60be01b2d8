package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// FXImportMode enumerates supported execution strategies.
type FXImportMode string

const (
	// FXImportModeDry previews the rows without applying them.
	FXImportModeDry FXImportMode = "dry"
	// FXImportModeApply appends the rows after confirmation.
	FXImportModeApply FXImportMode = "apply"
)

// FXImportOptions configures the fx import command.
type FXImportOptions struct {
	Source     string
	Mode       FXImportMode
	ActorID    int64
	JSONOutput bool
	AssumeYes  bool
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
	Confirm    Confirmer
}

// FXImportRow is one parsed rate.
type FXImportRow struct {
	Pair          string `json:"pair"`
	Type          string `json:"type"`
	EffectiveDate string `json:"effective_date"`
	Rate          string `json:"rate"`
}

// FXImportSummary captures the structured reporting outcome.
type FXImportSummary struct {
	Mode    FXImportMode  `json:"mode"`
	Source  string        `json:"source"`
	Rows    []FXImportRow `json:"rows"`
	Applied int           `json:"applied"`
}

// ImportCommand reads a rate CSV and appends every row. The whole file is validated before
// anything is written; rows already applied stay when a later row fails.
func (c *FXOpsCLI) ImportCommand(ctx context.Context, opts FXImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = FXImportModeDry
	}
	mode := FXImportMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case FXImportModeDry, FXImportModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "fx import: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}
	source := strings.TrimSpace(opts.Source)
	if source == "" {
		fmt.Fprintln(opts.Stderr, "fx import: -file is required (use - for stdin)")
		return 1
	}
	var reader io.Reader = opts.Stdin
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
			return 1
		}
		defer f.Close()
		reader = f
	}
	inputs, err := fx.ParseCSV(reader)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "%v\n", err)
		return 1
	}

	summary := FXImportSummary{Mode: mode, Source: source, Rows: make([]FXImportRow, len(inputs))}
	for i, in := range inputs {
		summary.Rows[i] = FXImportRow{
			Pair:          in.Base + "/" + in.Quote,
			Type:          string(in.Type),
			EffectiveDate: in.EffectiveDate.Format(time.DateOnly),
			Rate:          in.Rate.String(),
		}
	}
	if mode == FXImportModeDry || len(inputs) == 0 {
		return c.writeImport(opts, summary)
	}

	if !opts.AssumeYes {
		confirm := opts.Confirm
		if confirm == nil {
			confirm = ConfirmYes
		}
		ok, err := confirm(opts.Stdin, opts.Stderr, fmt.Sprintf("Append %d rate(s)?", len(inputs)))
		if err != nil {
			fmt.Fprintf(opts.Stderr, "fx import: confirmation failed: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(opts.Stderr, "fx import: cancelled by user")
			return 1
		}
	}
	for i, in := range inputs {
		in.ActorID = opts.ActorID
		if _, err := c.rates.AddRate(ctx, in); err != nil {
			fmt.Fprintf(opts.Stderr, "fx import: row %d (%s): %v\n", i+1, summary.Rows[i].Pair, err)
			summary.Applied = i
			c.recordImport(ctx, opts, summary)
			_ = c.writeImport(opts, summary)
			return 1
		}
	}
	summary.Applied = len(inputs)
	c.recordImport(ctx, opts, summary)
	return c.writeImport(opts, summary)
}

// recordImport notes who applied which file. Each rate already carries its own audit
// record, so a failure here is reported but does not fail the import.
func (c *FXOpsCLI) recordImport(ctx context.Context, opts FXImportOptions, summary FXImportSummary) {
	if c.audit == nil || summary.Applied == 0 {
		return
	}
	log, err := shared.NewAuditLog(opts.ActorID, "fx_import", summary.Source, "fx.import", nil, summary)
	if err == nil {
		log.Meta = map[string]any{"rows": len(summary.Rows), "applied": summary.Applied}
		err = c.audit.Record(ctx, log)
	}
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fx import: audit record failed: %v\n", err)
	}
}

func (c *FXOpsCLI) writeImport(opts FXImportOptions, summary FXImportSummary) int {
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "fx import: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(opts.Stdout, "FX import (%s) from %s: %d row(s)\n", summary.Mode, summary.Source, len(summary.Rows))
	for _, row := range summary.Rows {
		fmt.Fprintf(opts.Stdout, " - %s %s %s %s\n", row.Pair, row.Type, row.EffectiveDate, row.Rate)
	}
	if summary.Mode == FXImportModeApply {
		fmt.Fprintf(opts.Stdout, "Applied %d row(s).\n", summary.Applied)
	}
	return 0
}
