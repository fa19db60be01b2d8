package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
	lt "github.com/odyssey-erp/odyssey-gl/internal/testing/ledgertest"
)

const ratesCSV = `base,quote,type,effective_date,rate
EUR,USD,CONSOLIDATION,2025-01-15,1.0850
EUR,USD,SPOT,2025-01-30,1.0912
`

func writeRates(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rates.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func never(t *testing.T) Confirmer {
	return func(io.Reader, io.Writer, string) (bool, error) {
		t.Fatal("confirmation should not be requested")
		return false, nil
	}
}

func TestImportDryRunWritesNothing(t *testing.T) {
	l := lt.New(t)
	c, err := NewFXOpsCLI(l.FX)
	require.NoError(t, err)
	var out, errOut bytes.Buffer

	code := c.ImportCommand(context.Background(), FXImportOptions{
		Source: writeRates(t, ratesCSV), JSONOutput: true, Stdout: &out, Stderr: &errOut, Confirm: never(t),
	})
	require.Equal(t, 0, code, errOut.String())

	var summary FXImportSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Equal(t, FXImportModeDry, summary.Mode)
	require.Len(t, summary.Rows, 2)
	require.Equal(t, "EUR/USD", summary.Rows[0].Pair)
	require.Zero(t, summary.Applied)

	ok, err := l.FX.QuoteAvailable(context.Background(), "EUR", "USD", fx.RateTypeConsolidation, lt.Day(time.January, 31))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestImportApplyRequiresConfirmation(t *testing.T) {
	l := lt.New(t)
	c, err := NewFXOpsCLI(l.FX)
	require.NoError(t, err)
	var out, errOut bytes.Buffer

	code := c.ImportCommand(context.Background(), FXImportOptions{
		Source: "-", Mode: FXImportModeApply, ActorID: lt.ActorID,
		Stdin: strings.NewReader(ratesCSV), Stdout: &out, Stderr: &errOut,
		Confirm: func(io.Reader, io.Writer, string) (bool, error) { return false, nil },
	})
	require.Equal(t, 1, code)
	require.Contains(t, errOut.String(), "cancelled")

	out.Reset()
	code = c.ImportCommand(context.Background(), FXImportOptions{
		Source: writeRates(t, ratesCSV), Mode: FXImportModeApply, ActorID: lt.ActorID, AssumeYes: true,
		Stdout: &out, Stderr: &errOut, Confirm: never(t),
	})
	require.Equal(t, 0, code, errOut.String())
	require.Contains(t, out.String(), "Applied 2 row(s).")

	rate, err := l.FX.Rate(context.Background(), "EUR", "USD", fx.RateTypeConsolidation, lt.Day(time.January, 31))
	require.NoError(t, err)
	require.Equal(t, "1.085", rate.String())
}

func TestImportRejectsMalformedFile(t *testing.T) {
	l := lt.New(t)
	c, err := NewFXOpsCLI(l.FX)
	require.NoError(t, err)
	var out, errOut bytes.Buffer

	code := c.ImportCommand(context.Background(), FXImportOptions{
		Source: writeRates(t, "base,quote,type,effective_date,rate\nEUR,USD,SPOT,2025-01-30,-1\n"),
		Mode:   FXImportModeApply, AssumeYes: true, Stdout: &out, Stderr: &errOut,
	})
	require.Equal(t, 1, code)
	require.Contains(t, errOut.String(), "line 2")
	require.Empty(t, out.String())

	code = c.ImportCommand(context.Background(), FXImportOptions{Source: "x.csv", Mode: "later", Stderr: &errOut})
	require.Equal(t, 1, code)
}

type failingRates struct {
	added int
}

func (f *failingRates) AddRate(_ context.Context, in fx.RateInput) (fx.Rate, error) {
	if f.added == 1 {
		return fx.Rate{}, errors.New("database unavailable")
	}
	f.added++
	return fx.Rate{Base: in.Base, Quote: in.Quote}, nil
}

func (f *failingRates) QuoteAvailable(context.Context, string, string, fx.RateType, time.Time) (bool, error) {
	return false, nil
}

type memoryRecorder struct {
	logs []shared.AuditLog
}

func (m *memoryRecorder) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func TestImportStopsAtFirstFailedRow(t *testing.T) {
	rates := &failingRates{}
	c, err := NewFXOpsCLI(rates)
	require.NoError(t, err)
	recorder := &memoryRecorder{}
	c.WithRecorder(recorder)
	var out, errOut bytes.Buffer

	code := c.ImportCommand(context.Background(), FXImportOptions{
		Source: writeRates(t, ratesCSV), Mode: FXImportModeApply, AssumeYes: true, JSONOutput: true,
		Stdout: &out, Stderr: &errOut,
	})
	require.Equal(t, 1, code)
	require.Contains(t, errOut.String(), "row 2")
	var summary FXImportSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Equal(t, 1, summary.Applied)

	require.Len(t, recorder.logs, 1, "a partial import is still audited")
	require.Equal(t, "fx.import", recorder.logs[0].Action)
	require.Equal(t, 1, recorder.logs[0].Meta["applied"])
}

func TestValidateReportsGaps(t *testing.T) {
	l := lt.New(t)
	l.Rate(t, "EUR", "USD", fx.RateTypeConsolidation, lt.Day(time.January, 15), "1.085")
	c, err := NewFXOpsCLI(l.FX)
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	code := c.ValidateCommand(context.Background(), FXValidateOptions{
		AsOf: "2025-01-31", Pairs: []string{"EUR/USD"}, Stdout: &out, Stderr: &errOut,
	})
	require.Equal(t, 0, code, errOut.String())
	require.Contains(t, out.String(), "All required rates resolve.")

	out.Reset()
	code = c.ValidateCommand(context.Background(), FXValidateOptions{
		AsOf: "2025-01-31", Pairs: []string{"EURUSD", "JPY-USD"}, Types: []string{"consolidation", "spot"},
		JSONOutput: true, Stdout: &out, Stderr: &errOut,
	})
	require.Equal(t, 10, code)
	var summary FXValidateSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, "2025-01-31", summary.AsOf)
	require.Equal(t, []FXValidationAvailability{{Pair: "EUR/USD", Type: "CONSOLIDATION"}}, summary.AvailableQuotes)
	require.Len(t, summary.Gaps, 3)

	code = c.ValidateCommand(context.Background(), FXValidateOptions{AsOf: "31/01/2025", Pairs: []string{"EUR/USD"}, Stderr: &errOut})
	require.Equal(t, 1, code)
	code = c.ValidateCommand(context.Background(), FXValidateOptions{AsOf: "2025-01-31", Stderr: &errOut})
	require.Equal(t, 1, code)
}

func TestPeriodReopen(t *testing.T) {
	l := lt.New(t)
	ctx := context.Background()
	jan := l.Month(t, nil, time.January)
	_, err := l.Periods.Close(ctx, jan.ID, lt.ActorID)
	require.NoError(t, err)

	c, err := NewPeriodOpsCLI(l.Periods)
	require.NoError(t, err)
	var out, errOut bytes.Buffer

	code := c.ReopenCommand(ctx, PeriodReopenOptions{PeriodID: jan.ID, Reason: "late invoice", Stderr: &errOut})
	require.Equal(t, 1, code, "an operator is required")
	code = c.ReopenCommand(ctx, PeriodReopenOptions{PeriodID: jan.ID, ActorID: lt.ActorID, Stderr: &errOut})
	require.Equal(t, 1, code, "a reason is required")

	code = c.ReopenCommand(ctx, PeriodReopenOptions{
		PeriodID: jan.ID, ActorID: lt.ActorID, Reason: "late invoice",
		Stdin: strings.NewReader("YES\n"), Stdout: &out, Stderr: &errOut,
	})
	require.Equal(t, 0, code, errOut.String())
	require.Contains(t, out.String(), "is OPEN")

	p, err := l.Periods.Get(ctx, jan.ID)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusOpen, p.Status)
}

func TestConfirmYes(t *testing.T) {
	var prompt bytes.Buffer
	ok, err := ConfirmYes(strings.NewReader("yes\n"), &prompt, "Apply?")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, prompt.String(), "Type YES")

	ok, err = ConfirmYes(strings.NewReader(""), &prompt, "Apply?")
	require.NoError(t, err)
	require.False(t, ok)
}
