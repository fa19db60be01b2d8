package http

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/consol"
)

func TestCSVStreamerFlushInterval(t *testing.T) {
	var buf bytes.Buffer
	streamer := newCSVStreamer(&buf)
	for i := 0; i < csvFlushEvery; i++ {
		if err := streamer.writeRow([]string{"row"}); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	if streamer.pendingLines != 0 {
		t.Fatalf("expected pending lines reset to 0, got %d", streamer.pendingLines)
	}
	if err := streamer.writeRow([]string{"next"}); err != nil {
		t.Fatalf("write row: %v", err)
	}
	if streamer.pendingLines != 1 {
		t.Fatalf("expected pending lines 1, got %d", streamer.pendingLines)
	}
	if err := streamer.Close(); err != nil {
		t.Fatalf("close streamer: %v", err)
	}
}

func TestWriteRunCSVIncludesMetadataContributionsAndTotals(t *testing.T) {
	sub := int64(7)
	run := consol.Run{
		ParentCompanyID:   1,
		AsOf:              time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		ReportingCurrency: "USD",
		LedgerWatermark:   12,
		RateVersion:       4,
		Members: []consol.Member{
			{CompanyID: 1, Currency: "USD"},
			{CompanyID: 1, SubsidiaryID: &sub, Currency: "EUR"},
		},
		Records: []consol.Record{{
			AccountCode: "1000",
			AccountName: "Cash",
			AccountType: "ASSET",
			Amount:      decimal.RequireFromString("210.00"),
			Contributions: []consol.Contribution{
				{Member: "company:1", Currency: "USD", LocalAmount: decimal.RequireFromString("100"), Rate: decimal.NewFromInt(1), Amount: decimal.RequireFromString("100.00")},
				{Member: "subsidiary:7", Currency: "EUR", LocalAmount: decimal.RequireFromString("100"), Rate: decimal.RequireFromString("1.1"), Amount: decimal.RequireFromString("110.00")},
			},
		}},
		Totals: consol.Totals{Debit: decimal.RequireFromString("210.00"), Credit: decimal.Zero, Difference: decimal.RequireFromString("210.00")},
	}
	var buf bytes.Buffer
	if err := writeRunCSV(&buf, run); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# Report: Consolidated Trial Balance\r\n",
		"# Company: 1 | As of: 2024-03-31 | Currency: USD | Members: company:1,subsidiary:7\r\n",
		"# Ledger watermark: 12 | Rate version: 4\r\n",
		"1000,Cash,ASSET,subsidiary:7,EUR,100,1.1,110\r\n",
		"1000,Cash,ASSET,TOTAL,USD,,,210\r\n",
		"Totals,,,,USD,,Difference,210\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
