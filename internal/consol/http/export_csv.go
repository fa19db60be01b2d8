package http

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/consol"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return nil
}

func writeRunCSV(w io.Writer, run consol.Run) error {
	streamer := newCSVStreamer(w)
	if err := writeMetadata(streamer, run); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Account Code", "Account Name", "Type", "Member", "Currency", "Local Amount", "Rate", "Amount"}); err != nil {
		return err
	}
	for _, rec := range run.Records {
		for _, c := range rec.Contributions {
			if err := streamer.writeRow([]string{
				rec.AccountCode,
				rec.AccountName,
				rec.AccountType,
				c.Member,
				c.Currency,
				c.LocalAmount.String(),
				c.Rate.String(),
				c.Amount.String(),
			}); err != nil {
				return err
			}
		}
		if err := streamer.writeRow([]string{rec.AccountCode, rec.AccountName, rec.AccountType, "TOTAL", run.ReportingCurrency, "", "", rec.Amount.String()}); err != nil {
			return err
		}
	}
	if err := streamer.writeRow([]string{"", "", "", "", "", "", "", ""}); err != nil {
		return err
	}
	totalsRows := [][]string{
		{"Totals", "", "", "", run.ReportingCurrency, "", "Debit", run.Totals.Debit.String()},
		{"Totals", "", "", "", run.ReportingCurrency, "", "Credit", run.Totals.Credit.String()},
		{"Totals", "", "", "", run.ReportingCurrency, "", "Difference", run.Totals.Difference.String()},
	}
	for _, row := range totalsRows {
		if err := streamer.writeRow(row); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func writeMetadata(streamer *csvStreamer, run consol.Run) error {
	if err := streamer.writeComment("# Report: Consolidated Trial Balance"); err != nil {
		return err
	}
	members := make([]string, len(run.Members))
	for i, m := range run.Members {
		members[i] = m.Label()
	}
	if err := streamer.writeComment(fmt.Sprintf("# Company: %d | As of: %s | Currency: %s | Members: %s",
		run.ParentCompanyID, run.AsOf.Format(time.DateOnly), run.ReportingCurrency, strings.Join(members, ","))); err != nil {
		return err
	}
	return streamer.writeComment("# Ledger watermark: " + strconv.FormatInt(run.LedgerWatermark, 10) + " | Rate version: " + strconv.FormatInt(run.RateVersion, 10))
}
