package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// LineInput describes a proposed journal line.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Dimensions
	Memo string
}

// DraftInput groups the fields of a proposed journal entry.
type DraftInput struct {
	CompanyID    int64
	SubsidiaryID *int64
	// PeriodID selects a period explicitly; required for adjusting periods, which are
	// never resolved from the entry date.
	PeriodID     *int64
	EntryDate    time.Time
	Currency     string
	Memo         string
	SourceModule string
	SourceRef    string
	ActorID      int64
	Lines        []LineInput

	reversalOf *int64
}

// UpdateInput replaces the mutable parts of a draft. Nil fields are kept.
type UpdateInput struct {
	EntryDate *time.Time
	PeriodID  *int64
	Memo      *string
	Lines     []LineInput
	ActorID   int64
}

// ReverseInput wraps parameters for a reversal draft.
type ReverseInput struct {
	EntryID    int64
	ActorID    int64
	TargetDate *time.Time
	Memo       string
}

func (in DraftInput) validateHeader() error {
	if in.CompanyID <= 0 {
		return fmt.Errorf("company id required: %w", shared.ErrInvalidInput)
	}
	if in.EntryDate.IsZero() {
		return fmt.Errorf("entry date required: %w", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Currency) == "" {
		return fmt.Errorf("currency required: %w", shared.ErrInvalidInput)
	}
	if (in.SourceModule == "") != (in.SourceRef == "") {
		return fmt.Errorf("source module and reference go together: %w", shared.ErrInvalidInput)
	}
	return nil
}

// validateLineShape enforces one non-negative nonzero side within currency precision.
func validateLineShape(idx int, line LineInput, precision int32) error {
	switch {
	case line.AccountID <= 0:
		return &shared.MalformedLineError{Index: idx, Reason: "account required"}
	case line.Debit.IsNegative() || line.Credit.IsNegative():
		return &shared.MalformedLineError{Index: idx, Reason: "negative amount"}
	case !line.Debit.IsZero() && !line.Credit.IsZero():
		return &shared.MalformedLineError{Index: idx, Reason: "both debit and credit set"}
	case line.Debit.IsZero() && line.Credit.IsZero():
		return &shared.MalformedLineError{Index: idx, Reason: "debit or credit required"}
	case !shared.WithinPrecision(line.Debit, precision) || !shared.WithinPrecision(line.Credit, precision):
		return &shared.MalformedLineError{Index: idx, Reason: fmt.Sprintf("more than %d decimal places", precision)}
	}
	return nil
}

func toLines(start int, in []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(in))
	for i, l := range in {
		out = append(out, JournalLine{
			LineNo:     start + i,
			AccountID:  l.AccountID,
			Debit:      l.Debit,
			Credit:     l.Credit,
			Dimensions: l.Dimensions,
			Memo:       strings.TrimSpace(l.Memo),
		})
	}
	return out
}

func reverseLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:  line.AccountID,
			Debit:      line.Credit,
			Credit:     line.Debit,
			Dimensions: line.Dimensions,
			Memo:       line.Memo,
		})
	}
	return out
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
