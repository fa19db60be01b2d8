package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies ledger failures so callers know whether input, state or configuration must change.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindStateConflict Kind = "STATE_CONFLICT"
	KindLookup        Kind = "LOOKUP"
	KindDurability    Kind = "DURABILITY"
	// KindCanceled marks work abandoned because the caller's context ended.
	KindCanceled Kind = "CANCELED"
)

var (
	// ErrInvalidInput indicates missing or malformed request fields.
	ErrInvalidInput = errors.New("accounting: invalid input")
	// ErrMalformedLine indicates a journal line with both or neither side set, or a negative amount.
	ErrMalformedLine = errors.New("accounting: malformed journal line")
	// ErrScopeMismatch indicates an account or period outside the requested company/subsidiary.
	ErrScopeMismatch = errors.New("accounting: scope mismatch")
	// ErrAccountNotPostable indicates a non-leaf or inactive account on a journal line.
	ErrAccountNotPostable = errors.New("accounting: account not postable")
	// ErrCycleDetected indicates a reparent that would make an account its own ancestor.
	ErrCycleDetected = errors.New("accounting: account hierarchy cycle detected")
	// ErrInvalidTypeNarrowing indicates a child type that does not refine the parent type.
	ErrInvalidTypeNarrowing = errors.New("accounting: invalid account type narrowing")
	// ErrParentPostable indicates an attempt to hang children below a postable leaf.
	ErrParentPostable = errors.New("accounting: parent account is postable")
	// ErrAccountHasPostings blocks turning a used postable account into a header account.
	ErrAccountHasPostings = errors.New("accounting: account has postings")
	// ErrDuplicateCode indicates an account code already used in the same scope.
	ErrDuplicateCode = errors.New("accounting: duplicate account code")
	// ErrPeriodOverlap indicates the requested period conflicts with an existing range.
	ErrPeriodOverlap = errors.New("accounting: period overlaps existing range")
	// ErrPeriodGap indicates a regular period that does not abut its neighbours.
	ErrPeriodGap = errors.New("accounting: period leaves a gap in the calendar")

	// ErrPeriodClosed indicates the entry's period was closed before posting.
	ErrPeriodClosed = errors.New("accounting: period closed")
	// ErrPeriodClosedOrMissing indicates no open period covers the entry date.
	ErrPeriodClosedOrMissing = errors.New("accounting: period closed or missing")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrEntryImmutable indicates a mutation against a posted or discarded entry.
	ErrEntryImmutable = errors.New("accounting: journal entry is immutable")
	// ErrDuplicateSource indicates the source module/reference already produced an entry.
	ErrDuplicateSource = errors.New("accounting: source document already linked")

	// ErrNotFound indicates a missing account, period, entry or currency.
	ErrNotFound = errors.New("accounting: not found")
	// ErrRateNotFound indicates no exchange rate resolves for the request.
	ErrRateNotFound = errors.New("accounting: exchange rate not found")
	// ErrOutOfCalendar indicates a date no fiscal period covers.
	ErrOutOfCalendar = errors.New("accounting: date outside fiscal calendar")

	// ErrDurability wraps storage and audit write failures.
	ErrDurability = errors.New("accounting: durable write failed")
)

// UnbalancedError carries the totals a caller needs to correct the entry.
type UnbalancedError struct {
	Currency    string
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance (debit %s, credit %s %s)",
		e.DebitTotal.String(), e.CreditTotal.String(), e.Currency)
}

func (e *UnbalancedError) Unwrap() error { return ErrUnbalanced }

// MalformedLineError identifies the offending line by its zero-based index.
type MalformedLineError struct {
	Index  int
	Reason string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("accounting: line %d malformed: %s", e.Index, e.Reason)
}

func (e *MalformedLineError) Unwrap() error { return ErrMalformedLine }

// LineError attaches a line index to a validation failure such as ErrAccountNotPostable.
type LineError struct {
	Index     int
	AccountID int64
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d account %d: %v", e.Index, e.AccountID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Durable wraps a storage failure so it classifies as KindDurability.
func Durable(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindDurability {
		return err
	}
	if errors.Is(err, ErrDurability) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDurability, op, err)
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindValidation},
	{ErrMalformedLine, KindValidation},
	{ErrScopeMismatch, KindValidation},
	{ErrAccountNotPostable, KindValidation},
	{ErrCycleDetected, KindValidation},
	{ErrInvalidTypeNarrowing, KindValidation},
	{ErrParentPostable, KindValidation},
	{ErrAccountHasPostings, KindValidation},
	{ErrDuplicateCode, KindValidation},
	{ErrPeriodOverlap, KindValidation},
	{ErrPeriodGap, KindValidation},
	{ErrPeriodClosed, KindStateConflict},
	{ErrPeriodClosedOrMissing, KindStateConflict},
	{ErrUnbalanced, KindStateConflict},
	{ErrEntryImmutable, KindStateConflict},
	{ErrDuplicateSource, KindStateConflict},
	{ErrNotFound, KindLookup},
	{ErrRateNotFound, KindLookup},
	{ErrOutOfCalendar, KindLookup},
}

// KindOf classifies err. Unknown errors are treated as durability failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindDurability
}
