package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	reversalSuffix   = ":REVERSAL"
)

// PeriodResolver finds the fiscal period an entry belongs to.
type PeriodResolver interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
	PeriodFor(ctx context.Context, companyID int64, subsidiaryID *int64, date time.Time) (periods.Period, error)
}

// CurrencyResolver supplies the registered currency and its precision.
type CurrencyResolver interface {
	Currency(ctx context.Context, code string) (fx.Currency, error)
}

// Observer receives posting outcomes, typically for metrics.
type Observer interface {
	ObservePost(outcome string, elapsed time.Duration)
}

// Service implements the journal posting state machine.
type Service struct {
	repo       Repository
	periods    PeriodResolver
	currencies CurrencyResolver
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the posting engine.
func NewService(repo Repository, periods PeriodResolver, currencies CurrencyResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, periods: periods, currencies: currencies, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver attaches a posting observer.
func (s *Service) WithObserver(o Observer) {
	s.observer = o
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// List returns entry headers newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	if filter.CompanyID <= 0 {
		return nil, fmt.Errorf("company id: %w", shared.ErrInvalidInput)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// SubmitDraft validates and stores a proposed entry as DRAFT. Balance is not checked.
func (s *Service) SubmitDraft(ctx context.Context, in DraftInput) (JournalEntry, error) {
	entry, err := s.prepare(ctx, in)
	if err != nil {
		return JournalEntry{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkAccounts(ctx, tx, entry); err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		if inserted.SourceModule != "" {
			if err := tx.LinkSource(ctx, inserted.SourceModule, inserted.SourceRef, inserted.ID); err != nil {
				return err
			}
		}
		entry = inserted
		return recordAudit(ctx, tx, in.ActorID, "journal.draft", entry.ID, nil, entry, sourceMeta(entry), entry.CreatedAt)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.logger.Info("journal draft submitted", slog.Int64("entry_id", entry.ID), slog.Int64("number", entry.Number), slog.Int("lines", len(entry.Lines)))
	return entry, nil
}

// UpdateDraft replaces the date, period, memo or lines of a draft.
func (s *Service) UpdateDraft(ctx context.Context, id int64, in UpdateInput) (JournalEntry, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	if current.Status != JournalStatusDraft {
		return JournalEntry{}, immutable(current)
	}
	draft := DraftInput{
		CompanyID:    current.CompanyID,
		SubsidiaryID: current.SubsidiaryID,
		EntryDate:    current.EntryDate,
		Currency:     current.Currency,
		Memo:         current.Memo,
		SourceModule: current.SourceModule,
		SourceRef:    current.SourceRef,
		ActorID:      in.ActorID,
		reversalOf:   current.ReversalOf,
	}
	periodID := current.PeriodID
	draft.PeriodID = &periodID
	if in.EntryDate != nil {
		draft.EntryDate = *in.EntryDate
		if in.PeriodID == nil {
			draft.PeriodID = nil
		}
	}
	if in.PeriodID != nil {
		draft.PeriodID = in.PeriodID
	}
	if in.Memo != nil {
		draft.Memo = *in.Memo
	}
	if in.Lines != nil {
		draft.Lines = in.Lines
	} else {
		draft.Lines = lineInputs(current.Lines)
	}
	next, err := s.prepare(ctx, draft)
	if err != nil {
		return JournalEntry{}, err
	}
	return s.saveDraft(ctx, id, in.ActorID, "journal.update", next, func(locked JournalEntry) JournalEntry {
		next.ID = locked.ID
		next.ExternalID = locked.ExternalID
		next.Number = locked.Number
		next.CreatedBy = locked.CreatedBy
		next.CreatedAt = locked.CreatedAt
		return next
	})
}

// AppendLines adds lines to the end of a draft.
func (s *Service) AppendLines(ctx context.Context, id int64, lines []LineInput, actorID int64) (JournalEntry, error) {
	if len(lines) == 0 {
		return JournalEntry{}, fmt.Errorf("lines required: %w", shared.ErrInvalidInput)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	if current.Status != JournalStatusDraft {
		return JournalEntry{}, immutable(current)
	}
	cur, err := s.currency(ctx, current.Currency)
	if err != nil {
		return JournalEntry{}, err
	}
	for i, line := range lines {
		if err := validateLineShape(i, line, cur.Precision); err != nil {
			return JournalEntry{}, err
		}
	}
	extra := JournalEntry{CompanyID: current.CompanyID, SubsidiaryID: current.SubsidiaryID, Lines: toLines(1, lines)}
	return s.saveDraft(ctx, id, actorID, "journal.append", extra, func(locked JournalEntry) JournalEntry {
		next := locked
		next.Lines = append(append([]JournalLine(nil), locked.Lines...), toLines(len(locked.Lines)+1, lines)...)
		return next
	})
}

// saveDraft checks accounts of candidate, then rewrites the locked draft with build's result.
func (s *Service) saveDraft(ctx context.Context, id, actorID int64, action string, candidate JournalEntry, build func(JournalEntry) JournalEntry) (JournalEntry, error) {
	var entry JournalEntry
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status != JournalStatusDraft {
			return immutable(locked)
		}
		if err := checkAccounts(ctx, tx, candidate); err != nil {
			return err
		}
		next := build(locked)
		next.Status = JournalStatusDraft
		next.UpdatedAt = now
		if err := tx.SaveDraft(ctx, next); err != nil {
			return err
		}
		entry = next
		return recordAudit(ctx, tx, actorID, action, id, locked, next, nil, now)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Post validates a draft against the current chart and calendar and flips it to POSTED.
// The period row stays locked until commit, so a concurrent Close either waits or wins.
func (s *Service) Post(ctx context.Context, id, actorID int64) (JournalEntry, error) {
	started := s.now()
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draft, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, draft.PeriodID)
		if err != nil {
			return err
		}
		if draft.Status != JournalStatusDraft {
			return immutable(draft)
		}
		if !period.IsOpen() {
			return fmt.Errorf("period %s: %w", period.Code, shared.ErrPeriodClosed)
		}
		if len(draft.Lines) == 0 {
			return fmt.Errorf("entry %d has no lines: %w", id, shared.ErrInvalidInput)
		}
		if err := checkAccounts(ctx, tx, draft); err != nil {
			return err
		}
		totals := draft.Totals()
		if !totals.Balanced() {
			return &shared.UnbalancedError{Currency: draft.Currency, DebitTotal: totals.Debit, CreditTotal: totals.Credit}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now()
		posted := draft
		posted.Status = JournalStatusPosted
		posted.PostedAt = &now
		if actorID != 0 {
			posted.PostedBy = &actorID
		}
		posted.UpdatedAt = now
		if err := tx.SetStatus(ctx, posted); err != nil {
			return err
		}
		entry = posted
		meta := map[string]any{"number": posted.Number, "period_id": posted.PeriodID, "debit_total": totals.Debit.String()}
		return recordAudit(ctx, tx, actorID, "journal.post", id, statusOf(draft), statusOf(posted), meta, now)
	})
	s.observe(err, started)
	if err != nil {
		return JournalEntry{}, err
	}
	s.logger.Info("journal posted", slog.Int64("entry_id", entry.ID), slog.Int64("number", entry.Number), slog.Int64("period_id", entry.PeriodID))
	return entry, nil
}

// Discard soft-deletes a draft. A linked source reference is released.
func (s *Service) Discard(ctx context.Context, id, actorID int64) (JournalEntry, error) {
	var entry JournalEntry
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draft, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if draft.Status != JournalStatusDraft {
			return immutable(draft)
		}
		discarded := draft
		discarded.Status = JournalStatusDiscarded
		discarded.UpdatedAt = now
		if err := tx.SetStatus(ctx, discarded); err != nil {
			return err
		}
		if draft.SourceModule != "" {
			if err := tx.UnlinkSource(ctx, draft.SourceModule, draft.SourceRef); err != nil {
				return err
			}
		}
		entry = discarded
		return recordAudit(ctx, tx, actorID, "journal.discard", id, statusOf(draft), statusOf(discarded), nil, now)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Reverse drafts a compensating entry for a posted one with both sides swapped.
// The draft still has to be posted by the caller.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID <= 0 {
		return JournalEntry{}, fmt.Errorf("entry id required: %w", shared.ErrInvalidInput)
	}
	original, err := s.repo.Get(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if original.Status != JournalStatusPosted {
		return JournalEntry{}, fmt.Errorf("only posted entries can be reversed, entry %d is %s: %w", original.ID, original.Status, shared.ErrInvalidInput)
	}
	date := original.EntryDate
	if in.TargetDate != nil {
		date = *in.TargetDate
	}
	module := "GL"
	if original.SourceModule != "" {
		module = strings.TrimSuffix(original.SourceModule, reversalSuffix)
	}
	originalID := original.ID
	return s.SubmitDraft(ctx, DraftInput{
		CompanyID:    original.CompanyID,
		SubsidiaryID: original.SubsidiaryID,
		EntryDate:    date,
		Currency:     original.Currency,
		Memo:         defaultReversalMemo(strings.TrimSpace(in.Memo), original.Number),
		SourceModule: module + reversalSuffix,
		SourceRef:    original.ExternalID.String(),
		ActorID:      in.ActorID,
		Lines:        reverseLines(original.Lines),
		reversalOf:   &originalID,
	})
}

// prepare runs every check that does not need the draft row lock.
func (s *Service) prepare(ctx context.Context, in DraftInput) (JournalEntry, error) {
	if err := in.validateHeader(); err != nil {
		return JournalEntry{}, err
	}
	cur, err := s.currency(ctx, in.Currency)
	if err != nil {
		return JournalEntry{}, err
	}
	for i, line := range in.Lines {
		if err := validateLineShape(i, line, cur.Precision); err != nil {
			return JournalEntry{}, err
		}
	}
	date := shared.Day(in.EntryDate)
	period, err := s.resolvePeriod(ctx, in.CompanyID, in.SubsidiaryID, in.PeriodID, date)
	if err != nil {
		return JournalEntry{}, err
	}
	now := s.now()
	return JournalEntry{
		ExternalID:   uuid.New(),
		CompanyID:    in.CompanyID,
		SubsidiaryID: in.SubsidiaryID,
		PeriodID:     period.ID,
		EntryDate:    date,
		Currency:     cur.Code,
		Memo:         strings.TrimSpace(in.Memo),
		SourceModule: strings.TrimSpace(in.SourceModule),
		SourceRef:    strings.TrimSpace(in.SourceRef),
		ReversalOf:   in.reversalOf,
		Status:       JournalStatusDraft,
		CreatedBy:    in.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines:        toLines(1, in.Lines),
	}, nil
}

func (s *Service) currency(ctx context.Context, code string) (fx.Currency, error) {
	cur, err := s.currencies.Currency(ctx, code)
	if errors.Is(err, shared.ErrNotFound) {
		return fx.Currency{}, fmt.Errorf("currency %s not registered: %w", code, shared.ErrInvalidInput)
	}
	if err != nil {
		return fx.Currency{}, err
	}
	if !cur.Active {
		return fx.Currency{}, fmt.Errorf("currency %s inactive: %w", cur.Code, shared.ErrInvalidInput)
	}
	return cur, nil
}

// resolvePeriod picks the explicit period when given, otherwise the regular period
// covering date. Either way it must be open.
func (s *Service) resolvePeriod(ctx context.Context, companyID int64, subsidiaryID, periodID *int64, date time.Time) (periods.Period, error) {
	var (
		period periods.Period
		err    error
	)
	if periodID != nil {
		period, err = s.periods.Get(ctx, *periodID)
		if errors.Is(err, shared.ErrNotFound) {
			return periods.Period{}, fmt.Errorf("period %d: %w", *periodID, shared.ErrPeriodClosedOrMissing)
		}
		if err != nil {
			return periods.Period{}, err
		}
		if period.CompanyID != companyID || (period.SubsidiaryID != nil && !sameSubsidiary(period.SubsidiaryID, subsidiaryID)) {
			return periods.Period{}, fmt.Errorf("period %s: %w", period.Code, shared.ErrScopeMismatch)
		}
		if !period.Contains(date) {
			return periods.Period{}, fmt.Errorf("entry date %s outside period %s: %w", date.Format(time.DateOnly), period.Code, shared.ErrInvalidInput)
		}
	} else {
		period, err = s.periods.PeriodFor(ctx, companyID, subsidiaryID, date)
		if errors.Is(err, shared.ErrOutOfCalendar) {
			return periods.Period{}, fmt.Errorf("%s: %w", date.Format(time.DateOnly), shared.ErrPeriodClosedOrMissing)
		}
		if err != nil {
			return periods.Period{}, err
		}
	}
	if !period.IsOpen() {
		return periods.Period{}, fmt.Errorf("period %s is closed: %w", period.Code, shared.ErrPeriodClosedOrMissing)
	}
	return period, nil
}

func (s *Service) observe(err error, started time.Time) {
	if s.observer == nil {
		return
	}
	outcome := "posted"
	if err != nil {
		outcome = strings.ToLower(string(shared.KindOf(err)))
	}
	s.observer.ObservePost(outcome, s.now().Sub(started))
}

// checkAccounts requires the entry to be in its ledger's functional currency and every line
// account to exist, share the entry scope and accept postings. Balances are single-currency
// per account, so a subsidiary may book to company-wide accounts only when both ledgers
// share a currency.
func checkAccounts(ctx context.Context, tx TxRepository, entry JournalEntry) error {
	ledger, err := tx.LedgerCurrencies(ctx, entry.CompanyID, entry.SubsidiaryID)
	if err != nil {
		return err
	}
	if entry.Currency != ledger.Scope {
		return fmt.Errorf("entry currency %s differs from ledger currency %s: %w", entry.Currency, ledger.Scope, shared.ErrScopeMismatch)
	}
	if len(entry.Lines) == 0 {
		return nil
	}
	byID, err := tx.AccountsByID(ctx, entry.AccountIDs())
	if err != nil {
		return err
	}
	for i, line := range entry.Lines {
		acct, ok := byID[line.AccountID]
		switch {
		case !ok:
			return &shared.LineError{Index: i, AccountID: line.AccountID, Err: shared.ErrAccountNotPostable}
		case !acct.InScope(entry.CompanyID, entry.SubsidiaryID):
			return &shared.LineError{Index: i, AccountID: line.AccountID, Err: shared.ErrScopeMismatch}
		case acct.SubsidiaryID == nil && entry.Currency != ledger.Company:
			return &shared.LineError{Index: i, AccountID: line.AccountID, Err: shared.ErrScopeMismatch}
		case !acct.CanPost():
			return &shared.LineError{Index: i, AccountID: line.AccountID, Err: shared.ErrAccountNotPostable}
		}
	}
	return nil
}

func sameSubsidiary(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func immutable(e JournalEntry) error {
	return fmt.Errorf("entry %d is %s: %w", e.ID, e.Status, shared.ErrEntryImmutable)
}

func lineInputs(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Dimensions: l.Dimensions, Memo: l.Memo})
	}
	return out
}

type statusSnapshot struct {
	Status   JournalStatus `json:"status"`
	PostedBy *int64        `json:"posted_by,omitempty"`
	PostedAt *time.Time    `json:"posted_at,omitempty"`
}

func statusOf(e JournalEntry) statusSnapshot {
	return statusSnapshot{Status: e.Status, PostedBy: e.PostedBy, PostedAt: e.PostedAt}
}

func sourceMeta(e JournalEntry) map[string]any {
	if e.SourceModule == "" && e.ReversalOf == nil {
		return nil
	}
	meta := map[string]any{}
	if e.SourceModule != "" {
		meta["source_module"] = e.SourceModule
		meta["source_ref"] = e.SourceRef
	}
	if e.ReversalOf != nil {
		meta["reversal_of"] = *e.ReversalOf
	}
	return meta
}

func recordAudit(ctx context.Context, tx TxRepository, actorID int64, action string, id int64, before, after any, meta map[string]any, at time.Time) error {
	log, err := internalShared.NewAuditLog(actorID, "journal_entry", strconv.FormatInt(id, 10), action, before, after)
	if err != nil {
		return err
	}
	log.Meta = meta
	log.At = at
	if err := tx.RecordAudit(ctx, log); err != nil {
		return shared.Durable("record journal audit", err)
	}
	return nil
}
