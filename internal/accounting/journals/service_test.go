package journals_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	lt "github.com/odyssey-erp/odyssey-gl/internal/testing/ledgertest"
	"github.com/odyssey-erp/odyssey-gl/internal/testing/memstore"
)

type fixture struct {
	*lt.Ledger
	cash    accounts.Account
	revenue accounts.Account
	subCash accounts.Account
	header  accounts.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	l := lt.New(t)
	l.Month(t, nil, time.January)
	l.Month(t, nil, time.February)
	header := l.Account(t, nil, "1000", accounts.AccountTypeAsset, nil, false)
	return fixture{
		Ledger:  l,
		header:  header,
		cash:    l.Account(t, nil, "1100", accounts.AccountTypeAsset, &header.ID, true),
		revenue: l.Account(t, nil, "4000", accounts.AccountTypeRevenue, nil, true),
		subCash: l.Account(t, lt.Ptr(lt.SubsidiaryID), "1200", accounts.AccountTypeAsset, nil, true),
	}
}

func (f fixture) sale(amount string) journals.DraftInput {
	return lt.Draft(lt.Day(time.January, 15), lt.Debit(f.cash.ID, amount), lt.Credit(f.revenue.ID, amount))
}

func TestPostBalancedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.Journals.SubmitDraft(ctx, f.sale("100.00"))
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, draft.Status)
	require.NotZero(t, draft.Number)
	require.Len(t, draft.Lines, 2)
	require.Equal(t, 1, draft.Lines[0].LineNo)

	posted, err := f.Journals.Post(ctx, draft.ID, lt.ActorID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	require.Equal(t, lt.ActorID, *posted.PostedBy)

	stored, err := f.Journals.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusPosted, stored.Status)

	history, err := f.Audit.Collect(ctx, "journal_entry", strconv.FormatInt(draft.ID, 10))
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "journal.draft", history[0].Action)
	require.Equal(t, "journal.post", history[1].Action)
	require.Equal(t, "100", history[1].Meta["debit_total"])
}

func TestPostUnbalancedReportsTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.Journals.SubmitDraft(ctx, lt.Draft(lt.Day(time.January, 15),
		lt.Debit(f.cash.ID, "100.00"), lt.Credit(f.revenue.ID, "90.00")))
	require.NoError(t, err, "drafts may be unbalanced")

	_, err = f.Journals.Post(ctx, draft.ID, lt.ActorID)
	var unbalanced *shared.UnbalancedError
	require.ErrorAs(t, err, &unbalanced)
	require.True(t, unbalanced.DebitTotal.Equal(lt.Dec("100")))
	require.True(t, unbalanced.CreditTotal.Equal(lt.Dec("90")))
	require.Equal(t, "USD", unbalanced.Currency)
	require.Equal(t, shared.KindStateConflict, shared.KindOf(err))

	stored, err := f.Journals.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, stored.Status)
}

func TestSubmitDraftRejectsMalformedLines(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		line  journals.LineInput
		index int
	}{
		{"both sides", journals.LineInput{AccountID: f.cash.ID, Debit: lt.Dec("1"), Credit: lt.Dec("1")}, 1},
		{"no side", journals.LineInput{AccountID: f.cash.ID}, 1},
		{"negative", journals.LineInput{AccountID: f.cash.ID, Debit: lt.Dec("-5")}, 1},
		{"too precise", journals.LineInput{AccountID: f.cash.ID, Debit: lt.Dec("0.001")}, 1},
		{"missing account", journals.LineInput{Debit: lt.Dec("5")}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := lt.Draft(lt.Day(time.January, 15), lt.Credit(f.revenue.ID, "5"), tc.line)
			_, err := f.Journals.SubmitDraft(context.Background(), in)
			var malformed *shared.MalformedLineError
			require.ErrorAs(t, err, &malformed)
			require.Equal(t, tc.index, malformed.Index)
			require.ErrorIs(t, err, shared.ErrMalformedLine)
		})
	}
}

func TestSubmitDraftUsesCurrencyPrecision(t *testing.T) {
	f := newFixture(t)
	in := lt.Draft(lt.Day(time.January, 15), lt.Debit(f.cash.ID, "100.5"), lt.Credit(f.revenue.ID, "100.5"))
	in.Currency = "JPY"
	_, err := f.Journals.SubmitDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrMalformedLine)

	in.Currency = "XYZ"
	_, err = f.Journals.SubmitDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSubmitDraftRequiresOpenPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.Journals.SubmitDraft(ctx, lt.Draft(lt.Day(time.March, 3), lt.Debit(f.cash.ID, "1"), lt.Credit(f.revenue.ID, "1")))
	require.ErrorIs(t, err, shared.ErrPeriodClosedOrMissing)

	feb, err := f.Periods.PeriodFor(ctx, lt.ParentID, nil, lt.Day(time.February, 10))
	require.NoError(t, err)
	_, err = f.Periods.Close(ctx, feb.ID, lt.ActorID)
	require.NoError(t, err)
	_, err = f.Journals.SubmitDraft(ctx, lt.Draft(lt.Day(time.February, 10), lt.Debit(f.cash.ID, "1"), lt.Credit(f.revenue.ID, "1")))
	require.ErrorIs(t, err, shared.ErrPeriodClosedOrMissing)
}

func TestSubmitDraftExplicitPeriodMustContainDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	feb, err := f.Periods.PeriodFor(ctx, lt.ParentID, nil, lt.Day(time.February, 1))
	require.NoError(t, err)

	in := f.sale("10")
	in.PeriodID = &feb.ID
	_, err = f.Journals.SubmitDraft(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	in.PeriodID = lt.Ptr(int64(9999))
	_, err = f.Journals.SubmitDraft(ctx, in)
	require.ErrorIs(t, err, shared.ErrPeriodClosedOrMissing)
}

func TestPostFailsWhenPeriodClosedAfterDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.Journals.SubmitDraft(ctx, f.sale("50"))
	require.NoError(t, err)
	_, err = f.Periods.Close(ctx, draft.PeriodID, lt.ActorID)
	require.NoError(t, err)

	_, err = f.Journals.Post(ctx, draft.ID, lt.ActorID)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	stored, err := f.Journals.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, stored.Status)
}

func TestPostedEntryIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted := f.Post(t, f.sale("10"))

	_, err := f.Journals.Post(ctx, posted.ID, lt.ActorID)
	require.ErrorIs(t, err, shared.ErrEntryImmutable)
	_, err = f.Journals.Discard(ctx, posted.ID, lt.ActorID)
	require.ErrorIs(t, err, shared.ErrEntryImmutable)
	_, err = f.Journals.UpdateDraft(ctx, posted.ID, journals.UpdateInput{Memo: lt.Ptr("edited")})
	require.ErrorIs(t, err, shared.ErrEntryImmutable)
	_, err = f.Journals.AppendLines(ctx, posted.ID, []journals.LineInput{lt.Debit(f.cash.ID, "1")}, lt.ActorID)
	require.ErrorIs(t, err, shared.ErrEntryImmutable)

	discarded, err := f.Journals.SubmitDraft(ctx, f.sale("10"))
	require.NoError(t, err)
	_, err = f.Journals.Discard(ctx, discarded.ID, lt.ActorID)
	require.NoError(t, err)
	_, err = f.Journals.Post(ctx, discarded.ID, lt.ActorID)
	require.ErrorIs(t, err, shared.ErrEntryImmutable)
}

func TestSubmitDraftChecksAccountScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.Journals.SubmitDraft(ctx, lt.Draft(lt.Day(time.January, 15),
		lt.Debit(f.subCash.ID, "10"), lt.Credit(f.revenue.ID, "10")))
	var lineErr *shared.LineError
	require.ErrorAs(t, err, &lineErr)
	require.Equal(t, 0, lineErr.Index)
	require.ErrorIs(t, err, shared.ErrScopeMismatch)

	sub := lt.Draft(lt.Day(time.January, 15), lt.Debit(f.subCash.ID, "10"), lt.Credit(f.revenue.ID, "10"))
	sub.SubsidiaryID = lt.Ptr(lt.SubsidiaryID)
	sub.Currency = "EUR"
	_, err = f.Journals.SubmitDraft(ctx, sub)
	require.ErrorAs(t, err, &lineErr)
	require.Equal(t, 1, lineErr.Index, "the EUR subsidiary cannot book to USD company-wide accounts")
	require.ErrorIs(t, err, shared.ErrScopeMismatch)

	f.Store.AddSubsidiary(memstore.Subsidiary{ID: 77, CompanyID: lt.ParentID, Code: "US", Name: "US Sub", Currency: "USD", Active: true})
	local := f.sale("10")
	local.SubsidiaryID = lt.Ptr(int64(77))
	_, err = f.Journals.SubmitDraft(ctx, local)
	require.NoError(t, err, "company-wide accounts serve subsidiaries sharing the company currency")
}

func TestEntriesBookInLedgerCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.Post(t, f.sale("100"))

	yen := lt.Draft(lt.Day(time.January, 16), lt.Debit(f.cash.ID, "100"), lt.Credit(f.revenue.ID, "100"))
	yen.Currency = "JPY"
	_, err := f.Journals.SubmitDraft(ctx, yen)
	require.ErrorIs(t, err, shared.ErrScopeMismatch)

	eur := lt.Draft(lt.Day(time.January, 16), lt.Debit(f.subCash.ID, "40"), lt.Credit(f.subCash.ID, "40"))
	eur.SubsidiaryID = lt.Ptr(lt.SubsidiaryID)
	eur.Currency = "USD"
	_, err = f.Journals.SubmitDraft(ctx, eur)
	require.ErrorIs(t, err, shared.ErrScopeMismatch)

	bal, err := f.Accounts.RollupBalance(ctx, f.cash.ID, lt.Day(time.January, 31))
	require.NoError(t, err)
	require.True(t, bal.Net().Equal(lt.Dec("100")), "rollup holds USD only: %s", bal.Net())
}

func TestPostRejectsAccountsThatStoppedAcceptingPostings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.Journals.SubmitDraft(ctx, lt.Draft(lt.Day(time.January, 15),
		lt.Debit(f.header.ID, "10"), lt.Credit(f.revenue.ID, "10")))
	require.ErrorIs(t, err, shared.ErrAccountNotPostable)

	draft, err := f.Journals.SubmitDraft(ctx, f.sale("10"))
	require.NoError(t, err)
	_, err = f.Accounts.Deactivate(ctx, f.revenue.ID, lt.ActorID)
	require.NoError(t, err)
	_, err = f.Journals.Post(ctx, draft.ID, lt.ActorID)
	var lineErr *shared.LineError
	require.ErrorAs(t, err, &lineErr)
	require.Equal(t, 1, lineErr.Index)
	require.Equal(t, f.revenue.ID, lineErr.AccountID)
}

func TestSourceReferenceIsUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.sale("10")
	in.SourceModule, in.SourceRef = "AR", "INV-1"

	first, err := f.Journals.SubmitDraft(ctx, in)
	require.NoError(t, err)
	_, err = f.Journals.SubmitDraft(ctx, in)
	require.ErrorIs(t, err, shared.ErrDuplicateSource)

	_, err = f.Journals.Discard(ctx, first.ID, lt.ActorID)
	require.NoError(t, err)
	_, err = f.Journals.SubmitDraft(ctx, in)
	require.NoError(t, err, "discarding releases the reference")
}

func TestUpdateDraftAndAppendLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.Journals.SubmitDraft(ctx, lt.Draft(lt.Day(time.January, 15), lt.Debit(f.cash.ID, "30")))
	require.NoError(t, err)

	appended, err := f.Journals.AppendLines(ctx, draft.ID, []journals.LineInput{
		lt.Credit(f.revenue.ID, "20"), lt.Credit(f.revenue.ID, "10"),
	}, lt.ActorID)
	require.NoError(t, err)
	require.Len(t, appended.Lines, 3)
	require.Equal(t, 3, appended.Lines[2].LineNo)
	require.Equal(t, draft.Number, appended.Number)

	moved, err := f.Journals.UpdateDraft(ctx, draft.ID, journals.UpdateInput{
		EntryDate: lt.Ptr(lt.Day(time.February, 2)),
		Memo:      lt.Ptr("moved"),
		ActorID:   lt.ActorID,
	})
	require.NoError(t, err)
	require.NotEqual(t, draft.PeriodID, moved.PeriodID)
	require.Equal(t, "moved", moved.Memo)
	require.Len(t, moved.Lines, 3)
	require.Equal(t, draft.ExternalID, moved.ExternalID)

	posted, err := f.Journals.Post(ctx, draft.ID, lt.ActorID)
	require.NoError(t, err)
	require.Equal(t, moved.PeriodID, posted.PeriodID)

	history, err := f.Audit.Collect(ctx, "journal_entry", strconv.FormatInt(draft.ID, 10))
	require.NoError(t, err)
	actions := make([]string, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	require.Equal(t, []string{"journal.draft", "journal.append", "journal.update", "journal.post"}, actions)
}

func TestReverseSwapsSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.Post(t, f.sale("75.25"))

	reversal, err := f.Journals.Reverse(ctx, journals.ReverseInput{EntryID: original.ID, ActorID: lt.ActorID, TargetDate: lt.Ptr(lt.Day(time.February, 1))})
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, reversal.Status)
	require.Equal(t, original.ID, *reversal.ReversalOf)
	require.Equal(t, "GL:REVERSAL", reversal.SourceModule)
	require.Equal(t, original.ExternalID.String(), reversal.SourceRef)
	require.True(t, reversal.Lines[0].Credit.Equal(lt.Dec("75.25")))
	require.True(t, reversal.Lines[1].Debit.Equal(lt.Dec("75.25")))

	_, err = f.Journals.Reverse(ctx, journals.ReverseInput{EntryID: original.ID, ActorID: lt.ActorID})
	require.ErrorIs(t, err, shared.ErrDuplicateSource)

	_, err = f.Journals.Post(ctx, reversal.ID, lt.ActorID)
	require.NoError(t, err)
	bal, err := f.Accounts.RollupBalance(ctx, f.cash.ID, lt.Day(time.February, 28))
	require.NoError(t, err)
	require.True(t, bal.Net().IsZero())

	_, err = f.Journals.Reverse(ctx, journals.ReverseInput{EntryID: reversal.ID + 1000})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReverseRequiresPostedEntry(t *testing.T) {
	f := newFixture(t)
	draft, err := f.Journals.SubmitDraft(context.Background(), f.sale("5"))
	require.NoError(t, err)
	_, err = f.Journals.Reverse(context.Background(), journals.ReverseInput{EntryID: draft.ID})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestAuditFailureRollsBackTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.Journals.SubmitDraft(ctx, f.sale("10"))
	require.NoError(t, err)

	f.Store.FailAudit(true)
	_, err = f.Journals.Post(ctx, draft.ID, lt.ActorID)
	require.ErrorIs(t, err, shared.ErrDurability)
	require.Equal(t, shared.KindDurability, shared.KindOf(err))

	_, err = f.Journals.SubmitDraft(ctx, f.sale("20"))
	require.ErrorIs(t, err, shared.ErrDurability)
	f.Store.FailAudit(false)

	stored, err := f.Journals.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, stored.Status)
	list, err := f.Journals.List(ctx, journals.ListFilter{CompanyID: lt.ParentID})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestPostHonoursCancelledContext(t *testing.T) {
	f := newFixture(t)
	draft, err := f.Journals.SubmitDraft(context.Background(), f.sale("10"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Journals.Post(ctx, draft.ID, lt.ActorID)
	require.ErrorIs(t, err, context.Canceled)

	stored, err := f.Journals.Get(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, stored.Status)
}

func TestListNewestFirstWithPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.Post(t, f.sale("1"))
	}
	_, err := f.Journals.SubmitDraft(ctx, f.sale("2"))
	require.NoError(t, err)

	posted, err := f.Journals.List(ctx, journals.ListFilter{CompanyID: lt.ParentID, Status: journals.JournalStatusPosted})
	require.NoError(t, err)
	require.Len(t, posted, 3)
	require.Greater(t, posted[0].Number, posted[1].Number)
	require.Empty(t, posted[0].Lines)

	page, err := f.Journals.List(ctx, journals.ListFilter{CompanyID: lt.ParentID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	_, err = f.Journals.List(ctx, journals.ListFilter{})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObservePost(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestPostReportsOutcomeToObserver(t *testing.T) {
	f := newFixture(t)
	obs := &recordingObserver{}
	f.Journals.WithObserver(obs)
	ctx := context.Background()

	ok, err := f.Journals.SubmitDraft(ctx, f.sale("1"))
	require.NoError(t, err)
	_, err = f.Journals.Post(ctx, ok.ID, lt.ActorID)
	require.NoError(t, err)
	_, err = f.Journals.Post(ctx, ok.ID, lt.ActorID)
	require.Error(t, err)
	_, err = f.Journals.Post(ctx, 424242, lt.ActorID)
	require.True(t, errors.Is(err, shared.ErrNotFound))

	pending, err := f.Journals.SubmitDraft(ctx, f.sale("2"))
	require.NoError(t, err)
	gone, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.Journals.Post(gone, pending.ID, lt.ActorID)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, []string{"posted", "state_conflict", "lookup", "canceled"}, obs.outcomes)
}
