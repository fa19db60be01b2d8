package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	lt "github.com/odyssey-erp/odyssey-gl/internal/testing/ledgertest"
)

type q1Ledger struct {
	*lt.Ledger
	q1      periods.Period
	cash    accounts.Account
	revenue accounts.Account
}

func newQ1Ledger(t *testing.T) q1Ledger {
	t.Helper()
	l := lt.New(t)
	q1, err := l.Periods.CreatePeriod(context.Background(), periods.CreateInput{
		CompanyID:  lt.ParentID,
		FiscalYear: 2025,
		Code:       "2025-Q1",
		StartDate:  lt.Day(time.January, 1),
		EndDate:    lt.Day(time.March, 31),
		ActorID:    lt.ActorID,
	})
	require.NoError(t, err)
	return q1Ledger{
		Ledger:  l,
		q1:      q1,
		cash:    l.Account(t, nil, "1000", accounts.AccountTypeAsset, nil, true),
		revenue: l.Account(t, nil, "4000", accounts.AccountTypeRevenue, nil, true),
	}
}

func (q q1Ledger) entry(credit string) journals.DraftInput {
	return lt.Draft(lt.Day(time.February, 1), lt.Debit(q.cash.ID, "100.00"), lt.Credit(q.revenue.ID, credit))
}

func TestScenarioBalancedEntryRollsUp(t *testing.T) {
	q := newQ1Ledger(t)
	ctx := context.Background()

	draft, err := q.Journals.SubmitDraft(ctx, q.entry("100.00"))
	require.NoError(t, err)
	require.Equal(t, q.q1.ID, draft.PeriodID)
	_, err = q.Journals.Post(ctx, draft.ID, lt.ActorID)
	require.NoError(t, err)

	bal, err := q.Accounts.RollupBalance(ctx, q.cash.ID, lt.Day(time.March, 31))
	require.NoError(t, err)
	require.True(t, bal.Natural(q.cash.Type).Equal(lt.Dec("100.00")), "got %s", bal.Natural(q.cash.Type))
}

func TestScenarioUnbalancedEntryStaysDraft(t *testing.T) {
	q := newQ1Ledger(t)
	ctx := context.Background()

	draft, err := q.Journals.SubmitDraft(ctx, q.entry("90.00"))
	require.NoError(t, err)
	_, err = q.Journals.Post(ctx, draft.ID, lt.ActorID)
	var unbalanced *shared.UnbalancedError
	require.ErrorAs(t, err, &unbalanced)
	require.Equal(t, "100", unbalanced.DebitTotal.String())
	require.Equal(t, "90", unbalanced.CreditTotal.String())

	stored, err := q.Journals.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, stored.Status)
}

func TestScenarioClosedPeriodRejectsPost(t *testing.T) {
	q := newQ1Ledger(t)
	ctx := context.Background()

	draft, err := q.Journals.SubmitDraft(ctx, q.entry("100.00"))
	require.NoError(t, err)
	_, err = q.Periods.Close(ctx, q.q1.ID, lt.ActorID)
	require.NoError(t, err)

	_, err = q.Journals.Post(ctx, draft.ID, lt.ActorID)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	bal, err := q.Accounts.RollupBalance(ctx, q.cash.ID, lt.Day(time.March, 31))
	require.NoError(t, err)
	require.True(t, bal.Net().IsZero())
}

// TestScenarioGroupConsolidation posts in the USD parent and the EUR subsidiary and
// consolidates the group in USD.
func TestScenarioGroupConsolidation(t *testing.T) {
	q := newQ1Ledger(t)
	ctx := context.Background()
	sub := lt.Ptr(lt.SubsidiaryID)
	subCash := q.Account(t, sub, "1000", accounts.AccountTypeAsset, nil, true)
	subRevenue := q.Account(t, sub, "4000", accounts.AccountTypeRevenue, nil, true)

	q.Post(t, q.entry("100.00"))
	subEntry := lt.Draft(lt.Day(time.February, 10), lt.Debit(subCash.ID, "200.00"), lt.Credit(subRevenue.ID, "200.00"))
	subEntry.SubsidiaryID = sub
	subEntry.Currency = "EUR"
	q.Post(t, subEntry)

	req := consol.Request{ParentCompanyID: lt.ParentID, AsOf: lt.Day(time.March, 31), ReportingCurrency: "usd"}
	_, err := q.Consol.Consolidate(ctx, req)
	require.ErrorIs(t, err, shared.ErrRateNotFound)

	q.Rate(t, "EUR", "USD", fx.RateTypeConsolidation, lt.Day(time.March, 1), "1.085")
	run, err := q.Consol.Consolidate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "USD", run.ReportingCurrency)
	require.Len(t, run.Members, 2)
	require.Len(t, run.Records, 2)

	cash := run.Records[0]
	require.Equal(t, "1000", cash.AccountCode)
	require.Equal(t, "317", cash.Amount.String())
	require.Len(t, cash.Contributions, 2)
	require.True(t, run.Totals.Difference.IsZero())

	saved, err := q.Consol.Refresh(ctx, req)
	require.NoError(t, err)
	latest, err := q.Consol.LatestRun(ctx, req)
	require.NoError(t, err)
	require.Equal(t, saved.ID, latest.ID)
}
