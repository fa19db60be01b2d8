package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/jobs"
)

// PostedEntryTotals implements jobs.PostedLedger.
func (s *Store) PostedEntryTotals(ctx context.Context) ([]jobs.EntryTotals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []jobs.EntryTotals
	for _, e := range s.read().entries {
		if e.Status != journals.JournalStatusPosted {
			continue
		}
		totals := e.Totals()
		out = append(out, jobs.EntryTotals{
			EntryID:   e.ID,
			CompanyID: e.CompanyID,
			Number:    e.Number,
			Currency:  e.Currency,
			Lines:     len(e.Lines),
			Debit:     totals.Debit,
			Credit:    totals.Credit,
		})
	}
	slices.SortFunc(out, func(a, b jobs.EntryTotals) int { return cmp.Compare(a.EntryID, b.EntryID) })
	return out, nil
}
