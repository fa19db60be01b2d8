package periods

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// checkPlacement validates candidate against the existing periods of its company/subsidiary
// scope. No two periods may overlap. A regular period must start the day after its
// predecessor ends and end the day before its successor starts, unless that neighbour is
// an adjusting period.
func checkPlacement(existing []Period, candidate Period) error {
	var prev, next *Period
	for i := range existing {
		p := existing[i]
		if p.Overlaps(candidate) {
			return fmt.Errorf("%s overlaps %s: %w", candidate.Code, p.Code, shared.ErrPeriodOverlap)
		}
		if candidate.Adjusting || p.FiscalYear != candidate.FiscalYear {
			continue
		}
		if p.EndDate.Before(candidate.StartDate) && (prev == nil || p.EndDate.After(prev.EndDate)) {
			prev = &existing[i]
		}
		if p.StartDate.After(candidate.EndDate) && (next == nil || p.StartDate.Before(next.StartDate)) {
			next = &existing[i]
		}
	}
	if prev != nil && !prev.Adjusting && !prev.EndDate.AddDate(0, 0, 1).Equal(candidate.StartDate) {
		return fmt.Errorf("%s does not follow %s: %w", candidate.Code, prev.Code, shared.ErrPeriodGap)
	}
	if next != nil && !next.Adjusting && !candidate.EndDate.AddDate(0, 0, 1).Equal(next.StartDate) {
		return fmt.Errorf("%s does not precede %s: %w", candidate.Code, next.Code, shared.ErrPeriodGap)
	}
	return nil
}
