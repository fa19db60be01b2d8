package shared

import (
	"errors"
	"fmt"
)

// Period statuses shared by the calendar and the posting guard.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

type periodMove struct{ from, to string }

// periodMoves lists allowed changes and whether they need the reopen privilege.
var periodMoves = map[periodMove]bool{
	{PeriodStatusOpen, PeriodStatusClosed}: false,
	{PeriodStatusClosed, PeriodStatusOpen}: true,
}

// ValidatePeriodTransition reports whether a period may move from current to target.
// Staying in place is always allowed.
func ValidatePeriodTransition(current, target string, privileged bool) error {
	if current == target {
		return nil
	}
	needsPrivilege, known := periodMoves[periodMove{current, target}]
	if !known || (needsPrivilege && !privileged) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidPeriodTransition, current, target)
	}
	return nil
}
