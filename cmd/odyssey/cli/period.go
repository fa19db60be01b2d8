package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
)

// PeriodReopener reopens closed periods.
type PeriodReopener interface {
	Reopen(ctx context.Context, id, actorID int64, reason string) (periods.Period, error)
}

// PeriodOpsCLI exposes the privileged period operations.
type PeriodOpsCLI struct {
	periods PeriodReopener
}

// NewPeriodOpsCLI constructs the helper.
func NewPeriodOpsCLI(p PeriodReopener) (*PeriodOpsCLI, error) {
	if p == nil {
		return nil, errors.New("period cli: period service required")
	}
	return &PeriodOpsCLI{periods: p}, nil
}

// PeriodReopenOptions configures the period reopen command.
type PeriodReopenOptions struct {
	PeriodID  int64
	ActorID   int64
	Reason    string
	AssumeYes bool
	Stdout    io.Writer
	Stderr    io.Writer
	Stdin     io.Reader
	Confirm   Confirmer
}

// ReopenCommand reopens a closed period on behalf of an identified operator.
func (c *PeriodOpsCLI) ReopenCommand(ctx context.Context, opts PeriodReopenOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.PeriodID <= 0 {
		fmt.Fprintln(opts.Stderr, "period reopen: -id is required and must be positive")
		return 1
	}
	if opts.ActorID <= 0 {
		fmt.Fprintln(opts.Stderr, "period reopen: -actor is required; reopening is attributed to an operator")
		return 1
	}
	if strings.TrimSpace(opts.Reason) == "" {
		fmt.Fprintln(opts.Stderr, "period reopen: -reason is required")
		return 1
	}
	if !opts.AssumeYes {
		confirm := opts.Confirm
		if confirm == nil {
			confirm = ConfirmYes
		}
		ok, err := confirm(opts.Stdin, opts.Stderr, fmt.Sprintf("Reopen period %d?", opts.PeriodID))
		if err != nil {
			fmt.Fprintf(opts.Stderr, "period reopen: confirmation failed: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(opts.Stderr, "period reopen: cancelled by user")
			return 1
		}
	}
	p, err := c.periods.Reopen(ctx, opts.PeriodID, opts.ActorID, opts.Reason)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "period reopen: %v\n", err)
		return 1
	}
	fmt.Fprintf(opts.Stdout, "Period %s (%d) is %s.\n", p.Code, p.ID, p.Status)
	return 0
}
