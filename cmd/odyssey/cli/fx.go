package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// RateService is the part of the currency service the fx commands drive.
type RateService interface {
	AddRate(ctx context.Context, in fx.RateInput) (fx.Rate, error)
	QuoteAvailable(ctx context.Context, base, quote string, t fx.RateType, date time.Time) (bool, error)
}

// AuditRecorder persists operator actions that happen outside a ledger transaction.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// FXOpsCLI offers operational helpers to manage the rates used by posting and consolidation.
type FXOpsCLI struct {
	rates RateService
	audit AuditRecorder
}

// NewFXOpsCLI constructs a new helper instance.
func NewFXOpsCLI(rates RateService) (*FXOpsCLI, error) {
	if rates == nil {
		return nil, errors.New("fx cli: rate service required")
	}
	return &FXOpsCLI{rates: rates}, nil
}

// WithRecorder records every applied import as one audit entry.
func (c *FXOpsCLI) WithRecorder(r AuditRecorder) {
	c.audit = r
}

// Confirmer asks the operator to approve a change.
type Confirmer func(r io.Reader, w io.Writer, prompt string) (bool, error)

// ConfirmYes requires the operator to type YES.
func ConfirmYes(r io.Reader, w io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(w, "%s Type YES to confirm: ", prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}
