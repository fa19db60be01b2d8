package periods

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = internalShared.PeriodStatusOpen
	PeriodStatusClosed PeriodStatus = internalShared.PeriodStatusClosed
)

// Period represents a fiscal period window within a calendar. A calendar is the set of
// periods sharing company, subsidiary and fiscal year.
type Period struct {
	ID           int64
	ExternalID   uuid.UUID
	CompanyID    int64
	SubsidiaryID *int64
	FiscalYear   int
	Code         string
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	Adjusting    bool
	Status       PeriodStatus
	ClosedAt     *time.Time
	ClosedBy     *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsOpen reports whether the period accepts postings.
func (p Period) IsOpen() bool {
	return p.Status == PeriodStatusOpen
}

// Contains reports whether date falls inside the inclusive range.
func (p Period) Contains(date time.Time) bool {
	d := shared.Day(date)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// Overlaps reports whether the two inclusive ranges share a day.
func (p Period) Overlaps(o Period) bool {
	return !p.EndDate.Before(o.StartDate) && !o.EndDate.Before(p.StartDate)
}

// CreateInput captures a new period.
type CreateInput struct {
	CompanyID    int64
	SubsidiaryID *int64
	FiscalYear   int
	Code         string
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	Adjusting    bool
	ActorID      int64
}

// Validate ensures the input is coherent.
func (in CreateInput) Validate() error {
	if in.CompanyID <= 0 {
		return fmt.Errorf("company id required: %w", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("code required: %w", shared.ErrInvalidInput)
	}
	if in.FiscalYear <= 0 {
		return fmt.Errorf("fiscal year required: %w", shared.ErrInvalidInput)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("start and end date required: %w", shared.ErrInvalidInput)
	}
	if in.StartDate.After(in.EndDate) {
		return fmt.Errorf("start date after end date: %w", shared.ErrInvalidInput)
	}
	return nil
}

// ListFilter selects one calendar scope. A nil SubsidiaryID selects the company calendar.
type ListFilter struct {
	CompanyID    int64
	SubsidiaryID *int64
	FiscalYear   int
}
