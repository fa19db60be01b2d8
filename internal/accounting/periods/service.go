package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Repository persists fiscal periods.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Period, error)
	List(ctx context.Context, filter ListFilter) ([]Period, error)
	// FindCovering returns the regular period of exactly this scope whose range contains date.
	FindCovering(ctx context.Context, companyID int64, subsidiaryID *int64, date time.Time) (Period, error)
}

// TxRepository exposes period mutations inside one transaction.
type TxRepository interface {
	LockCalendar(ctx context.Context, companyID int64, subsidiaryID *int64) error
	GetForUpdate(ctx context.Context, id int64) (Period, error)
	ListScope(ctx context.Context, companyID int64, subsidiaryID *int64) ([]Period, error)
	Insert(ctx context.Context, p Period) (Period, error)
	UpdateStatus(ctx context.Context, p Period) error
	RecordAudit(ctx context.Context, log internalShared.AuditLog) error
}

// Service owns fiscal calendars.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the fiscal calendar service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns the period or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// List returns the periods of one calendar scope ordered by start date.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Period, error) {
	if filter.CompanyID <= 0 {
		return nil, fmt.Errorf("company id: %w", shared.ErrInvalidInput)
	}
	return s.repo.List(ctx, filter)
}

// PeriodFor resolves the regular period covering date. The subsidiary calendar is searched
// first, then the company calendar. Adjusting periods are never returned.
func (s *Service) PeriodFor(ctx context.Context, companyID int64, subsidiaryID *int64, date time.Time) (Period, error) {
	day := shared.Day(date)
	if subsidiaryID != nil {
		p, err := s.repo.FindCovering(ctx, companyID, subsidiaryID, day)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return Period{}, err
		}
	}
	p, err := s.repo.FindCovering(ctx, companyID, nil, day)
	if errors.Is(err, shared.ErrNotFound) {
		return Period{}, fmt.Errorf("company %d on %s: %w", companyID, day.Format(time.DateOnly), shared.ErrOutOfCalendar)
	}
	return p, err
}

// IsOpen reports whether the period accepts postings.
func (s *Service) IsOpen(ctx context.Context, id int64) (bool, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return p.IsOpen(), nil
}

// CreatePeriod inserts a new open period after validating its placement in the calendar.
func (s *Service) CreatePeriod(ctx context.Context, in CreateInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	now := s.now()
	period := Period{
		ExternalID:   uuid.New(),
		CompanyID:    in.CompanyID,
		SubsidiaryID: in.SubsidiaryID,
		FiscalYear:   in.FiscalYear,
		Code:         strings.TrimSpace(in.Code),
		Name:         strings.TrimSpace(in.Name),
		StartDate:    shared.Day(in.StartDate),
		EndDate:      shared.Day(in.EndDate),
		Adjusting:    in.Adjusting,
		Status:       PeriodStatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if period.Name == "" {
		period.Name = period.Code
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockCalendar(ctx, in.CompanyID, in.SubsidiaryID); err != nil {
			return err
		}
		existing, err := tx.ListScope(ctx, in.CompanyID, in.SubsidiaryID)
		if err != nil {
			return err
		}
		if err := checkPlacement(existing, period); err != nil {
			return err
		}
		inserted, err := tx.Insert(ctx, period)
		if err != nil {
			return err
		}
		period = inserted
		return recordAudit(ctx, tx, in.ActorID, "period.create", period.ID, nil, period, nil, now)
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period created", slog.Int64("period_id", period.ID), slog.String("code", period.Code))
	return period, nil
}

// Close marks the period closed. Closing an already closed period is a no-op. The period
// row stays locked until commit so concurrent postings either finish first or observe
// the closed status.
func (s *Service) Close(ctx context.Context, id, actorID int64) (Period, error) {
	var (
		period  Period
		changed bool
	)
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		before, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		period = before
		if before.Status == PeriodStatusClosed {
			return nil
		}
		if err := internalShared.ValidatePeriodTransition(string(before.Status), string(PeriodStatusClosed), false); err != nil {
			return err
		}
		period.Status = PeriodStatusClosed
		period.ClosedAt = &now
		if actorID != 0 {
			period.ClosedBy = &actorID
		}
		period.UpdatedAt = now
		if err := tx.UpdateStatus(ctx, period); err != nil {
			return err
		}
		changed = true
		return recordAudit(ctx, tx, actorID, "period.close", id, before, period, nil, now)
	})
	if err != nil {
		return Period{}, err
	}
	if changed {
		s.logger.Info("period closed", slog.Int64("period_id", id), slog.Int64("actor_id", actorID))
	}
	return period, nil
}

// Reopen moves a closed period back to open. It is a privileged operation: a reason is
// mandatory and recorded with the audit entry.
func (s *Service) Reopen(ctx context.Context, id, actorID int64, reason string) (Period, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Period{}, fmt.Errorf("reopen reason required: %w", shared.ErrInvalidInput)
	}
	var (
		period  Period
		changed bool
	)
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		before, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		period = before
		if before.Status == PeriodStatusOpen {
			return nil
		}
		if err := internalShared.ValidatePeriodTransition(string(before.Status), string(PeriodStatusOpen), true); err != nil {
			return err
		}
		period.Status = PeriodStatusOpen
		period.ClosedAt = nil
		period.ClosedBy = nil
		period.UpdatedAt = now
		if err := tx.UpdateStatus(ctx, period); err != nil {
			return err
		}
		changed = true
		return recordAudit(ctx, tx, actorID, "period.reopen", id, before, period, map[string]any{"reason": reason}, now)
	})
	if err != nil {
		return Period{}, err
	}
	if changed {
		s.logger.Warn("period reopened", slog.Int64("period_id", id), slog.Int64("actor_id", actorID), slog.String("reason", reason))
	}
	return period, nil
}

func recordAudit(ctx context.Context, tx TxRepository, actorID int64, action string, id int64, before, after any, meta map[string]any, at time.Time) error {
	log, err := internalShared.NewAuditLog(actorID, "fiscal_period", strconv.FormatInt(id, 10), action, before, after)
	if err != nil {
		return err
	}
	log.Meta = meta
	log.At = at
	if err := tx.RecordAudit(ctx, log); err != nil {
		return shared.Durable("record period audit", err)
	}
	return nil
}
