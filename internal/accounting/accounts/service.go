package accounts

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

// Repository persists accounts and answers posted-balance queries.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Account, error)
	List(ctx context.Context, filter ListFilter) ([]Account, error)
	// PostedTotals sums debit and credit of POSTED lines on ids dated on or before asOf.
	PostedTotals(ctx context.Context, ids []int64, asOf time.Time) (Balance, error)
}

// TxRepository exposes chart mutations inside one transaction.
type TxRepository interface {
	// LockChart serializes chart edits for a company until the transaction ends.
	LockChart(ctx context.Context, companyID int64) error
	List(ctx context.Context, filter ListFilter) ([]Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	Update(ctx context.Context, a Account) error
	HasPostings(ctx context.Context, id int64) (bool, error)
	RecordAudit(ctx context.Context, log internalShared.AuditLog) error
}

// Service owns the chart of accounts.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the account hierarchy service.
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

// Resolve returns the account or ErrNotFound.
func (s *Service) Resolve(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// IsPostable reports whether journal lines may reference id. Unknown ids are not postable.
func (s *Service) IsPostable(ctx context.Context, id int64) (bool, error) {
	a, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return a.CanPost(), nil
}

// List returns accounts matching filter ordered by code.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	if filter.CompanyID <= 0 {
		return nil, fmt.Errorf("company id: %w", shared.ErrInvalidInput)
	}
	return s.repo.List(ctx, filter)
}

// chartOf loads the full chart of the company owning id.
func (s *Service) chartOf(ctx context.Context, id int64) (*Chart, Account, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, Account{}, err
	}
	all, err := s.repo.List(ctx, ListFilter{CompanyID: a.CompanyID})
	if err != nil {
		return nil, Account{}, err
	}
	return NewChart(all), a, nil
}

// Ancestors returns the ancestors of id, root first.
func (s *Service) Ancestors(ctx context.Context, id int64) ([]Account, error) {
	chart, _, err := s.chartOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return chart.Ancestors(id)
}

// RollupBalance returns posted totals of id and all of its descendants as of asOf.
// Descendants share the account's scope, which CreateAccount and Reparent enforce.
func (s *Service) RollupBalance(ctx context.Context, id int64, asOf time.Time) (Balance, error) {
	chart, _, err := s.chartOf(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return s.repo.PostedTotals(ctx, chart.Subtree(id), asOf)
}

// CreateAccount validates and inserts a new account.
func (s *Service) CreateAccount(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Subtype = strings.TrimSpace(in.Subtype)
	if in.CompanyID <= 0 || in.Code == "" || in.Name == "" {
		return Account{}, fmt.Errorf("company, code and name required: %w", shared.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return Account{}, fmt.Errorf("account type %q: %w", in.Type, shared.ErrInvalidInput)
	}
	now := s.now()
	account := Account{
		ExternalID:   uuid.New(),
		CompanyID:    in.CompanyID,
		SubsidiaryID: in.SubsidiaryID,
		Code:         in.Code,
		Name:         in.Name,
		Type:         in.Type,
		Subtype:      in.Subtype,
		ParentID:     in.ParentID,
		Postable:     in.Postable,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		chart, err := lockedChart(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		if in.ParentID != nil {
			if err := s.checkParent(ctx, chart, account, *in.ParentID); err != nil {
				return err
			}
		}
		if chart.CodeTaken(account) {
			return fmt.Errorf("code %s: %w", account.Code, shared.ErrDuplicateCode)
		}
		inserted, err := tx.Insert(ctx, account)
		if err != nil {
			return err
		}
		account = inserted
		return recordAudit(ctx, tx, in.ActorID, "account.create", account.ID, nil, account, now)
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account created", slog.Int64("account_id", account.ID), slog.String("code", account.Code))
	return account, nil
}

// Reparent moves id below newParentID, or to the top level when newParentID is nil.
// The hierarchy is left unchanged on any error.
func (s *Service) Reparent(ctx context.Context, id int64, newParentID *int64, actorID int64) (Account, error) {
	var updated Account
	err := s.mutateTx(ctx, id, func(ctx context.Context, _ TxRepository, chart *Chart, before Account) (Account, error) {
		after := before
		after.ParentID = newParentID
		if newParentID != nil {
			if err := s.checkParent(ctx, chart, before, *newParentID); err != nil {
				return Account{}, err
			}
		}
		return after, nil
	}, actorID, "account.reparent", &updated)
	return updated, err
}

// SetPostable toggles the postable flag. Turning a used leaf into a header account fails
// with ErrAccountHasPostings; a postable account cannot keep children.
func (s *Service) SetPostable(ctx context.Context, id int64, postable bool, actorID int64) (Account, error) {
	var updated Account
	err := s.mutateTx(ctx, id, func(ctx context.Context, tx TxRepository, chart *Chart, before Account) (Account, error) {
		after := before
		after.Postable = postable
		if before.Postable && !postable {
			used, err := tx.HasPostings(ctx, id)
			if err != nil {
				return Account{}, err
			}
			if used {
				return Account{}, shared.ErrAccountHasPostings
			}
		}
		if postable && len(chart.Children(id)) > 0 {
			return Account{}, shared.ErrParentPostable
		}
		return after, nil
	}, actorID, "account.set_postable", &updated)
	return updated, err
}

// Deactivate soft-deletes an account. Inactive accounts stay in rollups but accept no new lines.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) (Account, error) {
	var updated Account
	err := s.mutate(ctx, id, func(_ *Chart, before Account) (Account, error) {
		after := before
		after.Active = false
		return after, nil
	}, actorID, "account.deactivate", &updated)
	return updated, err
}

// checkParent validates parentID against the locked chart. A parent missing from the chart
// may still exist under another company, which is a scope error rather than a missing row.
func (s *Service) checkParent(ctx context.Context, chart *Chart, child Account, parentID int64) error {
	err := chart.CheckParent(child, parentID)
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	other, getErr := s.repo.Get(ctx, parentID)
	switch {
	case errors.Is(getErr, shared.ErrNotFound):
		return err
	case getErr != nil:
		return getErr
	case other.CompanyID != child.CompanyID:
		return fmt.Errorf("parent %d belongs to company %d: %w", parentID, other.CompanyID, shared.ErrScopeMismatch)
	}
	return err
}

func (s *Service) mutate(ctx context.Context, id int64, change func(*Chart, Account) (Account, error), actorID int64, action string, out *Account) error {
	return s.mutateTx(ctx, id, func(_ context.Context, _ TxRepository, chart *Chart, before Account) (Account, error) {
		return change(chart, before)
	}, actorID, action, out)
}

func (s *Service) mutateTx(ctx context.Context, id int64, change func(context.Context, TxRepository, *Chart, Account) (Account, error), actorID int64, action string, out *Account) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		chart, err := lockedChart(ctx, tx, current.CompanyID)
		if err != nil {
			return err
		}
		before, ok := chart.Get(id)
		if !ok {
			return shared.ErrNotFound
		}
		after, err := change(ctx, tx, chart, before)
		if err != nil {
			return err
		}
		after.UpdatedAt = now
		if err := tx.Update(ctx, after); err != nil {
			return err
		}
		*out = after
		return recordAudit(ctx, tx, actorID, action, id, before, after, now)
	})
	if err != nil {
		return err
	}
	s.logger.Info("account updated", slog.Int64("account_id", id), slog.String("action", action))
	return nil
}

func lockedChart(ctx context.Context, tx TxRepository, companyID int64) (*Chart, error) {
	if err := tx.LockChart(ctx, companyID); err != nil {
		return nil, err
	}
	all, err := tx.List(ctx, ListFilter{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return NewChart(all), nil
}

func recordAudit(ctx context.Context, tx TxRepository, actorID int64, action string, id int64, before, after any, at time.Time) error {
	log, err := internalShared.NewAuditLog(actorID, "account", strconv.FormatInt(id, 10), action, before, after)
	if err != nil {
		return err
	}
	log.At = at
	if err := tx.RecordAudit(ctx, log); err != nil {
		return shared.Durable("record account audit", err)
	}
	return nil
}
