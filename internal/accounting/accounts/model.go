package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is one of the five account categories.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this type grow on the debit side.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account models a chart of accounts node. Accounts reference their parent by id only;
// the hierarchy is assembled by Chart.
type Account struct {
	ID           int64
	ExternalID   uuid.UUID
	CompanyID    int64
	SubsidiaryID *int64
	Code         string
	Name         string
	Type         AccountType
	Subtype      string
	ParentID     *int64
	Postable     bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanPost reports whether journal lines may reference the account.
func (a Account) CanPost() bool {
	return a.Postable && a.Active
}

// InScope reports whether a line scoped to (companyID, subsidiaryID) may use the account.
// Company-wide accounts serve every subsidiary; subsidiary accounts serve only their own.
func (a Account) InScope(companyID int64, subsidiaryID *int64) bool {
	if a.CompanyID != companyID {
		return false
	}
	if a.SubsidiaryID == nil {
		return true
	}
	return subsidiaryID != nil && *a.SubsidiaryID == *subsidiaryID
}

func sameScope(a, b Account) bool {
	if a.CompanyID != b.CompanyID {
		return false
	}
	if a.SubsidiaryID == nil || b.SubsidiaryID == nil {
		return a.SubsidiaryID == nil && b.SubsidiaryID == nil
	}
	return *a.SubsidiaryID == *b.SubsidiaryID
}

// Balance holds posted debit and credit totals.
type Balance struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Add returns the side-wise sum.
func (b Balance) Add(o Balance) Balance {
	return Balance{Debit: b.Debit.Add(o.Debit), Credit: b.Credit.Add(o.Credit)}
}

// Net is debit minus credit.
func (b Balance) Net() decimal.Decimal {
	return b.Debit.Sub(b.Credit)
}

// Natural expresses the balance on the normal side of t: debit minus credit for
// debit-normal types, credit minus debit otherwise.
func (b Balance) Natural(t AccountType) decimal.Decimal {
	if t.DebitNormal() {
		return b.Net()
	}
	return b.Net().Neg()
}

// CreateInput describes a new account.
type CreateInput struct {
	CompanyID    int64
	SubsidiaryID *int64
	Code         string
	Name         string
	Type         AccountType
	Subtype      string
	ParentID     *int64
	Postable     bool
	ActorID      int64
}

// ListFilter narrows account listings.
type ListFilter struct {
	CompanyID    int64
	SubsidiaryID *int64
	ActiveOnly   bool
}
