package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// JournalStatus enumerates journal lifecycle values. POSTED and DISCARDED are terminal.
type JournalStatus string

const (
	JournalStatusDraft     JournalStatus = "DRAFT"
	JournalStatusPosted    JournalStatus = "POSTED"
	JournalStatusDiscarded JournalStatus = "DISCARDED"
)

// Dimensions tags a line for multi-dimensional reporting.
type Dimensions struct {
	DepartmentID *int64 `json:"department_id,omitempty"`
	LocationID   *int64 `json:"location_id,omitempty"`
	ClassID      *int64 `json:"class_id,omitempty"`
}

// JournalEntry captures header metadata and its ordered lines.
type JournalEntry struct {
	ID           int64         `json:"id"`
	ExternalID   uuid.UUID     `json:"external_id"`
	Number       int64         `json:"number"`
	CompanyID    int64         `json:"company_id"`
	SubsidiaryID *int64        `json:"subsidiary_id,omitempty"`
	PeriodID     int64         `json:"period_id"`
	EntryDate    time.Time     `json:"entry_date"`
	Currency     string        `json:"currency"`
	Memo         string        `json:"memo,omitempty"`
	SourceModule string        `json:"source_module,omitempty"`
	SourceRef    string        `json:"source_ref,omitempty"`
	ReversalOf   *int64        `json:"reversal_of,omitempty"`
	Status       JournalStatus `json:"status"`
	CreatedBy    int64         `json:"created_by,omitempty"`
	PostedBy     *int64        `json:"posted_by,omitempty"`
	PostedAt     *time.Time    `json:"posted_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Lines        []JournalLine `json:"lines"`
}

// JournalLine stores a debit or a credit amount for an account.
type JournalLine struct {
	LineNo    int             `json:"line_no"`
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Dimensions
	Memo string `json:"memo,omitempty"`
}

// Totals sums both sides of the entry.
func (e JournalEntry) Totals() shared.Totals {
	var t shared.Totals
	for _, l := range e.Lines {
		t = t.Add(shared.Totals{Debit: l.Debit, Credit: l.Credit})
	}
	return t
}

// AccountIDs returns the distinct accounts referenced by the lines.
func (e JournalEntry) AccountIDs() []int64 {
	seen := make(map[int64]struct{}, len(e.Lines))
	ids := make([]int64, 0, len(e.Lines))
	for _, l := range e.Lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	return ids
}

// ListFilter narrows journal listings.
type ListFilter struct {
	CompanyID    int64
	SubsidiaryID *int64
	PeriodID     int64
	Status       JournalStatus
	Limit        int
	Offset       int
}

// LedgerCurrencies holds the functional currency of a company and of the ledger an entry
// books to. Scope equals Company for parent entries.
type LedgerCurrencies struct {
	Company string
	Scope   string
}
