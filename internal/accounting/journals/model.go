package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

const (
	// ReversalSuffix is appended to the source module of reversal entries.
	ReversalSuffix = ":REVERSAL"
	// SourceRecurring tags entries materialised from recurring schedules.
	SourceRecurring = "RECURRING"
)

// Entry captures a journal header and its lines.
type Entry struct {
	ID           int64           `json:"id"`
	TenantID     int64           `json:"tenant_id"`
	Number       string          `json:"entry_number"`
	EntryDate    time.Time       `json:"entry_date"`
	PostingDate  *time.Time      `json:"posting_date,omitempty"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference,omitempty"`
	SourceModule string          `json:"source_module,omitempty"`
	SourceID     string          `json:"source_id,omitempty"`
	Status       Status          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedBy    *int64          `json:"updated_by,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
	PostedBy     *int64          `json:"posted_by,omitempty"`
	VoidedBy     *int64          `json:"voided_by,omitempty"`
	VoidedAt     *time.Time      `json:"voided_at,omitempty"`
	Lines        []Line          `json:"lines"`
}

// LedgerEffective reports whether the entry's lines count towards balances.
// A posted entry keeps its effect after being voided; only a posted reversal
// neutralises it.
func (e Entry) LedgerEffective() bool {
	return e.PostingDate != nil && e.Status != StatusDraft
}

// Line stores the debit or credit amount for an account.
type Line struct {
	ID                  int64               `json:"id"`
	EntryID             int64               `json:"entry_id"`
	LineNumber          int                 `json:"line_number"`
	AccountID           int64               `json:"account_id"`
	AccountCode         string              `json:"account_code,omitempty"`
	Description         string              `json:"description,omitempty"`
	Debit               decimal.Decimal     `json:"debit_amount"`
	Credit              decimal.Decimal     `json:"credit_amount"`
	ForeignCurrencyCode string              `json:"foreign_currency_code,omitempty"`
	ForeignAmount       decimal.NullDecimal `json:"foreign_amount"`
	ExchangeRate        decimal.NullDecimal `json:"exchange_rate"`
}

// BalanceDrift reports an account whose cached balance disagrees with its lines.
type BalanceDrift struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Cached    decimal.Decimal `json:"cached"`
	Expected  decimal.Decimal `json:"expected"`
}

// AccountTotals aggregates ledger-effective activity for one account.
type AccountTotals struct {
	AccountID     int64
	Code          string
	NormalBalance string
	Cached        decimal.Decimal
	Debits        decimal.Decimal
	Credits       decimal.Decimal
}
