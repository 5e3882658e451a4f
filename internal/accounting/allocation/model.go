package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method enumerates how a rule splits an amount.
type Method string

const (
	MethodPercentage Method = "PERCENTAGE"
	MethodFixed      Method = "FIXED"
)

// Destination is one receiving account of a rule.
type Destination struct {
	ID          int64               `json:"id"`
	RuleID      int64               `json:"rule_id"`
	AccountID   int64               `json:"account_id"`
	AccountCode string              `json:"account_code,omitempty"`
	Percentage  decimal.NullDecimal `json:"percentage"`
	FixedAmount decimal.NullDecimal `json:"fixed_amount"`
	Sequence    int                 `json:"sequence"`
	Description string              `json:"description,omitempty"`
	IsActive    bool                `json:"is_active"`
}

// Rule splits an amount across its active destinations.
type Rule struct {
	ID           int64         `json:"id"`
	TenantID     int64         `json:"tenant_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Method       Method        `json:"method"`
	IsActive     bool          `json:"is_active"`
	Destinations []Destination `json:"destinations"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Allocation is one share produced by Allocate.
type Allocation struct {
	AccountID   int64           `json:"account_id"`
	AccountCode string          `json:"account_code,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference"`
}

// DestinationInput describes a destination when defining a rule.
type DestinationInput struct {
	AccountID   int64
	AccountCode string
	Percentage  decimal.NullDecimal
	FixedAmount decimal.NullDecimal
	Sequence    int
	Description string
	// Inactive destinations are stored but skipped by Allocate.
	Inactive bool
}

// RuleInput defines or replaces a rule.
type RuleInput struct {
	Name         string
	Description  string
	Method       Method
	Destinations []DestinationInput
	ActorID      int64
}

// Side selects which side the destinations are booked on.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// JournalInput describes a draft entry distributing an amount from a source
// account to the rule's destinations.
type JournalInput struct {
	RuleID            int64
	Amount            decimal.Decimal
	SourceAccountID   int64
	SourceAccountCode string
	EntryDate         time.Time
	// Side is the side destinations are booked on; the source takes the other.
	Side        Side
	Description string
	ActorID     int64
}
