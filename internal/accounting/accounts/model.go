package accounts

import (
	"sort"
	"time"

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
	AccountTypeCOGS      AccountType = "COGS"
)

// NormalBalance is the side on which increases are recorded.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense, AccountTypeCOGS:
		return true
	}
	return false
}

// NormalBalance derives the normal side from the account type.
func (t AccountType) NormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense, AccountTypeCOGS:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// Signed converts a debit/credit pair into a balance movement on the normal side.
func (n NormalBalance) Signed(debit, credit decimal.Decimal) decimal.Decimal {
	if n == NormalDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// Account models a chart of accounts node.
type Account struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	NormalBalance NormalBalance   `json:"normal_balance"`
	ParentID      *int64          `json:"parent_id,omitempty"`
	FullPath      string          `json:"full_path"`
	IsActive      bool            `json:"is_active"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Node is an account with its children, used for tree views.
type Node struct {
	Account
	Children []*Node `json:"children"`
}

// BalanceSummary is the result of a point-in-time balance query.
type BalanceSummary struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	AsOf      time.Time       `json:"as_of"`
	Balance   decimal.Decimal `json:"balance"`
	Debits    decimal.Decimal `json:"debits"`
	Credits   decimal.Decimal `json:"credits"`
}

// CreateInput carries the fields needed to create an account.
type CreateInput struct {
	Code       string
	Name       string
	Type       AccountType
	ParentCode string
	ActorID    int64
}

// UpdateInput patches an account. Nil fields are left unchanged; a non-nil
// empty ParentCode moves the account to the root.
type UpdateInput struct {
	Code       *string
	Name       *string
	ParentCode *string
	ActorID    int64
}

// ListFilter narrows account listings.
type ListFilter struct {
	IncludeInactive bool
	Type            AccountType
	Page            int
	PerPage         int
}

// BuildTree arranges accounts into a forest with siblings ordered by code.
func BuildTree(accounts []Account) []*Node {
	accounts = append([]Account(nil), accounts...)
	sort.SliceStable(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	nodes := make(map[int64]*Node, len(accounts))
	for _, a := range accounts {
		nodes[a.ID] = &Node{Account: a, Children: []*Node{}}
	}
	roots := make([]*Node, 0)
	for _, a := range accounts {
		node := nodes[a.ID]
		if a.ParentID != nil {
			if parent, ok := nodes[*a.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
