package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
)

// AccountBalance models a ledger account with aggregated activity.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net returns debits minus credits.
func (a AccountBalance) Net() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// HasActivity reports whether any amount was booked to the account.
func (a AccountBalance) HasActivity() bool {
	return !a.Debit.IsZero() || !a.Credit.IsZero()
}

var typeOrder = []accounts.AccountType{
	accounts.AccountTypeAsset,
	accounts.AccountTypeLiability,
	accounts.AccountTypeEquity,
	accounts.AccountTypeRevenue,
	accounts.AccountTypeCOGS,
	accounts.AccountTypeExpense,
}

// TrialBalanceAccount is a trial balance row. The net balance sits in the
// column of the larger side.
type TrialBalanceAccount struct {
	AccountID     int64           `json:"account_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Debits        decimal.Decimal `json:"total_debits"`
	Credits       decimal.Decimal `json:"total_credits"`
	DebitBalance  decimal.Decimal `json:"debit"`
	CreditBalance decimal.Decimal `json:"credit"`
}

// TrialBalanceGroup aggregates rows of one account type.
type TrialBalanceGroup struct {
	Type     accounts.AccountType  `json:"type"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// TrialBalance is the report as of a date.
type TrialBalance struct {
	AsOf        time.Time           `json:"as_of_date"`
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
	Balanced    bool                `json:"balanced"`
}

// BuildTrialBalance groups accounts with activity by type, ordered by code.
func BuildTrialBalance(asOf time.Time, balances []AccountBalance) TrialBalance {
	groups := make(map[accounts.AccountType]*TrialBalanceGroup)
	for _, acc := range balances {
		if !acc.HasActivity() {
			continue
		}
		grp, ok := groups[acc.Type]
		if !ok {
			grp = &TrialBalanceGroup{Type: acc.Type, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[acc.Type] = grp
		}
		row := TrialBalanceAccount{
			AccountID:     acc.AccountID,
			Code:          acc.Code,
			Name:          acc.Name,
			Debits:        acc.Debit,
			Credits:       acc.Credit,
			DebitBalance:  decimal.Zero,
			CreditBalance: decimal.Zero,
		}
		if net := acc.Net(); net.IsNegative() {
			row.CreditBalance = net.Neg()
		} else {
			row.DebitBalance = net
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.DebitBalance)
		grp.Credit = grp.Credit.Add(row.CreditBalance)
	}

	result := TrialBalance{AsOf: asOf, Groups: []TrialBalanceGroup{}, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, typ := range typeOrder {
		grp, ok := groups[typ]
		if !ok {
			continue
		}
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	result.Balanced = result.TotalDebit.Equal(result.TotalCredit)
	return result
}
