package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
)

// IncomeStatementAccount is a revenue, COGS or expense line.
type IncomeStatementAccount struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// IncomeStatementSection groups accounts by nature.
type IncomeStatementSection struct {
	Label    string                   `json:"label"`
	Accounts []IncomeStatementAccount `json:"accounts"`
	Total    decimal.Decimal          `json:"total"`
}

// IncomeStatement covers the window between StartDate and EndDate inclusive.
type IncomeStatement struct {
	StartDate     time.Time              `json:"start_date"`
	EndDate       time.Time              `json:"end_date"`
	Revenue       IncomeStatementSection `json:"revenue"`
	COGS          IncomeStatementSection `json:"cost_of_goods_sold"`
	Expenses      IncomeStatementSection `json:"expenses"`
	GrossProfit   decimal.Decimal        `json:"gross_profit"`
	TotalExpenses decimal.Decimal        `json:"total_expenses"`
	NetIncome     decimal.Decimal        `json:"net_income"`
}

func newSection(label string) IncomeStatementSection {
	return IncomeStatementSection{Label: label, Accounts: []IncomeStatementAccount{}, Total: decimal.Zero}
}

func (s *IncomeStatementSection) add(acc AccountBalance, amount decimal.Decimal) {
	s.Accounts = append(s.Accounts, IncomeStatementAccount{Code: acc.Code, Name: acc.Name, Amount: amount})
	s.Total = s.Total.Add(amount)
}

// BuildIncomeStatement nets revenue as credits less debits and COGS and
// expenses as debits less credits.
func BuildIncomeStatement(start, end time.Time, balances []AccountBalance) IncomeStatement {
	revenue := newSection("Revenue")
	cogs := newSection("Cost of Goods Sold")
	expenses := newSection("Expenses")

	for _, acc := range balances {
		if !acc.HasActivity() {
			continue
		}
		switch acc.Type {
		case accounts.AccountTypeRevenue:
			revenue.add(acc, acc.Net().Neg())
		case accounts.AccountTypeCOGS:
			cogs.add(acc, acc.Net())
		case accounts.AccountTypeExpense:
			expenses.add(acc, acc.Net())
		}
	}

	for _, s := range []*IncomeStatementSection{&revenue, &cogs, &expenses} {
		sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].Code < s.Accounts[j].Code })
	}

	totalExpenses := cogs.Total.Add(expenses.Total)
	return IncomeStatement{
		StartDate:     start,
		EndDate:       end,
		Revenue:       revenue,
		COGS:          cogs,
		Expenses:      expenses,
		GrossProfit:   revenue.Total.Sub(cogs.Total),
		TotalExpenses: totalExpenses,
		NetIncome:     revenue.Total.Sub(totalExpenses),
	}
}

// NetIncome returns revenue less COGS and expenses over balances.
func NetIncome(balances []AccountBalance) decimal.Decimal {
	total := decimal.Zero
	for _, acc := range balances {
		switch acc.Type {
		case accounts.AccountTypeRevenue, accounts.AccountTypeCOGS, accounts.AccountTypeExpense:
			total = total.Sub(acc.Net())
		}
	}
	return total
}
