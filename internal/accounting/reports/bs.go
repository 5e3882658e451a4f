package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Synthetic equity lines carrying earnings not yet closed to equity accounts.
const (
	RetainedEarningsLabel   = "Retained Earnings"
	CurrentYearEarningLabel = "Current Year Earnings"
)

// BalanceSheetLine is a single statement line.
type BalanceSheetLine struct {
	Code   string          `json:"code,omitempty"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// BalanceSheetSection groups lines of one side of the equation.
type BalanceSheetSection struct {
	Label string             `json:"label"`
	Lines []BalanceSheetLine `json:"lines"`
	Total decimal.Decimal    `json:"total"`
}

// BalanceSheet is the statement of financial position as of a date.
type BalanceSheet struct {
	AsOf              time.Time           `json:"as_of_date"`
	FiscalYearStart   time.Time           `json:"fiscal_year_start"`
	Assets            BalanceSheetSection `json:"assets"`
	Liabilities       BalanceSheetSection `json:"liabilities"`
	Equity            BalanceSheetSection `json:"equity"`
	LiabilitiesEquity decimal.Decimal     `json:"total_liabilities_and_equity"`
	Balanced          bool                `json:"balanced"`
}

func newBSSection(label string) BalanceSheetSection {
	return BalanceSheetSection{Label: label, Lines: []BalanceSheetLine{}, Total: decimal.Zero}
}

func (s *BalanceSheetSection) add(line BalanceSheetLine) {
	s.Lines = append(s.Lines, line)
	s.Total = s.Total.Add(line.Amount)
}

// BuildBalanceSheet renders assets, liabilities and equity from cumulative
// balances up to asOf. Earnings booked before the fiscal year start go to
// retained earnings, the rest to current year earnings.
func BuildBalanceSheet(asOf, fiscalYearStart time.Time, cumulative, beforeYear []AccountBalance) BalanceSheet {
	assets := newBSSection("Assets")
	liabilities := newBSSection("Liabilities")
	equity := newBSSection("Equity")

	sorted := make([]AccountBalance, len(cumulative))
	copy(sorted, cumulative)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	for _, acc := range sorted {
		if !acc.HasActivity() {
			continue
		}
		line := BalanceSheetLine{Code: acc.Code, Name: acc.Name}
		switch acc.Type {
		case accounts.AccountTypeAsset:
			line.Amount = acc.Net()
			assets.add(line)
		case accounts.AccountTypeLiability:
			line.Amount = acc.Net().Neg()
			liabilities.add(line)
		case accounts.AccountTypeEquity:
			line.Amount = acc.Net().Neg()
			equity.add(line)
		}
	}

	retained := NetIncome(beforeYear)
	current := NetIncome(cumulative).Sub(retained)
	equity.add(BalanceSheetLine{Name: RetainedEarningsLabel, Amount: retained})
	equity.add(BalanceSheetLine{Name: CurrentYearEarningLabel, Amount: current})

	total := liabilities.Total.Add(equity.Total)
	return BalanceSheet{
		AsOf:              asOf,
		FiscalYearStart:   fiscalYearStart,
		Assets:            assets,
		Liabilities:       liabilities,
		Equity:            equity,
		LiabilitiesEquity: total,
		Balanced:          shared.WithinReportTolerance(assets.Total, total),
	}
}
