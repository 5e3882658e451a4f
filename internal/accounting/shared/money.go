package shared

import "github.com/shopspring/decimal"

// AmountScale is the number of fractional digits kept for amounts.
const AmountScale = 4

var (
	// Tolerance is the smallest representable amount difference.
	Tolerance = decimal.New(1, -AmountScale)
	// Hundred is used for percentage math.
	Hundred = decimal.NewFromInt(100)
	// ReportTolerance bounds rounding drift accepted by statement equations.
	ReportTolerance = decimal.New(1, -2)
)

// RoundAmount rounds d half away from zero to AmountScale digits.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// Floor4 rounds d toward negative infinity at AmountScale digits.
func Floor4(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(AmountScale)
}

// HasExcessPrecision reports whether d carries more than AmountScale digits.
func HasExcessPrecision(d decimal.Decimal) bool {
	return !d.Equal(d.Truncate(AmountScale))
}

// AmountsEqual compares two amounts under the posting tolerance. Amounts are
// held at four digits, so anything below Tolerance is equality.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Tolerance)
}

// WithinReportTolerance checks a statement equation that may accumulate rounding.
func WithinReportTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(ReportTolerance)
}
