package journals

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// LineInput describes a journal line. The account is referenced by id, or by
// code when AccountID is zero.
type LineInput struct {
	AccountID           int64
	AccountCode         string
	Description         string
	Debit               decimal.Decimal
	Credit              decimal.Decimal
	ForeignCurrencyCode string
	ForeignAmount       decimal.NullDecimal
	ExchangeRate        decimal.NullDecimal
}

// CreateInput groups fields required to create a draft entry.
type CreateInput struct {
	EntryDate    time.Time
	Description  string
	Reference    string
	SourceModule string
	SourceID     string
	Lines        []LineInput
	ActorID      int64
}

// Validate checks the header and runs line validation.
func (in CreateInput) Validate() error {
	if in.EntryDate.IsZero() {
		return shared.Invalid("entry date required")
	}
	if in.SourceID != "" && in.SourceModule == "" {
		return shared.Invalid("source module required with source id")
	}
	_, err := ValidateLines(in.Lines)
	return err
}

// UpdateInput patches a draft. Nil Lines leaves lines untouched; otherwise
// they are replaced wholesale.
type UpdateInput struct {
	EntryDate   *time.Time
	Description *string
	Reference   *string
	Lines       []LineInput
	ActorID     int64
}

// VoidInput wraps parameters for voiding a posted entry.
type VoidInput struct {
	ActorID int64
	Reason  string
	// ReversalDate dates the generated reversal; the original date when nil.
	ReversalDate *time.Time
}

// ListFilter narrows journal listings.
type ListFilter struct {
	Status       Status
	From         *time.Time
	To           *time.Time
	SourceModule string
	SourceID     string
	Page         int
	PerPage      int
}

// ValidateLines enforces double entry: at least two lines, one positive side
// per line, four-digit precision and equal totals. It returns the debit total.
func ValidateLines(lines []LineInput) (decimal.Decimal, error) {
	if len(lines) < 2 {
		return decimal.Zero, shared.ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range lines {
		n := idx + 1
		if line.AccountID == 0 && line.AccountCode == "" {
			return decimal.Zero, shared.Invalid("line %d missing account", n)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return decimal.Zero, shared.Invalid("line %d negative amount", n)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return decimal.Zero, shared.Invalid("line %d must carry exactly one of debit or credit", n)
		}
		if shared.HasExcessPrecision(line.Debit) || shared.HasExcessPrecision(line.Credit) {
			return decimal.Zero, shared.Invalid("line %d exceeds %d decimal places", n, shared.AmountScale)
		}
		if err := validateForeign(line); err != nil {
			return decimal.Zero, fmt.Errorf("line %d: %w", n, err)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !shared.AmountsEqual(debit, credit) {
		return decimal.Zero, fmt.Errorf("debit %s credit %s: %w", debit.StringFixed(shared.AmountScale), credit.StringFixed(shared.AmountScale), shared.ErrUnbalanced)
	}
	return debit, nil
}

func validateForeign(line LineInput) error {
	if line.ForeignCurrencyCode == "" {
		if line.ForeignAmount.Valid || line.ExchangeRate.Valid {
			return shared.Invalid("foreign amount requires a currency code")
		}
		return nil
	}
	if !currencyCode.MatchString(line.ForeignCurrencyCode) {
		return shared.Invalid("invalid currency code %q", line.ForeignCurrencyCode)
	}
	if line.ExchangeRate.Valid && !line.ExchangeRate.Decimal.IsPositive() {
		return shared.Invalid("exchange rate must be positive")
	}
	return nil
}

// toLines numbers inputs densely from one.
func toLines(inputs []LineInput) []Line {
	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		lines[i] = Line{
			LineNumber:          i + 1,
			AccountID:           in.AccountID,
			AccountCode:         in.AccountCode,
			Description:         in.Description,
			Debit:               in.Debit,
			Credit:              in.Credit,
			ForeignCurrencyCode: in.ForeignCurrencyCode,
			ForeignAmount:       in.ForeignAmount,
			ExchangeRate:        in.ExchangeRate,
		}
	}
	return lines
}

// reversed swaps debit and credit on every line.
func reversed(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = Line{
			LineNumber:          i + 1,
			AccountID:           l.AccountID,
			AccountCode:         l.AccountCode,
			Description:         l.Description,
			Debit:               l.Credit,
			Credit:              l.Debit,
			ForeignCurrencyCode: l.ForeignCurrencyCode,
			ForeignAmount:       l.ForeignAmount,
			ExchangeRate:        l.ExchangeRate,
		}
	}
	return out
}
