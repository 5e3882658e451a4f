package journals

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

func line(code, debit, credit string) LineInput {
	return LineInput{AccountCode: code, Debit: decimal.RequireFromString(debit), Credit: decimal.RequireFromString(credit)}
}

func TestValidateLines(t *testing.T) {
	cases := []struct {
		name  string
		lines []LineInput
		want  error
	}{
		{"single line", []LineInput{line("1000", "10", "0")}, shared.ErrTooFewLines},
		{"unbalanced", []LineInput{line("1000", "1000", "0"), line("4000", "0", "999")}, shared.ErrUnbalanced},
		{"both sides", []LineInput{line("1000", "10", "10"), line("4000", "0", "10")}, shared.ErrValidation},
		{"zero line", []LineInput{line("1000", "0", "0"), line("4000", "0", "0")}, shared.ErrValidation},
		{"negative", []LineInput{line("1000", "-5", "0"), line("4000", "0", "-5")}, shared.ErrValidation},
		{"precision", []LineInput{line("1000", "1.00001", "0"), line("4000", "0", "1.00001")}, shared.ErrValidation},
		{"no account", []LineInput{{Debit: decimal.NewFromInt(1)}, line("4000", "0", "1")}, shared.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateLines(tc.lines)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestValidateLinesReturnsDebitTotal(t *testing.T) {
	total, err := ValidateLines([]LineInput{
		line("1000", "600.25", "0"),
		line("1200", "399.75", "0"),
		line("4000", "0", "1000"),
	})
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(1000)))
}

func TestValidateLinesForeignCurrency(t *testing.T) {
	bad := line("1000", "10", "0")
	bad.ForeignCurrencyCode = "usd"
	_, err := ValidateLines([]LineInput{bad, line("4000", "0", "10")})
	assert.ErrorIs(t, err, shared.ErrValidation)

	orphan := line("1000", "10", "0")
	orphan.ExchangeRate = decimal.NewNullDecimal(decimal.NewFromInt(15000))
	_, err = ValidateLines([]LineInput{orphan, line("4000", "0", "10")})
	assert.ErrorIs(t, err, shared.ErrValidation)

	ok := line("1000", "10", "0")
	ok.ForeignCurrencyCode = "USD"
	ok.ForeignAmount = decimal.NewNullDecimal(decimal.RequireFromString("0.65"))
	ok.ExchangeRate = decimal.NewNullDecimal(decimal.RequireFromString("15.3846"))
	_, err = ValidateLines([]LineInput{ok, line("4000", "0", "10")})
	assert.NoError(t, err)
}

func TestCreateInputValidate(t *testing.T) {
	lines := []LineInput{line("1000", "1", "0"), line("4000", "0", "1")}
	assert.ErrorIs(t, CreateInput{Lines: lines}.Validate(), shared.ErrValidation)
	assert.ErrorIs(t, CreateInput{EntryDate: time.Now(), SourceID: "7", Lines: lines}.Validate(), shared.ErrValidation)
	assert.NoError(t, CreateInput{EntryDate: time.Now(), SourceModule: "SALES", SourceID: "7", Lines: lines}.Validate())
}

func TestNumbering(t *testing.T) {
	prefix := NumberPrefix(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "JE-20240229-", prefix)
	number := FormatNumber(prefix, 42)
	assert.Equal(t, "JE-20240229-00042", number)

	seq, ok := NumberSuffix(number, prefix)
	require.True(t, ok)
	assert.Equal(t, 42, seq)

	_, ok = NumberSuffix("JE-20240301-00001", prefix)
	assert.False(t, ok)
	_, ok = NumberSuffix(prefix+"abc", prefix)
	assert.False(t, ok)
}

func TestLedgerEffective(t *testing.T) {
	now := time.Now()
	assert.False(t, Entry{Status: StatusDraft}.LedgerEffective())
	assert.True(t, Entry{Status: StatusPosted, PostingDate: &now}.LedgerEffective())
	assert.True(t, Entry{Status: StatusVoid, PostingDate: &now}.LedgerEffective(), "voided originals keep their effect")
	assert.False(t, Entry{Status: StatusVoid}.LedgerEffective(), "discarded drafts never count")
}
