package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pct(id int64, seq int, p string) Destination {
	return Destination{ID: id, AccountID: id * 10, Sequence: seq, Percentage: decimal.NewNullDecimal(dec(p)), IsActive: true}
}

func fixed(id int64, seq int, amount string) Destination {
	return Destination{ID: id, AccountID: id * 10, Sequence: seq, FixedAmount: decimal.NewNullDecimal(dec(amount)), IsActive: true}
}

func sum(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	return total
}

func TestAllocateThirds(t *testing.T) {
	rule := Rule{ID: 7, Method: MethodPercentage, IsActive: true, Destinations: []Destination{
		pct(1, 1, "33.33"), pct(2, 2, "33.33"), pct(3, 3, "33.34"),
	}}

	allocs, err := Allocate(rule, dec("1000"))
	require.NoError(t, err)
	require.Len(t, allocs, 3)
	assert.Equal(t, "333.3", allocs[0].Amount.String())
	assert.Equal(t, "333.3", allocs[1].Amount.String())
	assert.Equal(t, "333.4", allocs[2].Amount.String())
	assert.Equal(t, "ALLOC-7", allocs[0].Reference)
}

func TestAllocateResidueGoesLast(t *testing.T) {
	rule := Rule{Method: MethodPercentage, IsActive: true, Destinations: []Destination{
		pct(3, 3, "33.3333"), pct(1, 1, "33.3333"), pct(2, 2, "33.3334"),
	}}

	for _, amount := range []string{"0.01", "1", "100", "999.9999", "12345.6789"} {
		allocs, err := Allocate(rule, dec(amount))
		require.NoError(t, err)
		assert.True(t, sum(allocs).Equal(dec(amount)), "shares of %s sum to %s", amount, sum(allocs))
		assert.Equal(t, int64(30), allocs[2].AccountID, "ordered by sequence")
		for _, a := range allocs[:2] {
			assert.False(t, shared.HasExcessPrecision(a.Amount))
		}
	}
}

func TestAllocateSkipsInactive(t *testing.T) {
	off := pct(2, 2, "40")
	off.IsActive = false
	rule := Rule{Method: MethodPercentage, IsActive: true, Destinations: []Destination{pct(1, 1, "50"), off, pct(3, 3, "50")}}

	allocs, err := Allocate(rule, dec("10"))
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, int64(10), allocs[0].AccountID)
	assert.Equal(t, int64(30), allocs[1].AccountID)
}

func TestAllocatePercentagesMustBeExact(t *testing.T) {
	rule := Rule{Method: MethodPercentage, IsActive: true, Destinations: []Destination{pct(1, 1, "50"), pct(2, 2, "49.99")}}
	_, err := Allocate(rule, dec("10"))
	require.ErrorIs(t, err, shared.ErrPercentagesNot100)
	assert.Equal(t, shared.KindPercentagesNot100, shared.KindOf(err))
}

func TestAllocateFixed(t *testing.T) {
	rule := Rule{Method: MethodFixed, IsActive: true, Destinations: []Destination{fixed(1, 1, "100"), fixed(2, 2, "200")}}

	allocs, err := Allocate(rule, dec("500"))
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, "100", allocs[0].Amount.String())
	assert.Equal(t, "400", allocs[1].Amount.String(), "last destination takes the remainder")

	_, err = Allocate(rule, dec("250"))
	require.ErrorIs(t, err, shared.ErrFixedExceedsInput)
}

func TestAllocateRejects(t *testing.T) {
	active := Rule{Method: MethodPercentage, IsActive: true, Destinations: []Destination{pct(1, 1, "100")}}

	_, err := Allocate(Rule{Method: MethodPercentage, Destinations: active.Destinations}, dec("1"))
	assert.ErrorIs(t, err, shared.ErrValidation, "inactive rule")
	_, err = Allocate(active, dec("-1"))
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = Allocate(active, dec("1.00001"))
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = Allocate(Rule{Method: MethodPercentage, IsActive: true}, dec("1"))
	assert.ErrorIs(t, err, shared.ErrValidation, "no destinations")
}

func TestValidateRule(t *testing.T) {
	assert.NoError(t, ValidateRule(MethodFixed, []Destination{fixed(1, 1, "1000000")}), "fixed totals are only bounded at apply time")
	assert.ErrorIs(t, ValidateRule(MethodFixed, []Destination{fixed(1, 1, "0.00001")}), shared.ErrValidation)
	assert.ErrorIs(t, ValidateRule(MethodPercentage, []Destination{{Sequence: 1, IsActive: true}}), shared.ErrValidation)
	assert.ErrorIs(t, ValidateRule("SPLIT", nil), shared.ErrValidation)
}
