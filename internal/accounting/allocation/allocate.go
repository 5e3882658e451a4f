package allocation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// ActiveDestinations returns the rule's active destinations ordered by
// sequence, ties broken by id.
func ActiveDestinations(rule Rule) []Destination {
	var active []Destination
	for _, d := range rule.Destinations {
		if d.IsActive {
			active = append(active, d)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Sequence != active[j].Sequence {
			return active[i].Sequence < active[j].Sequence
		}
		return active[i].ID < active[j].ID
	})
	return active
}

// Allocate splits amount across the rule's active destinations. The last
// destination absorbs the residue, so the shares always sum to amount.
func Allocate(rule Rule, amount decimal.Decimal) ([]Allocation, error) {
	if !rule.IsActive {
		return nil, shared.Invalid("allocation rule %q inactive", rule.Name)
	}
	if amount.IsNegative() {
		return nil, shared.Invalid("allocation amount must not be negative")
	}
	if shared.HasExcessPrecision(amount) {
		return nil, shared.Invalid("allocation amount exceeds %d decimal places", shared.AmountScale)
	}
	dests := ActiveDestinations(rule)
	if len(dests) == 0 {
		return nil, shared.Invalid("allocation rule %q has no active destinations", rule.Name)
	}
	if err := validateShares(rule.Method, dests, &amount); err != nil {
		return nil, err
	}
	reference := fmt.Sprintf("ALLOC-%d", rule.ID)
	out := make([]Allocation, len(dests))
	assigned := decimal.Zero
	for i, d := range dests {
		var share decimal.Decimal
		if rule.Method == MethodPercentage {
			share = shared.Floor4(amount.Mul(d.Percentage.Decimal).Div(shared.Hundred))
		} else {
			share = d.FixedAmount.Decimal
		}
		if i == len(dests)-1 {
			share = amount.Sub(assigned)
		}
		assigned = assigned.Add(share)
		out[i] = Allocation{
			AccountID:   d.AccountID,
			AccountCode: d.AccountCode,
			Amount:      share,
			Description: d.Description,
			Reference:   reference,
		}
	}
	return out, nil
}

// ValidateRule checks the stored shares of a rule independent of any amount.
func ValidateRule(method Method, dests []Destination) error {
	return validateShares(method, dests, nil)
}

// validateShares checks method invariants over active destinations. With a
// nil amount the fixed total is not compared against an input.
func validateShares(method Method, dests []Destination, amount *decimal.Decimal) error {
	switch method {
	case MethodPercentage:
		total := decimal.Zero
		for _, d := range dests {
			if !d.Percentage.Valid || d.Percentage.Decimal.IsNegative() {
				return shared.Invalid("destination %d requires a non-negative percentage", d.Sequence)
			}
			total = total.Add(d.Percentage.Decimal)
		}
		if !total.Equal(shared.Hundred) {
			return fmt.Errorf("sum %s: %w", total.String(), shared.ErrPercentagesNot100)
		}
	case MethodFixed:
		total := decimal.Zero
		for _, d := range dests {
			if !d.FixedAmount.Valid || d.FixedAmount.Decimal.IsNegative() {
				return shared.Invalid("destination %d requires a non-negative fixed amount", d.Sequence)
			}
			if shared.HasExcessPrecision(d.FixedAmount.Decimal) {
				return shared.Invalid("destination %d fixed amount exceeds %d decimal places", d.Sequence, shared.AmountScale)
			}
			total = total.Add(d.FixedAmount.Decimal)
		}
		if amount != nil && total.GreaterThan(*amount) {
			return fmt.Errorf("fixed total %s exceeds %s: %w", total.String(), amount.String(), shared.ErrFixedExceedsInput)
		}
	default:
		return shared.Invalid("unknown allocation method %q", method)
	}
	return nil
}
