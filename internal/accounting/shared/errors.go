package shared

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the ledger core. Specific errors wrap one of these
// so callers can branch with errors.Is on the kind.
var (
	// ErrValidation indicates malformed input or a missing required field.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrDuplicateCode indicates the account code already exists for the tenant.
	ErrDuplicateCode = errors.New("accounting: account code already exists")
	// ErrDuplicateEntryNumber indicates an entry number collision.
	ErrDuplicateEntryNumber = errors.New("accounting: journal entry number already exists")
	// ErrDuplicateSource indicates the source record is already linked to an entry.
	ErrDuplicateSource = errors.New("accounting: source already linked")
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("accounting: not found")
	// ErrAccountInactive indicates a referenced account was deactivated.
	ErrAccountInactive = errors.New("accounting: account inactive")
	// ErrInvalidStateTransition indicates the action can't proceed in the current status.
	ErrInvalidStateTransition = errors.New("accounting: invalid status transition")
	// ErrPeriodClosed indicates posting into a closed period.
	ErrPeriodClosed = errors.New("accounting: period closed")
	// ErrParentCycle indicates an account move would introduce a cycle.
	ErrParentCycle = errors.New("accounting: parent cycle detected")
	// ErrInUse indicates the account is referenced by posted lines or children.
	ErrInUse = errors.New("accounting: account in use")
	// ErrPercentagesNot100 indicates a percentage rule does not sum to 100.
	ErrPercentagesNot100 = errors.New("accounting: allocation percentages do not sum to 100")
	// ErrFixedExceedsInput indicates fixed allocations exceed the amount.
	ErrFixedExceedsInput = errors.New("accounting: fixed allocation amounts exceed input")
	// ErrNumberAllocation indicates entry number retries were exhausted.
	ErrNumberAllocation = errors.New("accounting: entry number allocation failed")
)

var (
	ErrAccountNotFound     = fmt.Errorf("accounting: account not found: %w", ErrNotFound)
	ErrParentNotFound      = fmt.Errorf("accounting: parent account not found: %w", ErrNotFound)
	ErrJournalNotFound     = fmt.Errorf("accounting: journal entry not found: %w", ErrNotFound)
	ErrPeriodNotFound      = fmt.Errorf("accounting: period not found: %w", ErrNotFound)
	ErrScheduleNotFound    = fmt.Errorf("accounting: recurring schedule not found: %w", ErrNotFound)
	ErrRuleNotFound        = fmt.Errorf("accounting: allocation rule not found: %w", ErrNotFound)
	ErrTooFewLines         = fmt.Errorf("accounting: journal requires at least two lines: %w", ErrValidation)
	ErrNoOpenPeriod        = fmt.Errorf("accounting: no period covers entry date: %w", ErrPeriodClosed)
	ErrPeriodOverlap       = fmt.Errorf("accounting: period overlaps existing range: %w", ErrValidation)
	ErrPeriodNotContiguous = fmt.Errorf("accounting: period must start the day after the previous period: %w", ErrValidation)
)

// Kind names an error category for transport mapping.
type Kind string

const (
	KindValidation             Kind = "ValidationFailed"
	KindUnbalanced             Kind = "UnbalancedEntry"
	KindDuplicateCode          Kind = "DuplicateCode"
	KindDuplicateEntryNumber   Kind = "DuplicateEntryNumber"
	KindDuplicateSource        Kind = "DuplicateSource"
	KindNotFound               Kind = "NotFound"
	KindAccountInactive        Kind = "AccountInactive"
	KindInvalidStateTransition Kind = "InvalidStateTransition"
	KindPeriodClosed           Kind = "PeriodClosed"
	KindParentCycle            Kind = "ParentCycleDetected"
	KindInUse                  Kind = "InUse"
	KindPercentagesNot100      Kind = "PercentagesDoNotSumTo100"
	KindFixedExceedsInput      Kind = "FixedAmountsExceedInput"
	KindNumberAllocation       Kind = "NumberAllocation"
	KindInternal               Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnbalanced, KindUnbalanced},
	{ErrPercentagesNot100, KindPercentagesNot100},
	{ErrFixedExceedsInput, KindFixedExceedsInput},
	{ErrValidation, KindValidation},
	{ErrDuplicateCode, KindDuplicateCode},
	{ErrDuplicateEntryNumber, KindDuplicateEntryNumber},
	{ErrDuplicateSource, KindDuplicateSource},
	{ErrNotFound, KindNotFound},
	{ErrAccountInactive, KindAccountInactive},
	{ErrInvalidStateTransition, KindInvalidStateTransition},
	{ErrPeriodClosed, KindPeriodClosed},
	{ErrParentCycle, KindParentCycle},
	{ErrInUse, KindInUse},
	{ErrNumberAllocation, KindNumberAllocation},
}

// KindOf classifies err into one of the ledger error kinds.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Invalid wraps a validation message as ErrValidation.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}
