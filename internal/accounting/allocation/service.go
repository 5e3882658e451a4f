package allocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// SourceAllocation tags journal entries produced from allocation rules.
const SourceAllocation = "ALLOCATION"

// AccountPort resolves destination accounts.
type AccountPort interface {
	Get(ctx context.Context, tenantID, id int64) (accounts.Account, error)
	GetByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error)
}

// JournalPort creates draft entries from allocations.
type JournalPort interface {
	Create(ctx context.Context, tenantID int64, input journals.CreateInput) (journals.Entry, error)
}

// AuditPort records rule changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service manages allocation rules and applies them.
type Service struct {
	repo     Repository
	accounts AccountPort
	journals JournalPort
	audit    AuditPort
	now      func() time.Time
}

// NewService constructs the allocation service.
func NewService(repo Repository, accounts AccountPort, journals JournalPort, audit AuditPort) *Service {
	return &Service{repo: repo, accounts: accounts, journals: journals, audit: audit, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// buildDestinations resolves accounts and checks rule invariants.
func (s *Service) buildDestinations(ctx context.Context, tenantID int64, input RuleInput) ([]Destination, error) {
	if input.Name == "" {
		return nil, shared.Invalid("rule name required")
	}
	if input.Method != MethodPercentage && input.Method != MethodFixed {
		return nil, shared.Invalid("unknown allocation method %q", input.Method)
	}
	if len(input.Destinations) == 0 {
		return nil, shared.Invalid("rule requires at least one destination")
	}
	dests := make([]Destination, len(input.Destinations))
	for i, in := range input.Destinations {
		account, err := s.resolveAccount(ctx, tenantID, in.AccountID, in.AccountCode)
		if err != nil {
			return nil, fmt.Errorf("destination %d: %w", i+1, err)
		}
		if !account.IsActive {
			return nil, fmt.Errorf("destination %d account %s: %w", i+1, account.Code, shared.ErrAccountInactive)
		}
		seq := in.Sequence
		if seq == 0 {
			seq = i + 1
		}
		dests[i] = Destination{
			AccountID:   account.ID,
			AccountCode: account.Code,
			Percentage:  in.Percentage,
			FixedAmount: in.FixedAmount,
			Sequence:    seq,
			Description: in.Description,
			IsActive:    !in.Inactive,
		}
	}
	active := ActiveDestinations(Rule{Destinations: dests})
	if len(active) == 0 {
		return nil, shared.Invalid("rule requires at least one active destination")
	}
	if err := ValidateRule(input.Method, active); err != nil {
		return nil, err
	}
	return dests, nil
}

func (s *Service) resolveAccount(ctx context.Context, tenantID, id int64, code string) (accounts.Account, error) {
	if id != 0 {
		return s.accounts.Get(ctx, tenantID, id)
	}
	if code == "" {
		return accounts.Account{}, shared.Invalid("account required")
	}
	return s.accounts.GetByCode(ctx, tenantID, code)
}

// CreateRule stores a new active rule.
func (s *Service) CreateRule(ctx context.Context, tenantID int64, input RuleInput) (Rule, error) {
	dests, err := s.buildDestinations(ctx, tenantID, input)
	if err != nil {
		return Rule{}, err
	}
	var created Rule
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rule, err := tx.Insert(ctx, Rule{
			TenantID:    tenantID,
			Name:        input.Name,
			Description: input.Description,
			Method:      input.Method,
			IsActive:    true,
		})
		if err != nil {
			return err
		}
		rule.Destinations, err = tx.ReplaceDestinations(ctx, rule.ID, dests)
		if err != nil {
			return err
		}
		created = rule
		return nil
	})
	if err != nil {
		return Rule{}, err
	}
	s.record(ctx, created, input.ActorID, "allocation.create")
	return created, nil
}

// UpdateRule replaces the definition of a rule. Only the current version is
// applied to later runs.
func (s *Service) UpdateRule(ctx context.Context, tenantID, id int64, input RuleInput) (Rule, error) {
	dests, err := s.buildDestinations(ctx, tenantID, input)
	if err != nil {
		return Rule{}, err
	}
	var updated Rule
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rule, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		rule.Name = input.Name
		rule.Description = input.Description
		rule.Method = input.Method
		if err := tx.Update(ctx, rule); err != nil {
			return err
		}
		rule.Destinations, err = tx.ReplaceDestinations(ctx, rule.ID, dests)
		if err != nil {
			return err
		}
		updated = rule
		return nil
	})
	if err != nil {
		return Rule{}, err
	}
	s.record(ctx, updated, input.ActorID, "allocation.update")
	return updated, nil
}

// Deactivate disables a rule so it can no longer be applied.
func (s *Service) Deactivate(ctx context.Context, tenantID, id, actorID int64) (Rule, error) {
	var rule Rule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		current.IsActive = false
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		rule = current
		return nil
	})
	if err != nil {
		return Rule{}, err
	}
	s.record(ctx, rule, actorID, "allocation.deactivate")
	return rule, nil
}

// Get returns a rule with its destinations.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Rule, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns rules ordered by name.
func (s *Service) List(ctx context.Context, tenantID int64, includeInactive bool) ([]Rule, error) {
	return s.repo.List(ctx, tenantID, includeInactive)
}

// Apply allocates amount with the stored rule.
func (s *Service) Apply(ctx context.Context, tenantID, ruleID int64, amount decimal.Decimal) ([]Allocation, error) {
	rule, err := s.repo.Get(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	return Allocate(rule, amount)
}

// ApplyToJournal allocates the amount and drafts a balanced entry moving it
// from the source account to the destinations.
func (s *Service) ApplyToJournal(ctx context.Context, tenantID int64, input JournalInput) (journals.Entry, []Allocation, error) {
	if input.EntryDate.IsZero() {
		return journals.Entry{}, nil, shared.Invalid("entry date required")
	}
	if !input.Amount.IsPositive() {
		return journals.Entry{}, nil, shared.Invalid("allocation amount must be positive")
	}
	side := input.Side
	if side == "" {
		side = SideDebit
	}
	if side != SideDebit && side != SideCredit {
		return journals.Entry{}, nil, shared.Invalid("unknown side %q", side)
	}
	rule, err := s.repo.Get(ctx, tenantID, input.RuleID)
	if err != nil {
		return journals.Entry{}, nil, err
	}
	allocs, err := Allocate(rule, input.Amount)
	if err != nil {
		return journals.Entry{}, nil, err
	}
	source, err := s.resolveAccount(ctx, tenantID, input.SourceAccountID, input.SourceAccountCode)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			return journals.Entry{}, nil, shared.Invalid("source account required")
		}
		return journals.Entry{}, nil, err
	}
	lines := make([]journals.LineInput, 0, len(allocs)+1)
	for _, a := range allocs {
		if a.Amount.IsZero() {
			continue
		}
		line := journals.LineInput{AccountID: a.AccountID, Description: a.Description}
		if side == SideDebit {
			line.Debit = a.Amount
		} else {
			line.Credit = a.Amount
		}
		lines = append(lines, line)
	}
	sourceLine := journals.LineInput{AccountID: source.ID, Description: rule.Name}
	if side == SideDebit {
		sourceLine.Credit = input.Amount
	} else {
		sourceLine.Debit = input.Amount
	}
	lines = append(lines, sourceLine)
	description := input.Description
	if description == "" {
		description = "Allocation: " + rule.Name
	}
	entry, err := s.journals.Create(ctx, tenantID, journals.CreateInput{
		EntryDate:    input.EntryDate,
		Description:  description,
		Reference:    allocs[0].Reference,
		SourceModule: SourceAllocation,
		Lines:        lines,
		ActorID:      input.ActorID,
	})
	if err != nil {
		return journals.Entry{}, nil, err
	}
	return entry, allocs, nil
}

func (s *Service) record(ctx context.Context, rule Rule, actorID int64, action string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		TenantID:   rule.TenantID,
		ActorID:    actorID,
		Action:     action,
		EntityType: "allocation_rule",
		EntityID:   strconv.FormatInt(rule.ID, 10),
		Meta:       map[string]any{"method": string(rule.Method), "destinations": len(rule.Destinations), "active": rule.IsActive},
		At:         s.now(),
	})
}
