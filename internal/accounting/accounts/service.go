package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// AuditPort records account changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service maintains the chart of accounts.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the account registry service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create inserts a new account under the optional parent.
func (s *Service) Create(ctx context.Context, tenantID int64, input CreateInput) (Account, error) {
	if tenantID == 0 {
		return Account{}, shared.Invalid("tenant required")
	}
	code := NormalizeCode(input.Code)
	if err := validateCode(code); err != nil {
		return Account{}, err
	}
	if input.Name == "" {
		return Account{}, shared.Invalid("account name required")
	}
	if !input.Type.Valid() {
		return Account{}, shared.Invalid("unknown account type %q", input.Type)
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account := Account{
			TenantID:      tenantID,
			Code:          code,
			Name:          input.Name,
			Type:          input.Type,
			NormalBalance: input.Type.NormalBalance(),
			IsActive:      true,
		}
		var parent *Account
		if input.ParentCode != "" {
			p, err := tx.GetByCode(ctx, tenantID, NormalizeCode(input.ParentCode))
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("parent %s: %w", input.ParentCode, shared.ErrParentNotFound)
				}
				return err
			}
			parent = &p
			account.ParentID = &p.ID
		}
		account.FullPath = fullPath(parent, code)
		inserted, err := tx.Insert(ctx, account)
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, created, input.ActorID, "account.create", map[string]any{"code": created.Code, "type": string(created.Type)})
	return created, nil
}

// Update patches code, name or parent. Code and parent changes rewrite the
// full path of the node and all descendants in the same transaction.
func (s *Service) Update(ctx context.Context, tenantID, id int64, input UpdateInput) (Account, error) {
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		next := current
		if input.Name != nil {
			if *input.Name == "" {
				return shared.Invalid("account name required")
			}
			next.Name = *input.Name
		}
		if input.Code != nil {
			code := NormalizeCode(*input.Code)
			if err := validateCode(code); err != nil {
				return err
			}
			next.Code = code
		}
		descendants, err := tx.Descendants(ctx, tenantID, id)
		if err != nil {
			return err
		}
		var parent *Account
		if input.ParentCode != nil {
			if *input.ParentCode == "" {
				next.ParentID = nil
			} else {
				p, err := tx.GetByCode(ctx, tenantID, NormalizeCode(*input.ParentCode))
				if err != nil {
					if errors.Is(err, shared.ErrNotFound) {
						return fmt.Errorf("parent %s: %w", *input.ParentCode, shared.ErrParentNotFound)
					}
					return err
				}
				if p.ID == id {
					return shared.ErrParentCycle
				}
				for _, d := range descendants {
					if d.ID == p.ID {
						return fmt.Errorf("parent %s is below %s: %w", p.Code, current.Code, shared.ErrParentCycle)
					}
				}
				parent = &p
				next.ParentID = &p.ID
			}
		} else if current.ParentID != nil {
			p, err := tx.GetForUpdate(ctx, tenantID, *current.ParentID)
			if err != nil {
				return err
			}
			parent = &p
		}
		next.FullPath = fullPath(parent, next.Code)
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		if next.FullPath != current.FullPath {
			paths := map[int64]string{id: next.FullPath}
			for _, d := range descendants {
				d.FullPath = paths[*d.ParentID] + "." + d.Code
				paths[d.ID] = d.FullPath
				if err := tx.Update(ctx, d); err != nil {
					return err
				}
			}
		}
		next.UpdatedAt = s.now()
		updated = next
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, updated, input.ActorID, "account.update", map[string]any{"code": updated.Code, "full_path": updated.FullPath})
	return updated, nil
}

// Deactivate hides the account from default listings. It is always permitted.
func (s *Service) Deactivate(ctx context.Context, tenantID, id, actorID int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		current.IsActive = false
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, account, actorID, "account.deactivate", nil)
	return account, nil
}

// Delete removes an account that has no children and no journal lines.
func (s *Service) Delete(ctx context.Context, tenantID, id, actorID int64) error {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		hasChildren, err := tx.HasChildren(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if hasChildren {
			return fmt.Errorf("account %s has children: %w", current.Code, shared.ErrInUse)
		}
		hasLines, err := tx.HasJournalLines(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if hasLines {
			return fmt.Errorf("account %s has journal lines: %w", current.Code, shared.ErrInUse)
		}
		account = current
		return tx.Delete(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, account, actorID, "account.delete", map[string]any{"code": account.Code})
	return nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Account, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// GetByCode returns an account by its code.
func (s *Service) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return s.repo.GetByCode(ctx, tenantID, NormalizeCode(code))
}

// List returns a page of accounts ordered by code.
func (s *Service) List(ctx context.Context, tenantID int64, filter ListFilter) ([]Account, internalShared.Pagination, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, internalShared.Pagination{}, shared.Invalid("unknown account type %q", filter.Type)
	}
	filter.Page, filter.PerPage = internalShared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return items, internalShared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Tree returns the chart of accounts as a forest ordered by code at every level.
// Accounts whose parent is filtered out are promoted to roots.
func (s *Service) Tree(ctx context.Context, tenantID int64, includeInactive bool) ([]*Node, error) {
	all, err := s.repo.ListAll(ctx, tenantID, includeInactive)
	if err != nil {
		return nil, err
	}
	return BuildTree(all), nil
}

// Balance aggregates ledger-effective lines dated on or before asOf. A nil asOf
// means today.
func (s *Service) Balance(ctx context.Context, tenantID, id int64, asOf *time.Time) (BalanceSummary, error) {
	account, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return BalanceSummary{}, err
	}
	date := shared.DateOnly(s.now())
	if asOf != nil {
		date = shared.DateOnly(*asOf)
	}
	debits, credits, err := s.repo.Activity(ctx, tenantID, id, date)
	if err != nil {
		return BalanceSummary{}, err
	}
	return BalanceSummary{
		AccountID: account.ID,
		Code:      account.Code,
		AsOf:      date,
		Balance:   account.NormalBalance.Signed(debits, credits),
		Debits:    debits,
		Credits:   credits,
	}, nil
}

func (s *Service) record(ctx context.Context, account Account, actorID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		TenantID:   account.TenantID,
		ActorID:    actorID,
		Action:     action,
		EntityType: "account",
		EntityID:   strconv.FormatInt(account.ID, 10),
		Meta:       meta,
		At:         s.now(),
	})
}
