package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

type accountRepo struct {
	s *Store
}

func (r *accountRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.s.tx(ctx, func() error {
		return fn(ctx, &accountTx{s: r.s})
	})
}

func (r *accountRepo) Get(ctx context.Context, tenantID, id int64) (accounts.Account, error) {
	var out accounts.Account
	err := r.s.read(ctx, func(st *state) error {
		a, err := st.account(tenantID, id)
		out = a
		return err
	})
	return out, err
}

func (r *accountRepo) GetByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error) {
	var out accounts.Account
	err := r.s.read(ctx, func(st *state) error {
		a, err := st.accountByCode(tenantID, code)
		out = a
		return err
	})
	return out, err
}

func (r *accountRepo) List(ctx context.Context, tenantID int64, filter accounts.ListFilter) ([]accounts.Account, int, error) {
	var (
		out   []accounts.Account
		total int
	)
	err := r.s.read(ctx, func(st *state) error {
		var matched []accounts.Account
		for _, a := range st.tenantAccounts(tenantID) {
			if !filter.IncludeInactive && !a.IsActive {
				continue
			}
			if filter.Type != "" && a.Type != filter.Type {
				continue
			}
			matched = append(matched, a)
		}
		total = len(matched)
		out = page(matched, filter.Page, filter.PerPage)
		return nil
	})
	return out, total, err
}

func (r *accountRepo) ListAll(ctx context.Context, tenantID int64, includeInactive bool) ([]accounts.Account, error) {
	var out []accounts.Account
	err := r.s.read(ctx, func(st *state) error {
		for _, a := range st.tenantAccounts(tenantID) {
			if includeInactive || a.IsActive {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (r *accountRepo) Activity(ctx context.Context, tenantID, accountID int64, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	debits, credits := decimal.Zero, decimal.Zero
	err := r.s.read(ctx, func(st *state) error {
		if sum, ok := st.ledgerSums(tenantID, nil, &asOf)[accountID]; ok {
			debits, credits = sum.debit, sum.credit
		}
		return nil
	})
	return debits, credits, err
}

type accountTx struct {
	s *Store
}

func (t *accountTx) GetForUpdate(_ context.Context, tenantID, id int64) (accounts.Account, error) {
	return t.s.state.account(tenantID, id)
}

func (t *accountTx) GetByCode(_ context.Context, tenantID int64, code string) (accounts.Account, error) {
	return t.s.state.accountByCode(tenantID, code)
}

func (t *accountTx) Insert(_ context.Context, a accounts.Account) (accounts.Account, error) {
	st := &t.s.state
	if _, err := st.accountByCode(a.TenantID, a.Code); err == nil {
		return accounts.Account{}, fmt.Errorf("code %s: %w", a.Code, shared.ErrDuplicateCode)
	}
	now := t.s.now()
	a.ID = st.nextID()
	a.Balance = decimal.Zero
	a.CreatedAt = now
	a.UpdatedAt = now
	st.accounts[a.ID] = a
	return a, nil
}

func (t *accountTx) Update(_ context.Context, a accounts.Account) error {
	st := &t.s.state
	current, err := st.account(a.TenantID, a.ID)
	if err != nil {
		return err
	}
	if other, err := st.accountByCode(a.TenantID, a.Code); err == nil && other.ID != a.ID {
		return fmt.Errorf("code %s: %w", a.Code, shared.ErrDuplicateCode)
	}
	current.Code = a.Code
	current.Name = a.Name
	current.ParentID = a.ParentID
	current.FullPath = a.FullPath
	current.IsActive = a.IsActive
	current.UpdatedAt = t.s.now()
	st.accounts[a.ID] = current
	return nil
}

func (t *accountTx) Descendants(_ context.Context, tenantID, id int64) ([]accounts.Account, error) {
	st := &t.s.state
	var out []accounts.Account
	frontier := []int64{id}
	for len(frontier) > 0 {
		var next []int64
		for _, a := range st.accounts {
			if a.TenantID != tenantID || a.ParentID == nil {
				continue
			}
			for _, parent := range frontier {
				if *a.ParentID == parent {
					out = append(out, a)
					next = append(next, a.ID)
					break
				}
			}
		}
		frontier = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullPath < out[j].FullPath })
	return out, nil
}

func (t *accountTx) HasChildren(_ context.Context, tenantID, id int64) (bool, error) {
	for _, a := range t.s.state.accounts {
		if a.TenantID == tenantID && a.ParentID != nil && *a.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *accountTx) HasJournalLines(_ context.Context, tenantID, id int64) (bool, error) {
	st := &t.s.state
	for entryID, lines := range st.lines {
		if st.entries[entryID].TenantID != tenantID {
			continue
		}
		for _, l := range lines {
			if l.AccountID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *accountTx) Delete(_ context.Context, tenantID, id int64) error {
	st := &t.s.state
	if _, err := st.account(tenantID, id); err != nil {
		return err
	}
	delete(st.accounts, id)
	return nil
}

func (st *state) account(tenantID, id int64) (accounts.Account, error) {
	a, ok := st.accounts[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (st *state) accountByCode(tenantID int64, code string) (accounts.Account, error) {
	for _, a := range st.accounts {
		if a.TenantID == tenantID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("code %s: %w", code, shared.ErrAccountNotFound)
}

// tenantAccounts returns the tenant's accounts ordered by code.
func (st *state) tenantAccounts(tenantID int64) []accounts.Account {
	var out []accounts.Account
	for _, a := range st.accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func page[T any](items []T, pageNum, perPage int) []T {
	if perPage <= 0 {
		return items
	}
	if pageNum <= 0 {
		pageNum = 1
	}
	start := (pageNum - 1) * perPage
	if start >= len(items) {
		return nil
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
