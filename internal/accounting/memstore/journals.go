package memstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

type journalRepo struct {
	s *Store
}

func (r *journalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.s.tx(ctx, func() error {
		return fn(ctx, &journalTx{s: r.s})
	})
}

func (r *journalRepo) Get(ctx context.Context, tenantID, id int64) (journals.Entry, error) {
	var out journals.Entry
	err := r.s.read(ctx, func(st *state) error {
		e, err := st.entry(tenantID, id)
		out = e
		return err
	})
	return out, err
}

func (r *journalRepo) List(ctx context.Context, tenantID int64, filter journals.ListFilter) ([]journals.Entry, int, error) {
	var (
		out   []journals.Entry
		total int
	)
	err := r.s.read(ctx, func(st *state) error {
		var matched []journals.Entry
		for _, e := range st.entries {
			if e.TenantID != tenantID {
				continue
			}
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}
			if filter.From != nil && e.EntryDate.Before(*filter.From) {
				continue
			}
			if filter.To != nil && e.EntryDate.After(*filter.To) {
				continue
			}
			if filter.SourceModule != "" && e.SourceModule != filter.SourceModule {
				continue
			}
			if filter.SourceID != "" && e.SourceID != filter.SourceID {
				continue
			}
			matched = append(matched, e)
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].EntryDate.Equal(matched[j].EntryDate) {
				return matched[i].EntryDate.After(matched[j].EntryDate)
			}
			return matched[i].Number > matched[j].Number
		})
		total = len(matched)
		out = page(matched, filter.Page, filter.PerPage)
		return nil
	})
	return out, total, err
}

func (r *journalRepo) LedgerTotals(ctx context.Context, tenantID int64) ([]journals.AccountTotals, error) {
	var out []journals.AccountTotals
	err := r.s.read(ctx, func(st *state) error {
		sums := st.ledgerSums(tenantID, nil, nil)
		for _, a := range st.tenantAccounts(tenantID) {
			sum := sums[a.ID]
			out = append(out, journals.AccountTotals{
				AccountID:     a.ID,
				Code:          a.Code,
				NormalBalance: string(a.NormalBalance),
				Cached:        a.Balance,
				Debits:        sum.debit,
				Credits:       sum.credit,
			})
		}
		return nil
	})
	return out, err
}

type journalTx struct {
	s *Store
}

func (t *journalTx) NextSequence(_ context.Context, tenantID int64, prefix string) (int, error) {
	next := 1
	for _, e := range t.s.state.entries {
		if e.TenantID != tenantID || !strings.HasPrefix(e.Number, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(e.Number, prefix)); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}

func (t *journalTx) InsertEntry(_ context.Context, e journals.Entry) (journals.Entry, error) {
	st := &t.s.state
	for _, other := range st.entries {
		if other.TenantID == e.TenantID && other.Number == e.Number {
			return journals.Entry{}, fmt.Errorf("entry number %s: %w", e.Number, shared.ErrDuplicateEntryNumber)
		}
	}
	if err := st.checkSource(e, 0); err != nil {
		return journals.Entry{}, err
	}
	now := t.s.now()
	e.ID = st.nextID()
	e.Lines = nil
	e.CreatedAt = now
	e.UpdatedAt = now
	st.entries[e.ID] = e
	return e, nil
}

func (t *journalTx) ReplaceLines(_ context.Context, tenantID, entryID int64, lines []journals.Line) error {
	st := &t.s.state
	if _, ok := st.entries[entryID]; !ok || st.entries[entryID].TenantID != tenantID {
		return shared.ErrJournalNotFound
	}
	stored := make([]journals.Line, len(lines))
	for i, l := range lines {
		l.ID = st.nextID()
		l.EntryID = entryID
		l.AccountCode = ""
		stored[i] = l
	}
	st.lines[entryID] = stored
	return nil
}

func (t *journalTx) GetForUpdate(_ context.Context, tenantID, id int64) (journals.Entry, error) {
	return t.s.state.entry(tenantID, id)
}

func (t *journalTx) UpdateEntry(_ context.Context, e journals.Entry) error {
	st := &t.s.state
	current, ok := st.entries[e.ID]
	if !ok || current.TenantID != e.TenantID {
		return shared.ErrJournalNotFound
	}
	if e.Number != "" && e.Number != current.Number {
		for id, other := range st.entries {
			if id != e.ID && other.TenantID == e.TenantID && other.Number == e.Number {
				return fmt.Errorf("entry number %s: %w", e.Number, shared.ErrDuplicateEntryNumber)
			}
		}
		current.Number = e.Number
	}
	current.EntryDate = e.EntryDate
	current.Description = e.Description
	current.Reference = e.Reference
	current.Status = e.Status
	current.TotalAmount = e.TotalAmount
	current.PostingDate = e.PostingDate
	current.PostedBy = e.PostedBy
	current.UpdatedBy = e.UpdatedBy
	current.VoidedBy = e.VoidedBy
	current.VoidedAt = e.VoidedAt
	current.UpdatedAt = t.s.now()
	if err := st.checkSource(current, current.ID); err != nil {
		return err
	}
	st.entries[e.ID] = current
	return nil
}

func (t *journalTx) FindBySource(_ context.Context, tenantID int64, module, sourceID string) ([]journals.Entry, error) {
	var out []journals.Entry
	for _, e := range t.s.state.entries {
		if e.TenantID == tenantID && e.SourceModule == module && e.SourceID == sourceID && e.Status != journals.StatusVoid {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *journalTx) AccountsByID(_ context.Context, tenantID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if a, err := t.s.state.account(tenantID, id); err == nil {
			out[id] = a
		}
	}
	return out, nil
}

func (t *journalTx) AccountByCode(_ context.Context, tenantID int64, code string) (accounts.Account, error) {
	return t.s.state.accountByCode(tenantID, code)
}

func (t *journalTx) LockAccounts(_ context.Context, tenantID int64, ids []int64) ([]accounts.Account, error) {
	var out []accounts.Account
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, err := t.s.state.account(tenantID, id); err == nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *journalTx) ApplyBalance(_ context.Context, tenantID, accountID int64, delta decimal.Decimal) error {
	st := &t.s.state
	a, err := st.account(tenantID, accountID)
	if err != nil {
		return err
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = t.s.now()
	st.accounts[accountID] = a
	return nil
}

func (t *journalTx) PeriodForDate(_ context.Context, tenantID int64, date time.Time) (periods.Period, error) {
	return t.s.state.periodForDate(tenantID, date)
}

// entry returns the header with its lines, resolving account codes.
func (st *state) entry(tenantID, id int64) (journals.Entry, error) {
	e, ok := st.entries[id]
	if !ok || e.TenantID != tenantID {
		return journals.Entry{}, shared.ErrJournalNotFound
	}
	stored := st.lines[id]
	e.Lines = make([]journals.Line, len(stored))
	for i, l := range stored {
		l.AccountCode = st.accounts[l.AccountID].Code
		e.Lines[i] = l
	}
	sort.Slice(e.Lines, func(i, j int) bool { return e.Lines[i].LineNumber < e.Lines[j].LineNumber })
	return e, nil
}

// checkSource mirrors the partial unique index on live source links.
func (st *state) checkSource(e journals.Entry, self int64) error {
	if e.SourceID == "" || e.Status == journals.StatusVoid || e.SourceModule == journals.SourceRecurring {
		return nil
	}
	for _, other := range st.entries {
		if other.ID == self || other.TenantID != e.TenantID || other.Status == journals.StatusVoid {
			continue
		}
		if other.SourceModule == e.SourceModule && other.SourceID == e.SourceID {
			return fmt.Errorf("source %s/%s: %w", e.SourceModule, e.SourceID, shared.ErrDuplicateSource)
		}
	}
	return nil
}

type sides struct {
	debit, credit decimal.Decimal
}

// ledgerSums totals ledger-effective lines per account within the optional
// entry date window.
func (st *state) ledgerSums(tenantID int64, from, to *time.Time) map[int64]sides {
	out := make(map[int64]sides)
	for _, e := range st.entries {
		if e.TenantID != tenantID || !e.LedgerEffective() {
			continue
		}
		if from != nil && e.EntryDate.Before(*from) {
			continue
		}
		if to != nil && e.EntryDate.After(*to) {
			continue
		}
		for _, l := range st.lines[e.ID] {
			sum, ok := out[l.AccountID]
			if !ok {
				sum = sides{debit: decimal.Zero, credit: decimal.Zero}
			}
			sum.debit = sum.debit.Add(l.Debit)
			sum.credit = sum.credit.Add(l.Credit)
			out[l.AccountID] = sum
		}
	}
	return out
}
