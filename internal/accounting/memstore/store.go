// Package memstore keeps the ledger in process memory. It backs tests and
// STORE_DRIVER=memory deployments with the same constraints the Postgres
// schema enforces.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/allocation"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/recurring"
)

type state struct {
	seq       int64
	accounts  map[int64]accounts.Account
	entries   map[int64]journals.Entry
	lines     map[int64][]journals.Line
	periods   map[int64]periods.Period
	schedules map[int64]recurring.Schedule
	rules     map[int64]allocation.Rule
	dests     map[int64][]allocation.Destination
}

func newState() state {
	return state{
		accounts:  map[int64]accounts.Account{},
		entries:   map[int64]journals.Entry{},
		lines:     map[int64][]journals.Line{},
		periods:   map[int64]periods.Period{},
		schedules: map[int64]recurring.Schedule{},
		rules:     map[int64]allocation.Rule{},
		dests:     map[int64][]allocation.Destination{},
	}
}

// clone copies the maps. Stored slices are never mutated in place, so values
// may be shared between snapshots.
func (st state) clone() state {
	out := state{
		seq:       st.seq,
		accounts:  make(map[int64]accounts.Account, len(st.accounts)),
		entries:   make(map[int64]journals.Entry, len(st.entries)),
		lines:     make(map[int64][]journals.Line, len(st.lines)),
		periods:   make(map[int64]periods.Period, len(st.periods)),
		schedules: make(map[int64]recurring.Schedule, len(st.schedules)),
		rules:     make(map[int64]allocation.Rule, len(st.rules)),
		dests:     make(map[int64][]allocation.Destination, len(st.dests)),
	}
	for k, v := range st.accounts {
		out.accounts[k] = v
	}
	for k, v := range st.entries {
		out.entries[k] = v
	}
	for k, v := range st.lines {
		out.lines[k] = v
	}
	for k, v := range st.periods {
		out.periods[k] = v
	}
	for k, v := range st.schedules {
		out.schedules[k] = v
	}
	for k, v := range st.rules {
		out.rules[k] = v
	}
	for k, v := range st.dests {
		out.dests[k] = v
	}
	return out
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

// Store is a mutex guarded ledger. Transactions are serialised and roll back
// to a snapshot when the callback fails.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// WithNow overrides the clock used for created_at and updated_at stamps.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

func (s *Store) tx(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// Accounts returns the account repository view.
func (s *Store) Accounts() accounts.Repository { return &accountRepo{s: s} }

// Journals returns the journal repository view.
func (s *Store) Journals() journals.Repository { return &journalRepo{s: s} }

// Periods returns the period repository view.
func (s *Store) Periods() periods.Repository { return &periodRepo{s: s} }

// Recurring returns the recurring schedule repository view.
func (s *Store) Recurring() recurring.Repository { return &recurringRepo{s: s} }

// Allocation returns the allocation rule repository view.
func (s *Store) Allocation() allocation.Repository { return &allocationRepo{s: s} }

// Reports returns the reporting repository view.
func (s *Store) Reports() *ReportRepo { return &ReportRepo{s: s} }
