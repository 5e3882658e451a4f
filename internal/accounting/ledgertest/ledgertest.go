// Package ledgertest wires the ledger services over an in-memory store with a
// controllable clock.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/allocation"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Tenant is the default tenant used by fixtures.
const Tenant int64 = 1

// Actor is the default actor used by fixtures.
const Actor int64 = 42

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Ledger holds every service bound to one store.
type Ledger struct {
	Store      *memstore.Store
	Audit      *internalShared.MemoryAuditLog
	Clock      *Clock
	Accounts   *accounts.Service
	Periods    *periods.Service
	Journals   *journals.Service
	Recurring  *recurring.Service
	Allocation *allocation.Service
	Reports    *reports.Service
}

type options struct {
	journal     journals.Config
	wrapJournal func(journals.Repository) journals.Repository
}

// Option customises New.
type Option func(*options)

// WithJournalConfig overrides the journal engine settings.
func WithJournalConfig(cfg journals.Config) Option {
	return func(o *options) { o.journal = cfg }
}

// WithJournalRepository decorates the journal repository.
func WithJournalRepository(wrap func(journals.Repository) journals.Repository) Option {
	return func(o *options) { o.wrapJournal = wrap }
}

// New builds a ledger whose clock starts at 2024-06-15 10:00 UTC.
func New(opts ...Option) *Ledger {
	o := options{journal: journals.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	clock := &Clock{now: time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)}
	store := memstore.New()
	store.WithNow(clock.Now)
	audit := internalShared.NewMemoryAuditLog()

	journalRepo := store.Journals()
	if o.wrapJournal != nil {
		journalRepo = o.wrapJournal(journalRepo)
	}

	accountSvc := accounts.NewService(store.Accounts(), audit)
	accountSvc.WithNow(clock.Now)
	periodSvc := periods.NewService(store.Periods(), audit)
	periodSvc.WithNow(clock.Now)
	journalSvc := journals.NewService(journalRepo, audit, o.journal)
	journalSvc.WithNow(clock.Now)
	recurringSvc := recurring.NewService(store.Recurring(), journalSvc, audit)
	recurringSvc.WithNow(clock.Now)
	allocationSvc := allocation.NewService(store.Allocation(), accountSvc, journalSvc, audit)
	allocationSvc.WithNow(clock.Now)

	return &Ledger{
		Store:      store,
		Audit:      audit,
		Clock:      clock,
		Accounts:   accountSvc,
		Periods:    periodSvc,
		Journals:   journalSvc,
		Recurring:  recurringSvc,
		Allocation: allocationSvc,
		Reports:    reports.NewService(store.Reports(), periodSvc),
	}
}

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Amount parses a decimal literal.
func Amount(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// Dr builds a debit line on the account code.
func Dr(code, amount string) journals.LineInput {
	return journals.LineInput{AccountCode: code, Debit: Amount(amount)}
}

// Cr builds a credit line on the account code.
func Cr(code, amount string) journals.LineInput {
	return journals.LineInput{AccountCode: code, Credit: Amount(amount)}
}

// Account creates an account for Tenant, optionally under parent.
func (l *Ledger) Account(t testing.TB, code string, typ accounts.AccountType, parent string) accounts.Account {
	t.Helper()
	account, err := l.Accounts.Create(context.Background(), Tenant, accounts.CreateInput{
		Code:       code,
		Name:       code + " account",
		Type:       typ,
		ParentCode: parent,
		ActorID:    Actor,
	})
	require.NoError(t, err)
	return account
}

// Chart creates a small chart: 1000 Cash, 1200 Receivables, 2000 Payables,
// 3000 Capital, 4000 Sales, 5000 COGS and 6000 Rent.
func (l *Ledger) Chart(t testing.TB) {
	t.Helper()
	l.Account(t, "1000", accounts.AccountTypeAsset, "")
	l.Account(t, "1200", accounts.AccountTypeAsset, "")
	l.Account(t, "2000", accounts.AccountTypeLiability, "")
	l.Account(t, "3000", accounts.AccountTypeEquity, "")
	l.Account(t, "4000", accounts.AccountTypeRevenue, "")
	l.Account(t, "5000", accounts.AccountTypeCOGS, "")
	l.Account(t, "6000", accounts.AccountTypeExpense, "")
}

// OpenYear creates the twelve calendar months of year.
func (l *Ledger) OpenYear(t testing.TB, year int) []periods.Period {
	t.Helper()
	created, err := l.Periods.CreateFiscalYear(context.Background(), Tenant, year, time.January, Actor)
	require.NoError(t, err)
	return created
}

// Draft creates a draft entry dated date.
func (l *Ledger) Draft(t testing.TB, date time.Time, lines ...journals.LineInput) journals.Entry {
	t.Helper()
	entry, err := l.Journals.Create(context.Background(), Tenant, journals.CreateInput{
		EntryDate:   date,
		Description: "fixture",
		Lines:       lines,
		ActorID:     Actor,
	})
	require.NoError(t, err)
	return entry
}

// Post creates and posts an entry dated date.
func (l *Ledger) Post(t testing.TB, date time.Time, lines ...journals.LineInput) journals.Entry {
	t.Helper()
	draft := l.Draft(t, date, lines...)
	posted, err := l.Journals.Post(context.Background(), Tenant, draft.ID, Actor)
	require.NoError(t, err)
	return posted
}

// Balance returns the cached balance of the account with code.
func (l *Ledger) Balance(t testing.TB, code string) decimal.Decimal {
	t.Helper()
	account, err := l.Accounts.GetByCode(context.Background(), Tenant, code)
	require.NoError(t, err)
	return account.Balance
}
