// Package accounting assembles the general ledger services for a storage
// driver and exposes them under one router.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/allocation"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Driver selects the persistence backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMemory   Driver = "memory"
)

// AuditRecorder receives audit records from every service.
type AuditRecorder interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Options configures NewModule.
type Options struct {
	Driver  Driver
	Pool    *pgxpool.Pool
	Audit   AuditRecorder
	Journal journals.Config
	Metrics journals.MetricsPort
}

// Module holds the wired ledger services.
type Module struct {
	Accounts   *accounts.Service
	Periods    *periods.Service
	Journals   *journals.Service
	Recurring  *recurring.Service
	Allocation *allocation.Service
	Reports    *reports.Service
}

type repositories struct {
	accounts   accounts.Repository
	periods    periods.Repository
	journals   journals.Repository
	recurring  recurring.Repository
	allocation allocation.Repository
	reports    reports.Repository
}

// NewModule builds every service against the configured driver.
func NewModule(opts Options) (*Module, error) {
	repos, err := openRepositories(opts)
	if err != nil {
		return nil, err
	}
	if opts.Journal.NumberRetries == 0 {
		opts.Journal = journals.DefaultConfig()
	}

	accountSvc := accounts.NewService(repos.accounts, opts.Audit)
	periodSvc := periods.NewService(repos.periods, opts.Audit)
	journalSvc := journals.NewService(repos.journals, opts.Audit, opts.Journal)
	if opts.Metrics != nil {
		journalSvc.WithMetrics(opts.Metrics)
	}
	return &Module{
		Accounts:   accountSvc,
		Periods:    periodSvc,
		Journals:   journalSvc,
		Recurring:  recurring.NewService(repos.recurring, journalSvc, opts.Audit),
		Allocation: allocation.NewService(repos.allocation, accountSvc, journalSvc, opts.Audit),
		Reports:    reports.NewService(repos.reports, periodSvc),
	}, nil
}

func openRepositories(opts Options) (repositories, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		if opts.Pool == nil {
			return repositories{}, errors.New("accounting: postgres driver requires a pool")
		}
		return repositories{
			accounts:   accounts.NewRepository(opts.Pool),
			periods:    periods.NewRepository(opts.Pool),
			journals:   journals.NewRepository(opts.Pool),
			recurring:  recurring.NewRepository(opts.Pool),
			allocation: allocation.NewRepository(opts.Pool),
			reports:    reports.NewRepository(opts.Pool),
		}, nil
	case DriverMemory:
		store := memstore.New()
		return repositories{
			accounts:   store.Accounts(),
			periods:    store.Periods(),
			journals:   store.Journals(),
			recurring:  store.Recurring(),
			allocation: store.Allocation(),
			reports:    store.Reports(),
		}, nil
	default:
		return repositories{}, fmt.Errorf("accounting: unknown store driver %q", opts.Driver)
	}
}

// Handler mounts the ledger JSON API.
type Handler struct {
	accounts   *accounts.Handler
	periods    *periods.Handler
	journals   *journals.Handler
	recurring  *recurring.Handler
	allocation *allocation.Handler
	reports    *reports.Handler
}

// NewHandler builds the per-resource handlers for m.
func NewHandler(logger *slog.Logger, m *Module) *Handler {
	return &Handler{
		accounts:   accounts.NewHandler(logger, m.Accounts),
		periods:    periods.NewHandler(logger, m.Periods),
		journals:   journals.NewHandler(logger, m.Journals),
		recurring:  recurring.NewHandler(logger, m.Recurring),
		allocation: allocation.NewHandler(logger, m.Allocation),
		reports:    reports.NewHandler(logger, m.Reports),
	}
}

// MountRoutes registers the resource routers below r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", h.accounts.MountRoutes)
	r.Route("/periods", h.periods.MountRoutes)
	r.Route("/journals", h.journals.MountRoutes)
	r.Route("/recurring", h.recurring.MountRoutes)
	r.Route("/allocations", h.allocation.MountRoutes)
	r.Route("/reports", h.reports.MountRoutes)
}
