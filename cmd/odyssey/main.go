package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/app"
	"github.com/odyssey-erp/odyssey-gl/internal/observability"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
	"github.com/odyssey-erp/odyssey-gl/jobs"
)

const usage = `usage:
  odyssey                                   start the HTTP server
  odyssey jobs trigger <task> [-tenants 1,2] enqueue gl:recurring:process or gl:balance:verify
  odyssey jobs stats                        print default queue depth
  odyssey ledger verify -tenant N [-json]   compare cached balances with the ledger
  odyssey ledger trial-balance -tenant N [-as-of YYYY-MM-DD] [-json]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "serve" {
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	switch args[0] {
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args[1:]))
	case "ledger":
		os.Exit(runLedger(ctx, cfg, logger, args[1:]))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

// ledger bundles the accounting module with the resources it borrows.
type ledger struct {
	module *accounting.Module
	pool   *pgxpool.Pool
}

func (l ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

func openLedger(ctx context.Context, cfg *app.Config, metrics journals.MetricsPort) (ledger, error) {
	opts := accounting.Options{
		Driver:  accounting.Driver(cfg.StoreDriver),
		Journal: cfg.JournalConfig(),
		Metrics: metrics,
	}
	var pool *pgxpool.Pool
	if opts.Driver == accounting.DriverMemory {
		opts.Audit = shared.NewMemoryAuditLog()
	} else {
		var err error
		pool, err = db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
		if err != nil {
			return ledger{}, err
		}
		opts.Pool = pool
		opts.Audit = shared.NewAuditLogger(pool)
	}
	module, err := accounting.NewModule(opts)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return ledger{}, err
	}
	return ledger{module: module, pool: pool}, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	l, err := openLedger(ctx, cfg, metrics)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accounting.NewHandler(logger, l.module),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, usage)
			return 2
		}
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		tenants := fs.String("tenants", "", "comma separated tenant ids")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		ids, err := parseTenantIDs(*tenants)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		if len(ids) == 0 && args[1] == jobs.TaskRecurringProcess {
			ids = cfg.RecurringTenants
		}
		info, err := jobsCLI.Trigger(ctx, args[1], ids)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s as %s\n", info.Type, info.ID)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func runLedger(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("ledger "+args[0], flag.ContinueOnError)
	tenant := fs.Int64("tenant", 0, "tenant id")
	asOf := fs.String("as-of", "", "report date (YYYY-MM-DD)")
	jsonOut := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	l, err := openLedger(ctx, cfg, nil)
	if err != nil {
		logger.Error("open ledger", slog.Any("error", err))
		return 1
	}
	defer l.Close()

	ledgerCLI, err := cli.NewLedgerOpsCLI(l.module.Journals, l.module.Reports)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	opts := cli.LedgerOptions{TenantID: *tenant, AsOf: *asOf, JSONOutput: *jsonOut}
	switch args[0] {
	case "verify":
		return ledgerCLI.VerifyCommand(ctx, opts)
	case "trial-balance":
		return ledgerCLI.TrialBalanceCommand(ctx, opts)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func parseTenantIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid tenant id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
