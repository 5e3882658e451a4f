package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
	"github.com/odyssey-erp/odyssey-gl/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	if accounting.Driver(cfg.StoreDriver) == accounting.DriverMemory {
		logger.Error("worker requires the postgres store driver")
		os.Exit(1)
	}

	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	locker := redislock.New(redisClient)

	module, err := accounting.NewModule(accounting.Options{
		Driver:  accounting.DriverPostgres,
		Pool:    pool,
		Audit:   shared.NewAuditLogger(pool),
		Journal: cfg.JournalConfig(),
	})
	if err != nil {
		logger.Error("init ledger", slog.Any("error", err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	recurringJob := jobs.NewRecurringProcessJob(module.Recurring, locker, logger, metrics, jobs.RecurringJobConfig{
		LockTTL:     cfg.RecurringLockTTL,
		Concurrency: cfg.RecurringConcurrency,
	})
	integrityJob := jobs.NewBalanceIntegrityJob(module.Journals, jobs.PGTenantLister{Pool: pool}, locker, logger, metrics)

	recurringTask, err := jobs.NewRecurringProcessTask(jobs.RecurringProcessPayload{TenantIDs: cfg.RecurringTenants})
	if err != nil {
		logger.Error("build recurring task", slog.Any("error", err))
		os.Exit(1)
	}
	verifyTask, err := jobs.NewBalanceVerifyTask(jobs.BalanceVerifyPayload{})
	if err != nil {
		logger.Error("build verify task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringProcess, Handler: recurringJob.Handle},
			{Type: jobs.TaskBalanceVerify, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurringCron, Task: recurringTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.BalanceVerifyCron, Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting worker", slog.String("recurring_cron", cfg.RecurringCron), slog.String("verify_cron", cfg.BalanceVerifyCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
