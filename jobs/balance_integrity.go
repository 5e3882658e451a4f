package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// BalanceVerifier compares cached balances with ledger activity.
type BalanceVerifier interface {
	VerifyBalances(ctx context.Context, tenantID int64) ([]journals.BalanceDrift, error)
}

// TenantLister enumerates tenants owning a chart of accounts.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]int64, error)
}

// PGTenantLister reads tenants from the accounts table.
type PGTenantLister struct {
	Pool *pgxpool.Pool
}

// ListTenants returns every tenant with at least one account.
func (l PGTenantLister) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := l.Pool.Query(ctx, `SELECT DISTINCT tenant_id FROM accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// BalanceIntegrityJob reports accounts whose cached balance drifted.
type BalanceIntegrityJob struct {
	Verifier BalanceVerifier
	Tenants  TenantLister
	Locker   *redislock.Client
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	LockTTL  time.Duration
}

// NewBalanceIntegrityJob initialises the integrity check handler.
func NewBalanceIntegrityJob(verifier BalanceVerifier, tenants TenantLister, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceIntegrityJob {
	return &BalanceIntegrityJob{
		Verifier: verifier,
		Tenants:  tenants,
		Locker:   locker,
		Logger:   logger,
		Metrics:  metrics,
		LockTTL:  5 * time.Minute,
	}
}

// Handle executes the balance verification task.
func (j *BalanceIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errors.New("balance verify: dependencies not configured")
	}
	var payload BalanceVerifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx, payload.TenantIDs)
	return err
}

// Run verifies each tenant and returns the drift found per tenant.
func (j *BalanceIntegrityJob) Run(ctx context.Context, tenantIDs []int64) (map[int64][]journals.BalanceDrift, error) {
	tracker := j.Metrics.Track(TaskBalanceVerify)
	out, err := j.run(ctx, tenantIDs)
	return out, tracker.End(err)
}

func (j *BalanceIntegrityJob) run(ctx context.Context, tenantIDs []int64) (map[int64][]journals.BalanceDrift, error) {
	logger := j.log()
	if len(tenantIDs) == 0 && j.Tenants != nil {
		listed, err := j.Tenants.ListTenants(ctx)
		if err != nil {
			logger.Error("list tenants", slog.Any("error", err))
			return nil, err
		}
		tenantIDs = listed
	}
	out := make(map[int64][]journals.BalanceDrift)
	for _, tenantID := range tenantIDs {
		drift, err := j.verifyTenant(ctx, tenantID)
		if err != nil {
			logger.Error("verify balances", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			return out, err
		}
		j.Metrics.SetBalanceDrift(tenantID, len(drift))
		for _, d := range drift {
			logger.Warn("balance drift detected",
				slog.Int64("tenant_id", tenantID),
				slog.String("account", d.Code),
				slog.String("cached", d.Cached.String()),
				slog.String("expected", d.Expected.String()))
		}
		if len(drift) > 0 {
			out[tenantID] = drift
		}
	}
	logger.Info("balance verification finished", slog.Int("tenants", len(tenantIDs)), slog.Int("drifted_tenants", len(out)))
	return out, nil
}

func (j *BalanceIntegrityJob) verifyTenant(ctx context.Context, tenantID int64) ([]journals.BalanceDrift, error) {
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, internalShared.IntegrityLockKey(tenantID), j.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}
	return j.Verifier.VerifyBalances(ctx, tenantID)
}

func (j *BalanceIntegrityJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBalanceVerify))
	}
	return slog.Default().With(slog.String("job", TaskBalanceVerify))
}
