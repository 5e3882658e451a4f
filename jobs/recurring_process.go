package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/recurring"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// RecurringProcessor is the slice of the recurring service the job drives.
type RecurringProcessor interface {
	ProcessDue(ctx context.Context, tenantID int64, now time.Time) (recurring.Result, error)
	DueTenants(ctx context.Context, now time.Time) ([]int64, error)
}

// RecurringJobConfig tunes the recurring processor.
type RecurringJobConfig struct {
	LockTTL     time.Duration
	Concurrency int
}

// RecurringProcessJob runs due schedules tenant by tenant. A redis lock per
// tenant keeps concurrent workers from processing the same tenant.
type RecurringProcessJob struct {
	Service RecurringProcessor
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	cfg     RecurringJobConfig
	clock   func() time.Time
}

// NewRecurringProcessJob constructs the job handler. A nil locker disables
// cross-worker locking.
func NewRecurringProcessJob(service RecurringProcessor, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics, cfg RecurringJobConfig) *RecurringProcessJob {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &RecurringProcessJob{
		Service: service,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		cfg:     cfg,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the job clock.
func (j *RecurringProcessJob) WithClock(clock func() time.Time) {
	if clock != nil {
		j.clock = clock
	}
}

// Summary aggregates a run across tenants.
type Summary struct {
	Tenants  int `json:"tenants"`
	Skipped  int `json:"skipped"`
	Success  int `json:"success_count"`
	Failures int `json:"error_count"`
}

// Handle executes the recurring processing task.
func (j *RecurringProcessJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("recurring process: dependencies not configured")
	}
	var payload RecurringProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, err := payload.asOf(j.clock())
	if err != nil {
		return fmt.Errorf("recurring process: %v: %w", err, asynq.SkipRetry)
	}
	_, err = j.Run(ctx, payload.TenantIDs, asOf)
	return err
}

// Run processes the given tenants, or every tenant with due schedules when
// tenantIDs is empty.
func (j *RecurringProcessJob) Run(ctx context.Context, tenantIDs []int64, asOf time.Time) (Summary, error) {
	tracker := j.Metrics.Track(TaskRecurringProcess)
	summary, err := j.run(ctx, tenantIDs, asOf)
	return summary, tracker.End(err)
}

func (j *RecurringProcessJob) run(ctx context.Context, tenantIDs []int64, asOf time.Time) (Summary, error) {
	logger := j.log().With(slog.String("run_id", uuid.NewString()), slog.String("as_of_date", asOf.Format(time.DateOnly)))
	if len(tenantIDs) == 0 {
		due, err := j.Service.DueTenants(ctx, asOf)
		if err != nil {
			logger.Error("list tenants with due schedules", slog.Any("error", err))
			return Summary{}, err
		}
		tenantIDs = due
	}
	if len(tenantIDs) == 0 {
		logger.Info("no recurring schedules due")
		return Summary{}, nil
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for _, tenantID := range tenantIDs {
		tenantID := tenantID
		g.Go(func() error {
			result, ran, err := j.runTenant(gctx, tenantID, asOf)
			mu.Lock()
			defer mu.Unlock()
			if !ran {
				summary.Skipped++
				return err
			}
			summary.Tenants++
			summary.Success += result.SuccessCount
			summary.Failures += result.ErrorCount
			if err != nil {
				logger.Error("process tenant", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			}
			return err
		})
	}
	err := g.Wait()
	j.Metrics.AddOccurrences(summary.Success, summary.Failures)
	logger.Info("recurring run finished",
		slog.Int("tenants", summary.Tenants),
		slog.Int("skipped", summary.Skipped),
		slog.Int("success_count", summary.Success),
		slog.Int("error_count", summary.Failures))
	return summary, err
}

// runTenant reports ran=false when another worker holds the tenant lock.
func (j *RecurringProcessJob) runTenant(ctx context.Context, tenantID int64, asOf time.Time) (recurring.Result, bool, error) {
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, internalShared.RecurringLockKey(tenantID), j.cfg.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			j.log().Info("recurring run already in progress", slog.Int64("tenant_id", tenantID))
			return recurring.Result{}, false, nil
		}
		if err != nil {
			return recurring.Result{}, false, fmt.Errorf("obtain lock for tenant %d: %w", tenantID, err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				j.log().Warn("release recurring lock", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			}
		}()
	}
	result, err := j.Service.ProcessDue(ctx, tenantID, asOf)
	return result, true, err
}

func (j *RecurringProcessJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRecurringProcess))
	}
	return slog.Default().With(slog.String("job", TaskRecurringProcess))
}
