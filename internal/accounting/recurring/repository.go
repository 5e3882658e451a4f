package recurring

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository persists recurring schedules.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Schedule, error)
	// List returns schedules ordered by id; an empty status lists all.
	List(ctx context.Context, tenantID int64, status Status) ([]Schedule, error)
	// ListDue returns active schedules with next_run_date on or before asOf,
	// ordered by next_run_date then id.
	ListDue(ctx context.Context, tenantID int64, asOf time.Time) ([]Schedule, error)
	ListTenantsWithDue(ctx context.Context, asOf time.Time) ([]int64, error)
	RecordFailure(ctx context.Context, tenantID, id int64, message string, at time.Time) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tenantID, id int64) (Schedule, error)
	Insert(ctx context.Context, s Schedule) (Schedule, error)
	Update(ctx context.Context, s Schedule) error
}

const scheduleColumns = `id, tenant_id, name, frequency, interval_count, start_date, end_type, end_after_occurrences, end_date, status,
next_run_date, last_run_date, total_occurrences, template, COALESCE(last_error, ''), last_error_at, created_by, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the Postgres schedule repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanSchedule(row pgx.Row) (Schedule, error) {
	var s Schedule
	var template []byte
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Frequency, &s.Interval, &s.StartDate, &s.EndType, &s.EndAfterOccurrences, &s.EndDate, &s.Status,
		&s.NextRunDate, &s.LastRunDate, &s.TotalOccurrences, &template, &s.LastError, &s.LastErrorAt, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Schedule{}, shared.ErrScheduleNotFound
		}
		return Schedule{}, err
	}
	if err := json.Unmarshal(template, &s.Template); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func collectSchedules(rows pgx.Rows) ([]Schedule, error) {
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Schedule, error) {
	return scanSchedule(r.db.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM recurring_journals WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *repository) List(ctx context.Context, tenantID int64, status Status) ([]Schedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM recurring_journals WHERE tenant_id=$1 AND ($2='' OR status=$2) ORDER BY id`, tenantID, string(status))
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

func (r *repository) ListDue(ctx context.Context, tenantID int64, asOf time.Time) ([]Schedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM recurring_journals
WHERE tenant_id=$1 AND status='ACTIVE' AND next_run_date <= $2 ORDER BY next_run_date, id`, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

func (r *repository) ListTenantsWithDue(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM recurring_journals WHERE status='ACTIVE' AND next_run_date <= $1 ORDER BY tenant_id`, asOf)
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

func (r *repository) RecordFailure(ctx context.Context, tenantID, id int64, message string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE recurring_journals SET last_error=$3, last_error_at=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, message, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrScheduleNotFound
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (Schedule, error) {
	return scanSchedule(r.tx.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM recurring_journals WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (r *txRepository) Insert(ctx context.Context, s Schedule) (Schedule, error) {
	template, err := json.Marshal(s.Template)
	if err != nil {
		return Schedule{}, err
	}
	return scanSchedule(r.tx.QueryRow(ctx, `INSERT INTO recurring_journals (tenant_id, name, frequency, interval_count, start_date, end_type, end_after_occurrences, end_date,
status, next_run_date, total_occurrences, template, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,$11,$12) RETURNING `+scheduleColumns,
		s.TenantID, s.Name, s.Frequency, s.Interval, s.StartDate, s.EndType, s.EndAfterOccurrences, s.EndDate, s.Status, s.NextRunDate, template, s.CreatedBy))
}

func (r *txRepository) Update(ctx context.Context, s Schedule) error {
	template, err := json.Marshal(s.Template)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE recurring_journals SET name=$3, status=$4, next_run_date=$5, last_run_date=$6, total_occurrences=$7,
template=$8, last_error=NULLIF($9, ''), last_error_at=$10, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, s.TenantID, s.ID, s.Name, s.Status, s.NextRunDate, s.LastRunDate, s.TotalOccurrences, template, s.LastError, s.LastErrorAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrScheduleNotFound
	}
	return nil
}
