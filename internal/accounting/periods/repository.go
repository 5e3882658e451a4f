package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository persists accounting periods.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Period, error)
	// List returns periods ordered by start date. fiscalYear 0 lists every year.
	List(ctx context.Context, tenantID int64, fiscalYear int) ([]Period, error)
	FindByDate(ctx context.Context, tenantID int64, date time.Time) (Period, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// LockTenant serialises period maintenance for a tenant.
	LockTenant(ctx context.Context, tenantID int64) error
	GetForUpdate(ctx context.Context, tenantID, id int64) (Period, error)
	List(ctx context.Context, tenantID int64) ([]Period, error)
	Insert(ctx context.Context, p Period) (Period, error)
	UpdateStatus(ctx context.Context, p Period) error
}

const periodColumns = `id, tenant_id, fiscal_year, period_number, period_name, start_date, end_date, status, closed_at, closed_by, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the Postgres period repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.FiscalYear, &p.PeriodNumber, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func collectPeriods(rows pgx.Rows) ([]Period, error) {
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *repository) List(ctx context.Context, tenantID int64, fiscalYear int) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE tenant_id=$1 AND ($2=0 OR fiscal_year=$2) ORDER BY start_date`, tenantID, fiscalYear)
	if err != nil {
		return nil, err
	}
	return collectPeriods(rows)
}

func (r *repository) FindByDate(ctx context.Context, tenantID int64, date time.Time) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE tenant_id=$1 AND $2 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, tenantID, date))
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockTenant(ctx context.Context, tenantID int64) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('accounting_periods:' || $1::text, 0))`, tenantID)
	return err
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (r *txRepository) List(ctx context.Context, tenantID int64) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id=$1 ORDER BY start_date`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectPeriods(rows)
}

func (r *txRepository) Insert(ctx context.Context, p Period) (Period, error) {
	inserted, err := scanPeriod(r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (tenant_id, fiscal_year, period_number, period_name, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+periodColumns, p.TenantID, p.FiscalYear, p.PeriodNumber, p.Name, p.StartDate, p.EndDate, p.Status))
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Period{}, fmt.Errorf("fiscal year %d period %d: %w", p.FiscalYear, p.PeriodNumber, shared.ErrPeriodOverlap)
		}
		return Period{}, err
	}
	return inserted, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, p Period) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status=$3, closed_at=$4, closed_by=$5, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, p.TenantID, p.ID, p.Status, p.ClosedAt, p.ClosedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}
