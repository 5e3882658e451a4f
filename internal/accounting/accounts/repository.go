package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Repository encapsulates account persistence. Every query is tenant scoped.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Account, error)
	GetByCode(ctx context.Context, tenantID int64, code string) (Account, error)
	List(ctx context.Context, tenantID int64, filter ListFilter) ([]Account, int, error)
	ListAll(ctx context.Context, tenantID int64, includeInactive bool) ([]Account, error)
	// Activity sums debits and credits of posted lines up to and including asOf.
	Activity(ctx context.Context, tenantID, accountID int64, asOf time.Time) (debits, credits decimal.Decimal, err error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tenantID, id int64) (Account, error)
	GetByCode(ctx context.Context, tenantID int64, code string) (Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	Update(ctx context.Context, a Account) error
	// Descendants returns every node below id, parents before children.
	Descendants(ctx context.Context, tenantID, id int64) ([]Account, error)
	HasChildren(ctx context.Context, tenantID, id int64) (bool, error)
	// HasJournalLines reports whether any journal line, in any status, references id.
	HasJournalLines(ctx context.Context, tenantID, id int64) (bool, error)
	Delete(ctx context.Context, tenantID, id int64) error
}

const accountColumns = `id, tenant_id, code, name, type, normal_balance, parent_id, full_path, is_active, balance, created_at, updated_at`

const uniqueCodeConstraint = "uq_accounts_tenant_code"

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the Postgres account repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.FullPath, &a.IsActive, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *repository) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
}

func (r *repository) List(ctx context.Context, tenantID int64, filter ListFilter) ([]Account, int, error) {
	page, perPage := internalShared.NormalizePage(filter.Page, filter.PerPage)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE tenant_id=$1 AND ($2 OR is_active) AND ($3='' OR type=$3)`,
		tenantID, filter.IncludeInactive, string(filter.Type)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND ($2 OR is_active) AND ($3='' OR type=$3)
ORDER BY code LIMIT $4 OFFSET $5`, tenantID, filter.IncludeInactive, string(filter.Type), perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	accounts, err := collectAccounts(rows)
	return accounts, total, err
}

func (r *repository) ListAll(ctx context.Context, tenantID int64, includeInactive bool) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND ($2 OR is_active) ORDER BY code`, tenantID, includeInactive)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) Activity(ctx context.Context, tenantID, accountID int64, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debits, credits decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.tenant_id=$1 AND l.account_id=$2 AND e.posting_date IS NOT NULL AND e.entry_date <= $3`, tenantID, accountID, asOf).Scan(&debits, &credits)
	return debits, credits, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (r *txRepository) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
}

func (r *txRepository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, normal_balance, parent_id, full_path, is_active, balance)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0) RETURNING `+accountColumns,
		a.TenantID, a.Code, a.Name, a.Type, a.NormalBalance, a.ParentID, a.FullPath, a.IsActive)
	inserted, err := scanAccount(row)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueCodeConstraint) {
			return Account{}, fmt.Errorf("code %s: %w", a.Code, shared.ErrDuplicateCode)
		}
		return Account{}, err
	}
	return inserted, nil
}

func (r *txRepository) Update(ctx context.Context, a Account) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET code=$3, name=$4, parent_id=$5, full_path=$6, is_active=$7, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, a.TenantID, a.ID, a.Code, a.Name, a.ParentID, a.FullPath, a.IsActive)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueCodeConstraint) {
			return fmt.Errorf("code %s: %w", a.Code, shared.ErrDuplicateCode)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) Descendants(ctx context.Context, tenantID, id int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `WITH RECURSIVE tree AS (
	SELECT id FROM accounts WHERE tenant_id=$1 AND parent_id=$2
	UNION ALL
	SELECT a.id FROM accounts a JOIN tree t ON a.parent_id = t.id WHERE a.tenant_id=$1
)
SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id IN (SELECT id FROM tree) ORDER BY full_path FOR UPDATE`, tenantID, id)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *txRepository) HasChildren(ctx context.Context, tenantID, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE tenant_id=$1 AND parent_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) HasJournalLines(ctx context.Context, tenantID, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
	WHERE e.tenant_id=$1 AND l.account_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) Delete(ctx context.Context, tenantID, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}
