package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Entry, error)
	List(ctx context.Context, tenantID int64, filter ListFilter) ([]Entry, int, error)
	// LedgerTotals aggregates ledger-effective lines for every account of the tenant.
	LedgerTotals(ctx context.Context, tenantID int64) ([]AccountTotals, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// NextSequence returns one past the largest suffix used under prefix.
	NextSequence(ctx context.Context, tenantID int64, prefix string) (int, error)
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	ReplaceLines(ctx context.Context, tenantID, entryID int64, lines []Line) error
	GetForUpdate(ctx context.Context, tenantID, id int64) (Entry, error)
	UpdateEntry(ctx context.Context, e Entry) error
	// FindBySource lists non-void entries linked to the source record.
	FindBySource(ctx context.Context, tenantID int64, module, sourceID string) ([]Entry, error)

	AccountsByID(ctx context.Context, tenantID int64, ids []int64) (map[int64]accounts.Account, error)
	AccountByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error)
	// LockAccounts takes row locks in ascending code order.
	LockAccounts(ctx context.Context, tenantID int64, ids []int64) ([]accounts.Account, error)
	ApplyBalance(ctx context.Context, tenantID, accountID int64, delta decimal.Decimal) error

	// PeriodForDate returns the period covering date, share-locked against close.
	PeriodForDate(ctx context.Context, tenantID int64, date time.Time) (periods.Period, error)
}

const entryColumns = `id, tenant_id, entry_number, entry_date, posting_date, description, reference, source_module, COALESCE(source_id, ''),
status, total_amount, created_by, created_at, updated_by, updated_at, posted_by, voided_by, voided_at`

const (
	uniqueNumberConstraint = "uq_journal_entries_number"
	uniqueSourceConstraint = "uq_journal_entries_source"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the Postgres journal repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.EntryDate, &e.PostingDate, &e.Description, &e.Reference, &e.SourceModule, &e.SourceID,
		&e.Status, &e.TotalAmount, &e.CreatedBy, &e.CreatedAt, &e.UpdatedBy, &e.UpdatedAt, &e.PostedBy, &e.VoidedBy, &e.VoidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrJournalNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func loadLines(ctx context.Context, q querier, entryID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT l.id, l.entry_id, l.line_number, l.account_id, a.code, l.description, l.debit, l.credit,
COALESCE(l.foreign_currency_code, ''), l.foreign_amount, l.exchange_rate
FROM journal_lines l JOIN accounts a ON a.id = l.account_id WHERE l.entry_id=$1 ORDER BY l.line_number`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNumber, &l.AccountID, &l.AccountCode, &l.Description, &l.Debit, &l.Credit,
			&l.ForeignCurrencyCode, &l.ForeignAmount, &l.ExchangeRate); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func getEntry(ctx context.Context, q querier, sql string, tenantID, id int64) (Entry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, sql, tenantID, id))
	if err != nil {
		return Entry{}, err
	}
	entry.Lines, err = loadLines(ctx, q, entry.ID)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Entry, error) {
	return getEntry(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (r *repository) List(ctx context.Context, tenantID int64, filter ListFilter) ([]Entry, int, error) {
	page, perPage := filter.Page, filter.PerPage
	where := []string{"tenant_id=$1"}
	args := []any{tenantID}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status=$%d", filter.Status)
	}
	if filter.From != nil {
		add("entry_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("entry_date <= $%d", *filter.To)
	}
	if filter.SourceModule != "" {
		add("source_module=$%d", filter.SourceModule)
	}
	if filter.SourceID != "" {
		add("source_id=$%d", filter.SourceID)
	}
	cond := strings.Join(where, " AND ")
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT `+entryColumns+` FROM journal_entries WHERE %s
ORDER BY entry_date DESC, entry_number DESC LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repository) LedgerTotals(ctx context.Context, tenantID int64) ([]AccountTotals, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.normal_balance, a.balance,
	COALESCE(SUM(l.debit) FILTER (WHERE e.posting_date IS NOT NULL), 0),
	COALESCE(SUM(l.credit) FILTER (WHERE e.posting_date IS NOT NULL), 0)
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id
WHERE a.tenant_id=$1
GROUP BY a.id, a.code, a.normal_balance, a.balance
ORDER BY a.code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.AccountID, &t.Code, &t.NormalBalance, &t.Cached, &t.Debits, &t.Credits); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextSequence(ctx context.Context, tenantID int64, prefix string) (int, error) {
	var next int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(entry_number FROM $3) AS INTEGER)), 0) + 1
FROM journal_entries WHERE tenant_id=$1 AND entry_number LIKE $2 || '%'`, tenantID, prefix, len(prefix)+1).Scan(&next)
	return next, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, entry_number, entry_date, description, reference, source_module, source_id, status, total_amount, created_by)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9,$10) RETURNING `+entryColumns,
		e.TenantID, e.Number, e.EntryDate, e.Description, e.Reference, e.SourceModule, e.SourceID, e.Status, e.TotalAmount, e.CreatedBy)
	inserted, err := scanEntry(row)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, uniqueNumberConstraint):
			return Entry{}, fmt.Errorf("entry number %s: %w", e.Number, shared.ErrDuplicateEntryNumber)
		case db.IsUniqueViolation(err, uniqueSourceConstraint):
			return Entry{}, fmt.Errorf("source %s/%s: %w", e.SourceModule, e.SourceID, shared.ErrDuplicateSource)
		}
		return Entry{}, err
	}
	return inserted, nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, tenantID, entryID int64, lines []Line) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1 AND EXISTS (
	SELECT 1 FROM journal_entries WHERE id=$1 AND tenant_id=$2)`, entryID, tenantID); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, line_number, account_id, description, debit, credit, foreign_currency_code, foreign_amount, exchange_rate)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)`, entryID, line.LineNumber, line.AccountID, line.Description, line.Debit, line.Credit,
			line.ForeignCurrencyCode, line.ForeignAmount, line.ExchangeRate); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (Entry, error) {
	return getEntry(ctx, r.tx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
}

func (r *txRepository) UpdateEntry(ctx context.Context, e Entry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET entry_date=$3, description=$4, reference=$5, status=$6, total_amount=$7,
posting_date=$8, posted_by=$9, updated_by=$10, voided_by=$11, voided_at=$12, entry_number=$13, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, e.TenantID, e.ID, e.EntryDate, e.Description, e.Reference, e.Status, e.TotalAmount,
		e.PostingDate, e.PostedBy, e.UpdatedBy, e.VoidedBy, e.VoidedAt, e.Number)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, uniqueNumberConstraint):
			return fmt.Errorf("entry number %s: %w", e.Number, shared.ErrDuplicateEntryNumber)
		case db.IsUniqueViolation(err, uniqueSourceConstraint):
			return fmt.Errorf("source %s/%s: %w", e.SourceModule, e.SourceID, shared.ErrDuplicateSource)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) FindBySource(ctx context.Context, tenantID int64, module, sourceID string) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND source_module=$2 AND source_id=$3 AND status <> 'VOID' ORDER BY id`, tenantID, module, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const accountColumns = `id, tenant_id, code, name, type, normal_balance, parent_id, full_path, is_active, balance, created_at, updated_at`

func scanAccounts(rows pgx.Rows) ([]accounts.Account, error) {
	defer rows.Close()
	var out []accounts.Account
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.FullPath, &a.IsActive, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) AccountsByID(ctx context.Context, tenantID int64, ids []int64) (map[int64]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	list, err := scanAccounts(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]accounts.Account, len(list))
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

func (r *txRepository) AccountByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code)
	if err != nil {
		return accounts.Account{}, err
	}
	list, err := scanAccounts(rows)
	if err != nil {
		return accounts.Account{}, err
	}
	if len(list) == 0 {
		return accounts.Account{}, fmt.Errorf("code %s: %w", code, shared.ErrAccountNotFound)
	}
	return list[0], nil
}

func (r *txRepository) LockAccounts(ctx context.Context, tenantID int64, ids []int64) ([]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id = ANY($2) ORDER BY code FOR UPDATE`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	return scanAccounts(rows)
}

func (r *txRepository) ApplyBalance(ctx context.Context, tenantID, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) PeriodForDate(ctx context.Context, tenantID int64, date time.Time) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, fiscal_year, period_number, period_name, start_date, end_date, status, closed_at, closed_by, created_at, updated_at
FROM accounting_periods WHERE tenant_id=$1 AND $2 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1 FOR SHARE`, tenantID, date).
		Scan(&p.ID, &p.TenantID, &p.FiscalYear, &p.PeriodNumber, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrPeriodNotFound
		}
		return periods.Period{}, err
	}
	return p, nil
}
