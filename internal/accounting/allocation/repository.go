package allocation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository persists allocation rules with their destinations.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Rule, error)
	List(ctx context.Context, tenantID int64, includeInactive bool) ([]Rule, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tenantID, id int64) (Rule, error)
	Insert(ctx context.Context, rule Rule) (Rule, error)
	Update(ctx context.Context, rule Rule) error
	// ReplaceDestinations swaps the full destination set of a rule.
	ReplaceDestinations(ctx context.Context, ruleID int64, dests []Destination) ([]Destination, error)
}

const ruleColumns = `id, tenant_id, name, description, method, is_active, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the Postgres allocation rule repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	if err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Description, &r.Method, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, shared.ErrRuleNotFound
		}
		return Rule{}, err
	}
	return r, nil
}

func loadDestinations(ctx context.Context, q querier, ruleID int64) ([]Destination, error) {
	rows, err := q.Query(ctx, `SELECT d.id, d.rule_id, d.account_id, a.code, d.percentage, d.fixed_amount, d.sequence, d.description, d.is_active
FROM allocation_destinations d JOIN accounts a ON a.id = d.account_id WHERE d.rule_id=$1 ORDER BY d.sequence, d.id`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Destination
	for rows.Next() {
		var d Destination
		if err := rows.Scan(&d.ID, &d.RuleID, &d.AccountID, &d.AccountCode, &d.Percentage, &d.FixedAmount, &d.Sequence, &d.Description, &d.IsActive); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func getRule(ctx context.Context, q querier, sql string, tenantID, id int64) (Rule, error) {
	rule, err := scanRule(q.QueryRow(ctx, sql, tenantID, id))
	if err != nil {
		return Rule{}, err
	}
	rule.Destinations, err = loadDestinations(ctx, q, rule.ID)
	if err != nil {
		return Rule{}, err
	}
	return rule, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Rule, error) {
	return getRule(ctx, r.db, `SELECT `+ruleColumns+` FROM allocation_rules WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (r *repository) List(ctx context.Context, tenantID int64, includeInactive bool) ([]Rule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ruleColumns+` FROM allocation_rules WHERE tenant_id=$1 AND ($2 OR is_active) ORDER BY name, id`, tenantID, includeInactive)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		rules = append(rules, rule)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].Destinations, err = loadDestinations(ctx, r.db, rules[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return rules, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (Rule, error) {
	return getRule(ctx, r.tx, `SELECT `+ruleColumns+` FROM allocation_rules WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
}

func (r *txRepository) Insert(ctx context.Context, rule Rule) (Rule, error) {
	return scanRule(r.tx.QueryRow(ctx, `INSERT INTO allocation_rules (tenant_id, name, description, method, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING `+ruleColumns, rule.TenantID, rule.Name, rule.Description, rule.Method, rule.IsActive))
}

func (r *txRepository) Update(ctx context.Context, rule Rule) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE allocation_rules SET name=$3, description=$4, method=$5, is_active=$6, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, rule.TenantID, rule.ID, rule.Name, rule.Description, rule.Method, rule.IsActive)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrRuleNotFound
	}
	return nil
}

func (r *txRepository) ReplaceDestinations(ctx context.Context, ruleID int64, dests []Destination) ([]Destination, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM allocation_destinations WHERE rule_id=$1`, ruleID); err != nil {
		return nil, err
	}
	out := make([]Destination, len(dests))
	for i, d := range dests {
		d.RuleID = ruleID
		if err := r.tx.QueryRow(ctx, `INSERT INTO allocation_destinations (rule_id, account_id, percentage, fixed_amount, sequence, description, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, ruleID, d.AccountID, d.Percentage, d.FixedAmount, d.Sequence, d.Description, d.IsActive).Scan(&d.ID); err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
