package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository aggregates ledger activity for reporting.
type Repository interface {
	// Activity returns every account of the tenant with debits and credits
	// from ledger-effective lines dated within [from, to]. A nil from means
	// the beginning of the ledger.
	Activity(ctx context.Context, tenantID int64, from *time.Time, to time.Time) ([]AccountBalance, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the Postgres reporting repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const activitySQL = `SELECT a.id, a.code, a.name, a.type,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
     AND EXISTS (
        SELECT 1 FROM journal_entries e
        WHERE e.id = l.entry_id
          AND e.tenant_id = a.tenant_id
          AND e.posting_date IS NOT NULL
          AND ($2::date IS NULL OR e.entry_date >= $2::date)
          AND e.entry_date <= $3::date)
WHERE a.tenant_id = $1
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`

func (r *repository) Activity(ctx context.Context, tenantID int64, from *time.Time, to time.Time) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, activitySQL, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
