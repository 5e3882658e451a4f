package memstore

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
)

// ReportRepo aggregates ledger activity for statements.
type ReportRepo struct {
	s *Store
}

var _ reports.Repository = (*ReportRepo)(nil)

// Activity totals ledger-effective lines per account within [from, to].
func (r *ReportRepo) Activity(ctx context.Context, tenantID int64, from *time.Time, to time.Time) ([]reports.AccountBalance, error) {
	var out []reports.AccountBalance
	err := r.s.read(ctx, func(st *state) error {
		sums := st.ledgerSums(tenantID, from, &to)
		for _, a := range st.tenantAccounts(tenantID) {
			sum := sums[a.ID]
			out = append(out, reports.AccountBalance{
				AccountID: a.ID,
				Code:      a.Code,
				Name:      a.Name,
				Type:      a.Type,
				Debit:     sum.debit,
				Credit:    sum.credit,
			})
		}
		return nil
	})
	return out, err
}
