package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

type periodRepo struct {
	s *Store
}

func (r *periodRepo) WithTx(ctx context.Context, fn func(context.Context, periods.TxRepository) error) error {
	return r.s.tx(ctx, func() error {
		return fn(ctx, &periodTx{s: r.s})
	})
}

func (r *periodRepo) Get(ctx context.Context, tenantID, id int64) (periods.Period, error) {
	var out periods.Period
	err := r.s.read(ctx, func(st *state) error {
		p, err := st.period(tenantID, id)
		out = p
		return err
	})
	return out, err
}

func (r *periodRepo) List(ctx context.Context, tenantID int64, fiscalYear int) ([]periods.Period, error) {
	var out []periods.Period
	err := r.s.read(ctx, func(st *state) error {
		for _, p := range st.tenantPeriods(tenantID) {
			if fiscalYear == 0 || p.FiscalYear == fiscalYear {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *periodRepo) FindByDate(ctx context.Context, tenantID int64, date time.Time) (periods.Period, error) {
	var out periods.Period
	err := r.s.read(ctx, func(st *state) error {
		p, err := st.periodForDate(tenantID, date)
		out = p
		return err
	})
	return out, err
}

type periodTx struct {
	s *Store
}

// LockTenant is a no-op: the store lock already serialises transactions.
func (t *periodTx) LockTenant(context.Context, int64) error { return nil }

func (t *periodTx) GetForUpdate(_ context.Context, tenantID, id int64) (periods.Period, error) {
	return t.s.state.period(tenantID, id)
}

func (t *periodTx) List(_ context.Context, tenantID int64) ([]periods.Period, error) {
	return t.s.state.tenantPeriods(tenantID), nil
}

func (t *periodTx) Insert(_ context.Context, p periods.Period) (periods.Period, error) {
	st := &t.s.state
	for _, other := range st.periods {
		if other.TenantID == p.TenantID && other.FiscalYear == p.FiscalYear && other.PeriodNumber == p.PeriodNumber {
			return periods.Period{}, fmt.Errorf("fiscal year %d period %d: %w", p.FiscalYear, p.PeriodNumber, shared.ErrPeriodOverlap)
		}
	}
	now := t.s.now()
	p.ID = st.nextID()
	p.CreatedAt = now
	p.UpdatedAt = now
	st.periods[p.ID] = p
	return p, nil
}

func (t *periodTx) UpdateStatus(_ context.Context, p periods.Period) error {
	st := &t.s.state
	current, err := st.period(p.TenantID, p.ID)
	if err != nil {
		return err
	}
	current.Status = p.Status
	current.ClosedAt = p.ClosedAt
	current.ClosedBy = p.ClosedBy
	current.UpdatedAt = t.s.now()
	st.periods[p.ID] = current
	return nil
}

func (st *state) period(tenantID, id int64) (periods.Period, error) {
	p, ok := st.periods[id]
	if !ok || p.TenantID != tenantID {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (st *state) tenantPeriods(tenantID int64) []periods.Period {
	var out []periods.Period
	for _, p := range st.periods {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (st *state) periodForDate(tenantID int64, date time.Time) (periods.Period, error) {
	for _, p := range st.tenantPeriods(tenantID) {
		if p.Contains(date) {
			return p, nil
		}
	}
	return periods.Period{}, shared.ErrPeriodNotFound
}
