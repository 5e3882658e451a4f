package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

type recurringRepo struct {
	s *Store
}

func (r *recurringRepo) WithTx(ctx context.Context, fn func(context.Context, recurring.TxRepository) error) error {
	return r.s.tx(ctx, func() error {
		return fn(ctx, &recurringTx{s: r.s})
	})
}

func (r *recurringRepo) Get(ctx context.Context, tenantID, id int64) (recurring.Schedule, error) {
	var out recurring.Schedule
	err := r.s.read(ctx, func(st *state) error {
		sched, err := st.schedule(tenantID, id)
		out = sched
		return err
	})
	return out, err
}

func (r *recurringRepo) List(ctx context.Context, tenantID int64, status recurring.Status) ([]recurring.Schedule, error) {
	var out []recurring.Schedule
	err := r.s.read(ctx, func(st *state) error {
		for _, sched := range st.schedules {
			if sched.TenantID == tenantID && (status == "" || sched.Status == status) {
				out = append(out, sched)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *recurringRepo) ListDue(ctx context.Context, tenantID int64, asOf time.Time) ([]recurring.Schedule, error) {
	var out []recurring.Schedule
	err := r.s.read(ctx, func(st *state) error {
		for _, sched := range st.schedules {
			if sched.TenantID == tenantID && due(sched, asOf) {
				out = append(out, sched)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].NextRunDate.Equal(*out[j].NextRunDate) {
				return out[i].NextRunDate.Before(*out[j].NextRunDate)
			}
			return out[i].ID < out[j].ID
		})
		return nil
	})
	return out, err
}

func (r *recurringRepo) ListTenantsWithDue(ctx context.Context, asOf time.Time) ([]int64, error) {
	var out []int64
	err := r.s.read(ctx, func(st *state) error {
		seen := map[int64]bool{}
		for _, sched := range st.schedules {
			if due(sched, asOf) && !seen[sched.TenantID] {
				seen[sched.TenantID] = true
				out = append(out, sched.TenantID)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return nil
	})
	return out, err
}

func (r *recurringRepo) RecordFailure(ctx context.Context, tenantID, id int64, message string, at time.Time) error {
	return r.s.read(ctx, func(st *state) error {
		sched, err := st.schedule(tenantID, id)
		if err != nil {
			return err
		}
		sched.LastError = message
		sched.LastErrorAt = &at
		sched.UpdatedAt = r.s.now()
		st.schedules[id] = sched
		return nil
	})
}

func due(sched recurring.Schedule, asOf time.Time) bool {
	return sched.Status == recurring.StatusActive && sched.NextRunDate != nil && !sched.NextRunDate.After(asOf)
}

type recurringTx struct {
	s *Store
}

func (t *recurringTx) GetForUpdate(_ context.Context, tenantID, id int64) (recurring.Schedule, error) {
	return t.s.state.schedule(tenantID, id)
}

func (t *recurringTx) Insert(_ context.Context, sched recurring.Schedule) (recurring.Schedule, error) {
	st := &t.s.state
	now := t.s.now()
	sched.ID = st.nextID()
	sched.TotalOccurrences = 0
	sched.Template.Lines = append([]recurring.TemplateLine(nil), sched.Template.Lines...)
	sched.CreatedAt = now
	sched.UpdatedAt = now
	st.schedules[sched.ID] = sched
	return sched, nil
}

func (t *recurringTx) Update(_ context.Context, sched recurring.Schedule) error {
	st := &t.s.state
	current, err := st.schedule(sched.TenantID, sched.ID)
	if err != nil {
		return err
	}
	current.Name = sched.Name
	current.Status = sched.Status
	current.NextRunDate = sched.NextRunDate
	current.LastRunDate = sched.LastRunDate
	current.TotalOccurrences = sched.TotalOccurrences
	current.Template = sched.Template
	current.Template.Lines = append([]recurring.TemplateLine(nil), sched.Template.Lines...)
	current.LastError = sched.LastError
	current.LastErrorAt = sched.LastErrorAt
	current.UpdatedAt = t.s.now()
	st.schedules[sched.ID] = current
	return nil
}

func (st *state) schedule(tenantID, id int64) (recurring.Schedule, error) {
	sched, ok := st.schedules[id]
	if !ok || sched.TenantID != tenantID {
		return recurring.Schedule{}, shared.ErrScheduleNotFound
	}
	return sched, nil
}
