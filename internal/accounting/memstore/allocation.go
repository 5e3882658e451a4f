package memstore

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/allocation"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

type allocationRepo struct {
	s *Store
}

func (r *allocationRepo) WithTx(ctx context.Context, fn func(context.Context, allocation.TxRepository) error) error {
	return r.s.tx(ctx, func() error {
		return fn(ctx, &allocationTx{s: r.s})
	})
}

func (r *allocationRepo) Get(ctx context.Context, tenantID, id int64) (allocation.Rule, error) {
	var out allocation.Rule
	err := r.s.read(ctx, func(st *state) error {
		rule, err := st.rule(tenantID, id)
		out = rule
		return err
	})
	return out, err
}

func (r *allocationRepo) List(ctx context.Context, tenantID int64, includeInactive bool) ([]allocation.Rule, error) {
	var out []allocation.Rule
	err := r.s.read(ctx, func(st *state) error {
		for _, rule := range st.rules {
			if rule.TenantID != tenantID || (!includeInactive && !rule.IsActive) {
				continue
			}
			full, err := st.rule(tenantID, rule.ID)
			if err != nil {
				return err
			}
			out = append(out, full)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Name != out[j].Name {
				return out[i].Name < out[j].Name
			}
			return out[i].ID < out[j].ID
		})
		return nil
	})
	return out, err
}

type allocationTx struct {
	s *Store
}

func (t *allocationTx) GetForUpdate(_ context.Context, tenantID, id int64) (allocation.Rule, error) {
	return t.s.state.rule(tenantID, id)
}

func (t *allocationTx) Insert(_ context.Context, rule allocation.Rule) (allocation.Rule, error) {
	st := &t.s.state
	now := t.s.now()
	rule.ID = st.nextID()
	rule.Destinations = nil
	rule.CreatedAt = now
	rule.UpdatedAt = now
	st.rules[rule.ID] = rule
	return rule, nil
}

func (t *allocationTx) Update(_ context.Context, rule allocation.Rule) error {
	st := &t.s.state
	current, ok := st.rules[rule.ID]
	if !ok || current.TenantID != rule.TenantID {
		return shared.ErrRuleNotFound
	}
	current.Name = rule.Name
	current.Description = rule.Description
	current.Method = rule.Method
	current.IsActive = rule.IsActive
	current.UpdatedAt = t.s.now()
	st.rules[rule.ID] = current
	return nil
}

func (t *allocationTx) ReplaceDestinations(_ context.Context, ruleID int64, dests []allocation.Destination) ([]allocation.Destination, error) {
	st := &t.s.state
	if _, ok := st.rules[ruleID]; !ok {
		return nil, shared.ErrRuleNotFound
	}
	out := make([]allocation.Destination, len(dests))
	for i, d := range dests {
		d.ID = st.nextID()
		d.RuleID = ruleID
		out[i] = d
	}
	st.dests[ruleID] = append([]allocation.Destination(nil), out...)
	return out, nil
}

// rule returns the rule with destinations ordered by sequence then id.
func (st *state) rule(tenantID, id int64) (allocation.Rule, error) {
	rule, ok := st.rules[id]
	if !ok || rule.TenantID != tenantID {
		return allocation.Rule{}, shared.ErrRuleNotFound
	}
	stored := st.dests[id]
	rule.Destinations = make([]allocation.Destination, len(stored))
	for i, d := range stored {
		d.AccountCode = st.accounts[d.AccountID].Code
		rule.Destinations[i] = d
	}
	sort.Slice(rule.Destinations, func(i, j int) bool {
		if rule.Destinations[i].Sequence != rule.Destinations[j].Sequence {
			return rule.Destinations[i].Sequence < rule.Destinations[j].Sequence
		}
		return rule.Destinations[i].ID < rule.Destinations[j].ID
	})
	return rule, nil
}
