package accounting_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/allocation"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

type api struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) api {
	t.Helper()
	module, err := accounting.NewModule(accounting.Options{
		Driver: accounting.DriverMemory,
		Audit:  internalShared.NewMemoryAuditLog(),
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := internalShared.ContextWithPrincipal(req.Context(), internalShared.Principal{TenantID: 1, ActorID: 7})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/accounting", accounting.NewHandler(logger, module).MountRoutes)
	return api{t: t, handler: r}
}

func (a api) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "/accounting"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder, status int) T {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func problem(t *testing.T, rec *httptest.ResponseRecorder, status int) httpx.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	return decode[httpx.ProblemDetail](t, rec, status)
}

func (a api) account(code, typ, parent string) accounts.Account {
	a.t.Helper()
	body := map[string]string{"code": code, "name": code, "type": typ}
	if parent != "" {
		body["parent_code"] = parent
	}
	return decode[accounts.Account](a.t, a.do(http.MethodPost, "/accounts", body), http.StatusCreated)
}

func (a api) openYear() []periods.Period {
	a.t.Helper()
	out := decode[struct {
		Data []periods.Period `json:"data"`
	}](a.t, a.do(http.MethodPost, "/periods/fiscal-years", map[string]int{"fiscal_year": 2024}), http.StatusCreated)
	return out.Data
}

func entryBody(date string, lines ...map[string]string) map[string]any {
	return map[string]any{"entry_date": date, "description": "test", "lines": lines}
}

func dr(code, amount string) map[string]string {
	return map[string]string{"account_code": code, "debit_amount": amount}
}

func cr(code, amount string) map[string]string {
	return map[string]string{"account_code": code, "credit_amount": amount}
}

func TestNewModuleDrivers(t *testing.T) {
	_, err := accounting.NewModule(accounting.Options{Driver: accounting.DriverPostgres})
	require.Error(t, err)
	_, err = accounting.NewModule(accounting.Options{Driver: "sqlite"})
	require.ErrorContains(t, err, "unknown store driver")

	module, err := accounting.NewModule(accounting.Options{Driver: accounting.DriverMemory})
	require.NoError(t, err)
	assert.NotNil(t, module.Journals)
	assert.NotNil(t, module.Reports)
}

func TestLedgerOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.account("1000", "ASSET", "")
	a.account("4000", "REVENUE", "")
	year := a.openYear()
	require.Len(t, year, 12)

	draft := decode[journals.Entry](t, a.do(http.MethodPost, "/journals", entryBody("2024-02-10", dr("1000", "1000"), cr("4000", "1000"))), http.StatusCreated)
	assert.Equal(t, journals.StatusDraft, draft.Status)

	posted := decode[journals.Entry](t, a.do(http.MethodPost, fmt.Sprintf("/journals/%d/post", draft.ID), nil), http.StatusOK)
	assert.Equal(t, journals.StatusPosted, posted.Status)

	again := problem(t, a.do(http.MethodPost, fmt.Sprintf("/journals/%d/post", draft.ID), nil), http.StatusConflict)
	assert.Equal(t, "InvalidStateTransition", again.Type)

	tb := decode[reports.TrialBalance](t, a.do(http.MethodGet, "/reports/trial-balance?as_of_date=2024-02-29", nil), http.StatusOK)
	assert.True(t, tb.Balanced)
	assert.Equal(t, "1000", tb.TotalDebit.String())

	integrity := decode[struct {
		Drift []journals.BalanceDrift `json:"drift"`
	}](t, a.do(http.MethodGet, "/journals/integrity", nil), http.StatusOK)
	assert.Empty(t, integrity.Drift)

	unbalanced := problem(t, a.do(http.MethodPost, "/journals", entryBody("2024-02-10", dr("1000", "1000"), cr("4000", "999"))), http.StatusUnprocessableEntity)
	assert.Equal(t, "UnbalancedEntry", unbalanced.Type)

	closed := decode[periods.Period](t, a.do(http.MethodPost, fmt.Sprintf("/periods/%d/close", year[0].ID), nil), http.StatusOK)
	assert.Equal(t, periods.PeriodStatusClosed, closed.Status)
	jan := decode[journals.Entry](t, a.do(http.MethodPost, "/journals", entryBody("2024-01-15", dr("1000", "5"), cr("4000", "5"))), http.StatusCreated)
	gate := problem(t, a.do(http.MethodPost, fmt.Sprintf("/journals/%d/post", jan.ID), nil), http.StatusConflict)
	assert.Equal(t, "PeriodClosed", gate.Type)

	voided := decode[map[string]journals.Entry](t, a.do(http.MethodPost, fmt.Sprintf("/journals/%d/void", draft.ID), map[string]string{"reason": "typo"}), http.StatusOK)
	assert.Equal(t, journals.StatusVoid, voided["original"].Status)
	assert.Equal(t, journals.StatusDraft, voided["reversal"].Status)

	list := decode[struct {
		Data       []journals.Entry          `json:"data"`
		Pagination internalShared.Pagination `json:"pagination"`
	}](t, a.do(http.MethodGet, "/journals?status=DRAFT", nil), http.StatusOK)
	assert.Equal(t, 2, list.Pagination.Total)
}

func TestAccountsOverHTTP(t *testing.T) {
	a := newAPI(t)
	root := a.account("A", "ASSET", "")
	a.account("B", "ASSET", "A")
	a.account("C", "ASSET", "B")

	cycle := problem(t, a.do(http.MethodPut, fmt.Sprintf("/accounts/%d", root.ID), map[string]string{"parent_code": "C"}), http.StatusConflict)
	assert.Equal(t, "ParentCycleDetected", cycle.Type)

	dup := problem(t, a.do(http.MethodPost, "/accounts", map[string]string{"code": "a", "name": "again", "type": "ASSET"}), http.StatusConflict)
	assert.Equal(t, "DuplicateCode", dup.Type)

	bad := problem(t, a.do(http.MethodPost, "/accounts", map[string]string{"code": "X", "name": "bad", "type": "CASH"}), http.StatusUnprocessableEntity)
	assert.Equal(t, "ValidationFailed", bad.Type)

	inUse := problem(t, a.do(http.MethodDelete, fmt.Sprintf("/accounts/%d", root.ID), nil), http.StatusConflict)
	assert.Equal(t, "InUse", inUse.Type)

	missing := problem(t, a.do(http.MethodGet, "/accounts/999", nil), http.StatusNotFound)
	assert.Equal(t, "NotFound", missing.Type)

	tree := decode[struct {
		Data []*accounts.Node `json:"data"`
	}](t, a.do(http.MethodGet, "/accounts/tree", nil), http.StatusOK)
	require.Len(t, tree.Data, 1)
	require.Len(t, tree.Data[0].Children, 1)
	assert.Equal(t, "A.B", tree.Data[0].Children[0].FullPath)
}

func TestRecurringOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.account("1000", "ASSET", "")
	a.account("6000", "EXPENSE", "")
	a.openYear()

	sched := decode[recurring.Schedule](t, a.do(http.MethodPost, "/recurring", map[string]any{
		"name":       "Rent",
		"frequency":  "MONTHLY",
		"start_date": "2024-01-31",
		"template": map[string]any{
			"description": "Rent",
			"lines":       []map[string]string{dr("6000", "1500"), cr("1000", "1500")},
		},
	}), http.StatusCreated)
	assert.Equal(t, recurring.StatusActive, sched.Status)

	result := decode[recurring.Result](t, a.do(http.MethodPost, "/recurring/process?as_of_date=2024-01-31", nil), http.StatusOK)
	assert.Equal(t, recurring.Result{SuccessCount: 1}, result)

	stored := decode[recurring.Schedule](t, a.do(http.MethodGet, fmt.Sprintf("/recurring/%d", sched.ID), nil), http.StatusOK)
	require.NotNil(t, stored.NextRunDate)
	assert.Equal(t, "2024-02-29", stored.NextRunDate.Format("2006-01-02"))

	paused := decode[recurring.Schedule](t, a.do(http.MethodPost, fmt.Sprintf("/recurring/%d/pause", sched.ID), nil), http.StatusOK)
	assert.Equal(t, recurring.StatusPaused, paused.Status)

	bad := problem(t, a.do(http.MethodPost, "/recurring", map[string]any{
		"name": "Broken", "frequency": "CUSTOM", "start_date": "2024-01-01",
		"template": map[string]any{"lines": []map[string]string{dr("6000", "1"), cr("1000", "1")}},
	}), http.StatusUnprocessableEntity)
	assert.Equal(t, "ValidationFailed", bad.Type)
}

func TestAllocationOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.account("6000", "EXPENSE", "")
	a.account("6100", "EXPENSE", "")
	a.account("6200", "EXPENSE", "")
	a.account("6300", "EXPENSE", "")
	a.openYear()

	rule := decode[allocation.Rule](t, a.do(http.MethodPost, "/allocations", map[string]any{
		"name":   "Overhead",
		"method": "PERCENTAGE",
		"destinations": []map[string]string{
			{"account_code": "6100", "percentage": "33.33"},
			{"account_code": "6200", "percentage": "33.33"},
			{"account_code": "6300", "percentage": "33.34"},
		},
	}), http.StatusCreated)

	allocs := decode[[]allocation.Allocation](t, a.do(http.MethodPost, fmt.Sprintf("/allocations/%d/apply", rule.ID), map[string]string{"amount": "1000"}), http.StatusOK)
	require.Len(t, allocs, 3)
	assert.Equal(t, "333.3", allocs[0].Amount.String())
	assert.Equal(t, "333.4", allocs[2].Amount.String())

	bad := problem(t, a.do(http.MethodPost, "/allocations", map[string]any{
		"name":         "Short",
		"method":       "PERCENTAGE",
		"destinations": []map[string]string{{"account_code": "6100", "percentage": "99"}},
	}), http.StatusUnprocessableEntity)
	assert.Equal(t, "PercentagesDoNotSumTo100", bad.Type)

	drafted := decode[struct {
		Entry journals.Entry `json:"entry"`
	}](t, a.do(http.MethodPost, fmt.Sprintf("/allocations/%d/journal", rule.ID), map[string]string{
		"amount": "90", "source_account_code": "6000", "entry_date": "2024-03-31",
	}), http.StatusCreated)
	assert.Equal(t, allocation.SourceAllocation, drafted.Entry.SourceModule)
	assert.Len(t, drafted.Entry.Lines, 4)
}

func TestMissingPrincipal(t *testing.T) {
	module, err := accounting.NewModule(accounting.Options{Driver: accounting.DriverMemory})
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Route("/accounting", accounting.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), module).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/journals", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
