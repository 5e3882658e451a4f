package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/observability"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
	"github.com/odyssey-erp/odyssey-gl/jobs"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

func testConfig() *Config {
	return &Config{
		AppEnv:                "development",
		AppRateLimit:          1000,
		StoreDriver:           string(accounting.DriverMemory),
		LedgerNumberRetries:   5,
		LedgerBalanceStrategy: BalanceCached,
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testConfig()
	module, err := accounting.NewModule(accounting.Options{
		Driver:  accounting.DriverMemory,
		Audit:   shared.NewMemoryAuditLog(),
		Journal: cfg.JournalConfig(),
	})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return NewRouter(RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accounting.NewHandler(logger, module),
		JobHandler:        jobs.NewHandler(nil, logger),
		Metrics:           observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouterRequiresTenant(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/accounts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterRejectsMalformedTenant(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/accounting/accounts", nil)
	req.Header.Set(HeaderTenantID, "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterCreatesAccountForTenant(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/accounting/accounts", strings.NewReader(`{"code":"1000","name":"Cash","type":"ASSET"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenantID, "7")
	req.Header.Set(HeaderActorID, "3")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		TenantID      int64  `json:"tenant_id"`
		Code          string `json:"code"`
		NormalBalance string `json:"normal_balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(7), created.TenantID)
	assert.Equal(t, "1000", created.Code)
	assert.Equal(t, "DEBIT", created.NormalBalance)

	// another tenant sees nothing
	list := httptest.NewRequest(http.MethodGet, "/accounting/accounts", nil)
	list.Header.Set(HeaderTenantID, "8")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, list)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Data)
}

func TestRouterExposesJobsAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), jobs.QueueDefault)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "odyssey_http_requests_total")
}

func TestPrincipalMiddleware(t *testing.T) {
	var got shared.Principal
	var found bool
	handler := PrincipalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = shared.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTenantID, "42")
	req.Header.Set(HeaderActorID, "9")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, found)
	assert.Equal(t, shared.Principal{TenantID: 42, ActorID: 9}, got)

	found = false
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, found)

	for _, header := range []string{HeaderTenantID, HeaderActorID} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderTenantID, "1")
		req.Header.Set(header, "-5")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, header)
	}
}
