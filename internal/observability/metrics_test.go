package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/test"`)
}

func TestObserveJournalLabelsOutcomeByKind(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveJournal("post", nil)
	metrics.ObserveJournal("post", fmt.Errorf("period Jan: %w", shared.ErrPeriodClosed))

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_ledger_journal_operations_total{action="post",outcome="ok"} 1`)
	assert.Contains(t, body, `odyssey_ledger_journal_operations_total{action="post",outcome="PeriodClosed"} 1`)
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveJournal("create", nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
