package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
)

type stubVerifier map[int64][]journals.BalanceDrift

func (s stubVerifier) VerifyBalances(_ context.Context, tenantID int64) ([]journals.BalanceDrift, error) {
	return s[tenantID], nil
}

type stubTenants []int64

func (s stubTenants) ListTenants(context.Context) ([]int64, error) { return s, nil }

func TestBalanceIntegrityJobReportsDrift(t *testing.T) {
	locker, _ := newLocker(t)
	verifier := stubVerifier{
		2: {{AccountID: 10, Code: "1000", Cached: decimal.NewFromInt(5), Expected: decimal.NewFromInt(7)}},
	}
	job := NewBalanceIntegrityJob(verifier, stubTenants{1, 2}, locker, nil, nil)

	drift, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, "1000", drift[2][0].Code)
}

func TestBalanceIntegrityJobHandle(t *testing.T) {
	job := NewBalanceIntegrityJob(stubVerifier{}, nil, nil, nil, nil)
	task, err := NewBalanceVerifyTask(BalanceVerifyPayload{TenantIDs: []int64{1}})
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskBalanceVerify, []byte("x"))), asynq.SkipRetry)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthReportsQueueDepth(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":4,"failed":0}`, rr.Body.String())
}
