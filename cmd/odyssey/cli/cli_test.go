package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-gl/jobs"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

type stubVerifier struct {
	drift []journals.BalanceDrift
	err   error
}

func (s stubVerifier) VerifyBalances(ctx context.Context, tenantID int64) ([]journals.BalanceDrift, error) {
	return s.drift, s.err
}

type stubReports struct {
	tb   reports.TrialBalance
	asOf time.Time
}

func (s *stubReports) TrialBalance(ctx context.Context, tenantID int64, asOf time.Time) (reports.TrialBalance, error) {
	s.asOf = asOf
	s.tb.AsOf = asOf
	return s.tb, nil
}

func TestVerifyCommandJSONClean(t *testing.T) {
	cli, err := NewLedgerOpsCLI(stubVerifier{}, &stubReports{})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.VerifyCommand(context.Background(), LedgerOptions{TenantID: 1, JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitOK, code)
	require.Empty(t, stderr.String())

	var summary VerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Empty(t, summary.Drift)
}

func TestVerifyCommandReportsDrift(t *testing.T) {
	verifier := stubVerifier{drift: []journals.BalanceDrift{{AccountID: 4, Code: "1000", Cached: decimal.NewFromInt(10), Expected: decimal.NewFromInt(12)}}}
	cli, err := NewLedgerOpsCLI(verifier, &stubReports{})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.VerifyCommand(context.Background(), LedgerOptions{TenantID: 1, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitFindings, code)
	require.Contains(t, stdout.String(), "1000 cached 10.0000 expected 12.0000")
}

func TestVerifyCommandErrors(t *testing.T) {
	cli, err := NewLedgerOpsCLI(stubVerifier{err: errors.New("boom")}, &stubReports{})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, ExitError, cli.VerifyCommand(context.Background(), LedgerOptions{Stderr: stderr}))
	require.Contains(t, stderr.String(), "--tenant is required")

	stderr.Reset()
	require.Equal(t, ExitError, cli.VerifyCommand(context.Background(), LedgerOptions{TenantID: 1, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "boom")
}

func TestTrialBalanceCommand(t *testing.T) {
	stub := &stubReports{tb: reports.TrialBalance{
		TotalDebit:  decimal.NewFromInt(500),
		TotalCredit: decimal.NewFromInt(500),
		Balanced:    true,
	}}
	cli, err := NewLedgerOpsCLI(stubVerifier{}, stub)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.TrialBalanceCommand(context.Background(), LedgerOptions{TenantID: 2, AsOf: "2024-03-31", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitOK, code)
	require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), stub.asOf)
	require.Contains(t, stdout.String(), "as of 2024-03-31")
	require.Contains(t, stdout.String(), "500.00")

	stub.tb.Balanced = false
	require.Equal(t, ExitFindings, cli.TrialBalanceCommand(context.Background(), LedgerOptions{TenantID: 2, Stdout: new(bytes.Buffer)}))
}

func TestTrialBalanceCommandInvalidDate(t *testing.T) {
	cli, err := NewLedgerOpsCLI(stubVerifier{}, &stubReports{})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.TrialBalanceCommand(context.Background(), LedgerOptions{TenantID: 1, AsOf: "31/03/2024", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, ExitError, code)
	require.Contains(t, stderr.String(), "invalid date")
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskRecurringProcess, []int64{3})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskRecurringProcess, task.Type())
	require.JSONEq(t, `{"tenant_ids":[3]}`, string(task.Payload()))

	task, err = BuildTask(jobs.TaskBalanceVerify, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(task.Payload()))

	_, err = BuildTask("gl:unknown", nil)
	require.Error(t, err)
}
