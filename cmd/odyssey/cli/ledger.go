package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Exit codes shared by the ledger commands.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitFindings = 10
)

// BalanceVerifier compares cached balances with the ledger.
type BalanceVerifier interface {
	VerifyBalances(ctx context.Context, tenantID int64) ([]journals.BalanceDrift, error)
}

// TrialBalancer builds trial balances.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, tenantID int64, asOf time.Time) (reports.TrialBalance, error)
}

// LedgerOpsCLI offers operational helpers over the general ledger.
type LedgerOpsCLI struct {
	verifier BalanceVerifier
	reports  TrialBalancer
	now      func() time.Time
}

// NewLedgerOpsCLI constructs a helper bound to the given services.
func NewLedgerOpsCLI(verifier BalanceVerifier, reports TrialBalancer) (*LedgerOpsCLI, error) {
	if verifier == nil || reports == nil {
		return nil, errors.New("ledger cli: services required")
	}
	return &LedgerOpsCLI{verifier: verifier, reports: reports, now: time.Now}, nil
}

// LedgerOptions defines the flags shared by ledger commands.
type LedgerOptions struct {
	TenantID   int64
	AsOf       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *LedgerOptions) normalize() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// VerifySummary describes the JSON response for ledger verify.
type VerifySummary struct {
	OK       bool                    `json:"ok"`
	TenantID int64                   `json:"tenant_id"`
	Drift    []journals.BalanceDrift `json:"drift"`
}

// VerifyCommand compares cached balances for a tenant and prints any drift.
// It exits with ExitFindings when drift exists.
func (c *LedgerOpsCLI) VerifyCommand(ctx context.Context, opts LedgerOptions) int {
	opts.normalize()
	if opts.TenantID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger verify: --tenant is required and must be positive")
		return ExitError
	}
	drift, err := c.verifier.VerifyBalances(ctx, opts.TenantID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: %v\n", err)
		return ExitError
	}
	if drift == nil {
		drift = []journals.BalanceDrift{}
	}
	if opts.JSONOutput {
		summary := VerifySummary{OK: len(drift) == 0, TenantID: opts.TenantID, Drift: drift}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderDriftHuman(opts.Stdout, opts.TenantID, drift)
	}
	if len(drift) > 0 {
		return ExitFindings
	}
	return ExitOK
}

// TrialBalanceCommand prints the trial balance for a tenant. It exits with
// ExitFindings when the totals disagree.
func (c *LedgerOpsCLI) TrialBalanceCommand(ctx context.Context, opts LedgerOptions) int {
	opts.normalize()
	if opts.TenantID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger trial-balance: --tenant is required and must be positive")
		return ExitError
	}
	asOf := shared.DateOnly(c.now())
	if raw := strings.TrimSpace(opts.AsOf); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger trial-balance: invalid date %q (expected YYYY-MM-DD)\n", opts.AsOf)
			return ExitError
		}
		asOf = parsed
	}
	tb, err := c.reports.TrialBalance(ctx, opts.TenantID, asOf)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger trial-balance: %v\n", err)
		return ExitError
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(tb); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger trial-balance: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderTrialBalanceHuman(opts.Stdout, opts.TenantID, tb)
	}
	if !tb.Balanced {
		return ExitFindings
	}
	return ExitOK
}

func renderDriftHuman(out io.Writer, tenantID int64, drift []journals.BalanceDrift) {
	if len(drift) == 0 {
		_, _ = fmt.Fprintf(out, "Tenant %d: cached balances match the ledger.\n", tenantID)
		return
	}
	_, _ = fmt.Fprintf(out, "Tenant %d: %d account(s) drifted:\n", tenantID, len(drift))
	for _, d := range drift {
		_, _ = fmt.Fprintf(out, " - %s cached %s expected %s\n", d.Code, d.Cached.StringFixed(4), d.Expected.StringFixed(4))
	}
}

func renderTrialBalanceHuman(out io.Writer, tenantID int64, tb reports.TrialBalance) {
	_, _ = fmt.Fprintf(out, "Trial balance for tenant %d as of %s\n", tenantID, tb.AsOf.Format(shared.DateLayout))
	for _, group := range tb.Groups {
		_, _ = fmt.Fprintf(out, "%s\n", group.Type)
		for _, row := range group.Accounts {
			_, _ = fmt.Fprintf(out, "  %-12s %-32s %16s %16s\n", row.Code, row.Name, row.DebitBalance.StringFixed(2), row.CreditBalance.StringFixed(2))
		}
	}
	_, _ = fmt.Fprintf(out, "  %-12s %-32s %16s %16s\n", "", "Total", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
	if !tb.Balanced {
		_, _ = fmt.Fprintln(out, "WARNING: debits and credits disagree")
	}
}
