package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RECURRING_TENANTS", "3,5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 5, cfg.LedgerNumberRetries)
	assert.Equal(t, "5 0 * * *", cfg.RecurringCron)
	assert.Equal(t, 5*time.Minute, cfg.RecurringLockTTL)
	assert.Equal(t, []int64{3, 5}, cfg.RecurringTenants)
	assert.True(t, cfg.JournalConfig().MaintainBalances)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LEDGER_BALANCE_STRATEGY", "lazy")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("LEDGER_BALANCE_STRATEGY", "cached")
	t.Setenv("APP_ENV", "production")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "not allowed in production")
}

func TestJournalConfigAggregate(t *testing.T) {
	cfg := testConfig()
	cfg.LedgerBalanceStrategy = BalanceAggregate
	cfg.LedgerNumberRetries = 2

	jc := cfg.JournalConfig()
	assert.False(t, jc.MaintainBalances)
	assert.Equal(t, 2, jc.NumberRetries)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
