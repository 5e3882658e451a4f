package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

var errBoom = errors.New("boom")

func insertAccount(t *testing.T, s *Store, tenantID int64, code string) accounts.Account {
	t.Helper()
	var out accounts.Account
	err := s.Accounts().WithTx(context.Background(), func(ctx context.Context, tx accounts.TxRepository) error {
		a, err := tx.Insert(ctx, accounts.Account{
			TenantID:      tenantID,
			Code:          code,
			Name:          code,
			Type:          accounts.AccountTypeAsset,
			NormalBalance: accounts.NormalDebit,
			FullPath:      code,
			IsActive:      true,
		})
		out = a
		return err
	})
	require.NoError(t, err)
	return out
}

func TestTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	cash := insertAccount(t, s, 1, "1000")

	err := s.Accounts().WithTx(ctx, func(ctx context.Context, tx accounts.TxRepository) error {
		if _, err := tx.Insert(ctx, accounts.Account{TenantID: 1, Code: "2000", Name: "x", Type: accounts.AccountTypeLiability, IsActive: true}); err != nil {
			return err
		}
		cash.Name = "renamed"
		if err := tx.Update(ctx, cash); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = s.Accounts().GetByCode(ctx, 1, "2000")
	require.ErrorIs(t, err, shared.ErrNotFound)
	stored, err := s.Accounts().Get(ctx, 1, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", stored.Name)
}

func TestJournalRollbackRestoresBalance(t *testing.T) {
	s := New()
	ctx := context.Background()
	cash := insertAccount(t, s, 1, "1000")

	err := s.Journals().WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		if err := tx.ApplyBalance(ctx, 1, cash.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	stored, err := s.Accounts().Get(ctx, 1, cash.ID)
	require.NoError(t, err)
	assert.True(t, stored.Balance.IsZero())
}

func TestUniqueCodePerTenant(t *testing.T) {
	s := New()
	insertAccount(t, s, 1, "1000")
	insertAccount(t, s, 2, "1000")

	err := s.Accounts().WithTx(context.Background(), func(ctx context.Context, tx accounts.TxRepository) error {
		_, err := tx.Insert(ctx, accounts.Account{TenantID: 1, Code: "1000", Name: "dup", IsActive: true})
		return err
	})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	_, err = s.Accounts().Get(context.Background(), 2, 1)
	require.ErrorIs(t, err, shared.ErrNotFound, "ids do not leak across tenants")
}

func TestJournalConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	entry := journals.Entry{TenantID: 1, Number: "JE-20240101-00001", EntryDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Status: journals.StatusDraft, SourceModule: "SALES", SourceID: "9"}

	require.NoError(t, s.Journals().WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		_, err := tx.InsertEntry(ctx, entry)
		return err
	}))

	err := s.Journals().WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		dup := entry
		dup.SourceID = "10"
		_, err := tx.InsertEntry(ctx, dup)
		return err
	})
	require.ErrorIs(t, err, shared.ErrDuplicateEntryNumber)

	err = s.Journals().WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		dup := entry
		dup.Number = "JE-20240101-00002"
		_, err := tx.InsertEntry(ctx, dup)
		return err
	})
	require.ErrorIs(t, err, shared.ErrDuplicateSource)

	err = s.Journals().WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		rec := entry
		rec.Number = "JE-20240101-00003"
		rec.SourceModule = journals.SourceRecurring
		if _, err := tx.InsertEntry(ctx, rec); err != nil {
			return err
		}
		rec.Number = "JE-20240101-00004"
		_, err := tx.InsertEntry(ctx, rec)
		return err
	})
	require.NoError(t, err, "recurring entries share their source")

	var next int
	require.NoError(t, s.Journals().WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		var err error
		next, err = tx.NextSequence(ctx, 1, "JE-20240101-")
		return err
	}))
	assert.Equal(t, 5, next)
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Accounts().Get(ctx, 1, 1)
	require.ErrorIs(t, err, context.Canceled)
	err = s.Accounts().WithTx(ctx, func(context.Context, accounts.TxRepository) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithNowStampsRecords(t *testing.T) {
	s := New()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.WithNow(func() time.Time { return fixed })

	a := insertAccount(t, s, 1, "1000")
	assert.Equal(t, fixed, a.CreatedAt)
	assert.Equal(t, fixed, a.UpdatedAt)
}
