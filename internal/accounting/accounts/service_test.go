package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	lt "github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

func strPtr(s string) *string { return &s }

func TestCreateAccount(t *testing.T) {
	l := lt.New()
	ctx := context.Background()

	cash := l.Account(t, " 1000 ", accounts.AccountTypeAsset, "")
	assert.Equal(t, "1000", cash.Code)
	assert.Equal(t, "1000", cash.FullPath)
	assert.Equal(t, accounts.NormalDebit, cash.NormalBalance)
	assert.True(t, cash.IsActive)
	assert.True(t, cash.Balance.IsZero())

	petty := l.Account(t, "1010", accounts.AccountTypeAsset, "1000")
	require.NotNil(t, petty.ParentID)
	assert.Equal(t, cash.ID, *petty.ParentID)
	assert.Equal(t, "1000.1010", petty.FullPath)

	_, err := l.Accounts.Create(ctx, lt.Tenant, accounts.CreateInput{Code: "1000", Name: "dup", Type: accounts.AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	_, err = l.Accounts.Create(ctx, lt.Tenant, accounts.CreateInput{Code: "1100", Name: "orphan", Type: accounts.AccountTypeAsset, ParentCode: "9999"})
	require.ErrorIs(t, err, shared.ErrParentNotFound)

	_, err = l.Accounts.Create(ctx, lt.Tenant, accounts.CreateInput{Code: "1100", Name: "bad", Type: "CASHFLOW"})
	require.ErrorIs(t, err, shared.ErrValidation)

	other, err := l.Accounts.Create(ctx, lt.Tenant+1, accounts.CreateInput{Code: "1000", Name: "other tenant", Type: accounts.AccountTypeAsset})
	require.NoError(t, err, "codes are unique per tenant")
	assert.NotEqual(t, cash.ID, other.ID)
}

func TestUpdateDetectsCycle(t *testing.T) {
	l := lt.New()
	ctx := context.Background()
	a := l.Account(t, "A", accounts.AccountTypeAsset, "")
	l.Account(t, "B", accounts.AccountTypeAsset, "A")
	l.Account(t, "C", accounts.AccountTypeAsset, "B")

	_, err := l.Accounts.Update(ctx, lt.Tenant, a.ID, accounts.UpdateInput{ParentCode: strPtr("C")})
	require.ErrorIs(t, err, shared.ErrParentCycle)
	assert.Equal(t, shared.KindParentCycle, shared.KindOf(err))

	_, err = l.Accounts.Update(ctx, lt.Tenant, a.ID, accounts.UpdateInput{ParentCode: strPtr("A")})
	require.ErrorIs(t, err, shared.ErrParentCycle)

	stored, err := l.Accounts.Get(ctx, lt.Tenant, a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ParentID)
}

func TestUpdateRewritesDescendantPaths(t *testing.T) {
	l := lt.New()
	ctx := context.Background()
	l.Account(t, "1000", accounts.AccountTypeAsset, "")
	l.Account(t, "2000", accounts.AccountTypeAsset, "")
	mid := l.Account(t, "1100", accounts.AccountTypeAsset, "1000")
	leaf := l.Account(t, "1110", accounts.AccountTypeAsset, "1100")

	moved, err := l.Accounts.Update(ctx, lt.Tenant, mid.ID, accounts.UpdateInput{ParentCode: strPtr("2000"), Code: strPtr("2100")})
	require.NoError(t, err)
	assert.Equal(t, "2000.2100", moved.FullPath)

	stored, err := l.Accounts.Get(ctx, lt.Tenant, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "2000.2100.1110", stored.FullPath)

	root, err := l.Accounts.Update(ctx, lt.Tenant, mid.ID, accounts.UpdateInput{ParentCode: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, root.ParentID)
	assert.Equal(t, "2100", root.FullPath)

	renamed, err := l.Accounts.Update(ctx, lt.Tenant, leaf.ID, accounts.UpdateInput{Name: strPtr("Petty cash")})
	require.NoError(t, err)
	assert.Equal(t, "2100.1110", renamed.FullPath)
	assert.Equal(t, "Petty cash", renamed.Name)
}

func TestDeleteRefusedWhileInUse(t *testing.T) {
	l := lt.New()
	ctx := context.Background()
	l.Chart(t)
	l.OpenYear(t, 2024)
	parent := l.Account(t, "1300", accounts.AccountTypeAsset, "")
	child := l.Account(t, "1310", accounts.AccountTypeAsset, "1300")

	err := l.Accounts.Delete(ctx, lt.Tenant, parent.ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInUse)

	require.NoError(t, l.Accounts.Delete(ctx, lt.Tenant, child.ID, lt.Actor))
	require.NoError(t, l.Accounts.Delete(ctx, lt.Tenant, parent.ID, lt.Actor))

	l.Draft(t, lt.Date(2024, 3, 1), lt.Dr("6000", "1"), lt.Cr("1000", "1"))
	rent, err := l.Accounts.GetByCode(ctx, lt.Tenant, "6000")
	require.NoError(t, err)
	err = l.Accounts.Delete(ctx, lt.Tenant, rent.ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInUse, "draft lines also pin the account")
}

func TestListAndTree(t *testing.T) {
	l := lt.New()
	ctx := context.Background()
	l.Chart(t)
	l.Account(t, "1010", accounts.AccountTypeAsset, "1000")
	rent, err := l.Accounts.GetByCode(ctx, lt.Tenant, "6000")
	require.NoError(t, err)
	_, err = l.Accounts.Deactivate(ctx, lt.Tenant, rent.ID, lt.Actor)
	require.NoError(t, err)

	active, page, err := l.Accounts.List(ctx, lt.Tenant, accounts.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, active, 7)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, "1000", active[0].Code)

	all, _, err := l.Accounts.List(ctx, lt.Tenant, accounts.ListFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 8)

	assets, _, err := l.Accounts.List(ctx, lt.Tenant, accounts.ListFilter{Type: accounts.AccountTypeAsset})
	require.NoError(t, err)
	assert.Len(t, assets, 3)

	_, _, err = l.Accounts.List(ctx, lt.Tenant, accounts.ListFilter{Type: "BOGUS"})
	require.ErrorIs(t, err, shared.ErrValidation)

	tree, err := l.Accounts.Tree(ctx, lt.Tenant, false)
	require.NoError(t, err)
	require.Len(t, tree, 6)
	assert.Equal(t, "1000", tree[0].Code)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "1010", tree[0].Children[0].Code)
}

func TestBalanceAsOf(t *testing.T) {
	l := lt.New()
	ctx := context.Background()
	l.Chart(t)
	l.OpenYear(t, 2024)
	l.Post(t, lt.Date(2024, 1, 10), lt.Dr("1000", "400"), lt.Cr("4000", "400"))
	l.Post(t, lt.Date(2024, 2, 10), lt.Dr("6000", "150"), lt.Cr("1000", "150"))

	cash, err := l.Accounts.GetByCode(ctx, lt.Tenant, "1000")
	require.NoError(t, err)

	jan := lt.Date(2024, 1, 31)
	atJan, err := l.Accounts.Balance(ctx, lt.Tenant, cash.ID, &jan)
	require.NoError(t, err)
	assert.True(t, atJan.Balance.Equal(lt.Amount("400")))
	assert.True(t, atJan.Credits.IsZero())

	now, err := l.Accounts.Balance(ctx, lt.Tenant, cash.ID, nil)
	require.NoError(t, err)
	assert.True(t, now.Balance.Equal(lt.Amount("250")))
	assert.True(t, now.Debits.Equal(lt.Amount("400")))
	assert.True(t, now.Credits.Equal(lt.Amount("150")))
	assert.True(t, now.Balance.Equal(cash.Balance), "aggregate matches cached")
}
