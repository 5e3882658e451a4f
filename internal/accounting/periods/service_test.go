package periods_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lt "github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

func TestCreateFiscalYearCalendar(t *testing.T) {
	l := lt.New()
	created := l.OpenYear(t, 2024)

	require.Len(t, created, 12)
	assert.Equal(t, "Jan 2024", created[0].Name)
	assert.Equal(t, lt.Date(2024, 1, 1), created[0].StartDate)
	assert.Equal(t, lt.Date(2024, 2, 29), created[1].EndDate, "leap February")
	assert.Equal(t, lt.Date(2024, 12, 31), created[11].EndDate)
	for i, p := range created {
		assert.Equal(t, i+1, p.PeriodNumber)
		assert.Equal(t, periods.PeriodStatusOpen, p.Status)
	}
}

func TestCreateFiscalYearOffsetStart(t *testing.T) {
	l := lt.New()
	created, err := l.Periods.CreateFiscalYear(context.Background(), lt.Tenant, 2025, time.April, lt.Actor)
	require.NoError(t, err)

	require.Len(t, created, 12)
	assert.Equal(t, lt.Date(2024, 4, 1), created[0].StartDate)
	assert.Equal(t, lt.Date(2025, 3, 31), created[11].EndDate)
	assert.Equal(t, 2025, created[11].FiscalYear)

	start, err := l.Periods.FiscalYearStart(context.Background(), lt.Tenant, lt.Date(2025, 2, 14))
	require.NoError(t, err)
	assert.Equal(t, lt.Date(2024, 4, 1), start)
}

func TestCreateFiscalYearTwiceOverlaps(t *testing.T) {
	l := lt.New()
	l.OpenYear(t, 2024)

	_, err := l.Periods.CreateFiscalYear(context.Background(), lt.Tenant, 2024, time.January, lt.Actor)
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)

	all, err := l.Periods.List(context.Background(), lt.Tenant, 0)
	require.NoError(t, err)
	assert.Len(t, all, 12, "failed batch leaves nothing behind")
}

func TestCreateRejectsGapsAndOverlaps(t *testing.T) {
	l := lt.New()
	ctx := context.Background()

	_, err := l.Periods.Create(ctx, lt.Tenant, periods.CreateInput{
		FiscalYear: 2024, PeriodNumber: 1, StartDate: lt.Date(2024, 1, 1), EndDate: lt.Date(2024, 1, 31),
	})
	require.NoError(t, err)

	_, err = l.Periods.Create(ctx, lt.Tenant, periods.CreateInput{
		FiscalYear: 2024, PeriodNumber: 2, StartDate: lt.Date(2024, 2, 2), EndDate: lt.Date(2024, 2, 29),
	})
	require.ErrorIs(t, err, shared.ErrPeriodNotContiguous)

	_, err = l.Periods.Create(ctx, lt.Tenant, periods.CreateInput{
		FiscalYear: 2024, PeriodNumber: 2, StartDate: lt.Date(2024, 1, 31), EndDate: lt.Date(2024, 2, 29),
	})
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)

	_, err = l.Periods.Create(ctx, lt.Tenant, periods.CreateInput{
		FiscalYear: 2024, PeriodNumber: 2, StartDate: lt.Date(2024, 3, 1), EndDate: lt.Date(2024, 2, 1),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	feb, err := l.Periods.Create(ctx, lt.Tenant, periods.CreateInput{
		FiscalYear: 2024, PeriodNumber: 2, StartDate: lt.Date(2024, 2, 1), EndDate: lt.Date(2024, 2, 29),
	})
	require.NoError(t, err)
	assert.Equal(t, "FY2024-P02", feb.Name)
}

func TestCloseInOrder(t *testing.T) {
	l := lt.New()
	ctx := context.Background()
	year := l.OpenYear(t, 2024)

	_, err := l.Periods.Close(ctx, lt.Tenant, year[1].ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition, "January still open")

	jan, err := l.Periods.Close(ctx, lt.Tenant, year[0].ID, lt.Actor)
	require.NoError(t, err)
	assert.Equal(t, periods.PeriodStatusClosed, jan.Status)
	require.NotNil(t, jan.ClosedBy)
	assert.Equal(t, lt.Actor, *jan.ClosedBy)

	_, err = l.Periods.Close(ctx, lt.Tenant, year[0].ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)

	require.ErrorIs(t, l.Periods.EnsureOpen(ctx, lt.Tenant, lt.Date(2024, 1, 15)), shared.ErrPeriodClosed)
	require.NoError(t, l.Periods.EnsureOpen(ctx, lt.Tenant, lt.Date(2024, 2, 1)))
	require.ErrorIs(t, l.Periods.EnsureOpen(ctx, lt.Tenant, lt.Date(2023, 12, 31)), shared.ErrNoOpenPeriod)
}

func TestReopenRequiresLaterPeriodsOpen(t *testing.T) {
	l := lt.New()
	ctx := context.Background()
	year := l.OpenYear(t, 2024)

	_, err := l.Periods.Close(ctx, lt.Tenant, year[0].ID, lt.Actor)
	require.NoError(t, err)
	_, err = l.Periods.Close(ctx, lt.Tenant, year[1].ID, lt.Actor)
	require.NoError(t, err)

	_, err = l.Periods.Reopen(ctx, lt.Tenant, year[0].ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)

	feb, err := l.Periods.Reopen(ctx, lt.Tenant, year[1].ID, lt.Actor)
	require.NoError(t, err)
	assert.Equal(t, periods.PeriodStatusOpen, feb.Status)
	assert.Nil(t, feb.ClosedAt)

	_, err = l.Periods.Reopen(ctx, lt.Tenant, year[1].ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestFiscalYearStartDefaultsToCalendar(t *testing.T) {
	l := lt.New()
	start, err := l.Periods.FiscalYearStart(context.Background(), lt.Tenant, lt.Date(2030, 7, 4))
	require.NoError(t, err)
	assert.Equal(t, lt.Date(2030, 1, 1), start)
}

func TestPeriodContains(t *testing.T) {
	p := periods.Period{StartDate: lt.Date(2024, 1, 1), EndDate: lt.Date(2024, 1, 31)}
	assert.True(t, p.Contains(lt.Date(2024, 1, 1)))
	assert.True(t, p.Contains(lt.Date(2024, 1, 31)))
	assert.False(t, p.Contains(lt.Date(2024, 2, 1)))
	assert.True(t, p.Overlaps(lt.Date(2023, 12, 1), lt.Date(2024, 1, 1)))
	assert.False(t, p.Overlaps(lt.Date(2024, 2, 1), lt.Date(2024, 2, 29)))
}

func TestGetMissingPeriod(t *testing.T) {
	l := lt.New()
	_, err := l.Periods.Get(context.Background(), lt.Tenant, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
