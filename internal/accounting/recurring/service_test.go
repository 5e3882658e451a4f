package recurring_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	lt "github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

func rentTemplate() recurring.Template {
	return recurring.Template{
		Description: "Office rent",
		Lines: []recurring.TemplateLine{
			{AccountCode: "6000", Debit: lt.Amount("1500")},
			{AccountCode: "1000", Credit: lt.Amount("1500")},
		},
	}
}

func setup(t *testing.T) *lt.Ledger {
	t.Helper()
	l := lt.New()
	l.Chart(t)
	l.OpenYear(t, 2024)
	return l
}

func createMonthly(t *testing.T, l *lt.Ledger, start time.Time, mutate func(*recurring.CreateInput)) recurring.Schedule {
	t.Helper()
	input := recurring.CreateInput{
		Name:      "Rent",
		Frequency: recurring.FrequencyMonthly,
		StartDate: start,
		Template:  rentTemplate(),
		ActorID:   lt.Actor,
	}
	if mutate != nil {
		mutate(&input)
	}
	sched, err := l.Recurring.Create(context.Background(), lt.Tenant, input)
	require.NoError(t, err)
	return sched
}

func recurringEntries(t *testing.T, l *lt.Ledger, sched recurring.Schedule) []journals.Entry {
	t.Helper()
	items, _, err := l.Journals.List(context.Background(), lt.Tenant, journals.ListFilter{
		SourceModule: journals.SourceRecurring,
		SourceID:     strconv.FormatInt(sched.ID, 10),
		Status:       journals.StatusPosted,
	})
	require.NoError(t, err)
	return items
}

func TestCreateDefaults(t *testing.T) {
	l := setup(t)
	sched := createMonthly(t, l, lt.Date(2024, 1, 31), nil)

	assert.Equal(t, recurring.StatusActive, sched.Status)
	assert.Equal(t, 1, sched.Interval)
	assert.Equal(t, recurring.EndNever, sched.EndType)
	require.NotNil(t, sched.NextRunDate)
	assert.Equal(t, lt.Date(2024, 1, 31), *sched.NextRunDate)
	assert.Zero(t, sched.TotalOccurrences)
}

func TestCreateValidation(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	zero := 0
	end := lt.Date(2023, 12, 1)

	unbalanced := recurring.Template{Lines: []recurring.TemplateLine{
		{AccountCode: "6000", Debit: lt.Amount("10")},
		{AccountCode: "1000", Credit: lt.Amount("9")},
	}}

	cases := map[string]recurring.CreateInput{
		"no name":          {Frequency: recurring.FrequencyMonthly, StartDate: lt.Date(2024, 1, 1), Template: rentTemplate()},
		"bad frequency":    {Name: "x", Frequency: "HOURLY", StartDate: lt.Date(2024, 1, 1), Template: rentTemplate()},
		"custom no next":   {Name: "x", Frequency: recurring.FrequencyCustom, StartDate: lt.Date(2024, 1, 1), Template: rentTemplate()},
		"zero occurrence":  {Name: "x", Frequency: recurring.FrequencyMonthly, StartDate: lt.Date(2024, 1, 1), EndType: recurring.EndAfterOccurrences, EndAfterOccurrences: &zero, Template: rentTemplate()},
		"end before start": {Name: "x", Frequency: recurring.FrequencyMonthly, StartDate: lt.Date(2024, 1, 1), EndType: recurring.EndOnDate, EndDate: &end, Template: rentTemplate()},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.Recurring.Create(ctx, lt.Tenant, input)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	_, err := l.Recurring.Create(ctx, lt.Tenant, recurring.CreateInput{
		Name: "x", Frequency: recurring.FrequencyMonthly, StartDate: lt.Date(2024, 1, 1), Template: unbalanced,
	})
	require.ErrorIs(t, err, shared.ErrUnbalanced)
}

func TestMonthEndScheduleClampsForward(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	sched := createMonthly(t, l, lt.Date(2024, 1, 31), nil)

	want := []time.Time{lt.Date(2024, 2, 29), lt.Date(2024, 3, 29)}
	for i, next := range want {
		result, err := l.Recurring.ProcessDue(ctx, lt.Tenant, lt.Date(2024, 4, 30))
		require.NoError(t, err)
		assert.Equal(t, recurring.Result{SuccessCount: 1}, result, "one occurrence per tick")

		stored, err := l.Recurring.Get(ctx, lt.Tenant, sched.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.NextRunDate)
		assert.Equal(t, next, *stored.NextRunDate)
		assert.Equal(t, i+1, stored.TotalOccurrences)
	}

	entries := recurringEntries(t, l, sched)
	require.Len(t, entries, 2)
	assert.True(t, l.Balance(t, "6000").Equal(lt.Amount("3000")))
}

func TestProcessDueSkipsFutureAndPaused(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	future := createMonthly(t, l, lt.Date(2024, 9, 1), nil)
	paused := createMonthly(t, l, lt.Date(2024, 1, 1), nil)
	_, err := l.Recurring.Pause(ctx, lt.Tenant, paused.ID, lt.Actor)
	require.NoError(t, err)

	result, err := l.Recurring.ProcessDue(ctx, lt.Tenant, lt.Date(2024, 6, 1))
	require.NoError(t, err)
	assert.Zero(t, result.SuccessCount)
	assert.Zero(t, result.ErrorCount)
	assert.Empty(t, recurringEntries(t, l, future))

	tenants, err := l.Recurring.DueTenants(ctx, lt.Date(2024, 9, 1))
	require.NoError(t, err)
	assert.Equal(t, []int64{lt.Tenant}, tenants)
}

func TestOccurrenceLimitCompletes(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	limit := 2
	sched := createMonthly(t, l, lt.Date(2024, 1, 1), func(in *recurring.CreateInput) {
		in.EndType = recurring.EndAfterOccurrences
		in.EndAfterOccurrences = &limit
	})

	for i := 0; i < 4; i++ {
		_, err := l.Recurring.ProcessDue(ctx, lt.Tenant, lt.Date(2024, 12, 31))
		require.NoError(t, err)
	}

	stored, err := l.Recurring.Get(ctx, lt.Tenant, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusCompleted, stored.Status)
	assert.Nil(t, stored.NextRunDate)
	assert.Equal(t, 2, stored.TotalOccurrences)
	assert.Len(t, recurringEntries(t, l, sched), 2)

	_, err = l.Recurring.Resume(ctx, lt.Tenant, sched.ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	_, err = l.Recurring.Reschedule(ctx, lt.Tenant, sched.ID, lt.Date(2024, 6, 1), lt.Actor)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestEndDateCompletes(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	end := lt.Date(2024, 2, 15)
	sched := createMonthly(t, l, lt.Date(2024, 1, 1), func(in *recurring.CreateInput) {
		in.EndType = recurring.EndOnDate
		in.EndDate = &end
	})

	for i := 0; i < 3; i++ {
		_, err := l.Recurring.ProcessDue(ctx, lt.Tenant, lt.Date(2024, 12, 31))
		require.NoError(t, err)
	}

	stored, err := l.Recurring.Get(ctx, lt.Tenant, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.TotalOccurrences, "runs on Jan 1 and Feb 1")
}

func TestFailureIsRecordedAndRetried(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	year, err := l.Periods.List(ctx, lt.Tenant, 2024)
	require.NoError(t, err)
	_, err = l.Periods.Close(ctx, lt.Tenant, year[0].ID, lt.Actor)
	require.NoError(t, err)

	sched := createMonthly(t, l, lt.Date(2024, 1, 15), nil)

	result, err := l.Recurring.ProcessDue(ctx, lt.Tenant, lt.Date(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, recurring.Result{ErrorCount: 1}, result)

	stored, err := l.Recurring.Get(ctx, lt.Tenant, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusActive, stored.Status)
	assert.Contains(t, stored.LastError, "period closed")
	require.NotNil(t, stored.LastErrorAt)
	require.NotNil(t, stored.NextRunDate)
	assert.Equal(t, lt.Date(2024, 1, 15), *stored.NextRunDate, "next run is kept for retry")
	assert.Zero(t, stored.TotalOccurrences)

	drafts, _, err := l.Journals.List(ctx, lt.Tenant, journals.ListFilter{Status: journals.StatusDraft})
	require.NoError(t, err)
	assert.Empty(t, drafts, "failed occurrence leaves no draft behind")

	_, err = l.Periods.Reopen(ctx, lt.Tenant, year[0].ID, lt.Actor)
	require.NoError(t, err)
	result, err = l.Recurring.ProcessDue(ctx, lt.Tenant, lt.Date(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, recurring.Result{SuccessCount: 1}, result)

	stored, err = l.Recurring.Get(ctx, lt.Tenant, sched.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.LastError)
	assert.Equal(t, 1, stored.TotalOccurrences)
}

func TestRecoveryReusesPostedEntry(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	sched := createMonthly(t, l, lt.Date(2024, 3, 1), nil)

	// an interrupted run posted the entry but never advanced the schedule
	draft, err := l.Journals.Create(ctx, lt.Tenant, journals.CreateInput{
		EntryDate:    lt.Date(2024, 3, 1),
		SourceModule: journals.SourceRecurring,
		SourceID:     strconv.FormatInt(sched.ID, 10),
		Lines:        rentTemplate().LineInputs(),
	})
	require.NoError(t, err)
	_, err = l.Journals.Post(ctx, lt.Tenant, draft.ID, lt.Actor)
	require.NoError(t, err)

	result, err := l.Recurring.ProcessDue(ctx, lt.Tenant, lt.Date(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Len(t, recurringEntries(t, l, sched), 1)
	assert.True(t, l.Balance(t, "6000").Equal(lt.Amount("1500")))
}

func TestPauseResumeCancel(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	sched := createMonthly(t, l, lt.Date(2024, 1, 1), nil)

	paused, err := l.Recurring.Pause(ctx, lt.Tenant, sched.ID, lt.Actor)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusPaused, paused.Status)
	_, err = l.Recurring.Pause(ctx, lt.Tenant, sched.ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)

	resumed, err := l.Recurring.Resume(ctx, lt.Tenant, sched.ID, lt.Actor)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusActive, resumed.Status)

	cancelled, err := l.Recurring.Cancel(ctx, lt.Tenant, sched.ID, lt.Actor)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.NextRunDate)
	_, err = l.Recurring.Cancel(ctx, lt.Tenant, sched.ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)

	active, err := l.Recurring.List(ctx, lt.Tenant, recurring.StatusActive)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCustomScheduleNeedsReschedule(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	first := lt.Date(2024, 2, 10)
	sched := createMonthly(t, l, lt.Date(2024, 1, 1), func(in *recurring.CreateInput) {
		in.Frequency = recurring.FrequencyCustom
		in.NextRunDate = &first
	})

	_, err := l.Recurring.ProcessDue(ctx, lt.Tenant, lt.Date(2024, 2, 10))
	require.NoError(t, err)
	stored, err := l.Recurring.Get(ctx, lt.Tenant, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusPaused, stored.Status)
	assert.Nil(t, stored.NextRunDate)

	_, err = l.Recurring.Resume(ctx, lt.Tenant, sched.ID, lt.Actor)
	require.ErrorIs(t, err, shared.ErrValidation)

	rescheduled, err := l.Recurring.Reschedule(ctx, lt.Tenant, sched.ID, lt.Date(2024, 5, 20), lt.Actor)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusActive, rescheduled.Status)
	require.NotNil(t, rescheduled.NextRunDate)
	assert.Equal(t, lt.Date(2024, 5, 20), *rescheduled.NextRunDate)

	_, err = l.Recurring.Reschedule(ctx, lt.Tenant, sched.ID, lt.Date(2023, 5, 20), lt.Actor)
	require.ErrorIs(t, err, shared.ErrValidation)
}
