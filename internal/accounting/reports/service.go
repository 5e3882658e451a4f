package reports

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// FiscalCalendar resolves fiscal year boundaries.
type FiscalCalendar interface {
	FiscalYearStart(ctx context.Context, tenantID int64, date time.Time) (time.Time, error)
}

// Service derives financial statements from ledger activity.
type Service struct {
	repo     Repository
	calendar FiscalCalendar
}

// NewService builds the reporting service. A nil calendar assumes calendar years.
func NewService(repo Repository, calendar FiscalCalendar) *Service {
	return &Service{repo: repo, calendar: calendar}
}

// TrialBalance lists every account with activity up to asOf.
func (s *Service) TrialBalance(ctx context.Context, tenantID int64, asOf time.Time) (TrialBalance, error) {
	asOf = shared.DateOnly(asOf)
	balances, err := s.repo.Activity(ctx, tenantID, nil, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(asOf, balances), nil
}

// IncomeStatement reports revenue and expenses between from and to inclusive.
func (s *Service) IncomeStatement(ctx context.Context, tenantID int64, from, to time.Time) (IncomeStatement, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if from.After(to) {
		return IncomeStatement{}, shared.Invalid("start_date must not be after end_date")
	}
	balances, err := s.repo.Activity(ctx, tenantID, &from, to)
	if err != nil {
		return IncomeStatement{}, err
	}
	return BuildIncomeStatement(from, to, balances), nil
}

// BalanceSheet reports the financial position as of asOf.
func (s *Service) BalanceSheet(ctx context.Context, tenantID int64, asOf time.Time) (BalanceSheet, error) {
	asOf = shared.DateOnly(asOf)
	fyStart, err := s.fiscalYearStart(ctx, tenantID, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	cumulative, err := s.repo.Activity(ctx, tenantID, nil, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	var before []AccountBalance
	if priorEnd := fyStart.AddDate(0, 0, -1); !priorEnd.After(asOf) {
		before, err = s.repo.Activity(ctx, tenantID, nil, priorEnd)
		if err != nil {
			return BalanceSheet{}, err
		}
	}
	return BuildBalanceSheet(asOf, fyStart, cumulative, before), nil
}

func (s *Service) fiscalYearStart(ctx context.Context, tenantID int64, date time.Time) (time.Time, error) {
	if s.calendar == nil {
		return time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}
	return s.calendar.FiscalYearStart(ctx, tenantID, date)
}
