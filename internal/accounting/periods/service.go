package periods

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// AuditPort records period lifecycle changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service manages the period lifecycle and acts as the posting gate.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the period service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (in CreateInput) validate() error {
	if in.FiscalYear <= 0 {
		return shared.Invalid("fiscal year required")
	}
	if in.PeriodNumber <= 0 {
		return shared.Invalid("period number must be positive")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return shared.Invalid("period start and end dates required")
	}
	if in.EndDate.Before(in.StartDate) {
		return shared.Invalid("period end date before start date")
	}
	return nil
}

// Create opens a single period. Periods may not overlap, and within a fiscal
// year consecutive period numbers must be adjacent in time.
func (s *Service) Create(ctx context.Context, tenantID int64, input CreateInput) (Period, error) {
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockTenant(ctx, tenantID); err != nil {
			return err
		}
		existing, err := tx.List(ctx, tenantID)
		if err != nil {
			return err
		}
		p, err := s.insert(ctx, tx, tenantID, existing, input)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, created, input.ActorID, "period.create")
	return created, nil
}

// CreateFiscalYear creates twelve contiguous monthly periods for fiscal year
// year, the first starting on day one of startMonth.
func (s *Service) CreateFiscalYear(ctx context.Context, tenantID int64, year int, startMonth time.Month, actorID int64) ([]Period, error) {
	if year <= 0 {
		return nil, shared.Invalid("fiscal year required")
	}
	if startMonth < time.January || startMonth > time.December {
		return nil, shared.Invalid("invalid start month %d", startMonth)
	}
	calendarYear := year
	if startMonth != time.January {
		// a fiscal year is labelled by the calendar year it ends in
		calendarYear = year - 1
	}
	var created []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockTenant(ctx, tenantID); err != nil {
			return err
		}
		existing, err := tx.List(ctx, tenantID)
		if err != nil {
			return err
		}
		created = created[:0]
		for i := 0; i < 12; i++ {
			start := time.Date(calendarYear, startMonth+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, -1)
			p, err := s.insert(ctx, tx, tenantID, existing, CreateInput{
				FiscalYear:   year,
				PeriodNumber: i + 1,
				Name:         start.Format("Jan 2006"),
				StartDate:    start,
				EndDate:      end,
				ActorID:      actorID,
			})
			if err != nil {
				return err
			}
			existing = append(existing, p)
			created = append(created, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range created {
		s.record(ctx, p, actorID, "period.create")
	}
	return created, nil
}

func (s *Service) insert(ctx context.Context, tx TxRepository, tenantID int64, existing []Period, input CreateInput) (Period, error) {
	input.StartDate = shared.DateOnly(input.StartDate)
	input.EndDate = shared.DateOnly(input.EndDate)
	if err := input.validate(); err != nil {
		return Period{}, err
	}
	for _, p := range existing {
		if p.FiscalYear == input.FiscalYear && p.PeriodNumber == input.PeriodNumber {
			return Period{}, fmt.Errorf("fiscal year %d period %d exists: %w", input.FiscalYear, input.PeriodNumber, shared.ErrPeriodOverlap)
		}
		if p.Overlaps(input.StartDate, input.EndDate) {
			return Period{}, fmt.Errorf("overlaps %s: %w", p.Name, shared.ErrPeriodOverlap)
		}
		if p.FiscalYear != input.FiscalYear {
			continue
		}
		if p.PeriodNumber == input.PeriodNumber-1 && !p.EndDate.AddDate(0, 0, 1).Equal(input.StartDate) {
			return Period{}, fmt.Errorf("after %s: %w", p.Name, shared.ErrPeriodNotContiguous)
		}
		if p.PeriodNumber == input.PeriodNumber+1 && !input.EndDate.AddDate(0, 0, 1).Equal(p.StartDate) {
			return Period{}, fmt.Errorf("before %s: %w", p.Name, shared.ErrPeriodNotContiguous)
		}
	}
	name := input.Name
	if name == "" {
		name = fmt.Sprintf("FY%d-P%02d", input.FiscalYear, input.PeriodNumber)
	}
	return tx.Insert(ctx, Period{
		TenantID:     tenantID,
		FiscalYear:   input.FiscalYear,
		PeriodNumber: input.PeriodNumber,
		Name:         name,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		Status:       PeriodStatusOpen,
	})
}

// Close closes an open period. Every period that starts earlier must already
// be closed.
func (s *Service) Close(ctx context.Context, tenantID, id, actorID int64) (Period, error) {
	var closed Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockTenant(ctx, tenantID); err != nil {
			return err
		}
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != PeriodStatusOpen {
			return fmt.Errorf("period %s is %s: %w", current.Name, current.Status, shared.ErrInvalidStateTransition)
		}
		all, err := tx.List(ctx, tenantID)
		if err != nil {
			return err
		}
		for _, p := range all {
			if p.StartDate.Before(current.StartDate) && p.Status != PeriodStatusClosed {
				return fmt.Errorf("earlier period %s still open: %w", p.Name, shared.ErrInvalidStateTransition)
			}
		}
		at := s.now()
		current.Status = PeriodStatusClosed
		current.ClosedAt = &at
		current.ClosedBy = &actorID
		if err := tx.UpdateStatus(ctx, current); err != nil {
			return err
		}
		closed = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, closed, actorID, "period.close")
	return closed, nil
}

// Reopen reopens a closed period provided no later period is closed.
func (s *Service) Reopen(ctx context.Context, tenantID, id, actorID int64) (Period, error) {
	var reopened Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockTenant(ctx, tenantID); err != nil {
			return err
		}
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != PeriodStatusClosed {
			return fmt.Errorf("period %s is %s: %w", current.Name, current.Status, shared.ErrInvalidStateTransition)
		}
		all, err := tx.List(ctx, tenantID)
		if err != nil {
			return err
		}
		for _, p := range all {
			if p.StartDate.After(current.StartDate) && p.Status == PeriodStatusClosed {
				return fmt.Errorf("later period %s is closed: %w", p.Name, shared.ErrInvalidStateTransition)
			}
		}
		current.Status = PeriodStatusOpen
		current.ClosedAt = nil
		current.ClosedBy = nil
		if err := tx.UpdateStatus(ctx, current); err != nil {
			return err
		}
		reopened = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, reopened, actorID, "period.reopen")
	return reopened, nil
}

// Get returns a period by id.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Period, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns periods ordered by start date.
func (s *Service) List(ctx context.Context, tenantID int64, fiscalYear int) ([]Period, error) {
	return s.repo.List(ctx, tenantID, fiscalYear)
}

// EnsureOpen fails with ErrPeriodClosed unless an open period covers date.
func (s *Service) EnsureOpen(ctx context.Context, tenantID int64, date time.Time) error {
	p, err := s.repo.FindByDate(ctx, tenantID, shared.DateOnly(date))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("date %s: %w", date.Format(shared.DateLayout), shared.ErrNoOpenPeriod)
		}
		return err
	}
	if p.Status != PeriodStatusOpen {
		return fmt.Errorf("period %s: %w", p.Name, shared.ErrPeriodClosed)
	}
	return nil
}

// FiscalYearStart returns the first day of the fiscal year containing date.
// Without a covering period the calendar year is assumed.
func (s *Service) FiscalYearStart(ctx context.Context, tenantID int64, date time.Time) (time.Time, error) {
	date = shared.DateOnly(date)
	p, err := s.repo.FindByDate(ctx, tenantID, date)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
		}
		return time.Time{}, err
	}
	year, err := s.repo.List(ctx, tenantID, p.FiscalYear)
	if err != nil {
		return time.Time{}, err
	}
	start := p.StartDate
	for _, q := range year {
		if q.StartDate.Before(start) {
			start = q.StartDate
		}
	}
	return start, nil
}

func (s *Service) record(ctx context.Context, p Period, actorID int64, action string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		TenantID:   p.TenantID,
		ActorID:    actorID,
		Action:     action,
		EntityType: "accounting_period",
		EntityID:   strconv.FormatInt(p.ID, 10),
		Meta: map[string]any{
			"fiscal_year":   p.FiscalYear,
			"period_number": p.PeriodNumber,
			"status":        string(p.Status),
		},
		At: s.now(),
	})
}
