package recurring

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// JournalPort is the slice of the journal engine used to materialise runs.
type JournalPort interface {
	Create(ctx context.Context, tenantID int64, input journals.CreateInput) (journals.Entry, error)
	Post(ctx context.Context, tenantID, id, actorID int64) (journals.Entry, error)
	Delete(ctx context.Context, tenantID, id, actorID int64) (journals.Entry, error)
	List(ctx context.Context, tenantID int64, filter journals.ListFilter) ([]journals.Entry, internalShared.Pagination, error)
}

// AuditPort records schedule changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service manages recurring schedules and produces their due entries.
type Service struct {
	repo     Repository
	journals JournalPort
	audit    AuditPort
	now      func() time.Time
}

// NewService constructs the recurring journal service.
func NewService(repo Repository, journals JournalPort, audit AuditPort) *Service {
	return &Service{repo: repo, journals: journals, audit: audit, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (in CreateInput) validate() error {
	if in.Name == "" {
		return shared.Invalid("schedule name required")
	}
	if !in.Frequency.Valid() {
		return shared.Invalid("unknown frequency %q", in.Frequency)
	}
	if in.Interval < 1 {
		return shared.Invalid("interval must be at least 1")
	}
	if in.StartDate.IsZero() {
		return shared.Invalid("start date required")
	}
	switch in.EndType {
	case EndNever:
	case EndAfterOccurrences:
		if in.EndAfterOccurrences == nil || *in.EndAfterOccurrences < 1 {
			return shared.Invalid("end_after_occurrences must be at least 1")
		}
	case EndOnDate:
		if in.EndDate == nil {
			return shared.Invalid("end date required")
		}
		if in.EndDate.Before(in.StartDate) {
			return shared.Invalid("end date before start date")
		}
	default:
		return shared.Invalid("unknown end type %q", in.EndType)
	}
	if in.Frequency == FrequencyCustom && in.NextRunDate == nil {
		return shared.Invalid("custom schedules require an explicit next run date")
	}
	if in.NextRunDate != nil && in.NextRunDate.Before(in.StartDate) {
		return shared.Invalid("next run date before start date")
	}
	if _, err := journals.ValidateLines(in.Template.LineInputs()); err != nil {
		return fmt.Errorf("template: %w", err)
	}
	return nil
}

// Create stores an active schedule whose first run is its start date unless
// overridden.
func (s *Service) Create(ctx context.Context, tenantID int64, input CreateInput) (Schedule, error) {
	if input.Interval == 0 {
		input.Interval = 1
	}
	if input.EndType == "" {
		input.EndType = EndNever
	}
	input.StartDate = shared.DateOnly(input.StartDate)
	if err := input.validate(); err != nil {
		return Schedule{}, err
	}
	next := input.StartDate
	if input.NextRunDate != nil {
		next = shared.DateOnly(*input.NextRunDate)
	}
	var endDate *time.Time
	if input.EndDate != nil {
		d := shared.DateOnly(*input.EndDate)
		endDate = &d
	}
	var created Schedule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.Insert(ctx, Schedule{
			TenantID:            tenantID,
			Name:                input.Name,
			Frequency:           input.Frequency,
			Interval:            input.Interval,
			StartDate:           input.StartDate,
			EndType:             input.EndType,
			EndAfterOccurrences: input.EndAfterOccurrences,
			EndDate:             endDate,
			Status:              StatusActive,
			NextRunDate:         &next,
			Template:            input.Template,
			CreatedBy:           input.ActorID,
		})
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Schedule{}, err
	}
	s.record(ctx, created, input.ActorID, "recurring.create")
	return created, nil
}

// Get returns a schedule by id.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Schedule, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns schedules, optionally filtered by status.
func (s *Service) List(ctx context.Context, tenantID int64, status Status) ([]Schedule, error) {
	return s.repo.List(ctx, tenantID, status)
}

// Pause stops an active schedule from running.
func (s *Service) Pause(ctx context.Context, tenantID, id, actorID int64) (Schedule, error) {
	return s.transition(ctx, tenantID, id, actorID, "recurring.pause", func(sched *Schedule) error {
		if sched.Status != StatusActive {
			return fmt.Errorf("schedule is %s: %w", sched.Status, shared.ErrInvalidStateTransition)
		}
		sched.Status = StatusPaused
		return nil
	})
}

// Resume reactivates a paused schedule that has a next run date.
func (s *Service) Resume(ctx context.Context, tenantID, id, actorID int64) (Schedule, error) {
	return s.transition(ctx, tenantID, id, actorID, "recurring.resume", func(sched *Schedule) error {
		if sched.Status != StatusPaused {
			return fmt.Errorf("schedule is %s: %w", sched.Status, shared.ErrInvalidStateTransition)
		}
		if sched.NextRunDate == nil {
			return shared.Invalid("schedule needs a next run date; reschedule it")
		}
		sched.Status = StatusActive
		return nil
	})
}

// Cancel terminates a schedule permanently.
func (s *Service) Cancel(ctx context.Context, tenantID, id, actorID int64) (Schedule, error) {
	return s.transition(ctx, tenantID, id, actorID, "recurring.cancel", func(sched *Schedule) error {
		if sched.Status.Terminal() {
			return fmt.Errorf("schedule is %s: %w", sched.Status, shared.ErrInvalidStateTransition)
		}
		sched.Status = StatusCancelled
		sched.NextRunDate = nil
		return nil
	})
}

// Reschedule sets the next run date explicitly and reactivates the schedule.
func (s *Service) Reschedule(ctx context.Context, tenantID, id int64, next time.Time, actorID int64) (Schedule, error) {
	next = shared.DateOnly(next)
	return s.transition(ctx, tenantID, id, actorID, "recurring.reschedule", func(sched *Schedule) error {
		if sched.Status.Terminal() {
			return fmt.Errorf("schedule is %s: %w", sched.Status, shared.ErrInvalidStateTransition)
		}
		if next.Before(sched.StartDate) {
			return shared.Invalid("next run date before start date")
		}
		if sched.pastEnd(next) {
			return shared.Invalid("next run date after end date")
		}
		sched.NextRunDate = &next
		sched.Status = StatusActive
		return nil
	})
}

func (s *Service) transition(ctx context.Context, tenantID, id, actorID int64, action string, apply func(*Schedule) error) (Schedule, error) {
	var updated Schedule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := apply(&current); err != nil {
			return err
		}
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Schedule{}, err
	}
	s.record(ctx, updated, actorID, action)
	return updated, nil
}

// ProcessDue materialises one occurrence of every active schedule due on or
// before now. Failures are recorded on the schedule, which keeps its next
// run date so the next tick retries it.
func (s *Service) ProcessDue(ctx context.Context, tenantID int64, now time.Time) (Result, error) {
	due, err := s.repo.ListDue(ctx, tenantID, shared.DateOnly(now))
	if err != nil {
		return Result{}, err
	}
	var result Result
	for _, sched := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.runOnce(ctx, sched); err != nil {
			result.ErrorCount++
			if recErr := s.repo.RecordFailure(ctx, tenantID, sched.ID, err.Error(), s.now()); recErr != nil {
				return result, recErr
			}
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

// DueTenants lists tenants with at least one active schedule due on or before now.
func (s *Service) DueTenants(ctx context.Context, now time.Time) ([]int64, error) {
	return s.repo.ListTenantsWithDue(ctx, shared.DateOnly(now))
}

// runOnce posts the occurrence dated at the schedule's next run. An entry
// already posted for that date by an interrupted run is reused.
func (s *Service) runOnce(ctx context.Context, sched Schedule) error {
	runDate := *sched.NextRunDate
	sourceID := strconv.FormatInt(sched.ID, 10)
	existing, _, err := s.journals.List(ctx, sched.TenantID, journals.ListFilter{
		SourceModule: journals.SourceRecurring,
		SourceID:     sourceID,
		From:         &runDate,
		To:           &runDate,
		PerPage:      internalShared.MaxPerPage,
	})
	if err != nil {
		return err
	}
	var entry *journals.Entry
	for i := range existing {
		if existing[i].Status != journals.StatusVoid {
			entry = &existing[i]
			break
		}
	}
	if entry == nil {
		created, err := s.journals.Create(ctx, sched.TenantID, journals.CreateInput{
			EntryDate:    runDate,
			Description:  sched.Template.Description,
			Reference:    sched.Template.Reference,
			SourceModule: journals.SourceRecurring,
			SourceID:     sourceID,
			Lines:        sched.Template.LineInputs(),
			ActorID:      sched.CreatedBy,
		})
		if err != nil {
			return err
		}
		entry = &created
	}
	if entry.Status == journals.StatusDraft {
		if _, err := s.journals.Post(ctx, sched.TenantID, entry.ID, sched.CreatedBy); err != nil {
			if _, delErr := s.journals.Delete(ctx, sched.TenantID, entry.ID, sched.CreatedBy); delErr != nil {
				return errors.Join(err, delErr)
			}
			return err
		}
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, sched.TenantID, sched.ID)
		if err != nil {
			return err
		}
		if current.Status != StatusActive || current.NextRunDate == nil || !current.NextRunDate.Equal(runDate) {
			return nil
		}
		return tx.Update(ctx, current.Advance(runDate))
	})
}

func (s *Service) record(ctx context.Context, sched Schedule, actorID int64, action string) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{"status": string(sched.Status), "total_occurrences": sched.TotalOccurrences}
	if sched.NextRunDate != nil {
		meta["next_run_date"] = sched.NextRunDate.Format(shared.DateLayout)
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		TenantID:   sched.TenantID,
		ActorID:    actorID,
		Action:     action,
		EntityType: "recurring_journal",
		EntityID:   strconv.FormatInt(sched.ID, 10),
		Meta:       meta,
		At:         s.now(),
	})
}
