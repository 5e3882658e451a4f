package recurring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
)

// EndType enumerates schedule termination rules.
type EndType string

const (
	EndNever            EndType = "NEVER"
	EndAfterOccurrences EndType = "AFTER_OCCURRENCES"
	EndOnDate           EndType = "ON_DATE"
)

// Status enumerates schedule states.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further runs can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// TemplateLine describes one line of the entry to materialise.
type TemplateLine struct {
	AccountID   int64           `json:"account_id,omitempty"`
	AccountCode string          `json:"account_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit_amount"`
	Credit      decimal.Decimal `json:"credit_amount"`
}

// Template is the journal payload copied into every occurrence.
type Template struct {
	Description string         `json:"description"`
	Reference   string         `json:"reference,omitempty"`
	Lines       []TemplateLine `json:"lines"`
}

// LineInputs converts the template lines for the journal engine.
func (t Template) LineInputs() []journals.LineInput {
	lines := make([]journals.LineInput, len(t.Lines))
	for i, l := range t.Lines {
		lines[i] = journals.LineInput{
			AccountID:   l.AccountID,
			AccountCode: l.AccountCode,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		}
	}
	return lines
}

// Schedule is a recurring journal definition.
type Schedule struct {
	ID                  int64      `json:"id"`
	TenantID            int64      `json:"tenant_id"`
	Name                string     `json:"name"`
	Frequency           Frequency  `json:"frequency"`
	Interval            int        `json:"interval"`
	StartDate           time.Time  `json:"start_date"`
	EndType             EndType    `json:"end_type"`
	EndAfterOccurrences *int       `json:"end_after_occurrences,omitempty"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	Status              Status     `json:"status"`
	NextRunDate         *time.Time `json:"next_run_date,omitempty"`
	LastRunDate         *time.Time `json:"last_run_date,omitempty"`
	TotalOccurrences    int        `json:"total_occurrences"`
	Template            Template   `json:"template"`
	LastError           string     `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	CreatedBy           int64      `json:"created_by"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// endReached reports whether the occurrence limit has been met.
func (s Schedule) endReached() bool {
	return s.EndType == EndAfterOccurrences && s.EndAfterOccurrences != nil && s.TotalOccurrences >= *s.EndAfterOccurrences
}

// pastEnd reports whether candidate falls after the end date.
func (s Schedule) pastEnd(candidate time.Time) bool {
	return s.EndType == EndOnDate && s.EndDate != nil && candidate.After(*s.EndDate)
}

// Advance records an occurrence on runDate and computes the following run.
// The schedule completes once its end condition is met; a Custom schedule
// pauses until it is rescheduled.
func (s Schedule) Advance(runDate time.Time) Schedule {
	s.TotalOccurrences++
	s.LastRunDate = &runDate
	s.LastError = ""
	s.LastErrorAt = nil
	if s.endReached() {
		s.Status = StatusCompleted
		s.NextRunDate = nil
		return s
	}
	next, ok := NextRun(s.Frequency, s.Interval, runDate)
	if !ok {
		s.Status = StatusPaused
		s.NextRunDate = nil
		return s
	}
	if s.pastEnd(next) {
		s.Status = StatusCompleted
		s.NextRunDate = nil
		return s
	}
	s.NextRunDate = &next
	return s
}

// CreateInput describes a new recurring schedule.
type CreateInput struct {
	Name                string
	Frequency           Frequency
	Interval            int
	StartDate           time.Time
	EndType             EndType
	EndAfterOccurrences *int
	EndDate             *time.Time
	// NextRunDate overrides the first run; required for Custom schedules.
	NextRunDate *time.Time
	Template    Template
	ActorID     int64
}

// Result summarises a ProcessDue tick.
type Result struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}
