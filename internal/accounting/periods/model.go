package periods

import "time"

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// Period represents a fiscal period window.
type Period struct {
	ID           int64        `json:"id"`
	TenantID     int64        `json:"tenant_id"`
	FiscalYear   int          `json:"fiscal_year"`
	PeriodNumber int          `json:"period_number"`
	Name         string       `json:"period_name"`
	StartDate    time.Time    `json:"start_date"`
	EndDate      time.Time    `json:"end_date"`
	Status       PeriodStatus `json:"status"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
	ClosedBy     *int64       `json:"closed_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Contains reports whether date falls inside the period, bounds inclusive.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Overlaps reports whether the two windows share at least one day.
func (p Period) Overlaps(start, end time.Time) bool {
	return !end.Before(p.StartDate) && !start.After(p.EndDate)
}

// CreateInput describes a single period to open.
type CreateInput struct {
	FiscalYear   int
	PeriodNumber int
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	ActorID      int64
}
