package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurringProcess materialises due recurring journals.
	TaskRecurringProcess = "gl:recurring:process"
	// TaskBalanceVerify compares cached balances with posted lines.
	TaskBalanceVerify = "gl:balance:verify"
)

// RecurringProcessPayload scopes a recurring run. Empty TenantIDs means every
// tenant with due schedules; empty AsOf means today.
type RecurringProcessPayload struct {
	TenantIDs []int64 `json:"tenant_ids,omitempty"`
	AsOf      string  `json:"as_of_date,omitempty"`
}

// NewRecurringProcessTask constructs an Asynq task for recurring processing.
func NewRecurringProcessTask(payload RecurringProcessPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringProcess, body, asynq.Queue(QueueDefault)), nil
}

// BalanceVerifyPayload scopes a balance integrity run. Empty TenantIDs means
// every tenant with accounts.
type BalanceVerifyPayload struct {
	TenantIDs []int64 `json:"tenant_ids,omitempty"`
}

// NewBalanceVerifyTask constructs an Asynq task for the balance integrity check.
func NewBalanceVerifyTask(payload BalanceVerifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceVerify, body, asynq.Queue(QueueDefault)), nil
}

func (p RecurringProcessPayload) asOf(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return shared.DateOnly(now), nil
	}
	return shared.ParseDate(p.AsOf)
}
