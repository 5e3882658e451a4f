package shared

import "fmt"

// RecurringLockKey builds redis keys guarding a tenant's recurring run.
func RecurringLockKey(tenantID int64) string {
	return fmt.Sprintf("ledger:tenant:%d:recurring:lock", tenantID)
}

// IntegrityLockKey builds redis keys guarding a tenant's balance verification.
func IntegrityLockKey(tenantID int64) string {
	return fmt.Sprintf("ledger:tenant:%d:integrity:lock", tenantID)
}
