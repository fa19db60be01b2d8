package shared

import "fmt"

// ChartLockKey names the critical section guarding chart-of-accounts edits for a company.
func ChartLockKey(companyID int64) string {
	return fmt.Sprintf("finance:chart:%d:lock", companyID)
}

// CalendarLockKey names the critical section guarding period creation for a calendar.
func CalendarLockKey(companyID int64, subsidiaryID *int64) string {
	if subsidiaryID == nil {
		return fmt.Sprintf("finance:calendar:%d:lock", companyID)
	}
	return fmt.Sprintf("finance:calendar:%d:%d:lock", companyID, *subsidiaryID)
}
