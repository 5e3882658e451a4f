package recurring

import (
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Frequency enumerates recurrence patterns.
type Frequency string

const (
	FrequencyDaily        Frequency = "DAILY"
	FrequencyWeekly       Frequency = "WEEKLY"
	FrequencyBiweekly     Frequency = "BIWEEKLY"
	FrequencyMonthly      Frequency = "MONTHLY"
	FrequencyQuarterly    Frequency = "QUARTERLY"
	FrequencySemiAnnually Frequency = "SEMI_ANNUALLY"
	FrequencyAnnually     Frequency = "ANNUALLY"
	FrequencyCustom       Frequency = "CUSTOM"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencySemiAnnually, FrequencyAnnually, FrequencyCustom:
		return true
	}
	return false
}

// NextRun advances current by interval units of freq. Month based patterns
// clamp the day to the end of the target month. Custom has no rule and
// reports false.
func NextRun(freq Frequency, interval int, current time.Time) (time.Time, bool) {
	if interval < 1 {
		interval = 1
	}
	current = shared.DateOnly(current)
	switch freq {
	case FrequencyDaily:
		return current.AddDate(0, 0, interval), true
	case FrequencyWeekly:
		return current.AddDate(0, 0, 7*interval), true
	case FrequencyBiweekly:
		return current.AddDate(0, 0, 14*interval), true
	case FrequencyMonthly:
		return AddMonthsClamped(current, interval), true
	case FrequencyQuarterly:
		return AddMonthsClamped(current, 3*interval), true
	case FrequencySemiAnnually:
		return AddMonthsClamped(current, 6*interval), true
	case FrequencyAnnually:
		return AddMonthsClamped(current, 12*interval), true
	default:
		return time.Time{}, false
	}
}

// AddMonthsClamped moves t forward by months calendar months, keeping the
// day unless the target month is shorter.
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	year := y + total/12
	month := time.Month(total%12 + 1)
	if last := shared.DaysIn(year, month); d > last {
		d = last
	}
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}
