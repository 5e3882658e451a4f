package journals

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NumberPrefix returns the per-day entry number namespace, JE-YYYYMMDD-.
func NumberPrefix(date time.Time) string {
	return "JE-" + date.Format("20060102") + "-"
}

// FormatNumber renders the sequence within prefix as a five digit suffix.
func FormatNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s%05d", prefix, seq)
}

// NumberSuffix extracts the numeric suffix of number within prefix.
func NumberSuffix(number, prefix string) (int, bool) {
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(number[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}
