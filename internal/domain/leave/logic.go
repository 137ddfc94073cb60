package leave

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRange = errors.New("end date before start date")

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b (negative when b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// CalculateDays returns the inclusive day count between start and end.
func CalculateDays(start, end time.Time) (int, error) {
	if Day(end).Before(Day(start)) {
		return 0, ErrInvalidRange
	}
	return DaysBetween(start, end) + 1, nil
}

// Overlaps reports whether the inclusive ranges [aStart,aEnd] and [bStart,bEnd] intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !Day(aStart).After(Day(bEnd)) && !Day(bStart).After(Day(aEnd))
}

// FiscalYearOf names a fiscal year by the calendar year it starts in.
func FiscalYearOf(t time.Time, startMonth time.Month) int {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.January
	}
	if t.Month() < startMonth {
		return t.Year() - 1
	}
	return t.Year()
}

// CycleID is the monthly accrual idempotency key, e.g. "2025-03".
func CycleID(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}
