// Package temporal resolves the calendar rules the ledger depends on:
// whole-year ages, civil-day arithmetic, the Hebrew calendar, and
// age-threshold lifecycle triggers.
//
// All dates are civil dates represented as midnight UTC. Callers pass any
// time.Time; Day normalizes it before comparison.
package temporal

import "time"

// Date returns the civil date y-m-d at midnight UTC.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its civil date in t's own location and re-anchors it
// at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// AgeOnDate returns the number of whole years between birth and asOf. The
// year only counts once the birthday's month and day have been reached.
// A 29 February birthday is reached on 1 March in common years. The
// result is negative when asOf precedes birth.
func AgeOnDate(birth, asOf time.Time) int {
	b, a := Day(birth), Day(asOf)
	if a.Before(b) {
		return -1
	}

	age := a.Year() - b.Year()
	if a.Month() < b.Month() || (a.Month() == b.Month() && a.Day() < b.Day()) {
		age--
	}
	return age
}

// DaysBetween returns the number of civil days from a to b (negative when
// b precedes a).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Latest returns the latest of the given non-zero times, or the zero time.
func Latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.IsZero() {
			continue
		}
		if out.IsZero() || t.After(out) {
			out = t
		}
	}
	return out
}

// MonthBounds returns the first day of (year, month) and the first day of
// the following month. The range is half-open.
func MonthBounds(year int, month time.Month) (start, end time.Time) {
	start = Date(year, month, 1)
	return start, start.AddDate(0, 1, 0)
}

// PreviousMonth returns the calendar month before the one containing t.
func PreviousMonth(t time.Time) (int, time.Month) {
	prev := Date(t.Year(), t.Month(), 1).AddDate(0, -1, 0)
	return prev.Year(), prev.Month()
}
