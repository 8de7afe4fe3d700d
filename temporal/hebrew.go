package temporal

import (
	"fmt"
	"time"
)

// HebrewMonth numbers months from Nisan, so Tishri (the civil new year) is
// month 7 and Adar II only exists in leap years.
type HebrewMonth int

// Hebrew months.
const (
	Nisan HebrewMonth = 1 + iota
	Iyyar
	Sivan
	Tammuz
	Av
	Elul
	Tishri
	Marheshvan
	Kislev
	Tevet
	Shevat
	Adar // Adar I in leap years
	AdarII
)

var hebrewMonthNames = [...]string{
	"", "Nisan", "Iyyar", "Sivan", "Tammuz", "Av", "Elul", "Tishri",
	"Marheshvan", "Kislev", "Tevet", "Shevat", "Adar", "Adar II",
}

func (m HebrewMonth) String() string {
	if m < Nisan || m > AdarII {
		return fmt.Sprintf("HebrewMonth(%d)", int(m))
	}
	return hebrewMonthNames[m]
}

// HebrewDate is a date in the arithmetic Hebrew calendar.
type HebrewDate struct {
	Year  int         `json:"year"  yaml:"year"  bson:"year"`
	Month HebrewMonth `json:"month" yaml:"month" bson:"month"`
	Day   int         `json:"day"   yaml:"day"   bson:"day"`
}

func (h HebrewDate) String() string {
	return fmt.Sprintf("%d %s %d", h.Day, h.Month, h.Year)
}

// Valid reports whether h names a day that exists in its year.
func (h HebrewDate) Valid() bool {
	if h.Year < 1 || h.Month < Nisan || h.Month > lastMonthOfHebrewYear(h.Year) {
		return false
	}
	return h.Day >= 1 && h.Day <= lastDayOfHebrewMonth(h.Month, h.Year)
}

// ToGregorian converts h to a civil date. ok is false when h does not
// exist, e.g. 30 Kislev in a year where Kislev has 29 days.
func (h HebrewDate) ToGregorian() (t time.Time, ok bool) {
	if !h.Valid() {
		return time.Time{}, false
	}
	return gregorianFromFixed(fixedFromHebrew(h.Year, h.Month, h.Day)), true
}

// HebrewFromGregorian converts a civil date to the Hebrew calendar.
func HebrewFromGregorian(t time.Time) HebrewDate {
	y, m, d := Day(t).Date()
	return hebrewFromFixed(fixedFromGregorian(y, m, d))
}

// Anniversary returns the date years after h, moving Adar to Adar II in
// leap years (and Adar II back to Adar in common years). ok is false when
// the day does not exist in the target month.
func (h HebrewDate) Anniversary(years int) (HebrewDate, bool) {
	y := h.Year + years
	m := h.Month

	switch {
	case m == AdarII && !isHebrewLeapYear(y):
		m = Adar
	case m == Adar && !isHebrewLeapYear(h.Year) && isHebrewLeapYear(y):
		m = AdarII
	}

	out := HebrewDate{Year: y, Month: m, Day: h.Day}
	if !out.Valid() {
		return HebrewDate{}, false
	}
	return out, true
}

// ──────────────────────────────────────────────────
// Fixed-day (R.D.) arithmetic
// ──────────────────────────────────────────────────

// hebrewEpoch is the fixed date of 1 Tishri AM 1.
const hebrewEpoch = -1373427

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	return a - b*floorDiv(a, b)
}

func isGregorianLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// fixedFromGregorian returns the day number with 1 January AD 1 as day 1.
func fixedFromGregorian(y int, m time.Month, d int) int {
	py := y - 1
	f := 365*py + floorDiv(py, 4) - floorDiv(py, 100) + floorDiv(py, 400) +
		floorDiv(367*int(m)-362, 12)
	if m > time.February {
		if isGregorianLeap(y) {
			f--
		} else {
			f -= 2
		}
	}
	return f + d
}

func gregorianFromFixed(f int) time.Time {
	return Date(1, time.January, 1).AddDate(0, 0, f-1)
}

func isHebrewLeapYear(y int) bool {
	return mod(7*y+1, 19) < 7
}

func lastMonthOfHebrewYear(y int) HebrewMonth {
	if isHebrewLeapYear(y) {
		return AdarII
	}
	return Adar
}

// hebrewElapsedDays counts days from the epoch to the molad of Tishri of
// year y, applying the first postponement rule.
func hebrewElapsedDays(y int) int {
	monthsElapsed := floorDiv(235*y-234, 19)
	partsElapsed := 12084 + 13753*monthsElapsed
	days := 29*monthsElapsed + floorDiv(partsElapsed, 25920)
	if mod(3*(days+1), 7) < 3 {
		return days + 1
	}
	return days
}

func hebrewYearLengthCorrection(y int) int {
	ny0 := hebrewElapsedDays(y - 1)
	ny1 := hebrewElapsedDays(y)
	ny2 := hebrewElapsedDays(y + 1)
	switch {
	case ny2-ny1 == 356:
		return 2
	case ny1-ny0 == 382:
		return 1
	default:
		return 0
	}
}

func hebrewNewYear(y int) int {
	return hebrewEpoch + hebrewElapsedDays(y) + hebrewYearLengthCorrection(y)
}

func daysInHebrewYear(y int) int {
	return hebrewNewYear(y+1) - hebrewNewYear(y)
}

func longMarheshvan(y int) bool {
	n := daysInHebrewYear(y)
	return n == 355 || n == 385
}

func shortKislev(y int) bool {
	n := daysInHebrewYear(y)
	return n == 353 || n == 383
}

func lastDayOfHebrewMonth(m HebrewMonth, y int) int {
	switch {
	case m == Iyyar, m == Tammuz, m == Elul, m == Tevet, m == AdarII:
		return 29
	case m == Adar && !isHebrewLeapYear(y):
		return 29
	case m == Marheshvan && !longMarheshvan(y):
		return 29
	case m == Kislev && shortKislev(y):
		return 29
	default:
		return 30
	}
}

func fixedFromHebrew(y int, m HebrewMonth, d int) int {
	f := hebrewNewYear(y) + d - 1
	if m < Tishri {
		for i := Tishri; i <= lastMonthOfHebrewYear(y); i++ {
			f += lastDayOfHebrewMonth(i, y)
		}
		for i := Nisan; i < m; i++ {
			f += lastDayOfHebrewMonth(i, y)
		}
		return f
	}
	for i := Tishri; i < m; i++ {
		f += lastDayOfHebrewMonth(i, y)
	}
	return f
}

func hebrewFromFixed(f int) HebrewDate {
	approx := floorDiv((f-hebrewEpoch)*98496, 35975351) + 1
	year := approx - 1
	for hebrewNewYear(year+1) <= f {
		year++
	}

	month := Tishri
	if f >= fixedFromHebrew(year, Nisan, 1) {
		month = Nisan
	}
	for f > fixedFromHebrew(year, month, lastDayOfHebrewMonth(month, year)) {
		month++
	}

	return HebrewDate{
		Year:  year,
		Month: month,
		Day:   f - fixedFromHebrew(year, month, 1) + 1,
	}
}
