package temporal

import "time"

// Milestone names an age-threshold lifecycle event.
type Milestone string

// Age-threshold milestones.
const (
	MilestoneBarMitzvah Milestone = "bar_mitzvah"
	MilestoneBatMitzvah Milestone = "bat_mitzvah"
)

// ThresholdYears returns the age at which m is reached, or 0 for an
// unknown milestone.
func (m Milestone) ThresholdYears() int {
	switch m {
	case MilestoneBarMitzvah:
		return 13
	case MilestoneBatMitzvah:
		return 12
	default:
		return 0
	}
}

// Subject is the part of a member that trigger detection reads.
type Subject struct {
	BirthDate      time.Time
	LunarBirthDate *HebrewDate
	Milestone      Milestone
	// MemberSince suppresses milestones reached before the member joined.
	MemberSince time.Time
	// Applied is the per-member "already applied" flag.
	Applied bool
}

// Trigger is a detected milestone.
type Trigger struct {
	Milestone Milestone
	// Date is the civil date the threshold was reached.
	Date  time.Time
	Age   int
	Lunar bool
}

// DetectLifecycleTrigger reports whether s has reached its milestone on or
// before asOf. A lunar birth date takes precedence over the solar one; if
// its anniversary does not exist in the threshold year, nothing fires.
func DetectLifecycleTrigger(s Subject, asOf time.Time) (Trigger, bool) {
	years := s.Milestone.ThresholdYears()
	if s.Applied || years == 0 || s.BirthDate.IsZero() {
		return Trigger{}, false
	}

	var (
		date  time.Time
		lunar bool
	)
	if s.LunarBirthDate != nil {
		anniv, ok := s.LunarBirthDate.Anniversary(years)
		if !ok {
			return Trigger{}, false
		}
		if date, ok = anniv.ToGregorian(); !ok {
			return Trigger{}, false
		}
		lunar = true
	} else {
		date = Day(s.BirthDate).AddDate(years, 0, 0)
	}

	if Day(asOf).Before(date) {
		return Trigger{}, false
	}
	if !s.MemberSince.IsZero() && date.Before(Day(s.MemberSince)) {
		return Trigger{}, false
	}

	return Trigger{
		Milestone: s.Milestone,
		Date:      date,
		Age:       years,
		Lunar:     lunar,
	}, true
}
