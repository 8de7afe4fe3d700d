// Package family models member families and the people in them.
package family

import (
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/types"
)

// Family is a dues-paying household. Balances are always derived from its
// records and never stored on it.
type Family struct {
	types.Entity
	ID       id.FamilyID `json:"id"`
	TenantID id.TenantID `json:"tenant_id"`
	// Number is the per-tenant ordinal used in statement numbers.
	Number     int       `json:"number"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	EnrolledAt time.Time `json:"enrolled_at"`
	// ParentFamilyID links a family formed by marriage back to its origin.
	ParentFamilyID id.FamilyID `json:"parent_family_id,omitempty"`
	Active         bool        `json:"active"`
}

// Gender selects event-type wording; it never affects charge amounts.
type Gender string

// Genders.
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Member belongs to exactly one Family.
type Member struct {
	types.Entity
	ID        id.MemberID `json:"id"`
	FamilyID  id.FamilyID `json:"family_id"`
	TenantID  id.TenantID `json:"tenant_id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	BirthDate time.Time   `json:"birth_date"`
	// LunarBirthDate is used only for lifecycle trigger detection.
	LunarBirthDate *temporal.HebrewDate `json:"lunar_birth_date,omitempty"`
	Gender         Gender               `json:"gender"`
	// JoinedAt defaults to the family enrollment date.
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	// ComingOfAgeApplied is set together with the coming-of-age charge.
	ComingOfAgeApplied bool `json:"coming_of_age_applied"`
}

// FullName joins the first and last names.
func (m *Member) FullName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// ComingOfAge returns the milestone this member's gender selects, or ""
// when no gender is recorded.
func (m *Member) ComingOfAge() temporal.Milestone {
	switch m.Gender {
	case GenderMale:
		return temporal.MilestoneBarMitzvah
	case GenderFemale:
		return temporal.MilestoneBatMitzvah
	default:
		return ""
	}
}

// ActiveOn reports whether the member belongs to the family on day d.
func (m *Member) ActiveOn(d time.Time) bool {
	d = temporal.Day(d)
	if !m.JoinedAt.IsZero() && d.Before(temporal.Day(m.JoinedAt)) {
		return false
	}
	return m.LeftAt == nil || d.Before(temporal.Day(*m.LeftAt))
}

// TriggerSubject projects the member onto lifecycle trigger detection.
func (m *Member) TriggerSubject() temporal.Subject {
	return temporal.Subject{
		BirthDate:      m.BirthDate,
		LunarBirthDate: m.LunarBirthDate,
		Milestone:      m.ComingOfAge(),
		MemberSince:    m.JoinedAt,
		Applied:        m.ComingOfAgeApplied,
	}
}
