// Package plan models the age-bracket payment plans that set each
// member's annual dues.
package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// Sentinel errors for bracket resolution.
var (
	ErrNoBracket = errors.New("plan: no bracket covers age")
	ErrOverlap   = errors.New("plan: brackets overlap")
)

// PaymentPlan is one age bracket. The range is half-open: a plan covers
// ages AgeStart <= age < AgeEnd. A nil AgeEnd is unbounded.
type PaymentPlan struct {
	types.Entity
	ID        id.PaymentPlanID `json:"id"`
	TenantID  id.TenantID      `json:"tenant_id"`
	Name      string           `json:"name"`
	AgeStart  int              `json:"age_start"`
	AgeEnd    *int             `json:"age_end,omitempty"`
	AnnualDue types.Money      `json:"annual_due"`
}

// Covers reports whether age falls inside the bracket.
func (p *PaymentPlan) Covers(age int) bool {
	if age < p.AgeStart {
		return false
	}
	return p.AgeEnd == nil || age < *p.AgeEnd
}

// Overlaps reports whether two brackets share at least one age.
func (p *PaymentPlan) Overlaps(o *PaymentPlan) bool {
	// [a,b) and [c,d) overlap when a < d and c < b.
	aBeforeD := o.AgeEnd == nil || p.AgeStart < *o.AgeEnd
	cBeforeB := p.AgeEnd == nil || o.AgeStart < *p.AgeEnd
	return aBeforeD && cBeforeB
}

func (p *PaymentPlan) String() string {
	if p.AgeEnd == nil {
		return fmt.Sprintf("%s [%d,∞)", p.Name, p.AgeStart)
	}
	return fmt.Sprintf("%s [%d,%d)", p.Name, p.AgeStart, *p.AgeEnd)
}

// CoverageError describes an age with zero or several matching brackets.
type CoverageError struct {
	Age     int
	Matches []string
}

func (e *CoverageError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("plan: no bracket covers age %d", e.Age)
	}
	return fmt.Sprintf("plan: age %d matched by %s", e.Age, strings.Join(e.Matches, ", "))
}

// Is matches ErrNoBracket or ErrOverlap depending on the match count.
func (e *CoverageError) Is(target error) bool {
	if len(e.Matches) == 0 {
		return target == ErrNoBracket
	}
	return target == ErrOverlap
}

// Schedule is the set of brackets configured for one tenant.
type Schedule []*PaymentPlan

// Resolve returns the unique bracket covering age.
func (s Schedule) Resolve(age int) (*PaymentPlan, error) {
	var (
		found   *PaymentPlan
		matches []string
	)
	for _, p := range s {
		if p.Covers(age) {
			found = p
			matches = append(matches, p.String())
		}
	}
	if len(matches) != 1 {
		return nil, &CoverageError{Age: age, Matches: matches}
	}
	return found, nil
}

// AnnualDueFor returns the annual amount owed by a member of the given
// age.
func (s Schedule) AnnualDueFor(age int) (types.Money, error) {
	p, err := s.Resolve(age)
	if err != nil {
		return types.Money{}, err
	}
	return p.AnnualDue, nil
}

// Sorted returns the brackets ordered by AgeStart.
func (s Schedule) Sorted() Schedule {
	out := make(Schedule, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AgeStart < out[j].AgeStart })
	return out
}

// ValidateCoverage checks that the brackets cover every age from 0
// upward exactly once. It returns the first problem found.
func ValidateCoverage(s Schedule) error {
	sorted := s.Sorted()
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].Overlaps(sorted[j]) {
				return &CoverageError{
					Age:     sorted[j].AgeStart,
					Matches: []string{sorted[i].String(), sorted[j].String()},
				}
			}
		}
	}

	next := 0
	for _, p := range sorted {
		if p.AgeStart > next {
			return &CoverageError{Age: next}
		}
		if p.AgeEnd == nil {
			return nil
		}
		next = *p.AgeEnd
	}
	return &CoverageError{Age: next}
}
