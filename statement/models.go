// Package statement models per-period account snapshots.
package statement

import (
	"fmt"
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/types"
)

// Status is the lifecycle state of a statement.
type Status string

// Statement statuses.
const (
	StatusIssued Status = "issued"
	StatusVoid   Status = "void"
)

// Statement is an immutable snapshot of one family's account over the
// half-open period [PeriodStart, PeriodEnd). Only its status moves, from
// issued to void.
type Statement struct {
	types.Entity
	ID       id.StatementID `json:"id"`
	TenantID id.TenantID    `json:"tenant_id"`
	FamilyID id.FamilyID    `json:"family_id"`
	Number   string         `json:"number"`
	// Revision starts at 1 and grows with each regeneration of the period.
	Revision    int       `json:"revision"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	OpeningBalance types.Money `json:"opening_balance"`
	Income         types.Money `json:"income"`
	Withdrawals    types.Money `json:"withdrawals"`
	Events         types.Money `json:"events"`
	Dues           types.Money `json:"dues"`
	ClosingBalance types.Money `json:"closing_balance"`
	Lines          []Line      `json:"lines"`

	Status     Status     `json:"status"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidReason string     `json:"void_reason,omitempty"`
}

// LineKind mirrors the ledger transaction kinds.
type LineKind string

// Line kinds.
const (
	LineCharge     LineKind = "charge"
	LineEvent      LineKind = "event"
	LineWithdrawal LineKind = "withdrawal"
	LinePayment    LineKind = "payment"
)

// Line is one period transaction as rendered on the statement.
type Line struct {
	Date           time.Time   `json:"date"`
	Kind           LineKind    `json:"kind"`
	Description    string      `json:"description"`
	Amount         types.Money `json:"amount"`
	SignedAmount   types.Money `json:"signed_amount"`
	RunningBalance types.Money `json:"running_balance"`
}

// Live reports whether the statement counts toward the one-per-period
// rule.
func (s *Statement) Live() bool { return s.Status != StatusVoid }

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// Bounds returns the first day of the month and the first day of the
// next.
func (p Period) Bounds() (start, end time.Time) {
	return temporal.MonthBounds(p.Year, p.Month)
}

// LastDay returns the final civil day inside the period.
func (p Period) LastDay() time.Time {
	_, end := p.Bounds()
	return end.AddDate(0, 0, -1)
}

// Validate rejects months outside 1..12 and implausible years.
func (p Period) Validate() error {
	if p.Month < time.January || p.Month > time.December {
		return fmt.Errorf("statement: invalid month %d", int(p.Month))
	}
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("statement: invalid year %d", p.Year)
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// FormatNumber builds a statement number of the form
// CODE-YYYY-MM-NNNNN, suffixed with -rN from the second revision on.
func FormatNumber(code string, p Period, familyNumber, revision int) string {
	n := fmt.Sprintf("%s-%04d-%02d-%05d", code, p.Year, int(p.Month), familyNumber)
	if revision > 1 {
		n += fmt.Sprintf("-r%d", revision)
	}
	return n
}
