// Package ledger merges every source of money movement for a family or
// member into one chronological stream and derives balances from it.
//
// Compute is pure: it reads only its Input and the as-of date, so the same
// stored records always produce the same balance and the same ordering.
// A positive balance is credit owed to the family; a negative balance is
// owed by the family.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/types"
)

// Errors returned by Compute.
var (
	ErrCurrencyMismatch = errors.New("ledger: currency mismatch")
	ErrMissingBirthDate = errors.New("ledger: member has no birth date")
)

// Kind is the source of a transaction.
type Kind string

// Transaction kinds, listed in tie-break order.
const (
	KindCharge     Kind = "charge"
	KindEvent      Kind = "event"
	KindWithdrawal Kind = "withdrawal"
	KindPayment    Kind = "payment"
)

// priority orders same-day transactions.
func (k Kind) priority() int {
	switch k {
	case KindCharge:
		return 0
	case KindEvent:
		return 1
	case KindWithdrawal:
		return 2
	default:
		return 3
	}
}

// Debit reports whether the kind reduces the balance.
func (k Kind) Debit() bool { return k != KindPayment }

// Transaction is the normalized, never-persisted view of one record.
type Transaction struct {
	Date time.Time `json:"date"`
	Kind Kind      `json:"kind"`
	// Amount is the unsigned magnitude.
	Amount       types.Money `json:"amount"`
	SignedAmount types.Money `json:"signed_amount"`
	// Ref identifies the source record and breaks the remaining ties.
	Ref         string      `json:"ref"`
	MemberID    id.MemberID `json:"member_id,omitempty"`
	Description string      `json:"description"`
}

// Input is everything Compute reads. Records dated after the as-of date
// are ignored, so callers may pass unfiltered lists.
type Input struct {
	Currency    string
	Family      *family.Family
	Members     []*family.Member
	Schedule    plan.Schedule
	Payments    []*payment.Payment
	Withdrawals []*payment.Withdrawal
	Charges     []*lifecycle.Charge
	// Member narrows the computation to one member's dues and the records
	// tagged with that member. Nil computes the whole family.
	Member id.MemberID
}

// Balance is the result of Compute.
type Balance struct {
	AsOf         time.Time     `json:"as_of"`
	Amount       types.Money   `json:"amount"`
	Transactions []Transaction `json:"transactions"`
}

// ChargeError reports an annual charge whose amount could not be
// resolved.
type ChargeError struct {
	MemberID id.MemberID
	Year     int
	Age      int
	Err      error
}

func (e *ChargeError) Error() string {
	return fmt.Sprintf("ledger: annual charge %d for member %s (age %d): %v", e.Year, e.MemberID, e.Age, e.Err)
}

func (e *ChargeError) Unwrap() error { return e.Err }

// Compute builds the transaction stream up to and including asOf and sums
// it.
func Compute(in Input, asOf time.Time) (*Balance, error) {
	asOf = temporal.Day(asOf)
	scoped := !in.Member.IsNil()
	inScope := func(m id.MemberID) bool { return !scoped || m.String() == in.Member.String() }

	var txns []Transaction
	add := func(t Transaction) error {
		if t.Amount.Currency != in.Currency {
			return fmt.Errorf("%w: %s record %s is %s, ledger is %s",
				ErrCurrencyMismatch, t.Kind, t.Ref, t.Amount.Currency, in.Currency)
		}
		t.Date = temporal.Day(t.Date)
		t.Amount = t.Amount.Abs()
		if t.Kind.Debit() {
			t.SignedAmount = t.Amount.Negate()
		} else {
			t.SignedAmount = t.Amount
		}
		txns = append(txns, t)
		return nil
	}

	for _, m := range in.Members {
		if !inScope(m.ID) {
			continue
		}
		dues, err := annualCharges(in, m, asOf)
		if err != nil {
			return nil, err
		}
		for _, t := range dues {
			if err := add(t); err != nil {
				return nil, err
			}
		}
	}

	for _, c := range in.Charges {
		if temporal.Day(c.Date).After(asOf) || !inScope(c.MemberID) {
			continue
		}
		desc := c.Description
		if desc == "" {
			desc = string(c.Kind)
		}
		if err := add(Transaction{
			Date: c.Date, Kind: KindEvent, Amount: c.Amount,
			Ref: c.ID.String(), MemberID: c.MemberID, Description: desc,
		}); err != nil {
			return nil, err
		}
	}

	for _, w := range in.Withdrawals {
		if temporal.Day(w.Date).After(asOf) || !inScope(w.MemberID) {
			continue
		}
		desc := w.Reason
		if desc == "" {
			desc = "Withdrawal"
		}
		if err := add(Transaction{
			Date: w.Date, Kind: KindWithdrawal, Amount: w.Amount,
			Ref: w.ID.String(), MemberID: w.MemberID, Description: desc,
		}); err != nil {
			return nil, err
		}
	}

	for _, p := range in.Payments {
		if temporal.Day(p.Date).After(asOf) || !inScope(p.MemberID) {
			continue
		}
		if err := add(Transaction{
			Date: p.Date, Kind: KindPayment, Amount: p.Amount,
			Ref: p.ID.String(), MemberID: p.MemberID, Description: paymentDescription(p),
		}); err != nil {
			return nil, err
		}
	}

	Sort(txns)

	total := types.Zero(in.Currency)
	for _, t := range txns {
		total = total.Add(t.SignedAmount)
	}

	return &Balance{AsOf: asOf, Amount: total, Transactions: txns}, nil
}

// ChargeDate returns the day the year's annual charge falls due for m in a
// family enrolled on enrolled. It reports false when the member owes
// nothing for that year: not yet a member, or already gone by the due day.
func ChargeDate(enrolled time.Time, m *family.Member, year int) (time.Time, bool) {
	first := temporal.Day(temporal.Latest(enrolled, m.JoinedAt, m.BirthDate))
	due := temporal.Day(temporal.Latest(temporal.Date(year, time.January, 1), first))
	if due.Year() != year {
		return time.Time{}, false
	}
	if m.LeftAt != nil && !due.Before(temporal.Day(*m.LeftAt)) {
		return time.Time{}, false
	}
	return due, true
}

// annualCharges expands the charge schedule for one member: one charge per
// year of membership, dated on the later of 1 January, the family
// enrollment, the member joining, and the member's birth.
func annualCharges(in Input, m *family.Member, asOf time.Time) ([]Transaction, error) {
	if m.BirthDate.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrMissingBirthDate, m.ID)
	}

	var enrolled time.Time
	if in.Family != nil {
		enrolled = in.Family.EnrolledAt
	}
	first := temporal.Day(temporal.Latest(enrolled, m.JoinedAt, m.BirthDate))

	var out []Transaction
	for year := first.Year(); year <= asOf.Year(); year++ {
		due, ok := ChargeDate(enrolled, m, year)
		if !ok || due.After(asOf) {
			continue
		}

		age := temporal.AgeOnDate(m.BirthDate, due)
		amount, err := in.Schedule.AnnualDueFor(age)
		if err != nil {
			return nil, &ChargeError{MemberID: m.ID, Year: year, Age: age, Err: err}
		}
		if amount.IsZero() {
			continue
		}

		out = append(out, Transaction{
			Date:        due,
			Kind:        KindCharge,
			Amount:      amount,
			Ref:         fmt.Sprintf("due:%s:%d", m.ID, year),
			MemberID:    m.ID,
			Description: fmt.Sprintf("Annual dues %d: %s (age %d)", year, m.FullName(), age),
		})
	}
	return out, nil
}

func paymentDescription(p *payment.Payment) string {
	switch {
	case p.Notes != "":
		return p.Notes
	case p.Type != "":
		return "Payment (" + string(p.Type) + ")"
	default:
		return "Payment"
	}
}

// Sort orders transactions by date, then kind priority, then Ref.
func Sort(txns []Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		a, b := txns[i], txns[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Kind.priority() != b.Kind.priority() {
			return a.Kind.priority() < b.Kind.priority()
		}
		return a.Ref < b.Ref
	})
}

// Between returns the transactions dated in [start, end).
func (b *Balance) Between(start, end time.Time) []Transaction {
	start, end = temporal.Day(start), temporal.Day(end)
	var out []Transaction
	for _, t := range b.Transactions {
		if !t.Date.Before(start) && t.Date.Before(end) {
			out = append(out, t)
		}
	}
	return out
}
