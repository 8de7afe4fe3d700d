// Package overdue classifies families by how long their oldest unpaid
// obligation has been outstanding. Nothing here is stored; every call
// recomputes from the ledger.
package overdue

import (
	"fmt"
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/ledger"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/types"
)

// Tier is an escalation bucket.
type Tier int

// Escalation tiers.
const (
	TierNone Tier = iota
	Tier1
	Tier2
	Tier3
)

// Tier lower bounds in days, inclusive.
const (
	Tier1Days = 7
	Tier2Days = 14
	Tier3Days = 30
)

func (t Tier) String() string {
	if t == TierNone {
		return "none"
	}
	return fmt.Sprintf("tier%d", int(t))
}

// TierFor buckets a day count: [7,14) tier1, [14,30) tier2, 30+ tier3.
func TierFor(days int) Tier {
	switch {
	case days >= Tier3Days:
		return Tier3
	case days >= Tier2Days:
		return Tier2
	case days >= Tier1Days:
		return Tier1
	default:
		return TierNone
	}
}

// Classification is one overdue family.
type Classification struct {
	FamilyID    id.FamilyID `json:"family_id"`
	DaysOverdue int         `json:"days_overdue"`
	// Amount is the magnitude of the negative balance.
	Amount types.Money `json:"amount"`
	Tier   Tier        `json:"tier"`
	// Since is the date of the oldest unpaid debit.
	Since time.Time `json:"since"`
}

// Classify reports whether the family behind b is overdue as of today.
// b must be computed as of today. Families owing nothing or overdue less
// than Tier1Days are not reported.
func Classify(familyID id.FamilyID, b *ledger.Balance, today time.Time) (Classification, bool) {
	if !b.Amount.IsNegative() {
		return Classification{}, false
	}

	unpaid, ok := b.OldestUnpaid()
	if !ok {
		return Classification{}, false
	}

	days := temporal.DaysBetween(unpaid.Transaction.Date, today)
	tier := TierFor(days)
	if tier == TierNone {
		return Classification{}, false
	}

	return Classification{
		FamilyID:    familyID,
		DaysOverdue: days,
		Amount:      b.Amount.Abs(),
		Tier:        tier,
		Since:       unpaid.Transaction.Date,
	}, true
}
