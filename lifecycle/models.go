// Package lifecycle models one-off charges tied to family events.
package lifecycle

import (
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/types"
)

// Kind classifies a lifecycle event.
type Kind string

// Lifecycle event kinds.
const (
	KindWedding    Kind = "wedding"
	KindBarMitzvah Kind = "bar_mitzvah"
	KindBatMitzvah Kind = "bat_mitzvah"
	KindBirth      Kind = "birth"
	KindOther      Kind = "other"
)

// KindForMilestone maps an age-threshold milestone to its event kind.
func KindForMilestone(m temporal.Milestone) Kind {
	switch m {
	case temporal.MilestoneBarMitzvah:
		return KindBarMitzvah
	case temporal.MilestoneBatMitzvah:
		return KindBatMitzvah
	default:
		return KindOther
	}
}

// EventType is the tenant's configured price for a kind of event.
type EventType struct {
	types.Entity
	ID       id.EventTypeID `json:"id"`
	TenantID id.TenantID    `json:"tenant_id"`
	Kind     Kind           `json:"kind"`
	Name     string         `json:"name"`
	Amount   types.Money    `json:"amount"`
}

// Charge is a materialized lifecycle event. Once written it is never
// recomputed; later price changes do not affect it.
type Charge struct {
	types.Entity
	ID          id.LifecycleChargeID `json:"id"`
	TenantID    id.TenantID          `json:"tenant_id"`
	FamilyID    id.FamilyID          `json:"family_id"`
	MemberID    id.MemberID          `json:"member_id,omitempty"`
	EventTypeID id.EventTypeID       `json:"event_type_id"`
	Kind        Kind                 `json:"kind"`
	Date        time.Time            `json:"date"`
	Amount      types.Money          `json:"amount"`
	Description string               `json:"description,omitempty"`
	// TriggerKey is set on automatically applied charges and is unique.
	TriggerKey string `json:"trigger_key,omitempty"`
}

// TriggerKey identifies the automatic charge for a member milestone.
func TriggerKey(memberID id.MemberID, kind Kind) string {
	return memberID.String() + ":" + string(kind)
}
