// Package payment models the immutable credits and debits recorded
// against a family.
package payment

import (
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// Type describes how a payment was made.
type Type string

// Payment types.
const (
	TypeCash     Type = "cash"
	TypeCheck    Type = "check"
	TypeTransfer Type = "transfer"
	TypeCard     Type = "card"
	TypeOther    Type = "other"
)

// Payment is money received from a family. It is never updated.
type Payment struct {
	types.Entity
	ID       id.PaymentID `json:"id"`
	TenantID id.TenantID  `json:"tenant_id"`
	FamilyID id.FamilyID  `json:"family_id"`
	MemberID id.MemberID  `json:"member_id,omitempty"`
	Amount   types.Money  `json:"amount"`
	Date     time.Time    `json:"date"`
	// Year is the dues year the payment was earmarked for, if any.
	Year  int    `json:"year,omitempty"`
	Type  Type   `json:"type"`
	Notes string `json:"notes,omitempty"`
}

// Withdrawal is money charged to a family outside dues and events.
type Withdrawal struct {
	types.Entity
	ID       id.WithdrawalID `json:"id"`
	TenantID id.TenantID     `json:"tenant_id"`
	FamilyID id.FamilyID     `json:"family_id"`
	MemberID id.MemberID     `json:"member_id,omitempty"`
	Amount   types.Money     `json:"amount"`
	Date     time.Time       `json:"date"`
	Reason   string          `json:"reason,omitempty"`
}
