// Package id defines TypeID-based identity types for all dues entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix". Stores persist the string form
// and parse it back with the prefix-checked Parse*ID functions.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all entity types.
const (
	PrefixTenant          Prefix = "tnt"  // Tenant (admin account)
	PrefixFamily          Prefix = "fam"  // Member family
	PrefixMember          Prefix = "mbr"  // Family member
	PrefixPaymentPlan     Prefix = "plan" // Age-bracket payment plan
	PrefixEventType       Prefix = "evtt" // Lifecycle event type
	PrefixLifecycleCharge Prefix = "lch"  // Materialized lifecycle charge
	PrefixPayment         Prefix = "pay"  // Payment (credit)
	PrefixWithdrawal      Prefix = "wdr"  // Withdrawal (debit)
	PrefixStatement       Prefix = "stmt" // Period statement
)

// ID is the primary identifier type for all dues entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "fam_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// TenantID identifies a tenant (prefix: "tnt").
type TenantID = ID

// FamilyID identifies a family (prefix: "fam").
type FamilyID = ID

// MemberID identifies a family member (prefix: "mbr").
type MemberID = ID

// PaymentPlanID identifies an age-bracket plan (prefix: "plan").
type PaymentPlanID = ID

// EventTypeID identifies a lifecycle event type (prefix: "evtt").
type EventTypeID = ID

// LifecycleChargeID identifies a lifecycle charge (prefix: "lch").
type LifecycleChargeID = ID

// PaymentID identifies a payment (prefix: "pay").
type PaymentID = ID

// WithdrawalID identifies a withdrawal (prefix: "wdr").
type WithdrawalID = ID

// StatementID identifies a statement (prefix: "stmt").
type StatementID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewTenantID generates a new unique tenant ID.
func NewTenantID() ID { return New(PrefixTenant) }

// NewFamilyID generates a new unique family ID.
func NewFamilyID() ID { return New(PrefixFamily) }

// NewMemberID generates a new unique member ID.
func NewMemberID() ID { return New(PrefixMember) }

// NewPaymentPlanID generates a new unique payment plan ID.
func NewPaymentPlanID() ID { return New(PrefixPaymentPlan) }

// NewEventTypeID generates a new unique lifecycle event type ID.
func NewEventTypeID() ID { return New(PrefixEventType) }

// NewLifecycleChargeID generates a new unique lifecycle charge ID.
func NewLifecycleChargeID() ID { return New(PrefixLifecycleCharge) }

// NewPaymentID generates a new unique payment ID.
func NewPaymentID() ID { return New(PrefixPayment) }

// NewWithdrawalID generates a new unique withdrawal ID.
func NewWithdrawalID() ID { return New(PrefixWithdrawal) }

// NewStatementID generates a new unique statement ID.
func NewStatementID() ID { return New(PrefixStatement) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseTenantID parses a string and validates the "tnt" prefix.
func ParseTenantID(s string) (ID, error) { return ParseWithPrefix(s, PrefixTenant) }

// ParseFamilyID parses a string and validates the "fam" prefix.
func ParseFamilyID(s string) (ID, error) { return ParseWithPrefix(s, PrefixFamily) }

// ParseMemberID parses a string and validates the "mbr" prefix.
func ParseMemberID(s string) (ID, error) { return ParseWithPrefix(s, PrefixMember) }

// ParsePaymentPlanID parses a string and validates the "plan" prefix.
func ParsePaymentPlanID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPaymentPlan) }

// ParseEventTypeID parses a string and validates the "evtt" prefix.
func ParseEventTypeID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEventType) }

// ParseLifecycleChargeID parses a string and validates the "lch" prefix.
func ParseLifecycleChargeID(s string) (ID, error) {
	return ParseWithPrefix(s, PrefixLifecycleCharge)
}

// ParsePaymentID parses a string and validates the "pay" prefix.
func ParsePaymentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPayment) }

// ParseWithdrawalID parses a string and validates the "wdr" prefix.
func ParseWithdrawalID(s string) (ID, error) { return ParseWithPrefix(s, PrefixWithdrawal) }

// ParseStatementID parses a string and validates the "stmt" prefix.
func ParseStatementID(s string) (ID, error) { return ParseWithPrefix(s, PrefixStatement) }

// ParseOptional parses s, returning Nil for the empty string.
func ParseOptional(s string) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return Parse(s)
}

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Is reports whether i carries the given prefix.
func (i ID) Is(p Prefix) bool {
	return i.valid && Prefix(i.inner.Prefix()) == p
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}
