// Package tenant models the admin accounts that own every other record.
package tenant

import (
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// AutomationSettings selects which steps the monthly automation runs for a
// tenant. It is passed by value into each scheduler invocation.
type AutomationSettings struct {
	LifecycleTriggers bool `json:"lifecycle_triggers" yaml:"lifecycle_triggers" bson:"lifecycle_triggers"`
	Statements        bool `json:"statements"         yaml:"statements"         bson:"statements"`
	Dispatch          bool `json:"dispatch"           yaml:"dispatch"           bson:"dispatch"`
	Overdue           bool `json:"overdue"            yaml:"overdue"            bson:"overdue"`
}

// DefaultAutomationSettings enables every step.
func DefaultAutomationSettings() AutomationSettings {
	return AutomationSettings{
		LifecycleTriggers: true,
		Statements:        true,
		Dispatch:          true,
		Overdue:           true,
	}
}

// Tenant is an admin account and the isolation boundary for all ledger
// computations.
type Tenant struct {
	types.Entity
	ID   id.TenantID `json:"id"`
	Code string      `json:"code"` // short uppercase prefix for statement numbers
	Name string      `json:"name"`
	// Currency is the ISO 4217 code every amount of this tenant is kept in.
	Currency           string             `json:"currency"`
	Email              string             `json:"email,omitempty"`
	AutomationsEnabled bool               `json:"automations_enabled"`
	Settings           AutomationSettings `json:"settings"`
}

// Zero returns a zero amount in the tenant currency.
func (t *Tenant) Zero() types.Money { return types.Zero(t.Currency) }
