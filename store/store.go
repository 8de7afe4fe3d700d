// Package store defines the persistence boundary of the dues engine.
package store

import (
	"context"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/tenant"
)

// Store is the unified storage interface for all dues entities. Method
// names carry their entity so the per-entity stores compose without
// conflicts.
//
// Not-found lookups return the matching dues sentinel (ErrFamilyNotFound,
// ErrStatementNotFound, ...). InsertStatement returns
// dues.ErrDuplicateStatement and ApplyLifecycleTrigger returns
// dues.ErrTriggerAlreadyApplied when their uniqueness rule rejects the
// write.
type Store interface {
	tenant.Store
	family.Store
	plan.Store
	lifecycle.Store
	payment.Store
	statement.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
