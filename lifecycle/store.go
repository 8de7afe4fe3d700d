package lifecycle

import (
	"context"
	"time"

	"github.com/xraph/dues/id"
)

// Store persists event types and lifecycle charges.
type Store interface {
	CreateEventType(ctx context.Context, et *EventType) error
	ListEventTypes(ctx context.Context, tenantID id.TenantID) ([]*EventType, error)
	GetEventTypeByKind(ctx context.Context, tenantID id.TenantID, kind Kind) (*EventType, error)

	CreateLifecycleCharge(ctx context.Context, c *Charge) error
	ListLifecycleCharges(ctx context.Context, familyID id.FamilyID, opts ListOpts) ([]*Charge, error)

	// ApplyLifecycleTrigger inserts c and sets the coming-of-age flag of
	// c.MemberID in one atomic step. If the flag is already set, or a
	// charge with the same TriggerKey exists, nothing is written.
	ApplyLifecycleTrigger(ctx context.Context, c *Charge) error
}

// ListOpts filters charge listings. Until is exclusive; zero means no
// bound. Results are ordered by date.
type ListOpts struct {
	Until time.Time
}
