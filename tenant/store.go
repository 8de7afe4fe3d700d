package tenant

import (
	"context"

	"github.com/xraph/dues/id"
)

// Store persists tenants.
type Store interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, tenantID id.TenantID) (*Tenant, error)
	ListTenants(ctx context.Context, opts ListOpts) ([]*Tenant, error)
	UpdateTenant(ctx context.Context, t *Tenant) error
}

// ListOpts filters tenant listings. Results are ordered by Code.
type ListOpts struct {
	// AutomationsOnly restricts the result to tenants with automations enabled.
	AutomationsOnly bool
	Limit           int
	Offset          int
}
