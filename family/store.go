package family

import (
	"context"

	"github.com/xraph/dues/id"
)

// Store persists families and their members.
type Store interface {
	// CreateFamily inserts f, assigning the next per-tenant Number when it
	// is zero.
	CreateFamily(ctx context.Context, f *Family) error
	GetFamily(ctx context.Context, familyID id.FamilyID) (*Family, error)
	ListFamilies(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Family, error)
	UpdateFamily(ctx context.Context, f *Family) error

	CreateMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, memberID id.MemberID) (*Member, error)
	ListMembers(ctx context.Context, familyID id.FamilyID) ([]*Member, error)
	ListTenantMembers(ctx context.Context, tenantID id.TenantID) ([]*Member, error)
	UpdateMember(ctx context.Context, m *Member) error
}

// ListOpts filters family listings. Results are ordered by Number.
type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
