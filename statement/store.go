package statement

import (
	"context"
	"time"

	"github.com/xraph/dues/id"
)

// Store persists statements. Implementations enforce at most one live
// statement per (family, period start, period end) with a uniqueness
// constraint, not a read-then-write check.
type Store interface {
	// InsertStatement writes s unless a live statement for its family and
	// period exists.
	InsertStatement(ctx context.Context, s *Statement) error
	GetStatement(ctx context.Context, statementID id.StatementID) (*Statement, error)
	// GetStatementByPeriod returns the live statement for the period.
	GetStatementByPeriod(ctx context.Context, familyID id.FamilyID, start, end time.Time) (*Statement, error)
	ListStatements(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Statement, error)
	// LatestStatementRevision returns the highest revision stored for the
	// period, void or not, or 0 when none exists.
	LatestStatementRevision(ctx context.Context, familyID id.FamilyID, start, end time.Time) (int, error)
	VoidStatement(ctx context.Context, statementID id.StatementID, reason string, at time.Time) error
}

// ListOpts filters statement listings. Results are ordered by period then
// number.
type ListOpts struct {
	FamilyID    id.FamilyID
	PeriodStart time.Time
	Status      Status
	Limit       int
	Offset      int
}
