package dues

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/ledger"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/tenant"
)

// ComputeBalance returns the balance and transaction stream of a family
// or a single member as of the end of asOf. scope must be a family or
// member ID.
func (e *Engine) ComputeBalance(ctx context.Context, scope id.ID, asOf time.Time) (*ledger.Balance, error) {
	switch {
	case scope.Is(id.PrefixFamily):
		f, t, err := e.familyAndTenant(ctx, scope)
		if err != nil {
			return nil, err
		}
		return e.familyBalance(ctx, t, f, id.Nil, asOf)

	case scope.Is(id.PrefixMember):
		m, err := e.GetMember(ctx, scope)
		if err != nil {
			return nil, err
		}
		f, t, err := e.familyAndTenant(ctx, m.FamilyID)
		if err != nil {
			return nil, err
		}
		return e.familyBalance(ctx, t, f, m.ID, asOf)

	default:
		return nil, ValidationError{
			Field:   "scope",
			Message: fmt.Sprintf("expected a family or member id, got %q", scope.String()),
		}
	}
}

// familyBalance loads every record of f dated on or before asOf and runs
// the aggregator over them.
func (e *Engine) familyBalance(ctx context.Context, t *tenant.Tenant, f *family.Family, member id.MemberID, asOf time.Time) (*ledger.Balance, error) {
	in, err := e.ledgerInput(ctx, t, f, asOf)
	if err != nil {
		return nil, err
	}
	in.Member = member

	b, err := ledger.Compute(in, asOf)
	if err != nil {
		return nil, configError(t.ID, err)
	}
	return b, nil
}

func (e *Engine) ledgerInput(ctx context.Context, t *tenant.Tenant, f *family.Family, asOf time.Time) (ledger.Input, error) {
	until := asOf.AddDate(0, 0, 1)

	members, err := e.store.ListMembers(ctx, f.ID)
	if err != nil {
		return ledger.Input{}, storeErr("list members", err)
	}
	schedule, err := e.ListPaymentPlans(ctx, t.ID)
	if err != nil {
		return ledger.Input{}, err
	}
	payments, err := e.store.ListPayments(ctx, f.ID, payment.ListOpts{Until: until})
	if err != nil {
		return ledger.Input{}, storeErr("list payments", err)
	}
	withdrawals, err := e.store.ListWithdrawals(ctx, f.ID, payment.ListOpts{Until: until})
	if err != nil {
		return ledger.Input{}, storeErr("list withdrawals", err)
	}
	charges, err := e.store.ListLifecycleCharges(ctx, f.ID, lifecycle.ListOpts{Until: until})
	if err != nil {
		return ledger.Input{}, storeErr("list lifecycle charges", err)
	}

	return ledger.Input{
		Currency:    t.Currency,
		Family:      f,
		Members:     members,
		Schedule:    schedule,
		Payments:    payments,
		Withdrawals: withdrawals,
		Charges:     charges,
	}, nil
}

// configError lifts bracket and ledger data errors into a
// ConfigurationError for the tenant.
func configError(tenantID id.TenantID, err error) error {
	ce := &ConfigurationError{TenantID: tenantID, Err: err}

	var charge *ledger.ChargeError
	if errors.As(err, &charge) {
		ce.Age = charge.Age
		ce.Reason = fmt.Sprintf("no unique payment plan for age %d", charge.Age)
	}
	return ce
}
