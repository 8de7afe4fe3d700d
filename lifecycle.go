package dues

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/temporal"
)

// MemberFailure records one member whose trigger could not be applied.
type MemberFailure struct {
	MemberID id.MemberID `json:"member_id"`
	FamilyID id.FamilyID `json:"family_id"`
	Err      error       `json:"-"`
	Message  string      `json:"error"`
}

// TriggerRun is the outcome of one trigger detection pass.
type TriggerRun struct {
	TenantID id.TenantID         `json:"tenant_id"`
	AsOf     time.Time           `json:"as_of"`
	Applied  []*lifecycle.Charge `json:"applied"`
	// AlreadyApplied counts members another run charged first.
	AlreadyApplied int             `json:"already_applied"`
	Failed         []MemberFailure `json:"failed,omitempty"`
}

// DetectLifecycleTriggers charges every current member of the tenant who
// has reached a coming-of-age milestone on or before asOf and has not been
// charged for it. The charge and the member's applied flag are written
// together, so a failed write leaves the member eligible for the next run.
//
// Charges are dated asOf, the day the milestone was detected; the
// milestone date itself goes into the description.
func (e *Engine) DetectLifecycleTriggers(ctx context.Context, tenantID id.TenantID, asOf time.Time) (*TriggerRun, error) {
	t, err := e.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	members, err := e.store.ListTenantMembers(ctx, tenantID)
	if err != nil {
		return nil, storeErr("list tenant members", err)
	}

	asOf = temporal.Day(asOf)
	run := &TriggerRun{TenantID: tenantID, AsOf: asOf, Applied: []*lifecycle.Charge{}}
	fail := func(memberID id.MemberID, familyID id.FamilyID, err error) {
		run.Failed = append(run.Failed, MemberFailure{
			MemberID: memberID, FamilyID: familyID, Err: err, Message: err.Error(),
		})
	}

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if !m.ActiveOn(asOf) {
			continue
		}

		trig, ok := temporal.DetectLifecycleTrigger(m.TriggerSubject(), asOf)
		if !ok {
			continue
		}

		kind := lifecycle.KindForMilestone(trig.Milestone)
		et, err := e.store.GetEventTypeByKind(ctx, tenantID, kind)
		if err != nil {
			if errors.Is(err, ErrEventTypeNotFound) {
				err = &ConfigurationError{TenantID: tenantID, Reason: fmt.Sprintf("no %s event type", kind), Err: err}
			}
			fail(m.ID, m.FamilyID, storeErr("get event type", err))
			continue
		}
		if et.Amount.Currency != t.Currency {
			fail(m.ID, m.FamilyID, &ConfigurationError{TenantID: tenantID, Reason: fmt.Sprintf("%s event type is priced in %s", kind, et.Amount.Currency)})
			continue
		}

		c := &lifecycle.Charge{
			Entity:      e.entity(),
			ID:          id.NewLifecycleChargeID(),
			TenantID:    tenantID,
			FamilyID:    m.FamilyID,
			MemberID:    m.ID,
			EventTypeID: et.ID,
			Kind:        kind,
			Date:        asOf,
			Amount:      et.Amount,
			Description: fmt.Sprintf("%s: %s (%s)", et.Name, m.FullName(), trig.Date.Format(time.DateOnly)),
			TriggerKey:  lifecycle.TriggerKey(m.ID, kind),
		}

		err = e.store.ApplyLifecycleTrigger(ctx, c)
		switch {
		case err == nil:
			run.Applied = append(run.Applied, c)
			e.plugins.EmitLifecycleCharged(ctx, c, true)
		case errors.Is(err, ErrTriggerAlreadyApplied):
			run.AlreadyApplied++
		default:
			fail(m.ID, m.FamilyID, storeErr("apply lifecycle trigger", err))
		}
	}

	e.logger.Info("lifecycle triggers detected",
		"tenant_id", tenantID.String(),
		"as_of", asOf.Format(time.DateOnly),
		"applied", len(run.Applied),
		"already_applied", run.AlreadyApplied,
		"failed", len(run.Failed),
	)

	return run, nil
}
