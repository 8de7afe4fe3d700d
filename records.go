package dues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/ledger"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/tenant"
	"github.com/xraph/dues/types"
)

func (e *Engine) entity() types.Entity {
	now := e.now()
	return types.Entity{CreatedAt: now, UpdatedAt: now}
}

// ──────────────────────────────────────────────────
// Tenants
// ──────────────────────────────────────────────────

// CreateTenant registers a tenant. A zero Settings value enables every
// automation step.
func (e *Engine) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	t.Code = strings.ToUpper(strings.TrimSpace(t.Code))
	t.Currency = strings.ToLower(strings.TrimSpace(t.Currency))
	if t.Code == "" {
		return ValidationError{Field: "code", Message: "required"}
	}
	if len(t.Currency) != 3 {
		return ValidationError{Field: "currency", Message: "must be an ISO 4217 code"}
	}
	if t.ID.IsNil() {
		t.ID = id.NewTenantID()
	}
	if t.Settings == (tenant.AutomationSettings{}) {
		t.Settings = tenant.DefaultAutomationSettings()
	}
	t.Entity = e.entity()

	return storeErr("create tenant", e.store.CreateTenant(ctx, t))
}

// GetTenant retrieves a tenant by ID.
func (e *Engine) GetTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	t, err := e.store.GetTenant(ctx, tenantID)
	return t, storeErr("get tenant", err)
}

// SetAutomations updates a tenant's automation flag and step settings.
func (e *Engine) SetAutomations(ctx context.Context, tenantID id.TenantID, enabled bool, settings tenant.AutomationSettings) error {
	t, err := e.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	t.AutomationsEnabled = enabled
	t.Settings = settings
	t.UpdatedAt = e.now()
	return storeErr("update tenant", e.store.UpdateTenant(ctx, t))
}

// ──────────────────────────────────────────────────
// Families
// ──────────────────────────────────────────────────

// EnrollFamily creates a family and its initial members. Members without
// a JoinedAt date join on the enrollment date.
func (e *Engine) EnrollFamily(ctx context.Context, f *family.Family, members ...*family.Member) error {
	if _, err := e.GetTenant(ctx, f.TenantID); err != nil {
		return err
	}
	if f.EnrolledAt.IsZero() {
		return ValidationError{Field: "enrolled_at", Message: "required"}
	}
	if !f.ParentFamilyID.IsNil() {
		parent, err := e.GetFamily(ctx, f.ParentFamilyID)
		if err != nil {
			return err
		}
		if parent.TenantID.String() != f.TenantID.String() {
			return ErrTenantMismatch
		}
	}
	for _, m := range members {
		if err := validateMember(m); err != nil {
			return err
		}
	}

	if f.ID.IsNil() {
		f.ID = id.NewFamilyID()
	}
	f.EnrolledAt = temporal.Day(f.EnrolledAt)
	f.Active = true
	f.Entity = e.entity()

	if err := e.store.CreateFamily(ctx, f); err != nil {
		return storeErr("create family", err)
	}

	for _, m := range members {
		m.FamilyID = f.ID
		if m.JoinedAt.IsZero() {
			m.JoinedAt = f.EnrolledAt
		}
		if err := e.addMember(ctx, f, m); err != nil {
			return err
		}
	}

	e.plugins.EmitFamilyEnrolled(ctx, f)
	e.logger.Debug("family enrolled",
		"tenant_id", f.TenantID.String(),
		"family_id", f.ID.String(),
		"number", f.Number,
		"members", len(members),
	)
	return nil
}

// GetFamily retrieves a family by ID.
func (e *Engine) GetFamily(ctx context.Context, familyID id.FamilyID) (*family.Family, error) {
	f, err := e.store.GetFamily(ctx, familyID)
	return f, storeErr("get family", err)
}

// ListFamilies lists a tenant's families ordered by number.
func (e *Engine) ListFamilies(ctx context.Context, tenantID id.TenantID, opts family.ListOpts) ([]*family.Family, error) {
	fs, err := e.store.ListFamilies(ctx, tenantID, opts)
	return fs, storeErr("list families", err)
}

// DeactivateFamily excludes a family from future statement runs. Its
// history stays intact.
func (e *Engine) DeactivateFamily(ctx context.Context, familyID id.FamilyID) error {
	f, err := e.GetFamily(ctx, familyID)
	if err != nil {
		return err
	}
	f.Active = false
	f.UpdatedAt = e.now()
	return storeErr("update family", e.store.UpdateFamily(ctx, f))
}

// LinkParentFamily records the family f originated from. A family has at
// most one parent link.
func (e *Engine) LinkParentFamily(ctx context.Context, familyID, parentID id.FamilyID) error {
	if familyID.String() == parentID.String() {
		return ValidationError{Field: "parent_family_id", Message: "family cannot be its own parent"}
	}
	f, err := e.GetFamily(ctx, familyID)
	if err != nil {
		return err
	}
	if !f.ParentFamilyID.IsNil() {
		return ErrParentAlreadyLinked
	}
	parent, err := e.GetFamily(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.TenantID.String() != f.TenantID.String() {
		return ErrTenantMismatch
	}
	f.ParentFamilyID = parent.ID
	f.UpdatedAt = e.now()
	return storeErr("update family", e.store.UpdateFamily(ctx, f))
}

// AddMember adds a member to an existing family.
func (e *Engine) AddMember(ctx context.Context, familyID id.FamilyID, m *family.Member) error {
	f, err := e.GetFamily(ctx, familyID)
	if err != nil {
		return err
	}
	if err := validateMember(m); err != nil {
		return err
	}
	m.FamilyID = f.ID
	if m.JoinedAt.IsZero() {
		m.JoinedAt = temporal.Latest(f.EnrolledAt, m.BirthDate)
	}
	return e.addMember(ctx, f, m)
}

func (e *Engine) addMember(ctx context.Context, f *family.Family, m *family.Member) error {
	if m.ID.IsNil() {
		m.ID = id.NewMemberID()
	}
	m.TenantID = f.TenantID
	m.BirthDate = temporal.Day(m.BirthDate)
	m.JoinedAt = temporal.Day(m.JoinedAt)
	m.Entity = e.entity()
	return storeErr("create member", e.store.CreateMember(ctx, m))
}

// GetMember retrieves a member by ID.
func (e *Engine) GetMember(ctx context.Context, memberID id.MemberID) (*family.Member, error) {
	m, err := e.store.GetMember(ctx, memberID)
	return m, storeErr("get member", err)
}

// ListMembers lists a family's members.
func (e *Engine) ListMembers(ctx context.Context, familyID id.FamilyID) ([]*family.Member, error) {
	ms, err := e.store.ListMembers(ctx, familyID)
	return ms, storeErr("list members", err)
}

func validateMember(m *family.Member) error {
	if m.BirthDate.IsZero() {
		return ValidationError{Field: "birth_date", Message: "required"}
	}
	if m.LunarBirthDate != nil && !m.LunarBirthDate.Valid() {
		return ValidationError{Field: "lunar_birth_date", Message: m.LunarBirthDate.String() + " does not exist"}
	}
	switch m.Gender {
	case "", family.GenderMale, family.GenderFemale:
	default:
		return ValidationError{Field: "gender", Message: fmt.Sprintf("unknown gender %q", m.Gender)}
	}
	return nil
}

// SubFamilyRequest describes the marriage of a member into a new family.
type SubFamilyRequest struct {
	MemberID id.MemberID
	Name     string
	Email    string
	// Date is the wedding date; the new family is enrolled on it.
	Date time.Time
	// Spouse is optionally added to the new family.
	Spouse *family.Member
}

// FormSubFamily splits a member off into a new family linked back to the
// origin. The member's record in the origin family is closed on Date and a
// new record opens in the new family. Dues for the new record start on the
// following 1 January when the origin already charged the current year.
// If the tenant prices weddings, the origin family is charged once.
//
// Each step is safe to repeat. A call that fails partway can be retried
// with the same request and picks up where the previous one stopped.
func (e *Engine) FormSubFamily(ctx context.Context, req SubFamilyRequest) (*family.Family, error) {
	if req.Date.IsZero() {
		return nil, ValidationError{Field: "date", Message: "required"}
	}
	date := temporal.Day(req.Date)

	m, err := e.GetMember(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if m.LeftAt != nil && !temporal.Day(*m.LeftAt).Equal(date) {
		return nil, ValidationError{Field: "member_id", Message: "member already left the family"}
	}
	origin, err := e.GetFamily(ctx, m.FamilyID)
	if err != nil {
		return nil, err
	}

	// Decided before the member is closed: a closed record no longer owes
	// the wedding year.
	joined := date
	if due, ok := ledger.ChargeDate(origin.EnrolledAt, m, date.Year()); ok && due.Before(date) {
		joined = temporal.Date(date.Year()+1, time.January, 1)
	}

	if m.LeftAt == nil {
		m.LeftAt = &date
		m.UpdatedAt = e.now()
		if err := e.store.UpdateMember(ctx, m); err != nil {
			return nil, storeErr("close member", err)
		}
	}

	moved := &family.Member{
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		BirthDate:          m.BirthDate,
		LunarBirthDate:     m.LunarBirthDate,
		Gender:             m.Gender,
		JoinedAt:           joined,
		ComingOfAgeApplied: m.ComingOfAgeApplied,
	}
	members := []*family.Member{moved}
	if req.Spouse != nil {
		if req.Spouse.JoinedAt.IsZero() {
			req.Spouse.JoinedAt = joined
		}
		members = append(members, req.Spouse)
	}

	f, err := e.subFamilyOf(ctx, origin, moved, date)
	if err != nil {
		return nil, err
	}
	if f == nil {
		name := req.Name
		if name == "" {
			name = m.LastName
		}
		f = &family.Family{
			TenantID:       origin.TenantID,
			Name:           name,
			Email:          req.Email,
			EnrolledAt:     date,
			ParentFamilyID: origin.ID,
		}
		if err := e.EnrollFamily(ctx, f, members...); err != nil {
			return nil, err
		}
	} else if err := e.completeSubFamily(ctx, f, members); err != nil {
		return nil, err
	}

	_, err = e.recordLifecycleEvent(ctx, LifecycleEventRequest{
		FamilyID: origin.ID,
		MemberID: m.ID,
		Kind:     lifecycle.KindWedding,
		Date:     date,
	}, lifecycle.TriggerKey(m.ID, lifecycle.KindWedding))
	switch {
	case err == nil:
	case errors.Is(err, ErrTriggerAlreadyApplied):
	case errors.Is(err, ErrEventTypeNotFound):
		e.logger.Debug("no wedding event type configured",
			"tenant_id", origin.TenantID.String(),
		)
	default:
		return f, err
	}

	return f, nil
}

// subFamilyOf finds a family an earlier FormSubFamily call for the same
// wedding already created: same parent and enrollment day, holding the
// moved member or nothing at all.
func (e *Engine) subFamilyOf(ctx context.Context, origin *family.Family, moved *family.Member, date time.Time) (*family.Family, error) {
	fs, err := e.ListFamilies(ctx, origin.TenantID, family.ListOpts{})
	if err != nil {
		return nil, err
	}
	for _, f := range fs {
		if f.ParentFamilyID.String() != origin.ID.String() || !temporal.Day(f.EnrolledAt).Equal(date) {
			continue
		}
		ms, err := e.ListMembers(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		if len(ms) == 0 || findMember(ms, moved) != nil {
			return f, nil
		}
	}
	return nil, nil
}

// completeSubFamily adds whichever of members a partial sub-family lacks.
func (e *Engine) completeSubFamily(ctx context.Context, f *family.Family, members []*family.Member) error {
	have, err := e.ListMembers(ctx, f.ID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if existing := findMember(have, m); existing != nil {
			*m = *existing
			continue
		}
		if err := validateMember(m); err != nil {
			return err
		}
		m.FamilyID = f.ID
		if err := e.addMember(ctx, f, m); err != nil {
			return err
		}
	}
	return nil
}

func findMember(ms []*family.Member, want *family.Member) *family.Member {
	for _, m := range ms {
		if m.FirstName == want.FirstName && m.LastName == want.LastName &&
			temporal.Day(m.BirthDate).Equal(temporal.Day(want.BirthDate)) {
			return m
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Payment plans
// ──────────────────────────────────────────────────

// CreatePaymentPlan adds an age bracket. A bracket overlapping an existing
// one is rejected.
func (e *Engine) CreatePaymentPlan(ctx context.Context, p *plan.PaymentPlan) error {
	t, err := e.GetTenant(ctx, p.TenantID)
	if err != nil {
		return err
	}
	if p.AgeStart < 0 {
		return ValidationError{Field: "age_start", Message: "must not be negative"}
	}
	if p.AgeEnd != nil && *p.AgeEnd <= p.AgeStart {
		return ValidationError{Field: "age_end", Message: "must be greater than age_start"}
	}
	if err := ensureCurrency(t, "annual_due", p.AnnualDue); err != nil {
		return err
	}

	existing, err := e.store.ListPaymentPlans(ctx, p.TenantID)
	if err != nil {
		return storeErr("list payment plans", err)
	}
	for _, other := range existing {
		if other.Overlaps(p) {
			return fmt.Errorf("%w: %s overlaps %s", plan.ErrOverlap, p, other)
		}
	}

	if p.ID.IsNil() {
		p.ID = id.NewPaymentPlanID()
	}
	p.Entity = e.entity()
	return storeErr("create payment plan", e.store.CreatePaymentPlan(ctx, p))
}

// ListPaymentPlans returns a tenant's brackets ordered by starting age.
func (e *Engine) ListPaymentPlans(ctx context.Context, tenantID id.TenantID) (plan.Schedule, error) {
	ps, err := e.store.ListPaymentPlans(ctx, tenantID)
	if err != nil {
		return nil, storeErr("list payment plans", err)
	}
	return plan.Schedule(ps), nil
}

// ValidatePaymentPlans checks that a tenant's brackets cover every age
// exactly once.
func (e *Engine) ValidatePaymentPlans(ctx context.Context, tenantID id.TenantID) error {
	s, err := e.ListPaymentPlans(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := plan.ValidateCoverage(s); err != nil {
		return configError(tenantID, err)
	}
	return nil
}

// AnnualDueFor returns the annual amount a member of the given age owes
// the tenant. Brackets are read from the store on every call.
func (e *Engine) AnnualDueFor(ctx context.Context, tenantID id.TenantID, age int) (types.Money, error) {
	s, err := e.ListPaymentPlans(ctx, tenantID)
	if err != nil {
		return types.Money{}, err
	}
	amount, err := s.AnnualDueFor(age)
	if err != nil {
		return types.Money{}, configError(tenantID, err)
	}
	return amount, nil
}

// ──────────────────────────────────────────────────
// Payments and withdrawals
// ──────────────────────────────────────────────────

// RecordPayment stores a credit against a family.
func (e *Engine) RecordPayment(ctx context.Context, p *payment.Payment) error {
	f, t, err := e.familyAndTenant(ctx, p.FamilyID)
	if err != nil {
		return err
	}
	if err := e.validateRecord(ctx, f, t, p.MemberID, p.Amount, p.Date); err != nil {
		return err
	}

	if p.ID.IsNil() {
		p.ID = id.NewPaymentID()
	}
	p.TenantID = f.TenantID
	p.Date = temporal.Day(p.Date)
	if p.Type == "" {
		p.Type = payment.TypeOther
	}
	p.Entity = e.entity()

	if err := e.store.CreatePayment(ctx, p); err != nil {
		return storeErr("create payment", err)
	}

	e.plugins.EmitPaymentRecorded(ctx, p)
	return nil
}

// RecordWithdrawal stores a debit against a family.
func (e *Engine) RecordWithdrawal(ctx context.Context, w *payment.Withdrawal) error {
	f, t, err := e.familyAndTenant(ctx, w.FamilyID)
	if err != nil {
		return err
	}
	if err := e.validateRecord(ctx, f, t, w.MemberID, w.Amount, w.Date); err != nil {
		return err
	}

	if w.ID.IsNil() {
		w.ID = id.NewWithdrawalID()
	}
	w.TenantID = f.TenantID
	w.Date = temporal.Day(w.Date)
	w.Entity = e.entity()

	if err := e.store.CreateWithdrawal(ctx, w); err != nil {
		return storeErr("create withdrawal", err)
	}

	e.plugins.EmitWithdrawalRecorded(ctx, w)
	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle events
// ──────────────────────────────────────────────────

// CreateEventType prices a kind of lifecycle event for a tenant. Each kind
// is priced once per tenant.
func (e *Engine) CreateEventType(ctx context.Context, et *lifecycle.EventType) error {
	t, err := e.GetTenant(ctx, et.TenantID)
	if err != nil {
		return err
	}
	if et.Kind == "" {
		return ValidationError{Field: "kind", Message: "required"}
	}
	if err := ensureCurrency(t, "amount", et.Amount); err != nil {
		return err
	}
	if et.ID.IsNil() {
		et.ID = id.NewEventTypeID()
	}
	if et.Name == "" {
		et.Name = string(et.Kind)
	}
	et.Entity = e.entity()
	return storeErr("create event type", e.store.CreateEventType(ctx, et))
}

// LifecycleEventRequest records a one-off lifecycle charge.
type LifecycleEventRequest struct {
	FamilyID    id.FamilyID
	MemberID    id.MemberID
	Kind        lifecycle.Kind
	Date        time.Time
	Description string
	// Amount overrides the event type price when set.
	Amount *types.Money
}

// RecordLifecycleEvent charges a family for an event priced by the
// tenant's event type of the same kind.
func (e *Engine) RecordLifecycleEvent(ctx context.Context, req LifecycleEventRequest) (*lifecycle.Charge, error) {
	return e.recordLifecycleEvent(ctx, req, "")
}

// recordLifecycleEvent writes the charge under triggerKey when one is
// given; a second charge with the same key fails with
// ErrTriggerAlreadyApplied.
func (e *Engine) recordLifecycleEvent(ctx context.Context, req LifecycleEventRequest, triggerKey string) (*lifecycle.Charge, error) {
	f, t, err := e.familyAndTenant(ctx, req.FamilyID)
	if err != nil {
		return nil, err
	}

	et, err := e.store.GetEventTypeByKind(ctx, f.TenantID, req.Kind)
	if err != nil {
		return nil, storeErr("get event type", err)
	}

	amount := et.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if err := e.validateRecord(ctx, f, t, req.MemberID, amount, req.Date); err != nil {
		return nil, err
	}

	desc := req.Description
	if desc == "" {
		desc = et.Name
	}
	c := &lifecycle.Charge{
		Entity:      e.entity(),
		ID:          id.NewLifecycleChargeID(),
		TenantID:    f.TenantID,
		FamilyID:    f.ID,
		MemberID:    req.MemberID,
		EventTypeID: et.ID,
		Kind:        et.Kind,
		Date:        temporal.Day(req.Date),
		Amount:      amount,
		Description: desc,
		TriggerKey:  triggerKey,
	}
	if err := e.store.CreateLifecycleCharge(ctx, c); err != nil {
		return nil, storeErr("create lifecycle charge", err)
	}

	e.plugins.EmitLifecycleCharged(ctx, c, false)
	return c, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Engine) familyAndTenant(ctx context.Context, familyID id.FamilyID) (*family.Family, *tenant.Tenant, error) {
	f, err := e.GetFamily(ctx, familyID)
	if err != nil {
		return nil, nil, err
	}
	t, err := e.GetTenant(ctx, f.TenantID)
	if err != nil {
		return nil, nil, err
	}
	return f, t, nil
}

func (e *Engine) validateRecord(ctx context.Context, f *family.Family, t *tenant.Tenant, memberID id.MemberID, amount types.Money, date time.Time) error {
	if date.IsZero() {
		return ValidationError{Field: "date", Message: "required"}
	}
	if !amount.IsPositive() {
		return ValidationError{Field: "amount", Message: "must be positive"}
	}
	if err := ensureCurrency(t, "amount", amount); err != nil {
		return err
	}
	if memberID.IsNil() {
		return nil
	}
	m, err := e.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if m.FamilyID.String() != f.ID.String() {
		return ValidationError{Field: "member_id", Message: "member belongs to another family"}
	}
	return nil
}

func ensureCurrency(t *tenant.Tenant, field string, m types.Money) error {
	if m.Currency != t.Currency {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("currency %q does not match tenant currency %q", m.Currency, t.Currency),
		}
	}
	return nil
}
