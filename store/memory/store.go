// Package memory provides an in-process Store. It backs the engine tests
// and CLI dry runs; every uniqueness rule of the SQL stores is enforced
// under the store mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/dues"
	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/tenant"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps every entity in maps keyed by ID string.
type Store struct {
	mu     sync.RWMutex
	closed bool

	tenants     map[string]*tenant.Tenant
	families    map[string]*family.Family
	members     map[string]*family.Member
	plans       map[string]*plan.PaymentPlan
	eventTypes  map[string]*lifecycle.EventType
	charges     map[string]*lifecycle.Charge
	payments    map[string]*payment.Payment
	withdrawals map[string]*payment.Withdrawal
	statements  map[string]*statement.Statement

	// familyNumbers holds the last Number issued per tenant.
	familyNumbers map[string]int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tenants:       make(map[string]*tenant.Tenant),
		families:      make(map[string]*family.Family),
		members:       make(map[string]*family.Member),
		plans:         make(map[string]*plan.PaymentPlan),
		eventTypes:    make(map[string]*lifecycle.EventType),
		charges:       make(map[string]*lifecycle.Charge),
		payments:      make(map[string]*payment.Payment),
		withdrawals:   make(map[string]*payment.Withdrawal),
		statements:    make(map[string]*statement.Statement),
		familyNumbers: make(map[string]int),
	}
}

// ──────────────────────────────────────────────────
// Tenant Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	if _, exists := s.tenants[t.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	for _, other := range s.tenants {
		if other.Code == t.Code {
			return dues.ErrAlreadyExists
		}
	}
	cp := *t
	s.tenants[t.ID.String()] = &cp
	return nil
}

func (s *Store) GetTenant(_ context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID.String()]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, dues.ErrTenantNotFound
}

func (s *Store) ListTenants(_ context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if opts.AutomationsOnly && !t.AutomationsEnabled {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID.String()]; !exists {
		return dues.ErrTenantNotFound
	}
	cp := *t
	s.tenants[t.ID.String()] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Family Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateFamily(_ context.Context, f *family.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	if _, exists := s.families[f.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}

	key := f.TenantID.String()
	if f.Number == 0 {
		f.Number = s.familyNumbers[key] + 1
	}
	for _, other := range s.families {
		if other.TenantID.String() == key && other.Number == f.Number {
			return dues.ErrAlreadyExists
		}
	}
	if f.Number > s.familyNumbers[key] {
		s.familyNumbers[key] = f.Number
	}

	cp := *f
	s.families[f.ID.String()] = &cp
	return nil
}

func (s *Store) GetFamily(_ context.Context, familyID id.FamilyID) (*family.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.families[familyID.String()]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, dues.ErrFamilyNotFound
}

func (s *Store) ListFamilies(_ context.Context, tenantID id.TenantID, opts family.ListOpts) ([]*family.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*family.Family, 0)
	for _, f := range s.families {
		if f.TenantID.String() != tenantID.String() {
			continue
		}
		if opts.ActiveOnly && !f.Active {
			continue
		}
		cp := *f
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateFamily(_ context.Context, f *family.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.families[f.ID.String()]; !exists {
		return dues.ErrFamilyNotFound
	}
	cp := *f
	s.families[f.ID.String()] = &cp
	return nil
}

func (s *Store) CreateMember(_ context.Context, m *family.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	if _, exists := s.members[m.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	if _, ok := s.families[m.FamilyID.String()]; !ok {
		return dues.ErrFamilyNotFound
	}
	cp := *m
	s.members[m.ID.String()] = &cp
	return nil
}

func (s *Store) GetMember(_ context.Context, memberID id.MemberID) (*family.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.members[memberID.String()]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, dues.ErrMemberNotFound
}

func (s *Store) ListMembers(_ context.Context, familyID id.FamilyID) ([]*family.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*family.Member, 0)
	for _, m := range s.members {
		if m.FamilyID.String() == familyID.String() {
			cp := *m
			result = append(result, &cp)
		}
	}
	sortMembers(result)
	return result, nil
}

func (s *Store) ListTenantMembers(_ context.Context, tenantID id.TenantID) ([]*family.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*family.Member, 0)
	for _, m := range s.members {
		if m.TenantID.String() == tenantID.String() {
			cp := *m
			result = append(result, &cp)
		}
	}
	sortMembers(result)
	return result, nil
}

func (s *Store) UpdateMember(_ context.Context, m *family.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[m.ID.String()]; !exists {
		return dues.ErrMemberNotFound
	}
	cp := *m
	s.members[m.ID.String()] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Payment plan Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreatePaymentPlan(_ context.Context, p *plan.PaymentPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	if _, exists := s.plans[p.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	cp := *p
	s.plans[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPaymentPlan(_ context.Context, planID id.PaymentPlanID) (*plan.PaymentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, dues.ErrPlanNotFound
}

func (s *Store) ListPaymentPlans(_ context.Context, tenantID id.TenantID) ([]*plan.PaymentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.PaymentPlan, 0)
	for _, p := range s.plans {
		if p.TenantID.String() == tenantID.String() {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AgeStart < result[j].AgeStart })
	return result, nil
}

func (s *Store) UpdatePaymentPlan(_ context.Context, p *plan.PaymentPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; !exists {
		return dues.ErrPlanNotFound
	}
	cp := *p
	s.plans[p.ID.String()] = &cp
	return nil
}

func (s *Store) DeletePaymentPlan(_ context.Context, planID id.PaymentPlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[planID.String()]; !exists {
		return dues.ErrPlanNotFound
	}
	delete(s.plans, planID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateEventType(_ context.Context, et *lifecycle.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	for _, other := range s.eventTypes {
		if other.ID.String() == et.ID.String() ||
			(other.TenantID.String() == et.TenantID.String() && other.Kind == et.Kind) {
			return dues.ErrAlreadyExists
		}
	}
	cp := *et
	s.eventTypes[et.ID.String()] = &cp
	return nil
}

func (s *Store) ListEventTypes(_ context.Context, tenantID id.TenantID) ([]*lifecycle.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*lifecycle.EventType, 0)
	for _, et := range s.eventTypes {
		if et.TenantID.String() == tenantID.String() {
			cp := *et
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result, nil
}

func (s *Store) GetEventTypeByKind(_ context.Context, tenantID id.TenantID, kind lifecycle.Kind) (*lifecycle.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, et := range s.eventTypes {
		if et.TenantID.String() == tenantID.String() && et.Kind == kind {
			cp := *et
			return &cp, nil
		}
	}
	return nil, dues.ErrEventTypeNotFound
}

func (s *Store) CreateLifecycleCharge(_ context.Context, c *lifecycle.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	return s.insertChargeLocked(c)
}

func (s *Store) insertChargeLocked(c *lifecycle.Charge) error {
	if _, exists := s.charges[c.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	if c.TriggerKey != "" {
		for _, other := range s.charges {
			if other.TriggerKey == c.TriggerKey {
				return dues.ErrTriggerAlreadyApplied
			}
		}
	}
	cp := *c
	s.charges[c.ID.String()] = &cp
	return nil
}

func (s *Store) ListLifecycleCharges(_ context.Context, familyID id.FamilyID, opts lifecycle.ListOpts) ([]*lifecycle.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*lifecycle.Charge, 0)
	for _, c := range s.charges {
		if c.FamilyID.String() != familyID.String() || !before(c.Date, opts.Until) {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *Store) ApplyLifecycleTrigger(_ context.Context, c *lifecycle.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	m, ok := s.members[c.MemberID.String()]
	if !ok {
		return dues.ErrMemberNotFound
	}
	if m.ComingOfAgeApplied {
		return dues.ErrTriggerAlreadyApplied
	}
	if err := s.insertChargeLocked(c); err != nil {
		return err
	}
	m.ComingOfAgeApplied = true
	m.UpdatedAt = c.CreatedAt
	return nil
}

// ──────────────────────────────────────────────────
// Payment Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	if _, exists := s.payments[p.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	cp := *p
	s.payments[p.ID.String()] = &cp
	return nil
}

func (s *Store) ListPayments(_ context.Context, familyID id.FamilyID, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if p.FamilyID.String() != familyID.String() || !before(p.Date, opts.Until) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *Store) CreateWithdrawal(_ context.Context, w *payment.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	if _, exists := s.withdrawals[w.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	cp := *w
	s.withdrawals[w.ID.String()] = &cp
	return nil
}

func (s *Store) ListWithdrawals(_ context.Context, familyID id.FamilyID, opts payment.ListOpts) ([]*payment.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Withdrawal, 0)
	for _, w := range s.withdrawals {
		if w.FamilyID.String() != familyID.String() || !before(w.Date, opts.Until) {
			continue
		}
		cp := *w
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// ──────────────────────────────────────────────────
// Statement Store implementation
// ──────────────────────────────────────────────────

func (s *Store) InsertStatement(_ context.Context, st *statement.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	if _, exists := s.statements[st.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	if st.Live() {
		if live := s.liveStatementLocked(st.FamilyID, st.PeriodStart, st.PeriodEnd); live != nil {
			return dues.ErrDuplicateStatement
		}
	}
	cp := *st
	cp.Lines = append([]statement.Line(nil), st.Lines...)
	s.statements[st.ID.String()] = &cp
	return nil
}

func (s *Store) GetStatement(_ context.Context, statementID id.StatementID) (*statement.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.statements[statementID.String()]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, dues.ErrStatementNotFound
}

func (s *Store) GetStatementByPeriod(_ context.Context, familyID id.FamilyID, start, end time.Time) (*statement.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st := s.liveStatementLocked(familyID, start, end); st != nil {
		cp := *st
		return &cp, nil
	}
	return nil, dues.ErrStatementNotFound
}

func (s *Store) liveStatementLocked(familyID id.FamilyID, start, end time.Time) *statement.Statement {
	for _, st := range s.statements {
		if st.Live() && st.FamilyID.String() == familyID.String() &&
			st.PeriodStart.Equal(start) && st.PeriodEnd.Equal(end) {
			return st
		}
	}
	return nil
}

func (s *Store) ListStatements(_ context.Context, tenantID id.TenantID, opts statement.ListOpts) ([]*statement.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*statement.Statement, 0)
	for _, st := range s.statements {
		if st.TenantID.String() != tenantID.String() {
			continue
		}
		if !opts.FamilyID.IsNil() && st.FamilyID.String() != opts.FamilyID.String() {
			continue
		}
		if !opts.PeriodStart.IsZero() && !st.PeriodStart.Equal(opts.PeriodStart) {
			continue
		}
		if opts.Status != "" && st.Status != opts.Status {
			continue
		}
		cp := *st
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PeriodStart.Equal(result[j].PeriodStart) {
			return result[i].PeriodStart.Before(result[j].PeriodStart)
		}
		return result[i].Number < result[j].Number
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) LatestStatementRevision(_ context.Context, familyID id.FamilyID, start, end time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := 0
	for _, st := range s.statements {
		if st.FamilyID.String() == familyID.String() &&
			st.PeriodStart.Equal(start) && st.PeriodEnd.Equal(end) && st.Revision > latest {
			latest = st.Revision
		}
	}
	return latest, nil
}

func (s *Store) VoidStatement(_ context.Context, statementID id.StatementID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statements[statementID.String()]
	if !ok {
		return dues.ErrStatementNotFound
	}
	if !st.Live() {
		return dues.ErrStatementVoided
	}
	st.Status = statement.StatusVoid
	st.VoidReason = reason
	voidedAt := at
	st.VoidedAt = &voidedAt
	st.UpdatedAt = at
	return nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return dues.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// before reports whether t falls before the exclusive bound until. A zero
// bound admits everything.
func before(t, until time.Time) bool {
	return until.IsZero() || temporal.Day(t).Before(temporal.Day(until))
}

func sortMembers(ms []*family.Member) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].BirthDate.Equal(ms[j].BirthDate) {
			return ms[i].BirthDate.Before(ms[j].BirthDate)
		}
		return ms[i].ID.String() < ms[j].ID.String()
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
