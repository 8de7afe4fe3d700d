package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/dues"
	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/statement"
	duesstore "github.com/xraph/dues/store"
	"github.com/xraph/dues/tenant"
)

// Collection name constants.
const (
	colTenants      = "dues_tenants"
	colFamilies     = "dues_families"
	colMembers      = "dues_members"
	colPaymentPlans = "dues_payment_plans"
	colEventTypes   = "dues_event_types"
	colCharges      = "dues_lifecycle_charges"
	colPayments     = "dues_payments"
	colWithdrawals  = "dues_withdrawals"
	colStatements   = "dues_statements"
)

// compile-time interface check
var _ duesstore.Store = (*Store)(nil)

// numberAttempts bounds retries when two enrollments race for the same
// family number.
const numberAttempts = 5

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all dues collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("dues/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Tenant Store ====================

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	_, err := s.mdb.NewInsert(toTenantModel(t)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dues.ErrAlreadyExists
		}
		return fmt.Errorf("dues/mongo: create tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	var m tenantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": tenantID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrTenantNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get tenant: %w", err)
	}
	return fromTenantModel(&m)
}

func (s *Store) ListTenants(ctx context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	var models []tenantModel

	filter := bson.M{}
	if opts.AutomationsOnly {
		filter["automations_enabled"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "code", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dues/mongo: list tenants: %w", err)
	}

	result := make([]*tenant.Tenant, len(models))
	for i := range models {
		t, err := fromTenantModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	m := toTenantModel(t)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: update tenant: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dues.ErrTenantNotFound
	}
	return nil
}

// ==================== Family Store ====================

func (s *Store) CreateFamily(ctx context.Context, f *family.Family) error {
	assign := f.Number == 0

	for attempt := 0; attempt < numberAttempts; attempt++ {
		if assign {
			next, err := s.nextFamilyNumber(ctx, f.TenantID)
			if err != nil {
				return err
			}
			f.Number = next
		}

		_, err := s.mdb.NewInsert(toFamilyModel(f)).Exec(ctx)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("dues/mongo: create family: %w", err)
		}
		if !assign {
			return dues.ErrAlreadyExists
		}
	}
	return fmt.Errorf("dues/mongo: assign family number: %w", dues.ErrAlreadyExists)
}

func (s *Store) nextFamilyNumber(ctx context.Context, tenantID id.TenantID) (int, error) {
	var models []familyModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"tenant_id": tenantID.String()}).
		Sort(bson.D{{Key: "number", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("dues/mongo: next family number: %w", err)
	}
	if len(models) == 0 {
		return 1, nil
	}
	return models[0].Number + 1, nil
}

func (s *Store) GetFamily(ctx context.Context, familyID id.FamilyID) (*family.Family, error) {
	var m familyModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": familyID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrFamilyNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get family: %w", err)
	}
	return fromFamilyModel(&m)
}

func (s *Store) ListFamilies(ctx context.Context, tenantID id.TenantID, opts family.ListOpts) ([]*family.Family, error) {
	var models []familyModel

	filter := bson.M{"tenant_id": tenantID.String()}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "number", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dues/mongo: list families: %w", err)
	}

	result := make([]*family.Family, len(models))
	for i := range models {
		f, err := fromFamilyModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = f
	}
	return result, nil
}

func (s *Store) UpdateFamily(ctx context.Context, f *family.Family) error {
	m := toFamilyModel(f)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: update family: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dues.ErrFamilyNotFound
	}
	return nil
}

func (s *Store) CreateMember(ctx context.Context, m *family.Member) error {
	_, err := s.mdb.NewInsert(toMemberModel(m)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dues.ErrAlreadyExists
		}
		return fmt.Errorf("dues/mongo: create member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, memberID id.MemberID) (*family.Member, error) {
	var m memberModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": memberID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrMemberNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get member: %w", err)
	}
	return fromMemberModel(&m)
}

func (s *Store) ListMembers(ctx context.Context, familyID id.FamilyID) ([]*family.Member, error) {
	return s.findMembers(ctx, bson.M{"family_id": familyID.String()})
}

func (s *Store) ListTenantMembers(ctx context.Context, tenantID id.TenantID) ([]*family.Member, error) {
	return s.findMembers(ctx, bson.M{"tenant_id": tenantID.String()})
}

func (s *Store) findMembers(ctx context.Context, filter bson.M) ([]*family.Member, error) {
	var models []memberModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "birth_date", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dues/mongo: list members: %w", err)
	}

	result := make([]*family.Member, len(models))
	for i := range models {
		m, err := fromMemberModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = m
	}
	return result, nil
}

func (s *Store) UpdateMember(ctx context.Context, m *family.Member) error {
	mm := toMemberModel(m)
	mm.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(mm).
		Filter(bson.M{"_id": mm.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: update member: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dues.ErrMemberNotFound
	}
	return nil
}

// ==================== Payment Plan Store ====================

func (s *Store) CreatePaymentPlan(ctx context.Context, p *plan.PaymentPlan) error {
	_, err := s.mdb.NewInsert(toPaymentPlanModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dues.ErrAlreadyExists
		}
		return fmt.Errorf("dues/mongo: create payment plan: %w", err)
	}
	return nil
}

func (s *Store) GetPaymentPlan(ctx context.Context, planID id.PaymentPlanID) (*plan.PaymentPlan, error) {
	var m paymentPlanModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrPlanNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get payment plan: %w", err)
	}
	return fromPaymentPlanModel(&m)
}

func (s *Store) ListPaymentPlans(ctx context.Context, tenantID id.TenantID) ([]*plan.PaymentPlan, error) {
	var models []paymentPlanModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"tenant_id": tenantID.String()}).
		Sort(bson.D{{Key: "age_start", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dues/mongo: list payment plans: %w", err)
	}

	result := make([]*plan.PaymentPlan, len(models))
	for i := range models {
		p, err := fromPaymentPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePaymentPlan(ctx context.Context, p *plan.PaymentPlan) error {
	m := toPaymentPlanModel(p)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: update payment plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dues.ErrPlanNotFound
	}
	return nil
}

func (s *Store) DeletePaymentPlan(ctx context.Context, planID id.PaymentPlanID) error {
	res, err := s.mdb.NewDelete((*paymentPlanModel)(nil)).
		Filter(bson.M{"_id": planID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: delete payment plan: %w", err)
	}
	if res.DeletedCount() == 0 {
		return dues.ErrPlanNotFound
	}
	return nil
}

// ==================== Lifecycle Store ====================

func (s *Store) CreateEventType(ctx context.Context, et *lifecycle.EventType) error {
	_, err := s.mdb.NewInsert(toEventTypeModel(et)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dues.ErrAlreadyExists
		}
		return fmt.Errorf("dues/mongo: create event type: %w", err)
	}
	return nil
}

func (s *Store) ListEventTypes(ctx context.Context, tenantID id.TenantID) ([]*lifecycle.EventType, error) {
	var models []eventTypeModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"tenant_id": tenantID.String()}).
		Sort(bson.D{{Key: "kind", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dues/mongo: list event types: %w", err)
	}

	result := make([]*lifecycle.EventType, len(models))
	for i := range models {
		et, err := fromEventTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = et
	}
	return result, nil
}

func (s *Store) GetEventTypeByKind(ctx context.Context, tenantID id.TenantID, kind lifecycle.Kind) (*lifecycle.EventType, error) {
	var m eventTypeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID.String(), "kind": string(kind)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get event type: %w", err)
	}
	return fromEventTypeModel(&m)
}

func (s *Store) CreateLifecycleCharge(ctx context.Context, c *lifecycle.Charge) error {
	_, err := s.mdb.NewInsert(toChargeModel(c)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if c.TriggerKey != "" {
				return dues.ErrTriggerAlreadyApplied
			}
			return dues.ErrAlreadyExists
		}
		return fmt.Errorf("dues/mongo: create lifecycle charge: %w", err)
	}
	return nil
}

func (s *Store) ListLifecycleCharges(ctx context.Context, familyID id.FamilyID, opts lifecycle.ListOpts) ([]*lifecycle.Charge, error) {
	var models []chargeModel
	err := s.mdb.NewFind(&models).
		Filter(untilFilter(familyID, opts.Until)).
		Sort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dues/mongo: list lifecycle charges: %w", err)
	}

	result := make([]*lifecycle.Charge, len(models))
	for i := range models {
		c, err := fromChargeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ApplyLifecycleTrigger inserts the keyed charge and flags the member in
// one transaction. Standalone servers have no transactions; there the
// charge is written first and the unique trigger key index makes it the
// commit point, so a retry after a failed flag update repairs the flag
// and reports ErrTriggerAlreadyApplied.
func (s *Store) ApplyLifecycleTrigger(ctx context.Context, c *lifecycle.Charge) error {
	m, err := s.GetMember(ctx, c.MemberID)
	if err != nil {
		return err
	}
	if m.ComingOfAgeApplied {
		return dues.ErrTriggerAlreadyApplied
	}

	err = s.applyTriggerTx(ctx, c)
	if isTransactionUnsupported(err) {
		err = s.applyTrigger(ctx, c)
	}
	return err
}

func (s *Store) applyTriggerTx(ctx context.Context, c *lifecycle.Charge) error {
	client := s.mdb.Collection(colCharges).Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("dues/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		if _, err := s.mdb.NewInsert(toChargeModel(c)).Exec(txCtx); err != nil {
			return nil, err
		}
		return nil, s.flagComingOfAge(txCtx, c.MemberID)
	})
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		if err := s.flagComingOfAge(ctx, c.MemberID); err != nil {
			return fmt.Errorf("dues/mongo: flag member: %w", err)
		}
		return dues.ErrTriggerAlreadyApplied
	case isTransactionUnsupported(err):
		return err
	default:
		return fmt.Errorf("dues/mongo: apply lifecycle trigger: %w", err)
	}
}

func (s *Store) applyTrigger(ctx context.Context, c *lifecycle.Charge) error {
	inserted := true
	if _, err := s.mdb.NewInsert(toChargeModel(c)).Exec(ctx); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("dues/mongo: apply lifecycle trigger: %w", err)
		}
		inserted = false
	}

	if err := s.flagComingOfAge(ctx, c.MemberID); err != nil {
		return fmt.Errorf("dues/mongo: flag member: %w", err)
	}
	if !inserted {
		return dues.ErrTriggerAlreadyApplied
	}
	return nil
}

func (s *Store) flagComingOfAge(ctx context.Context, memberID id.MemberID) error {
	_, err := s.mdb.NewUpdate((*memberModel)(nil)).
		Filter(bson.M{"_id": memberID.String()}).
		Set("coming_of_age_applied", true).
		Set("updated_at", now()).
		Exec(ctx)
	return err
}

// codeIllegalOperation is what a standalone mongod answers to a
// transaction.
const codeIllegalOperation = 20

func isTransactionUnsupported(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(codeIllegalOperation)
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dues.ErrAlreadyExists
		}
		return fmt.Errorf("dues/mongo: create payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, familyID id.FamilyID, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	err := s.mdb.NewFind(&models).
		Filter(untilFilter(familyID, opts.Until)).
		Sort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dues/mongo: list payments: %w", err)
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *payment.Withdrawal) error {
	_, err := s.mdb.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dues.ErrAlreadyExists
		}
		return fmt.Errorf("dues/mongo: create withdrawal: %w", err)
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, familyID id.FamilyID, opts payment.ListOpts) ([]*payment.Withdrawal, error) {
	var models []withdrawalModel
	err := s.mdb.NewFind(&models).
		Filter(untilFilter(familyID, opts.Until)).
		Sort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dues/mongo: list withdrawals: %w", err)
	}

	result := make([]*payment.Withdrawal, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// ==================== Statement Store ====================

// InsertStatement relies on the partial unique index over issued
// statements.
func (s *Store) InsertStatement(ctx context.Context, st *statement.Statement) error {
	_, err := s.mdb.NewInsert(toStatementModel(st)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dues.ErrDuplicateStatement
		}
		return fmt.Errorf("dues/mongo: insert statement: %w", err)
	}
	return nil
}

func (s *Store) GetStatement(ctx context.Context, statementID id.StatementID) (*statement.Statement, error) {
	var m statementModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": statementID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrStatementNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get statement: %w", err)
	}
	return fromStatementModel(&m)
}

func (s *Store) GetStatementByPeriod(ctx context.Context, familyID id.FamilyID, start, end time.Time) (*statement.Statement, error) {
	var m statementModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"family_id":    familyID.String(),
			"period_start": start,
			"period_end":   end,
			"status":       bson.M{"$ne": string(statement.StatusVoid)},
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrStatementNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get statement by period: %w", err)
	}
	return fromStatementModel(&m)
}

func (s *Store) ListStatements(ctx context.Context, tenantID id.TenantID, opts statement.ListOpts) ([]*statement.Statement, error) {
	var models []statementModel

	filter := bson.M{"tenant_id": tenantID.String()}
	if !opts.FamilyID.IsNil() {
		filter["family_id"] = opts.FamilyID.String()
	}
	if !opts.PeriodStart.IsZero() {
		filter["period_start"] = opts.PeriodStart
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "period_start", Value: 1}, {Key: "number", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dues/mongo: list statements: %w", err)
	}

	result := make([]*statement.Statement, len(models))
	for i := range models {
		st, err := fromStatementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

func (s *Store) LatestStatementRevision(ctx context.Context, familyID id.FamilyID, start, end time.Time) (int, error) {
	var models []statementModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"family_id":    familyID.String(),
			"period_start": start,
			"period_end":   end,
		}).
		Sort(bson.D{{Key: "revision", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("dues/mongo: latest statement revision: %w", err)
	}
	if len(models) == 0 {
		return 0, nil
	}
	return models[0].Revision, nil
}

func (s *Store) VoidStatement(ctx context.Context, statementID id.StatementID, reason string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*statementModel)(nil)).
		Filter(bson.M{
			"_id":    statementID.String(),
			"status": bson.M{"$ne": string(statement.StatusVoid)},
		}).
		Set("status", string(statement.StatusVoid)).
		Set("void_reason", reason).
		Set("voided_at", at).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: void statement: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	if _, err := s.GetStatement(ctx, statementID); err != nil {
		return err
	}
	return dues.ErrStatementVoided
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// untilFilter selects a family's records dated strictly before until; a
// zero until selects everything.
func untilFilter(familyID id.FamilyID, until time.Time) bson.M {
	filter := bson.M{"family_id": familyID.String()}
	if !until.IsZero() {
		filter["date"] = bson.M{"$lt": until}
	}
	return filter
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all dues collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTenants: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "automations_enabled", Value: 1}}},
		},
		colFamilies: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		colMembers: {
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "birth_date", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
		},
		colPaymentPlans: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "age_start", Value: 1}}},
		},
		colEventTypes: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "kind", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colCharges: {
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "date", Value: 1}}},
			{
				Keys:    bson.D{{Key: "trigger_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colPayments: {
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "date", Value: 1}}},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "date", Value: 1}}},
		},
		colStatements: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "period_start", Value: 1}, {Key: "period_end", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(statement.StatusIssued)}),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "period_start", Value: 1}}},
		},
	}
}
