package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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

// compile-time interface check
var _ duesstore.Store = (*Store)(nil)

// numberAttempts bounds retries when two enrollments race for the same
// family number.
const numberAttempts = 5

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("dues/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("dues/sqlite: migration failed: %w", err)
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
	_, err := s.sdb.NewInsert(toTenantModel(t)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	m := new(tenantModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", tenantID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrTenantNotFound
		}
		return nil, err
	}
	return fromTenantModel(m)
}

func (s *Store) ListTenants(ctx context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	var models []tenantModel
	q := s.sdb.NewSelect(&models)

	if opts.AutomationsOnly {
		q = q.Where("automations_enabled = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("code ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, dues.ErrTenantNotFound)
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

		_, err := s.sdb.NewInsert(toFamilyModel(f)).Exec(ctx)
		if !isUniqueViolation(err) {
			return err
		}
		if !assign {
			return dues.ErrAlreadyExists
		}
	}
	return fmt.Errorf("dues/sqlite: assign family number: %w", dues.ErrAlreadyExists)
}

func (s *Store) nextFamilyNumber(ctx context.Context, tenantID id.TenantID) (int, error) {
	var last int
	err := s.sdb.NewRaw(`
		SELECT COALESCE(MAX(number), 0) FROM dues_families WHERE tenant_id = ?
	`, tenantID.String()).Scan(ctx, &last)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (s *Store) GetFamily(ctx context.Context, familyID id.FamilyID) (*family.Family, error) {
	m := new(familyModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", familyID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrFamilyNotFound
		}
		return nil, err
	}
	return fromFamilyModel(m)
}

func (s *Store) ListFamilies(ctx context.Context, tenantID id.TenantID, opts family.ListOpts) ([]*family.Family, error) {
	var models []familyModel
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID.String())

	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("number ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, dues.ErrFamilyNotFound)
}

func (s *Store) CreateMember(ctx context.Context, m *family.Member) error {
	_, err := s.sdb.NewInsert(toMemberModel(m)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetMember(ctx context.Context, memberID id.MemberID) (*family.Member, error) {
	m := new(memberModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", memberID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrMemberNotFound
		}
		return nil, err
	}
	return fromMemberModel(m)
}

func (s *Store) ListMembers(ctx context.Context, familyID id.FamilyID) ([]*family.Member, error) {
	var models []memberModel
	err := s.sdb.NewSelect(&models).
		Where("family_id = ?", familyID.String()).
		OrderExpr("birth_date ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return membersFromModels(models)
}

func (s *Store) ListTenantMembers(ctx context.Context, tenantID id.TenantID) ([]*family.Member, error) {
	var models []memberModel
	err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID.String()).
		OrderExpr("birth_date ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return membersFromModels(models)
}

func (s *Store) UpdateMember(ctx context.Context, m *family.Member) error {
	mm := toMemberModel(m)
	mm.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(mm).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, dues.ErrMemberNotFound)
}

func membersFromModels(models []memberModel) ([]*family.Member, error) {
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

// ==================== Payment Plan Store ====================

func (s *Store) CreatePaymentPlan(ctx context.Context, p *plan.PaymentPlan) error {
	_, err := s.sdb.NewInsert(toPaymentPlanModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPaymentPlan(ctx context.Context, planID id.PaymentPlanID) (*plan.PaymentPlan, error) {
	m := new(paymentPlanModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPaymentPlanModel(m)
}

func (s *Store) ListPaymentPlans(ctx context.Context, tenantID id.TenantID) ([]*plan.PaymentPlan, error) {
	var models []paymentPlanModel
	err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID.String()).
		OrderExpr("age_start ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, dues.ErrPlanNotFound)
}

func (s *Store) DeletePaymentPlan(ctx context.Context, planID id.PaymentPlanID) error {
	res, err := s.sdb.NewDelete((*paymentPlanModel)(nil)).
		Where("id = ?", planID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, dues.ErrPlanNotFound)
}

// ==================== Lifecycle Store ====================

func (s *Store) CreateEventType(ctx context.Context, et *lifecycle.EventType) error {
	_, err := s.sdb.NewInsert(toEventTypeModel(et)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListEventTypes(ctx context.Context, tenantID id.TenantID) ([]*lifecycle.EventType, error) {
	var models []eventTypeModel
	err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID.String()).
		OrderExpr("kind ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	m := new(eventTypeModel)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID.String()).
		Where("kind = ?", string(kind)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrEventTypeNotFound
		}
		return nil, err
	}
	return fromEventTypeModel(m)
}

func (s *Store) CreateLifecycleCharge(ctx context.Context, c *lifecycle.Charge) error {
	_, err := s.sdb.NewInsert(toChargeModel(c)).Exec(ctx)
	if isUniqueViolation(err) {
		if c.TriggerKey != "" {
			return dues.ErrTriggerAlreadyApplied
		}
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListLifecycleCharges(ctx context.Context, familyID id.FamilyID, opts lifecycle.ListOpts) ([]*lifecycle.Charge, error) {
	var models []chargeModel
	q := s.sdb.NewSelect(&models).Where("family_id = ?", familyID.String())

	if !opts.Until.IsZero() {
		q = q.Where("date < ?", opts.Until)
	}
	q = q.OrderExpr("date ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// ApplyLifecycleTrigger inserts the keyed charge; the
// trg_dues_charges_coming_of_age trigger sets the member flag inside the
// same statement. A charge already present under the key is reported as
// ErrTriggerAlreadyApplied after the flag is brought back in line with it.
func (s *Store) ApplyLifecycleTrigger(ctx context.Context, c *lifecycle.Charge) error {
	m, err := s.GetMember(ctx, c.MemberID)
	if err != nil {
		return err
	}
	if m.ComingOfAgeApplied {
		return dues.ErrTriggerAlreadyApplied
	}

	res, err := s.sdb.NewInsert(toChargeModel(c)).
		OnConflict("(trigger_key) WHERE trigger_key IS NOT NULL DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted > 0 {
		return nil
	}

	if err := s.flagComingOfAge(ctx, c.MemberID); err != nil {
		return err
	}
	return dues.ErrTriggerAlreadyApplied
}

func (s *Store) flagComingOfAge(ctx context.Context, memberID id.MemberID) error {
	_, err := s.sdb.NewUpdate((*memberModel)(nil)).
		Set("coming_of_age_applied = ?", true).
		Set("updated_at = ?", now()).
		Where("id = ?", memberID.String()).
		Exec(ctx)
	return err
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.sdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListPayments(ctx context.Context, familyID id.FamilyID, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.sdb.NewSelect(&models).Where("family_id = ?", familyID.String())

	if !opts.Until.IsZero() {
		q = q.Where("date < ?", opts.Until)
	}
	q = q.OrderExpr("date ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	_, err := s.sdb.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListWithdrawals(ctx context.Context, familyID id.FamilyID, opts payment.ListOpts) ([]*payment.Withdrawal, error) {
	var models []withdrawalModel
	q := s.sdb.NewSelect(&models).Where("family_id = ?", familyID.String())

	if !opts.Until.IsZero() {
		q = q.Where("date < ?", opts.Until)
	}
	q = q.OrderExpr("date ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// InsertStatement relies on the partial unique index over live statements;
// a concurrent insert for the same period surfaces as ErrDuplicateStatement.
func (s *Store) InsertStatement(ctx context.Context, st *statement.Statement) error {
	_, err := s.sdb.NewInsert(toStatementModel(st)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrDuplicateStatement
	}
	return err
}

func (s *Store) GetStatement(ctx context.Context, statementID id.StatementID) (*statement.Statement, error) {
	m := new(statementModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", statementID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrStatementNotFound
		}
		return nil, err
	}
	return fromStatementModel(m)
}

func (s *Store) GetStatementByPeriod(ctx context.Context, familyID id.FamilyID, start, end time.Time) (*statement.Statement, error) {
	m := new(statementModel)
	err := s.sdb.NewSelect(m).
		Where("family_id = ?", familyID.String()).
		Where("period_start = ?", start).
		Where("period_end = ?", end).
		Where("status <> ?", string(statement.StatusVoid)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrStatementNotFound
		}
		return nil, err
	}
	return fromStatementModel(m)
}

func (s *Store) ListStatements(ctx context.Context, tenantID id.TenantID, opts statement.ListOpts) ([]*statement.Statement, error) {
	var models []statementModel
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID.String())

	if !opts.FamilyID.IsNil() {
		q = q.Where("family_id = ?", opts.FamilyID.String())
	}
	if !opts.PeriodStart.IsZero() {
		q = q.Where("period_start = ?", opts.PeriodStart)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("period_start ASC, number ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	var latest int
	err := s.sdb.NewRaw(`
		SELECT COALESCE(MAX(revision), 0) FROM dues_statements
		WHERE family_id = ? AND period_start = ? AND period_end = ?
	`, familyID.String(), start, end).Scan(ctx, &latest)
	if err != nil {
		return 0, err
	}
	return latest, nil
}

func (s *Store) VoidStatement(ctx context.Context, statementID id.StatementID, reason string, at time.Time) error {
	res, err := s.sdb.NewUpdate((*statementModel)(nil)).
		Set("status = ?", string(statement.StatusVoid)).
		Set("void_reason = ?", reason).
		Set("voided_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", statementID.String()).
		Where("status <> ?", string(statement.StatusVoid)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// Tell a missing statement from an already void one.
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

type rowsAffected interface {
	RowsAffected() (int64, error)
}

// expectRow maps an update or delete that touched nothing to notFound.
func expectRow(res rowsAffected, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
