package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("dues/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("dues/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(toTenantModel(t)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	m := new(tenantModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", tenantID.String()).
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
	q := s.pg.NewSelect(&models)

	if opts.AutomationsOnly {
		q = q.Where("automations_enabled = $1", true)
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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

		_, err := s.pg.NewInsert(toFamilyModel(f)).Exec(ctx)
		if !isUniqueViolation(err) {
			return err
		}
		if !assign {
			return dues.ErrAlreadyExists
		}
	}
	return fmt.Errorf("dues/postgres: assign family number: %w", dues.ErrAlreadyExists)
}

func (s *Store) nextFamilyNumber(ctx context.Context, tenantID id.TenantID) (int, error) {
	var last int
	err := s.pg.NewRaw(`
		SELECT COALESCE(MAX(number), 0) FROM dues_families WHERE tenant_id = $1
	`, tenantID.String()).Scan(ctx, &last)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (s *Store) GetFamily(ctx context.Context, familyID id.FamilyID) (*family.Family, error) {
	m := new(familyModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", familyID.String()).
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
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID.String())

	if opts.ActiveOnly {
		q = q.Where("active = $2", true)
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, dues.ErrFamilyNotFound)
}

func (s *Store) CreateMember(ctx context.Context, m *family.Member) error {
	_, err := s.pg.NewInsert(toMemberModel(m)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetMember(ctx context.Context, memberID id.MemberID) (*family.Member, error) {
	m := new(memberModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", memberID.String()).
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
	err := s.pg.NewSelect(&models).
		Where("family_id = $1", familyID.String()).
		OrderExpr("birth_date ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return membersFromModels(models)
}

func (s *Store) ListTenantMembers(ctx context.Context, tenantID id.TenantID) ([]*family.Member, error) {
	var models []memberModel
	err := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID.String()).
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
	res, err := s.pg.NewUpdate(mm).WherePK().Exec(ctx)
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
	_, err := s.pg.NewInsert(toPaymentPlanModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPaymentPlan(ctx context.Context, planID id.PaymentPlanID) (*plan.PaymentPlan, error) {
	m := new(paymentPlanModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", planID.String()).
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
	err := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID.String()).
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, dues.ErrPlanNotFound)
}

func (s *Store) DeletePaymentPlan(ctx context.Context, planID id.PaymentPlanID) error {
	res, err := s.pg.NewDelete((*paymentPlanModel)(nil)).
		Where("id = $1", planID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, dues.ErrPlanNotFound)
}

// ==================== Lifecycle Store ====================

func (s *Store) CreateEventType(ctx context.Context, et *lifecycle.EventType) error {
	_, err := s.pg.NewInsert(toEventTypeModel(et)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListEventTypes(ctx context.Context, tenantID id.TenantID) ([]*lifecycle.EventType, error) {
	var models []eventTypeModel
	err := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID.String()).
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
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID.String()).
		Where("kind = $2", string(kind)).
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
	_, err := s.pg.NewInsert(toChargeModel(c)).Exec(ctx)
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
	q := s.pg.NewSelect(&models).Where("family_id = $1", familyID.String())

	if !opts.Until.IsZero() {
		q = q.Where("date < $2", opts.Until)
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

// ApplyLifecycleTrigger flags the member and inserts the charge in one
// statement. The charge is inserted only from the row the flag update
// returned, so either both writes land or neither does.
func (s *Store) ApplyLifecycleTrigger(ctx context.Context, c *lifecycle.Charge) error {
	if _, err := s.GetMember(ctx, c.MemberID); err != nil {
		return err
	}

	m := toChargeModel(c)
	var inserted int64
	err := s.pg.NewRaw(`
		WITH flagged AS (
			UPDATE dues_members
			SET coming_of_age_applied = TRUE, updated_at = $1
			WHERE id = $2 AND coming_of_age_applied = FALSE
			RETURNING id
		), inserted AS (
			INSERT INTO dues_lifecycle_charges
				(id, tenant_id, family_id, member_id, event_type_id, kind, date,
				 amount, currency, description, trigger_key, created_at, updated_at)
			SELECT $3, $4, $5, flagged.id, $6, $7, $8, $9, $10, $11, $12, $13, $13
			FROM flagged
			ON CONFLICT (trigger_key) WHERE trigger_key IS NOT NULL DO NOTHING
			RETURNING id
		)
		SELECT COUNT(*) FROM inserted
	`,
		now(), m.MemberID,
		m.ID, m.TenantID, m.FamilyID, m.EventTypeID, m.Kind, m.Date,
		m.Amount, m.Currency, m.Description, m.TriggerKey, m.CreatedAt,
	).Scan(ctx, &inserted)
	if err != nil {
		return err
	}
	if inserted == 0 {
		return dues.ErrTriggerAlreadyApplied
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.pg.NewInsert(toPaymentModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListPayments(ctx context.Context, familyID id.FamilyID, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.pg.NewSelect(&models).Where("family_id = $1", familyID.String())

	if !opts.Until.IsZero() {
		q = q.Where("date < $2", opts.Until)
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
	_, err := s.pg.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListWithdrawals(ctx context.Context, familyID id.FamilyID, opts payment.ListOpts) ([]*payment.Withdrawal, error) {
	var models []withdrawalModel
	q := s.pg.NewSelect(&models).Where("family_id = $1", familyID.String())

	if !opts.Until.IsZero() {
		q = q.Where("date < $2", opts.Until)
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
	_, err := s.pg.NewInsert(toStatementModel(st)).Exec(ctx)
	if isUniqueViolation(err) {
		return dues.ErrDuplicateStatement
	}
	return err
}

func (s *Store) GetStatement(ctx context.Context, statementID id.StatementID) (*statement.Statement, error) {
	m := new(statementModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", statementID.String()).
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
	err := s.pg.NewSelect(m).
		Where("family_id = $1", familyID.String()).
		Where("period_start = $2", start).
		Where("period_end = $3", end).
		Where("status <> $4", string(statement.StatusVoid)).
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
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID.String())
	argIdx := 2

	if !opts.FamilyID.IsNil() {
		q = q.Where(fmt.Sprintf("family_id = $%d", argIdx), opts.FamilyID.String())
		argIdx++
	}
	if !opts.PeriodStart.IsZero() {
		q = q.Where(fmt.Sprintf("period_start = $%d", argIdx), opts.PeriodStart)
		argIdx++
	}
	if opts.Status != "" {
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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
	err := s.pg.NewRaw(`
		SELECT COALESCE(MAX(revision), 0) FROM dues_statements
		WHERE family_id = $1 AND period_start = $2 AND period_end = $3
	`, familyID.String(), start, end).Scan(ctx, &latest)
	if err != nil {
		return 0, err
	}
	return latest, nil
}

func (s *Store) VoidStatement(ctx context.Context, statementID id.StatementID, reason string, at time.Time) error {
	res, err := s.pg.NewUpdate((*statementModel)(nil)).
		Set("status = $1", string(statement.StatusVoid)).
		Set("void_reason = $2", reason).
		Set("voided_at = $3", at).
		Set("updated_at = $4", at).
		Where("id = $5", statementID.String()).
		Where("status <> $6", string(statement.StatusVoid)).
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

// isUniqueViolation reports a unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
