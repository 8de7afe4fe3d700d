package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/tenant"
	"github.com/xraph/dues/types"
)

// ==================== Tenant models ====================

type tenantModel struct {
	grove.BaseModel `grove:"table:dues_tenants"`

	ID                 string                    `grove:"id,pk"               bson:"_id"`
	Code               string                    `grove:"code"                bson:"code"`
	Name               string                    `grove:"name"                bson:"name"`
	Currency           string                    `grove:"currency"            bson:"currency"`
	Email              string                    `grove:"email"               bson:"email"`
	AutomationsEnabled bool                      `grove:"automations_enabled" bson:"automations_enabled"`
	Settings           tenant.AutomationSettings `grove:"settings"            bson:"settings"`
	CreatedAt          time.Time                 `grove:"created_at"          bson:"created_at"`
	UpdatedAt          time.Time                 `grove:"updated_at"          bson:"updated_at"`
}

func toTenantModel(t *tenant.Tenant) *tenantModel {
	return &tenantModel{
		ID:                 t.ID.String(),
		Code:               t.Code,
		Name:               t.Name,
		Currency:           t.Currency,
		Email:              t.Email,
		AutomationsEnabled: t.AutomationsEnabled,
		Settings:           t.Settings,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func fromTenantModel(m *tenantModel) (*tenant.Tenant, error) {
	tenantID, err := id.ParseTenantID(m.ID)
	if err != nil {
		return nil, err
	}

	return &tenant.Tenant{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 tenantID,
		Code:               m.Code,
		Name:               m.Name,
		Currency:           m.Currency,
		Email:              m.Email,
		AutomationsEnabled: m.AutomationsEnabled,
		Settings:           m.Settings,
	}, nil
}

// ==================== Family models ====================

type familyModel struct {
	grove.BaseModel `grove:"table:dues_families"`

	ID             string    `grove:"id,pk"            bson:"_id"`
	TenantID       string    `grove:"tenant_id"        bson:"tenant_id"`
	Number         int       `grove:"number"           bson:"number"`
	Name           string    `grove:"name"             bson:"name"`
	Email          string    `grove:"email"            bson:"email"`
	EnrolledAt     time.Time `grove:"enrolled_at"      bson:"enrolled_at"`
	ParentFamilyID string    `grove:"parent_family_id" bson:"parent_family_id,omitempty"`
	Active         bool      `grove:"active"           bson:"active"`
	CreatedAt      time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"       bson:"updated_at"`
}

func toFamilyModel(f *family.Family) *familyModel {
	return &familyModel{
		ID:             f.ID.String(),
		TenantID:       f.TenantID.String(),
		Number:         f.Number,
		Name:           f.Name,
		Email:          f.Email,
		EnrolledAt:     f.EnrolledAt,
		ParentFamilyID: f.ParentFamilyID.String(),
		Active:         f.Active,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func fromFamilyModel(m *familyModel) (*family.Family, error) {
	familyID, err := id.ParseFamilyID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}
	parentID, err := id.ParseOptional(m.ParentFamilyID)
	if err != nil {
		return nil, err
	}

	return &family.Family{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             familyID,
		TenantID:       tenantID,
		Number:         m.Number,
		Name:           m.Name,
		Email:          m.Email,
		EnrolledAt:     temporal.Day(m.EnrolledAt),
		ParentFamilyID: parentID,
		Active:         m.Active,
	}, nil
}

type memberModel struct {
	grove.BaseModel `grove:"table:dues_members"`

	ID                 string               `grove:"id,pk"                 bson:"_id"`
	FamilyID           string               `grove:"family_id"             bson:"family_id"`
	TenantID           string               `grove:"tenant_id"             bson:"tenant_id"`
	FirstName          string               `grove:"first_name"            bson:"first_name"`
	LastName           string               `grove:"last_name"             bson:"last_name"`
	BirthDate          time.Time            `grove:"birth_date"            bson:"birth_date"`
	LunarBirthDate     *temporal.HebrewDate `grove:"lunar_birth_date"      bson:"lunar_birth_date,omitempty"`
	Gender             string               `grove:"gender"                bson:"gender"`
	JoinedAt           time.Time            `grove:"joined_at"             bson:"joined_at"`
	LeftAt             *time.Time           `grove:"left_at"               bson:"left_at,omitempty"`
	ComingOfAgeApplied bool                 `grove:"coming_of_age_applied" bson:"coming_of_age_applied"`
	CreatedAt          time.Time            `grove:"created_at"            bson:"created_at"`
	UpdatedAt          time.Time            `grove:"updated_at"            bson:"updated_at"`
}

func toMemberModel(m *family.Member) *memberModel {
	return &memberModel{
		ID:                 m.ID.String(),
		FamilyID:           m.FamilyID.String(),
		TenantID:           m.TenantID.String(),
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		BirthDate:          m.BirthDate,
		LunarBirthDate:     m.LunarBirthDate,
		Gender:             string(m.Gender),
		JoinedAt:           m.JoinedAt,
		LeftAt:             m.LeftAt,
		ComingOfAgeApplied: m.ComingOfAgeApplied,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func fromMemberModel(m *memberModel) (*family.Member, error) {
	memberID, err := id.ParseMemberID(m.ID)
	if err != nil {
		return nil, err
	}
	familyID, err := id.ParseFamilyID(m.FamilyID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}

	var leftAt *time.Time
	if m.LeftAt != nil {
		d := temporal.Day(*m.LeftAt)
		leftAt = &d
	}

	return &family.Member{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 memberID,
		FamilyID:           familyID,
		TenantID:           tenantID,
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		BirthDate:          temporal.Day(m.BirthDate),
		LunarBirthDate:     m.LunarBirthDate,
		Gender:             family.Gender(m.Gender),
		JoinedAt:           temporal.Day(m.JoinedAt),
		LeftAt:             leftAt,
		ComingOfAgeApplied: m.ComingOfAgeApplied,
	}, nil
}

// ==================== Payment plan models ====================

type paymentPlanModel struct {
	grove.BaseModel `grove:"table:dues_payment_plans"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	TenantID  string    `grove:"tenant_id"  bson:"tenant_id"`
	Name      string    `grove:"name"       bson:"name"`
	AgeStart  int       `grove:"age_start"  bson:"age_start"`
	AgeEnd    *int      `grove:"age_end"    bson:"age_end,omitempty"`
	Amount    int64     `grove:"annual_due" bson:"annual_due"`
	Currency  string    `grove:"currency"   bson:"currency"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toPaymentPlanModel(p *plan.PaymentPlan) *paymentPlanModel {
	return &paymentPlanModel{
		ID:        p.ID.String(),
		TenantID:  p.TenantID.String(),
		Name:      p.Name,
		AgeStart:  p.AgeStart,
		AgeEnd:    p.AgeEnd,
		Amount:    p.AnnualDue.Amount,
		Currency:  p.AnnualDue.Currency,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPaymentPlanModel(m *paymentPlanModel) (*plan.PaymentPlan, error) {
	planID, err := id.ParsePaymentPlanID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}

	return &plan.PaymentPlan{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        planID,
		TenantID:  tenantID,
		Name:      m.Name,
		AgeStart:  m.AgeStart,
		AgeEnd:    m.AgeEnd,
		AnnualDue: types.New(m.Amount, m.Currency),
	}, nil
}

// ==================== Lifecycle models ====================

type eventTypeModel struct {
	grove.BaseModel `grove:"table:dues_event_types"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	TenantID  string    `grove:"tenant_id"  bson:"tenant_id"`
	Kind      string    `grove:"kind"       bson:"kind"`
	Name      string    `grove:"name"       bson:"name"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	Currency  string    `grove:"currency"   bson:"currency"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toEventTypeModel(et *lifecycle.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:        et.ID.String(),
		TenantID:  et.TenantID.String(),
		Kind:      string(et.Kind),
		Name:      et.Name,
		Amount:    et.Amount.Amount,
		Currency:  et.Amount.Currency,
		CreatedAt: et.CreatedAt,
		UpdatedAt: et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*lifecycle.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}

	return &lifecycle.EventType{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       etID,
		TenantID: tenantID,
		Kind:     lifecycle.Kind(m.Kind),
		Name:     m.Name,
		Amount:   types.New(m.Amount, m.Currency),
	}, nil
}

// TriggerKey is omitted when empty so the sparse unique index ignores
// manually recorded charges.
type chargeModel struct {
	grove.BaseModel `grove:"table:dues_lifecycle_charges"`

	ID          string    `grove:"id,pk"         bson:"_id"`
	TenantID    string    `grove:"tenant_id"     bson:"tenant_id"`
	FamilyID    string    `grove:"family_id"     bson:"family_id"`
	MemberID    string    `grove:"member_id"     bson:"member_id,omitempty"`
	EventTypeID string    `grove:"event_type_id" bson:"event_type_id,omitempty"`
	Kind        string    `grove:"kind"          bson:"kind"`
	Date        time.Time `grove:"date"          bson:"date"`
	Amount      int64     `grove:"amount"        bson:"amount"`
	Currency    string    `grove:"currency"      bson:"currency"`
	Description string    `grove:"description"   bson:"description"`
	TriggerKey  string    `grove:"trigger_key"   bson:"trigger_key,omitempty"`
	CreatedAt   time.Time `grove:"created_at"    bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"    bson:"updated_at"`
}

func toChargeModel(c *lifecycle.Charge) *chargeModel {
	return &chargeModel{
		ID:          c.ID.String(),
		TenantID:    c.TenantID.String(),
		FamilyID:    c.FamilyID.String(),
		MemberID:    c.MemberID.String(),
		EventTypeID: c.EventTypeID.String(),
		Kind:        string(c.Kind),
		Date:        c.Date,
		Amount:      c.Amount.Amount,
		Currency:    c.Amount.Currency,
		Description: c.Description,
		TriggerKey:  c.TriggerKey,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func fromChargeModel(m *chargeModel) (*lifecycle.Charge, error) {
	chargeID, err := id.ParseLifecycleChargeID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}
	familyID, err := id.ParseFamilyID(m.FamilyID)
	if err != nil {
		return nil, err
	}
	memberID, err := id.ParseOptional(m.MemberID)
	if err != nil {
		return nil, err
	}
	etID, err := id.ParseOptional(m.EventTypeID)
	if err != nil {
		return nil, err
	}

	return &lifecycle.Charge{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          chargeID,
		TenantID:    tenantID,
		FamilyID:    familyID,
		MemberID:    memberID,
		EventTypeID: etID,
		Kind:        lifecycle.Kind(m.Kind),
		Date:        temporal.Day(m.Date),
		Amount:      types.New(m.Amount, m.Currency),
		Description: m.Description,
		TriggerKey:  m.TriggerKey,
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:dues_payments"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	TenantID  string    `grove:"tenant_id"  bson:"tenant_id"`
	FamilyID  string    `grove:"family_id"  bson:"family_id"`
	MemberID  string    `grove:"member_id"  bson:"member_id,omitempty"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Date      time.Time `grove:"date"       bson:"date"`
	Year      int       `grove:"year"       bson:"year"`
	Type      string    `grove:"type"       bson:"type"`
	Notes     string    `grove:"notes"      bson:"notes"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:        p.ID.String(),
		TenantID:  p.TenantID.String(),
		FamilyID:  p.FamilyID.String(),
		MemberID:  p.MemberID.String(),
		Amount:    p.Amount.Amount,
		Currency:  p.Amount.Currency,
		Date:      p.Date,
		Year:      p.Year,
		Type:      string(p.Type),
		Notes:     p.Notes,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}
	familyID, err := id.ParseFamilyID(m.FamilyID)
	if err != nil {
		return nil, err
	}
	memberID, err := id.ParseOptional(m.MemberID)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       paymentID,
		TenantID: tenantID,
		FamilyID: familyID,
		MemberID: memberID,
		Amount:   types.New(m.Amount, m.Currency),
		Date:     temporal.Day(m.Date),
		Year:     m.Year,
		Type:     payment.Type(m.Type),
		Notes:    m.Notes,
	}, nil
}

type withdrawalModel struct {
	grove.BaseModel `grove:"table:dues_withdrawals"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	TenantID  string    `grove:"tenant_id"  bson:"tenant_id"`
	FamilyID  string    `grove:"family_id"  bson:"family_id"`
	MemberID  string    `grove:"member_id"  bson:"member_id,omitempty"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Date      time.Time `grove:"date"       bson:"date"`
	Reason    string    `grove:"reason"     bson:"reason"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toWithdrawalModel(w *payment.Withdrawal) *withdrawalModel {
	return &withdrawalModel{
		ID:        w.ID.String(),
		TenantID:  w.TenantID.String(),
		FamilyID:  w.FamilyID.String(),
		MemberID:  w.MemberID.String(),
		Amount:    w.Amount.Amount,
		Currency:  w.Amount.Currency,
		Date:      w.Date,
		Reason:    w.Reason,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func fromWithdrawalModel(m *withdrawalModel) (*payment.Withdrawal, error) {
	withdrawalID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}
	familyID, err := id.ParseFamilyID(m.FamilyID)
	if err != nil {
		return nil, err
	}
	memberID, err := id.ParseOptional(m.MemberID)
	if err != nil {
		return nil, err
	}

	return &payment.Withdrawal{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       withdrawalID,
		TenantID: tenantID,
		FamilyID: familyID,
		MemberID: memberID,
		Amount:   types.New(m.Amount, m.Currency),
		Date:     temporal.Day(m.Date),
		Reason:   m.Reason,
	}, nil
}

// ==================== Statement models ====================

type statementModel struct {
	grove.BaseModel `grove:"table:dues_statements"`

	ID             string      `grove:"id,pk"           bson:"_id"`
	TenantID       string      `grove:"tenant_id"       bson:"tenant_id"`
	FamilyID       string      `grove:"family_id"       bson:"family_id"`
	Number         string      `grove:"number"          bson:"number"`
	Revision       int         `grove:"revision"        bson:"revision"`
	PeriodStart    time.Time   `grove:"period_start"    bson:"period_start"`
	PeriodEnd      time.Time   `grove:"period_end"      bson:"period_end"`
	Currency       string      `grove:"currency"        bson:"currency"`
	OpeningBalance int64       `grove:"opening_balance" bson:"opening_balance"`
	Income         int64       `grove:"income"          bson:"income"`
	Withdrawals    int64       `grove:"withdrawals"     bson:"withdrawals"`
	Events         int64       `grove:"events"          bson:"events"`
	Dues           int64       `grove:"dues"            bson:"dues"`
	ClosingBalance int64       `grove:"closing_balance" bson:"closing_balance"`
	Lines          []lineModel `grove:"lines"           bson:"lines"`
	Status         string      `grove:"status"          bson:"status"`
	VoidedAt       *time.Time  `grove:"voided_at"       bson:"voided_at,omitempty"`
	VoidReason     string      `grove:"void_reason"     bson:"void_reason,omitempty"`
	CreatedAt      time.Time   `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time   `grove:"updated_at"      bson:"updated_at"`
}

// lineModel stores amounts in minor units; the statement currency applies
// to every line.
type lineModel struct {
	Date           time.Time `bson:"date"`
	Kind           string    `bson:"kind"`
	Description    string    `bson:"description"`
	Amount         int64     `bson:"amount"`
	SignedAmount   int64     `bson:"signed_amount"`
	RunningBalance int64     `bson:"running_balance"`
}

func toStatementModel(s *statement.Statement) *statementModel {
	lines := make([]lineModel, len(s.Lines))
	for i, l := range s.Lines {
		lines[i] = lineModel{
			Date:           l.Date,
			Kind:           string(l.Kind),
			Description:    l.Description,
			Amount:         l.Amount.Amount,
			SignedAmount:   l.SignedAmount.Amount,
			RunningBalance: l.RunningBalance.Amount,
		}
	}

	return &statementModel{
		ID:             s.ID.String(),
		TenantID:       s.TenantID.String(),
		FamilyID:       s.FamilyID.String(),
		Number:         s.Number,
		Revision:       s.Revision,
		PeriodStart:    s.PeriodStart,
		PeriodEnd:      s.PeriodEnd,
		Currency:       s.ClosingBalance.Currency,
		OpeningBalance: s.OpeningBalance.Amount,
		Income:         s.Income.Amount,
		Withdrawals:    s.Withdrawals.Amount,
		Events:         s.Events.Amount,
		Dues:           s.Dues.Amount,
		ClosingBalance: s.ClosingBalance.Amount,
		Lines:          lines,
		Status:         string(s.Status),
		VoidedAt:       s.VoidedAt,
		VoidReason:     s.VoidReason,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromStatementModel(m *statementModel) (*statement.Statement, error) {
	statementID, err := id.ParseStatementID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}
	familyID, err := id.ParseFamilyID(m.FamilyID)
	if err != nil {
		return nil, err
	}

	lines := make([]statement.Line, len(m.Lines))
	for i, l := range m.Lines {
		lines[i] = statement.Line{
			Date:           temporal.Day(l.Date),
			Kind:           statement.LineKind(l.Kind),
			Description:    l.Description,
			Amount:         types.New(l.Amount, m.Currency),
			SignedAmount:   types.New(l.SignedAmount, m.Currency),
			RunningBalance: types.New(l.RunningBalance, m.Currency),
		}
	}

	return &statement.Statement{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             statementID,
		TenantID:       tenantID,
		FamilyID:       familyID,
		Number:         m.Number,
		Revision:       m.Revision,
		PeriodStart:    temporal.Day(m.PeriodStart),
		PeriodEnd:      temporal.Day(m.PeriodEnd),
		OpeningBalance: types.New(m.OpeningBalance, m.Currency),
		Income:         types.New(m.Income, m.Currency),
		Withdrawals:    types.New(m.Withdrawals, m.Currency),
		Events:         types.New(m.Events, m.Currency),
		Dues:           types.New(m.Dues, m.Currency),
		ClosingBalance: types.New(m.ClosingBalance, m.Currency),
		Lines:          lines,
		Status:         statement.Status(m.Status),
		VoidedAt:       m.VoidedAt,
		VoidReason:     m.VoidReason,
	}, nil
}
