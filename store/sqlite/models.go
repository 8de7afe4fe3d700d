package sqlite

import (
	"encoding/json"
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

	ID                 string          `grove:"id,pk"`
	Code               string          `grove:"code"`
	Name               string          `grove:"name"`
	Currency           string          `grove:"currency"`
	Email              string          `grove:"email"`
	AutomationsEnabled bool            `grove:"automations_enabled"`
	Settings           json.RawMessage `grove:"settings"`
	CreatedAt          time.Time       `grove:"created_at"`
	UpdatedAt          time.Time       `grove:"updated_at"`
}

func toTenantModel(t *tenant.Tenant) *tenantModel {
	settings, _ := json.Marshal(t.Settings) //nolint:errcheck // plain struct of bools

	return &tenantModel{
		ID:                 t.ID.String(),
		Code:               t.Code,
		Name:               t.Name,
		Currency:           t.Currency,
		Email:              t.Email,
		AutomationsEnabled: t.AutomationsEnabled,
		Settings:           settings,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func fromTenantModel(m *tenantModel) (*tenant.Tenant, error) {
	tenantID, err := id.ParseTenantID(m.ID)
	if err != nil {
		return nil, err
	}

	settings := tenant.DefaultAutomationSettings()
	if len(m.Settings) > 0 {
		if err := json.Unmarshal(m.Settings, &settings); err != nil {
			return nil, err
		}
	}

	return &tenant.Tenant{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 tenantID,
		Code:               m.Code,
		Name:               m.Name,
		Currency:           m.Currency,
		Email:              m.Email,
		AutomationsEnabled: m.AutomationsEnabled,
		Settings:           settings,
	}, nil
}

// ==================== Family models ====================

type familyModel struct {
	grove.BaseModel `grove:"table:dues_families"`

	ID             string    `grove:"id,pk"`
	TenantID       string    `grove:"tenant_id"`
	Number         int       `grove:"number"`
	Name           string    `grove:"name"`
	Email          string    `grove:"email"`
	EnrolledAt     time.Time `grove:"enrolled_at"`
	ParentFamilyID string    `grove:"parent_family_id"`
	Active         bool      `grove:"active"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
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

	ID                 string          `grove:"id,pk"`
	FamilyID           string          `grove:"family_id"`
	TenantID           string          `grove:"tenant_id"`
	FirstName          string          `grove:"first_name"`
	LastName           string          `grove:"last_name"`
	BirthDate          time.Time       `grove:"birth_date"`
	LunarBirthDate     json.RawMessage `grove:"lunar_birth_date"`
	Gender             string          `grove:"gender"`
	JoinedAt           time.Time       `grove:"joined_at"`
	LeftAt             *time.Time      `grove:"left_at"`
	ComingOfAgeApplied bool            `grove:"coming_of_age_applied"`
	CreatedAt          time.Time       `grove:"created_at"`
	UpdatedAt          time.Time       `grove:"updated_at"`
}

func toMemberModel(m *family.Member) *memberModel {
	lunar := json.RawMessage("null")
	if m.LunarBirthDate != nil {
		lunar, _ = json.Marshal(m.LunarBirthDate) //nolint:errcheck // plain struct of ints
	}

	return &memberModel{
		ID:                 m.ID.String(),
		FamilyID:           m.FamilyID.String(),
		TenantID:           m.TenantID.String(),
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		BirthDate:          m.BirthDate,
		LunarBirthDate:     lunar,
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

	var lunar *temporal.HebrewDate
	if len(m.LunarBirthDate) > 0 && string(m.LunarBirthDate) != "null" {
		lunar = new(temporal.HebrewDate)
		if err := json.Unmarshal(m.LunarBirthDate, lunar); err != nil {
			return nil, err
		}
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
		LunarBirthDate:     lunar,
		Gender:             family.Gender(m.Gender),
		JoinedAt:           temporal.Day(m.JoinedAt),
		LeftAt:             leftAt,
		ComingOfAgeApplied: m.ComingOfAgeApplied,
	}, nil
}

// ==================== Payment plan models ====================

type paymentPlanModel struct {
	grove.BaseModel `grove:"table:dues_payment_plans"`

	ID        string    `grove:"id,pk"`
	TenantID  string    `grove:"tenant_id"`
	Name      string    `grove:"name"`
	AgeStart  int       `grove:"age_start"`
	AgeEnd    *int      `grove:"age_end"`
	Amount    int64     `grove:"annual_due"`
	Currency  string    `grove:"currency"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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

	ID        string    `grove:"id,pk"`
	TenantID  string    `grove:"tenant_id"`
	Kind      string    `grove:"kind"`
	Name      string    `grove:"name"`
	Amount    int64     `grove:"amount"`
	Currency  string    `grove:"currency"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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

type chargeModel struct {
	grove.BaseModel `grove:"table:dues_lifecycle_charges"`

	ID          string    `grove:"id,pk"`
	TenantID    string    `grove:"tenant_id"`
	FamilyID    string    `grove:"family_id"`
	MemberID    string    `grove:"member_id"`
	EventTypeID string    `grove:"event_type_id"`
	Kind        string    `grove:"kind"`
	Date        time.Time `grove:"date"`
	Amount      int64     `grove:"amount"`
	Currency    string    `grove:"currency"`
	Description string    `grove:"description"`
	TriggerKey  *string   `grove:"trigger_key"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toChargeModel(c *lifecycle.Charge) *chargeModel {
	var key *string
	if c.TriggerKey != "" {
		k := c.TriggerKey
		key = &k
	}

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
		TriggerKey:  key,
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

	var key string
	if m.TriggerKey != nil {
		key = *m.TriggerKey
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
		TriggerKey:  key,
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:dues_payments"`

	ID        string    `grove:"id,pk"`
	TenantID  string    `grove:"tenant_id"`
	FamilyID  string    `grove:"family_id"`
	MemberID  string    `grove:"member_id"`
	Amount    int64     `grove:"amount"`
	Currency  string    `grove:"currency"`
	Date      time.Time `grove:"date"`
	Year      int       `grove:"year"`
	Type      string    `grove:"type"`
	Notes     string    `grove:"notes"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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

	ID        string    `grove:"id,pk"`
	TenantID  string    `grove:"tenant_id"`
	FamilyID  string    `grove:"family_id"`
	MemberID  string    `grove:"member_id"`
	Amount    int64     `grove:"amount"`
	Currency  string    `grove:"currency"`
	Date      time.Time `grove:"date"`
	Reason    string    `grove:"reason"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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

	ID             string          `grove:"id,pk"`
	TenantID       string          `grove:"tenant_id"`
	FamilyID       string          `grove:"family_id"`
	Number         string          `grove:"number"`
	Revision       int             `grove:"revision"`
	PeriodStart    time.Time       `grove:"period_start"`
	PeriodEnd      time.Time       `grove:"period_end"`
	Currency       string          `grove:"currency"`
	OpeningBalance int64           `grove:"opening_balance"`
	Income         int64           `grove:"income"`
	Withdrawals    int64           `grove:"withdrawals"`
	Events         int64           `grove:"events"`
	Dues           int64           `grove:"dues"`
	ClosingBalance int64           `grove:"closing_balance"`
	Lines          json.RawMessage `grove:"lines"`
	Status         string          `grove:"status"`
	VoidedAt       *time.Time      `grove:"voided_at"`
	VoidReason     string          `grove:"void_reason"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toStatementModel(s *statement.Statement) *statementModel {
	lines, _ := json.Marshal(s.Lines) //nolint:errcheck // lines hold only dates, strings and money

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

	lines := []statement.Line{}
	if len(m.Lines) > 0 {
		if err := json.Unmarshal(m.Lines, &lines); err != nil {
			return nil, err
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
