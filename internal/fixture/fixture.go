// Package fixture loads YAML datasets of tenants, families and their
// records into a dues engine. duesctl runs on top of it and tests use it
// to seed realistic ledgers.
package fixture

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/dues"
	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/tenant"
	"github.com/xraph/dues/types"
)

// Dataset is the top-level YAML document.
type Dataset struct {
	Tenants []Tenant `yaml:"tenants"`
}

// Tenant describes one tenant and everything it owns. Amounts are decimal
// strings in the tenant currency ("1500.00").
type Tenant struct {
	Code               string                     `yaml:"code"`
	Name               string                     `yaml:"name"`
	Currency           string                     `yaml:"currency"`
	Email              string                     `yaml:"email,omitempty"`
	AutomationsEnabled bool                       `yaml:"automations_enabled"`
	Settings           *tenant.AutomationSettings `yaml:"settings,omitempty"`
	Plans              []Plan                     `yaml:"plans"`
	EventTypes         []EventType                `yaml:"event_types,omitempty"`
	Families           []Family                   `yaml:"families"`
}

// Plan is one age bracket. A missing age_end leaves the bracket open.
type Plan struct {
	Name      string `yaml:"name"`
	AgeStart  int    `yaml:"age_start"`
	AgeEnd    *int   `yaml:"age_end,omitempty"`
	AnnualDue string `yaml:"annual_due"`
}

// EventType prices a lifecycle event kind.
type EventType struct {
	Kind   string `yaml:"kind"`
	Name   string `yaml:"name"`
	Amount string `yaml:"amount"`
}

// Family is a family with its members and records.
type Family struct {
	Number      int          `yaml:"number,omitempty"`
	Name        string       `yaml:"name"`
	Email       string       `yaml:"email,omitempty"`
	EnrolledAt  time.Time    `yaml:"enrolled_at"`
	Members     []Member     `yaml:"members"`
	Payments    []Payment    `yaml:"payments,omitempty"`
	Withdrawals []Withdrawal `yaml:"withdrawals,omitempty"`
	Events      []Event      `yaml:"events,omitempty"`
}

// Member is a family member. Records refer to members by first name.
type Member struct {
	FirstName      string               `yaml:"first_name"`
	LastName       string               `yaml:"last_name,omitempty"`
	BirthDate      time.Time            `yaml:"birth_date"`
	LunarBirthDate *temporal.HebrewDate `yaml:"lunar_birth_date,omitempty"`
	Gender         string               `yaml:"gender,omitempty"`
	JoinedAt       time.Time            `yaml:"joined_at,omitempty"`
}

// Payment is a credit to the family.
type Payment struct {
	Date   time.Time `yaml:"date"`
	Amount string    `yaml:"amount"`
	Type   string    `yaml:"type,omitempty"`
	Year   int       `yaml:"year,omitempty"`
	Member string    `yaml:"member,omitempty"`
	Notes  string    `yaml:"notes,omitempty"`
}

// Withdrawal is a debit outside dues and events.
type Withdrawal struct {
	Date   time.Time `yaml:"date"`
	Amount string    `yaml:"amount"`
	Reason string    `yaml:"reason,omitempty"`
	Member string    `yaml:"member,omitempty"`
}

// Event is a manually recorded lifecycle event. Amount overrides the event
// type price when set.
type Event struct {
	Kind        string    `yaml:"kind"`
	Date        time.Time `yaml:"date"`
	Amount      string    `yaml:"amount,omitempty"`
	Member      string    `yaml:"member,omitempty"`
	Description string    `yaml:"description,omitempty"`
}

// Parse decodes a YAML dataset.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}
	return &ds, nil
}

// LoadFile reads and decodes a YAML dataset from disk.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return Parse(data)
}

// Index resolves the codes and numbers used in a dataset to stored
// records.
type Index struct {
	Tenants  map[string]*tenant.Tenant
	Families map[string]map[int]*family.Family
}

// Tenant looks a tenant up by code, ignoring case.
func (ix *Index) Tenant(code string) (*tenant.Tenant, error) {
	t, ok := ix.Tenants[strings.ToUpper(code)]
	if !ok {
		return nil, fmt.Errorf("unknown tenant %q: %w", code, dues.ErrTenantNotFound)
	}
	return t, nil
}

// Family looks a family up by tenant code and family number.
func (ix *Index) Family(code string, number int) (*family.Family, error) {
	f, ok := ix.Families[strings.ToUpper(code)][number]
	if !ok {
		return nil, fmt.Errorf("unknown family %s #%d: %w", code, number, dues.ErrFamilyNotFound)
	}
	return f, nil
}

// Apply writes the dataset through eng, so every record passes the
// engine's validation and plugin hooks.
func (ds *Dataset) Apply(ctx context.Context, eng *dues.Engine) (*Index, error) {
	ix := &Index{
		Tenants:  make(map[string]*tenant.Tenant),
		Families: make(map[string]map[int]*family.Family),
	}

	for i := range ds.Tenants {
		if err := applyTenant(ctx, eng, &ds.Tenants[i], ix); err != nil {
			return nil, fmt.Errorf("tenant %s: %w", ds.Tenants[i].Code, err)
		}
	}
	return ix, nil
}

func applyTenant(ctx context.Context, eng *dues.Engine, ft *Tenant, ix *Index) error {
	t := &tenant.Tenant{
		Code:               ft.Code,
		Name:               ft.Name,
		Currency:           ft.Currency,
		Email:              ft.Email,
		AutomationsEnabled: ft.AutomationsEnabled,
	}
	if ft.Settings != nil {
		t.Settings = *ft.Settings
	}
	if err := eng.CreateTenant(ctx, t); err != nil {
		return err
	}
	ix.Tenants[t.Code] = t
	ix.Families[t.Code] = make(map[int]*family.Family)

	for _, fp := range ft.Plans {
		due, err := types.ParseMoney(fp.AnnualDue, t.Currency)
		if err != nil {
			return fmt.Errorf("plan %q: %w", fp.Name, err)
		}
		p := &plan.PaymentPlan{
			TenantID:  t.ID,
			Name:      fp.Name,
			AgeStart:  fp.AgeStart,
			AgeEnd:    fp.AgeEnd,
			AnnualDue: due,
		}
		if err := eng.CreatePaymentPlan(ctx, p); err != nil {
			return fmt.Errorf("plan %q: %w", fp.Name, err)
		}
	}

	for _, fe := range ft.EventTypes {
		amount, err := types.ParseMoney(fe.Amount, t.Currency)
		if err != nil {
			return fmt.Errorf("event type %q: %w", fe.Kind, err)
		}
		et := &lifecycle.EventType{
			TenantID: t.ID,
			Kind:     lifecycle.Kind(fe.Kind),
			Name:     fe.Name,
			Amount:   amount,
		}
		if err := eng.CreateEventType(ctx, et); err != nil {
			return fmt.Errorf("event type %q: %w", fe.Kind, err)
		}
	}

	for i := range ft.Families {
		f, err := applyFamily(ctx, eng, t, &ft.Families[i])
		if err != nil {
			return fmt.Errorf("family %q: %w", ft.Families[i].Name, err)
		}
		ix.Families[t.Code][f.Number] = f
	}
	return nil
}

func applyFamily(ctx context.Context, eng *dues.Engine, t *tenant.Tenant, ff *Family) (*family.Family, error) {
	f := &family.Family{
		TenantID:   t.ID,
		Number:     ff.Number,
		Name:       ff.Name,
		Email:      ff.Email,
		EnrolledAt: ff.EnrolledAt,
	}

	members := make([]*family.Member, len(ff.Members))
	byName := make(map[string]id.MemberID, len(ff.Members))
	for i, fm := range ff.Members {
		members[i] = &family.Member{
			FirstName:      fm.FirstName,
			LastName:       fm.LastName,
			BirthDate:      fm.BirthDate,
			LunarBirthDate: fm.LunarBirthDate,
			Gender:         family.Gender(fm.Gender),
			JoinedAt:       fm.JoinedAt,
		}
	}
	if err := eng.EnrollFamily(ctx, f, members...); err != nil {
		return nil, err
	}
	for _, m := range members {
		byName[m.FirstName] = m.ID
	}

	member := func(name string) (id.MemberID, error) {
		if name == "" {
			return id.Nil, nil
		}
		mid, ok := byName[name]
		if !ok {
			return id.Nil, fmt.Errorf("unknown member %q: %w", name, dues.ErrMemberNotFound)
		}
		return mid, nil
	}

	for _, fp := range ff.Payments {
		amount, err := types.ParseMoney(fp.Amount, t.Currency)
		if err != nil {
			return nil, err
		}
		mid, err := member(fp.Member)
		if err != nil {
			return nil, err
		}
		p := &payment.Payment{
			FamilyID: f.ID,
			MemberID: mid,
			Amount:   amount,
			Date:     fp.Date,
			Year:     fp.Year,
			Type:     payment.Type(fp.Type),
			Notes:    fp.Notes,
		}
		if err := eng.RecordPayment(ctx, p); err != nil {
			return nil, err
		}
	}

	for _, fw := range ff.Withdrawals {
		amount, err := types.ParseMoney(fw.Amount, t.Currency)
		if err != nil {
			return nil, err
		}
		mid, err := member(fw.Member)
		if err != nil {
			return nil, err
		}
		w := &payment.Withdrawal{
			FamilyID: f.ID,
			MemberID: mid,
			Amount:   amount,
			Date:     fw.Date,
			Reason:   fw.Reason,
		}
		if err := eng.RecordWithdrawal(ctx, w); err != nil {
			return nil, err
		}
	}

	for _, fe := range ff.Events {
		mid, err := member(fe.Member)
		if err != nil {
			return nil, err
		}
		req := dues.LifecycleEventRequest{
			FamilyID:    f.ID,
			MemberID:    mid,
			Kind:        lifecycle.Kind(fe.Kind),
			Date:        fe.Date,
			Description: fe.Description,
		}
		if fe.Amount != "" {
			amount, err := types.ParseMoney(fe.Amount, t.Currency)
			if err != nil {
				return nil, err
			}
			req.Amount = &amount
		}
		if _, err := eng.RecordLifecycleEvent(ctx, req); err != nil {
			return nil, err
		}
	}

	return f, nil
}
