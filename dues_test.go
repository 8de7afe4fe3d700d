package dues_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/dues"
	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/store/memory"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/tenant"
	"github.com/xraph/dues/types"
)

var today = time.Date(2024, 4, 20, 9, 30, 0, 0, time.UTC)

func newEngine(t *testing.T, s store.Store, opts ...dues.Option) *dues.Engine {
	t.Helper()
	if s == nil {
		s = memory.New()
	}
	opts = append([]dues.Option{
		dues.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dues.WithClock(func() time.Time { return today }),
	}, opts...)

	eng := dues.New(s, opts...)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop() })
	return eng
}

// seedTenant creates a USD tenant with one open-ended $1500 bracket and a
// $500 wedding price.
func seedTenant(t *testing.T, eng *dues.Engine, code string, enabled bool) *tenant.Tenant {
	t.Helper()
	ctx := context.Background()

	tn := &tenant.Tenant{Code: code, Name: code, Currency: "USD", AutomationsEnabled: enabled}
	if err := eng.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if err := eng.CreatePaymentPlan(ctx, &plan.PaymentPlan{
		TenantID: tn.ID, Name: "all", AgeStart: 0, AnnualDue: types.USD(150000),
	}); err != nil {
		t.Fatalf("CreatePaymentPlan: %v", err)
	}
	if err := eng.CreateEventType(ctx, &lifecycle.EventType{
		TenantID: tn.ID, Kind: lifecycle.KindWedding, Name: "Wedding", Amount: types.USD(50000),
	}); err != nil {
		t.Fatalf("CreateEventType: %v", err)
	}
	return tn
}

func adult(first string) *family.Member {
	return &family.Member{FirstName: first, LastName: "Levi", BirthDate: temporal.Date(1980, 6, 1), Gender: family.GenderMale}
}

func enroll(t *testing.T, eng *dues.Engine, tenantID id.TenantID, enrolled time.Time, members ...*family.Member) *family.Family {
	t.Helper()
	f := &family.Family{TenantID: tenantID, Name: "Levi", EnrolledAt: enrolled}
	if err := eng.EnrollFamily(context.Background(), f, members...); err != nil {
		t.Fatalf("EnrollFamily: %v", err)
	}
	return f
}

func pay(t *testing.T, eng *dues.Engine, familyID id.FamilyID, amount types.Money, date time.Time) {
	t.Helper()
	if err := eng.RecordPayment(context.Background(), &payment.Payment{
		FamilyID: familyID, Amount: amount, Date: date, Type: payment.TypeCheck,
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
}

// seedExample enrolls a family on 1 January 2024 that pays its dues in
// full on 15 January and is charged a wedding on 1 March.
func seedExample(t *testing.T, eng *dues.Engine, tenantID id.TenantID) *family.Family {
	t.Helper()
	f := enroll(t, eng, tenantID, temporal.Date(2024, 1, 1), adult("Avi"))
	pay(t, eng, f.ID, types.USD(150000), temporal.Date(2024, 1, 15))

	if _, err := eng.RecordLifecycleEvent(context.Background(), dues.LifecycleEventRequest{
		FamilyID: f.ID, Kind: lifecycle.KindWedding, Date: temporal.Date(2024, 3, 1),
	}); err != nil {
		t.Fatalf("RecordLifecycleEvent: %v", err)
	}
	return f
}

// ──────────────────────────────────────────────────
// Balances and overdue
// ──────────────────────────────────────────────────

func TestComputeBalance(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	f := seedExample(t, eng, tn.ID)
	ctx := context.Background()

	b, err := eng.ComputeBalance(ctx, f.ID, temporal.Date(2024, 4, 1))
	if err != nil {
		t.Fatalf("ComputeBalance: %v", err)
	}
	if !b.Amount.Equal(types.USD(-50000)) {
		t.Errorf("balance: got %v, want -$500.00", b.Amount)
	}
	if len(b.Transactions) != 3 {
		t.Errorf("transactions: got %d, want 3", len(b.Transactions))
	}

	before, err := eng.ComputeBalance(ctx, f.ID, temporal.Date(2024, 2, 1))
	if err != nil {
		t.Fatalf("ComputeBalance: %v", err)
	}
	if !before.Amount.IsZero() {
		t.Errorf("balance before the wedding: got %v, want 0", before.Amount)
	}

	if _, err := eng.ComputeBalance(ctx, tn.ID, today); !errors.Is(err, dues.ErrInvalidInput) {
		t.Errorf("tenant scope: got %v, want ErrInvalidInput", err)
	}
	if _, err := eng.ComputeBalance(ctx, id.NewFamilyID(), today); !dues.IsNotFound(err) {
		t.Errorf("unknown family: got %v, want not found", err)
	}
}

func TestComputeMemberBalance(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	ctx := context.Background()

	avi, dina := adult("Avi"), adult("Dina")
	dina.Gender = family.GenderFemale
	f := enroll(t, eng, tn.ID, temporal.Date(2024, 1, 1), avi, dina)

	if err := eng.RecordPayment(ctx, &payment.Payment{
		FamilyID: f.ID, MemberID: avi.ID, Amount: types.USD(100000), Date: temporal.Date(2024, 2, 1),
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	fb, err := eng.ComputeBalance(ctx, f.ID, temporal.Date(2024, 3, 1))
	if err != nil {
		t.Fatalf("family balance: %v", err)
	}
	if !fb.Amount.Equal(types.USD(-200000)) {
		t.Errorf("family balance: got %v, want -$2000.00", fb.Amount)
	}

	mb, err := eng.ComputeBalance(ctx, avi.ID, temporal.Date(2024, 3, 1))
	if err != nil {
		t.Fatalf("member balance: %v", err)
	}
	if !mb.Amount.Equal(types.USD(-50000)) {
		t.Errorf("member balance: got %v, want -$500.00", mb.Amount)
	}
}

func TestClassifyOverdue(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	f := seedExample(t, eng, tn.ID)

	paid := enroll(t, eng, tn.ID, temporal.Date(2024, 1, 1), adult("Moshe"))
	pay(t, eng, paid.ID, types.USD(150000), temporal.Date(2024, 1, 2))

	report, err := eng.ClassifyOverdue(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("ClassifyOverdue: %v", err)
	}
	if len(report.Families) != 1 {
		t.Fatalf("overdue families: got %d, want 1", len(report.Families))
	}

	c := report.Families[0]
	if c.FamilyID.String() != f.ID.String() {
		t.Errorf("family: got %s, want %s", c.FamilyID, f.ID)
	}
	if c.DaysOverdue != 50 || c.Tier != overdue.Tier3 {
		t.Errorf("classification: got %d days %s, want 50 days tier3", c.DaysOverdue, c.Tier)
	}

	// A late payment clears the family on the next call.
	pay(t, eng, f.ID, types.USD(50000), temporal.Date(2024, 4, 20))
	report, err = eng.ClassifyOverdue(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("ClassifyOverdue: %v", err)
	}
	if len(report.Families) != 0 {
		t.Errorf("overdue families after payment: got %d, want 0", len(report.Families))
	}
}

// ──────────────────────────────────────────────────
// Statements
// ──────────────────────────────────────────────────

func TestGenerateStatements(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	f := seedExample(t, eng, tn.ID)
	ctx := context.Background()

	run, err := eng.GenerateStatements(ctx, tn.ID, 2024, time.March)
	if err != nil {
		t.Fatalf("GenerateStatements: %v", err)
	}
	if run.GeneratedCount() != 1 || run.SkippedCount() != 0 || len(run.Failed) != 0 {
		t.Fatalf("run: generated=%d skipped=%d failed=%d", run.GeneratedCount(), run.SkippedCount(), len(run.Failed))
	}

	s := run.Generated[0]
	if s.FamilyID.String() != f.ID.String() {
		t.Errorf("family: got %s", s.FamilyID)
	}
	if s.Number != "ACME-2024-03-00001" {
		t.Errorf("number: got %q", s.Number)
	}
	if !s.OpeningBalance.IsZero() {
		t.Errorf("opening: got %v, want 0", s.OpeningBalance)
	}
	if !s.Events.Equal(types.USD(50000)) || !s.Income.IsZero() {
		t.Errorf("totals: events=%v income=%v", s.Events, s.Income)
	}
	if !s.ClosingBalance.Equal(types.USD(-50000)) {
		t.Errorf("closing: got %v, want -$500.00", s.ClosingBalance)
	}
	if len(s.Lines) != 1 || !s.Lines[0].RunningBalance.Equal(s.ClosingBalance) {
		t.Errorf("lines: got %+v", s.Lines)
	}

	again, err := eng.GenerateStatements(ctx, tn.ID, 2024, time.March)
	if err != nil {
		t.Fatalf("second GenerateStatements: %v", err)
	}
	if again.GeneratedCount() != 0 || again.SkippedCount() != 1 {
		t.Errorf("second run: generated=%d skipped=%d", again.GeneratedCount(), again.SkippedCount())
	}
	if again.Skipped[0].ID.String() != s.ID.String() {
		t.Error("second run returned a different statement")
	}

	stored, err := eng.ListStatements(ctx, tn.ID, statement.ListOpts{FamilyID: f.ID})
	if err != nil {
		t.Fatalf("ListStatements: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored statements: got %d, want 1", len(stored))
	}
}

func TestGenerateStatementsConcurrent(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	for i := 0; i < 5; i++ {
		enroll(t, eng, tn.ID, temporal.Date(2024, 1, 1), adult("Avi"))
	}

	runs := make(chan *dues.StatementRun, 2)
	for i := 0; i < 2; i++ {
		go func() {
			run, err := eng.GenerateStatements(context.Background(), tn.ID, 2024, time.February)
			if err != nil {
				t.Errorf("GenerateStatements: %v", err)
			}
			runs <- run
		}()
	}

	generated := 0
	for i := 0; i < 2; i++ {
		if run := <-runs; run != nil {
			generated += run.GeneratedCount()
		}
	}
	if generated != 5 {
		t.Errorf("generated across runs: got %d, want 5", generated)
	}

	stored, err := eng.ListStatements(context.Background(), tn.ID, statement.ListOpts{})
	if err != nil {
		t.Fatalf("ListStatements: %v", err)
	}
	if len(stored) != 5 {
		t.Errorf("stored statements: got %d, want 5", len(stored))
	}
}

func TestGenerateStatementsPartialFailure(t *testing.T) {
	eng := newEngine(t, nil)
	ctx := context.Background()

	tn := &tenant.Tenant{Code: "gap", Currency: "usd"}
	if err := eng.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if err := eng.CreatePaymentPlan(ctx, &plan.PaymentPlan{
		TenantID: tn.ID, Name: "adult", AgeStart: 13, AnnualDue: types.USD(150000),
	}); err != nil {
		t.Fatalf("CreatePaymentPlan: %v", err)
	}

	ok := enroll(t, eng, tn.ID, temporal.Date(2024, 1, 1), adult("Avi"))
	child := &family.Member{FirstName: "Noa", BirthDate: temporal.Date(2018, 2, 2), Gender: family.GenderFemale}
	bad := enroll(t, eng, tn.ID, temporal.Date(2024, 1, 1), adult("Yosef"), child)

	run, err := eng.GenerateStatements(ctx, tn.ID, 2024, time.January)
	if err != nil {
		t.Fatalf("GenerateStatements: %v", err)
	}
	if run.GeneratedCount() != 1 || run.Generated[0].FamilyID.String() != ok.ID.String() {
		t.Fatalf("generated: got %d", run.GeneratedCount())
	}
	if len(run.Failed) != 1 {
		t.Fatalf("failed: got %d, want 1", len(run.Failed))
	}

	failure := run.Failed[0]
	if failure.FamilyID.String() != bad.ID.String() {
		t.Errorf("failed family: got %s", failure.FamilyID)
	}
	if !errors.Is(failure.Err, dues.ErrConfiguration) {
		t.Errorf("failure: got %v, want ErrConfiguration", failure.Err)
	}

	var ce *dues.ConfigurationError
	if !errors.As(failure.Err, &ce) || ce.Age != 5 {
		t.Errorf("configuration error: got %+v, want age 5", ce)
	}
}

func TestGenerateStatementsCancelled(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	for i := 0; i < 3; i++ {
		enroll(t, eng, tn.ID, temporal.Date(2024, 1, 1), adult("Avi"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := eng.GenerateStatements(ctx, tn.ID, 2024, time.March)
	if err != nil {
		t.Fatalf("GenerateStatements: %v", err)
	}
	if !run.Incomplete || run.Pending != 3 {
		t.Errorf("run: incomplete=%v pending=%d, want true 3", run.Incomplete, run.Pending)
	}
	if run.GeneratedCount() != 0 {
		t.Errorf("generated: got %d, want 0", run.GeneratedCount())
	}

	// The next run picks up where the cancelled one stopped.
	run, err = eng.GenerateStatements(context.Background(), tn.ID, 2024, time.March)
	if err != nil {
		t.Fatalf("GenerateStatements: %v", err)
	}
	if run.GeneratedCount() != 3 {
		t.Errorf("resumed run: generated %d, want 3", run.GeneratedCount())
	}
}

func TestGenerateStatementsValidation(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	ctx := context.Background()

	if _, err := eng.GenerateStatements(ctx, tn.ID, 2024, 13); !errors.Is(err, dues.ErrInvalidInput) {
		t.Errorf("bad month: got %v, want ErrInvalidInput", err)
	}
	if _, err := eng.GenerateStatements(ctx, id.NewTenantID(), 2024, time.March); !errors.Is(err, dues.ErrTenantNotFound) {
		t.Errorf("unknown tenant: got %v, want ErrTenantNotFound", err)
	}
}

func TestRegenerateStatement(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	f := seedExample(t, eng, tn.ID)
	ctx := context.Background()

	run, err := eng.GenerateStatements(ctx, tn.ID, 2024, time.March)
	if err != nil {
		t.Fatalf("GenerateStatements: %v", err)
	}
	original := run.Generated[0]

	// A check dated in March arrives after the statement was issued.
	pay(t, eng, f.ID, types.USD(50000), temporal.Date(2024, 3, 10))

	s, err := eng.RegenerateStatement(ctx, f.ID, 2024, time.March, "late check")
	if err != nil {
		t.Fatalf("RegenerateStatement: %v", err)
	}
	if s.Revision != 2 || !strings.HasSuffix(s.Number, "-r2") {
		t.Errorf("revision: got %d %q", s.Revision, s.Number)
	}
	if !s.ClosingBalance.IsZero() {
		t.Errorf("closing: got %v, want 0", s.ClosingBalance)
	}

	old, err := eng.GetStatement(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetStatement: %v", err)
	}
	if old.Status != statement.StatusVoid || old.VoidReason != "late check" {
		t.Errorf("original: status=%s reason=%q", old.Status, old.VoidReason)
	}

	if _, err := eng.VoidStatement(ctx, original.ID, "again"); !errors.Is(err, dues.ErrStatementVoided) {
		t.Errorf("void twice: got %v, want ErrStatementVoided", err)
	}
	if _, err := eng.VoidStatement(ctx, s.ID, ""); !errors.Is(err, dues.ErrInvalidInput) {
		t.Errorf("void without reason: got %v, want ErrInvalidInput", err)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle triggers
// ──────────────────────────────────────────────────

func TestDetectLifecycleTriggers(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	ctx := context.Background()

	if err := eng.CreateEventType(ctx, &lifecycle.EventType{
		TenantID: tn.ID, Kind: lifecycle.KindBarMitzvah, Name: "Bar Mitzvah", Amount: types.USD(36000),
	}); err != nil {
		t.Fatalf("CreateEventType: %v", err)
	}

	son := &family.Member{FirstName: "Eli", BirthDate: temporal.Date(2011, 4, 1), Gender: family.GenderMale}
	f := enroll(t, eng, tn.ID, temporal.Date(2020, 1, 1), adult("Avi"), son)

	run, err := eng.DetectLifecycleTriggers(ctx, tn.ID, eng.Today())
	if err != nil {
		t.Fatalf("DetectLifecycleTriggers: %v", err)
	}
	if len(run.Applied) != 1 || len(run.Failed) != 0 {
		t.Fatalf("run: applied=%d failed=%d", len(run.Applied), len(run.Failed))
	}
	c := run.Applied[0]
	if c.MemberID.String() != son.ID.String() || c.Kind != lifecycle.KindBarMitzvah {
		t.Errorf("charge: member=%s kind=%s", c.MemberID, c.Kind)
	}
	if !c.Date.Equal(temporal.Date(2024, 4, 20)) {
		t.Errorf("charge date: got %s, want 2024-04-20", c.Date)
	}

	m, err := eng.GetMember(ctx, son.ID)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if !m.ComingOfAgeApplied {
		t.Error("member flag not set")
	}

	again, err := eng.DetectLifecycleTriggers(ctx, tn.ID, eng.Today())
	if err != nil {
		t.Fatalf("second DetectLifecycleTriggers: %v", err)
	}
	if len(again.Applied) != 0 {
		t.Errorf("second run applied %d charges", len(again.Applied))
	}

	charges, err := eng.Store().ListLifecycleCharges(ctx, f.ID, lifecycle.ListOpts{})
	if err != nil {
		t.Fatalf("ListLifecycleCharges: %v", err)
	}
	if len(charges) != 1 {
		t.Errorf("stored charges: got %d, want 1", len(charges))
	}
}

func TestDetectLifecycleTriggersMissingEventType(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	ctx := context.Background()

	daughter := &family.Member{FirstName: "Tamar", BirthDate: temporal.Date(2012, 1, 10), Gender: family.GenderFemale}
	enroll(t, eng, tn.ID, temporal.Date(2020, 1, 1), daughter)

	run, err := eng.DetectLifecycleTriggers(ctx, tn.ID, eng.Today())
	if err != nil {
		t.Fatalf("DetectLifecycleTriggers: %v", err)
	}
	if len(run.Failed) != 1 || !errors.Is(run.Failed[0].Err, dues.ErrConfiguration) {
		t.Fatalf("failed: got %+v", run.Failed)
	}

	m, err := eng.GetMember(ctx, daughter.ID)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if m.ComingOfAgeApplied {
		t.Error("flag set although no charge was written")
	}
}

// ──────────────────────────────────────────────────
// Families
// ──────────────────────────────────────────────────

func TestFormSubFamily(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	ctx := context.Background()

	son := &family.Member{FirstName: "Eli", LastName: "Levi", BirthDate: temporal.Date(1998, 5, 5), Gender: family.GenderMale}
	origin := enroll(t, eng, tn.ID, temporal.Date(2020, 1, 1), adult("Avi"), son)

	spouse := &family.Member{FirstName: "Rivka", LastName: "Levi", BirthDate: temporal.Date(1999, 9, 9), Gender: family.GenderFemale}
	nf, err := eng.FormSubFamily(ctx, dues.SubFamilyRequest{
		MemberID: son.ID,
		Date:     temporal.Date(2024, 6, 10),
		Spouse:   spouse,
	})
	if err != nil {
		t.Fatalf("FormSubFamily: %v", err)
	}
	if nf.ParentFamilyID.String() != origin.ID.String() {
		t.Errorf("parent: got %s", nf.ParentFamilyID)
	}
	if nf.Number != 2 {
		t.Errorf("number: got %d, want 2", nf.Number)
	}

	closed, err := eng.GetMember(ctx, son.ID)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if closed.LeftAt == nil || !closed.LeftAt.Equal(temporal.Date(2024, 6, 10)) {
		t.Errorf("origin member left at: got %v", closed.LeftAt)
	}

	// The origin was charged the wedding and the 2024 dues stay there.
	ob, err := eng.ComputeBalance(ctx, origin.ID, temporal.Date(2024, 12, 31))
	if err != nil {
		t.Fatalf("origin balance: %v", err)
	}
	wantOrigin := types.USD(-(150000*2*5 + 50000))
	if !ob.Amount.Equal(wantOrigin) {
		t.Errorf("origin balance: got %v, want %v", ob.Amount, wantOrigin)
	}

	nb, err := eng.ComputeBalance(ctx, nf.ID, temporal.Date(2024, 12, 31))
	if err != nil {
		t.Fatalf("new family balance: %v", err)
	}
	if !nb.Amount.IsZero() {
		t.Errorf("new family 2024 balance: got %v, want 0", nb.Amount)
	}
	nb, err = eng.ComputeBalance(ctx, nf.ID, temporal.Date(2025, 1, 1))
	if err != nil {
		t.Fatalf("new family balance: %v", err)
	}
	if !nb.Amount.Equal(types.USD(-300000)) {
		t.Errorf("new family 2025 balance: got %v, want -$3000.00", nb.Amount)
	}

	if err := eng.LinkParentFamily(ctx, nf.ID, origin.ID); !errors.Is(err, dues.ErrParentAlreadyLinked) {
		t.Errorf("relink: got %v, want ErrParentAlreadyLinked", err)
	}
}

func TestFormSubFamilyMidYearJoiner(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	ctx := context.Background()

	origin := enroll(t, eng, tn.ID, temporal.Date(2020, 1, 1), adult("Avi"))
	dan := &family.Member{
		FirstName: "Dan", LastName: "Levi", BirthDate: temporal.Date(1990, 2, 2),
		Gender: family.GenderMale, JoinedAt: temporal.Date(2024, 3, 1),
	}
	if err := eng.AddMember(ctx, origin.ID, dan); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	nf, err := eng.FormSubFamily(ctx, dues.SubFamilyRequest{MemberID: dan.ID, Date: temporal.Date(2024, 4, 1)})
	if err != nil {
		t.Fatalf("FormSubFamily: %v", err)
	}

	// Dan's 2024 dues fell due on 1 March in the origin family only.
	ob, err := eng.ComputeBalance(ctx, origin.ID, temporal.Date(2024, 12, 31))
	if err != nil {
		t.Fatalf("origin balance: %v", err)
	}
	if want := types.USD(-(150000*6 + 50000)); !ob.Amount.Equal(want) {
		t.Errorf("origin balance: got %v, want %v", ob.Amount, want)
	}

	tests := []struct {
		asOf time.Time
		want types.Money
	}{
		{temporal.Date(2024, 12, 31), types.USD(0)},
		{temporal.Date(2025, 1, 1), types.USD(-150000)},
	}
	for _, tt := range tests {
		b, err := eng.ComputeBalance(ctx, nf.ID, tt.asOf)
		if err != nil {
			t.Fatalf("new family balance: %v", err)
		}
		if !b.Amount.Equal(tt.want) {
			t.Errorf("new family balance on %s: got %v, want %v", tt.asOf.Format(time.DateOnly), b.Amount, tt.want)
		}
	}
}

// flakyStore fails the next few member updates or lifecycle charges.
type flakyStore struct {
	store.Store
	failUpdateMember int
	failCharges      int
}

func (s *flakyStore) UpdateMember(ctx context.Context, m *family.Member) error {
	if s.failUpdateMember > 0 {
		s.failUpdateMember--
		return errors.New("connection reset")
	}
	return s.Store.UpdateMember(ctx, m)
}

func (s *flakyStore) CreateLifecycleCharge(ctx context.Context, c *lifecycle.Charge) error {
	if s.failCharges > 0 {
		s.failCharges--
		return errors.New("connection reset")
	}
	return s.Store.CreateLifecycleCharge(ctx, c)
}

func TestFormSubFamilyRetry(t *testing.T) {
	wedding := temporal.Date(2024, 4, 1)
	wantOrigin := types.USD(-(150000*2*5 + 50000))

	countFamilies := func(t *testing.T, eng *dues.Engine, tenantID id.TenantID) int {
		t.Helper()
		fs, err := eng.ListFamilies(context.Background(), tenantID, family.ListOpts{})
		if err != nil {
			t.Fatalf("ListFamilies: %v", err)
		}
		return len(fs)
	}

	tests := []struct {
		name             string
		failUpdateMember int
		failCharges      int
		familiesAfterErr int
	}{
		{"closing the member fails", 1, 0, 1},
		{"wedding charge fails", 0, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &flakyStore{Store: memory.New(), failUpdateMember: tt.failUpdateMember, failCharges: tt.failCharges}
			eng := newEngine(t, fs)
			tn := seedTenant(t, eng, "acme", true)
			ctx := context.Background()

			son := &family.Member{FirstName: "Eli", LastName: "Levi", BirthDate: temporal.Date(1998, 5, 5), Gender: family.GenderMale}
			origin := enroll(t, eng, tn.ID, temporal.Date(2020, 1, 1), adult("Avi"), son)
			req := dues.SubFamilyRequest{
				MemberID: son.ID,
				Date:     wedding,
				Spouse:   &family.Member{FirstName: "Rivka", LastName: "Levi", BirthDate: temporal.Date(1999, 9, 9), Gender: family.GenderFemale},
			}

			if _, err := eng.FormSubFamily(ctx, req); err == nil {
				t.Fatal("first FormSubFamily: expected error")
			}
			if got := countFamilies(t, eng, tn.ID); got != tt.familiesAfterErr {
				t.Errorf("families after failure: got %d, want %d", got, tt.familiesAfterErr)
			}

			nf, err := eng.FormSubFamily(ctx, req)
			if err != nil {
				t.Fatalf("retry FormSubFamily: %v", err)
			}
			again, err := eng.FormSubFamily(ctx, req)
			if err != nil {
				t.Fatalf("repeat FormSubFamily: %v", err)
			}
			if again.ID.String() != nf.ID.String() {
				t.Errorf("repeat returned family %s, want %s", again.ID, nf.ID)
			}
			if got := countFamilies(t, eng, tn.ID); got != 2 {
				t.Errorf("families: got %d, want 2", got)
			}

			ms, err := eng.ListMembers(ctx, nf.ID)
			if err != nil {
				t.Fatalf("ListMembers: %v", err)
			}
			if len(ms) != 2 {
				t.Errorf("new family members: got %d, want 2", len(ms))
			}

			ob, err := eng.ComputeBalance(ctx, origin.ID, temporal.Date(2024, 12, 31))
			if err != nil {
				t.Fatalf("origin balance: %v", err)
			}
			if !ob.Amount.Equal(wantOrigin) {
				t.Errorf("origin balance: got %v, want %v (one wedding charge)", ob.Amount, wantOrigin)
			}
		})
	}
}

func TestFormSubFamilyRejectsEarlierDeparture(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	ctx := context.Background()

	son := &family.Member{FirstName: "Eli", LastName: "Levi", BirthDate: temporal.Date(1998, 5, 5), Gender: family.GenderMale}
	enroll(t, eng, tn.ID, temporal.Date(2020, 1, 1), adult("Avi"), son)
	if _, err := eng.FormSubFamily(ctx, dues.SubFamilyRequest{MemberID: son.ID, Date: temporal.Date(2024, 4, 1)}); err != nil {
		t.Fatalf("FormSubFamily: %v", err)
	}

	_, err := eng.FormSubFamily(ctx, dues.SubFamilyRequest{MemberID: son.ID, Date: temporal.Date(2024, 4, 2)})
	var ve dues.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("second wedding: got %v, want ValidationError", err)
	}
}

func TestRecordValidation(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	f := enroll(t, eng, tn.ID, temporal.Date(2024, 1, 1), adult("Avi"))
	ctx := context.Background()

	tests := []struct {
		name string
		p    *payment.Payment
	}{
		{"zero amount", &payment.Payment{FamilyID: f.ID, Amount: types.USD(0), Date: today}},
		{"negative amount", &payment.Payment{FamilyID: f.ID, Amount: types.USD(-5), Date: today}},
		{"wrong currency", &payment.Payment{FamilyID: f.ID, Amount: types.EUR(100), Date: today}},
		{"missing date", &payment.Payment{FamilyID: f.ID, Amount: types.USD(100)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := eng.RecordPayment(ctx, tt.p); !errors.Is(err, dues.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}

	overlap := &plan.PaymentPlan{TenantID: tn.ID, Name: "kids", AgeStart: 0, AgeEnd: intPtr(13), AnnualDue: types.USD(100)}
	if err := eng.CreatePaymentPlan(ctx, overlap); !errors.Is(err, plan.ErrOverlap) {
		t.Errorf("overlapping plan: got %v, want ErrOverlap", err)
	}
}

func intPtr(v int) *int { return &v }

// ──────────────────────────────────────────────────
// Automations
// ──────────────────────────────────────────────────

type mailbox struct {
	delivered atomic.Int32
	completed atomic.Int32
	escalated atomic.Int32
}

func (m *mailbox) Name() string { return "mailbox" }

func (m *mailbox) Dispatch(_ context.Context, d plugin.Delivery) error {
	if d.Family == nil || d.Statement == nil {
		return errors.New("incomplete delivery")
	}
	m.delivered.Add(1)
	return nil
}

func (m *mailbox) OnAutomationCompleted(_ context.Context, _ plugin.AutomationSummary) error {
	m.completed.Add(1)
	return nil
}

func (m *mailbox) OnOverdueEscalated(_ context.Context, _ id.TenantID, _ overdue.Classification) error {
	m.escalated.Add(1)
	return nil
}

var (
	_ plugin.StatementDispatcher   = (*mailbox)(nil)
	_ plugin.OnAutomationCompleted = (*mailbox)(nil)
	_ plugin.OnOverdueEscalated    = (*mailbox)(nil)
)

// brokenStore fails every family listing for one tenant.
type brokenStore struct {
	store.Store
	tenant id.TenantID
}

func (s *brokenStore) ListFamilies(ctx context.Context, tenantID id.TenantID, opts family.ListOpts) ([]*family.Family, error) {
	if tenantID.String() == s.tenant.String() {
		return nil, errors.New("connection reset")
	}
	return s.Store.ListFamilies(ctx, tenantID, opts)
}

func TestRunMonthlyAutomations(t *testing.T) {
	mb := &mailbox{}
	eng := newEngine(t, nil, dues.WithPlugin(mb))
	ctx := context.Background()

	on := seedTenant(t, eng, "on", true)
	off := seedTenant(t, eng, "off", false)
	seedExample(t, eng, on.ID)
	seedExample(t, eng, off.ID)

	report, err := eng.RunMonthlyAutomations(ctx, dues.AutomationRequest{})
	if err != nil {
		t.Fatalf("RunMonthlyAutomations: %v", err)
	}
	if report.Period != (statement.Period{Year: 2024, Month: time.March}) {
		t.Errorf("period: got %s, want 2024-03", report.Period)
	}
	if len(report.Succeeded) != 1 || report.Succeeded[0].Code != "ON" {
		t.Fatalf("succeeded: got %d", len(report.Succeeded))
	}

	run := report.Succeeded[0]
	if run.Statements.GeneratedCount() != 1 || run.Dispatched != 1 || run.OverdueCount() != 1 {
		t.Errorf("run: generated=%d dispatched=%d overdue=%d",
			run.Statements.GeneratedCount(), run.Dispatched, run.OverdueCount())
	}
	if mb.delivered.Load() != 1 || mb.escalated.Load() != 1 || mb.completed.Load() != 1 {
		t.Errorf("plugin: delivered=%d escalated=%d completed=%d",
			mb.delivered.Load(), mb.escalated.Load(), mb.completed.Load())
	}

	// A retriggered run generates and dispatches nothing new.
	report, err = eng.RunMonthlyAutomations(ctx, dues.AutomationRequest{})
	if err != nil {
		t.Fatalf("second RunMonthlyAutomations: %v", err)
	}
	run = report.Succeeded[0]
	if run.Statements.GeneratedCount() != 0 || run.Statements.SkippedCount() != 1 || run.Dispatched != 0 {
		t.Errorf("second run: generated=%d skipped=%d dispatched=%d",
			run.Statements.GeneratedCount(), run.Statements.SkippedCount(), run.Dispatched)
	}
}

func TestRunMonthlyAutomationsExplicitTenants(t *testing.T) {
	eng := newEngine(t, nil)
	ctx := context.Background()

	on := seedTenant(t, eng, "on", true)
	off := seedTenant(t, eng, "off", false)

	report, err := eng.RunMonthlyAutomations(ctx, dues.AutomationRequest{
		TenantIDs: []id.TenantID{on.ID, off.ID},
	})
	if err != nil {
		t.Fatalf("RunMonthlyAutomations: %v", err)
	}
	if len(report.Succeeded) != 1 || len(report.Skipped) != 1 || report.Skipped[0].Code != "OFF" {
		t.Errorf("report: succeeded=%d skipped=%d", len(report.Succeeded), len(report.Skipped))
	}

	if _, err := eng.RunMonthlyAutomations(ctx, dues.AutomationRequest{
		TenantIDs: []id.TenantID{on.ID, id.NewTenantID()},
	}); !errors.Is(err, dues.ErrTenantNotFound) {
		t.Errorf("unknown tenant: got %v, want ErrTenantNotFound", err)
	}
}

func TestRunTenantAutomationsIgnoresFlag(t *testing.T) {
	eng := newEngine(t, nil)
	off := seedTenant(t, eng, "off", false)
	seedExample(t, eng, off.ID)

	run, err := eng.RunTenantAutomations(context.Background(), off.ID, statement.Period{})
	if err != nil {
		t.Fatalf("RunTenantAutomations: %v", err)
	}
	if run.Status != dues.RunSucceeded {
		t.Fatalf("status: got %s (%s)", run.Status, run.Message)
	}
	if run.Statements.GeneratedCount() != 1 {
		t.Errorf("generated: got %d, want 1", run.Statements.GeneratedCount())
	}
}

func TestRunMonthlyAutomationsIsolatesFailures(t *testing.T) {
	mem := memory.New()
	bs := &brokenStore{Store: mem}
	eng := newEngine(t, bs)
	ctx := context.Background()

	broken := seedTenant(t, eng, "broken", true)
	healthy := seedTenant(t, eng, "healthy", true)
	bs.tenant = broken.ID
	seedExample(t, eng, healthy.ID)

	report, err := eng.RunMonthlyAutomations(ctx, dues.AutomationRequest{})
	if err != nil {
		t.Fatalf("RunMonthlyAutomations: %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Code != "BROKEN" {
		t.Fatalf("failed: got %d", len(report.Failed))
	}
	if !dues.IsRetryable(report.Failed[0].Err) {
		t.Errorf("failure: got %v, want a retryable store error", report.Failed[0].Err)
	}
	if len(report.Succeeded) != 1 || report.Succeeded[0].Statements.GeneratedCount() != 1 {
		t.Errorf("healthy tenant did not complete")
	}
}

func TestRunMonthlyAutomationsSettings(t *testing.T) {
	eng := newEngine(t, nil)
	tn := seedTenant(t, eng, "acme", true)
	seedExample(t, eng, tn.ID)

	report, err := eng.RunMonthlyAutomations(context.Background(), dues.AutomationRequest{
		Settings: &tenant.AutomationSettings{Overdue: true},
	})
	if err != nil {
		t.Fatalf("RunMonthlyAutomations: %v", err)
	}
	run := report.Succeeded[0]
	if run.Statements != nil || run.Triggers != nil {
		t.Error("disabled steps ran")
	}
	if got := run.TierCounts()[overdue.Tier3]; got != 1 {
		t.Errorf("tier3 families: got %d, want 1", got)
	}
}
