package dues_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/dues"
	"github.com/xraph/dues/family"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/store/memory"
	"github.com/xraph/dues/tenant"
	"github.com/xraph/dues/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and behave as described.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()

		// Memory store for demo, use PostgreSQL in production.
		eng := dues.New(memory.New(), dues.WithLogger(slog.Default()))
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer eng.Stop()

		tn := &tenant.Tenant{Code: "shul", Name: "Beit Knesset", Currency: "ils"}
		if err := eng.CreateTenant(ctx, tn); err != nil {
			t.Fatal(err)
		}

		thirteen := 13
		for _, p := range []*plan.PaymentPlan{
			{TenantID: tn.ID, Name: "Child", AgeStart: 0, AgeEnd: &thirteen, AnnualDue: dues.ILS(0)},
			{TenantID: tn.ID, Name: "Adult", AgeStart: 13, AnnualDue: dues.ILS(120000)},
		} {
			if err := eng.CreatePaymentPlan(ctx, p); err != nil {
				t.Fatal(err)
			}
		}
		if err := eng.ValidatePaymentPlans(ctx, tn.ID); err != nil {
			t.Fatal(err)
		}

		fam := &family.Family{TenantID: tn.ID, Name: "Cohen", EnrolledAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		parent := &family.Member{FirstName: "Sara", BirthDate: time.Date(1985, 2, 3, 0, 0, 0, 0, time.UTC)}
		child := &family.Member{FirstName: "Dan", BirthDate: time.Date(2016, 7, 8, 0, 0, 0, 0, time.UTC)}
		if err := eng.EnrollFamily(ctx, fam, parent, child); err != nil {
			t.Fatal(err)
		}

		bal, err := eng.ComputeBalance(ctx, fam.ID, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatal(err)
		}
		if !bal.Amount.Equal(dues.ILS(-120000)) {
			t.Errorf("balance: got %s, want -₪1200.00", bal.Amount)
		}

		run, err := eng.GenerateStatements(ctx, tn.ID, 2024, time.March)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("generated %d statements\n", run.GeneratedCount())
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.ILS(150000) // ₪1500.00
		_ = types.USD(4900)   // $49.00
		_ = types.Zero("ils") // ₪0.00

		// Arithmetic
		m1 := types.ILS(100)
		m2 := types.ILS(200)
		if got := m1.Add(m2); !got.Equal(types.ILS(300)) {
			t.Errorf("Add: got %s", got)
		}
		if got := m1.Subtract(m2); !got.IsNegative() {
			t.Errorf("Subtract: got %s", got)
		}

		// Formatting
		if got := m1.String(); got != "₪1.00" {
			t.Errorf("String: got %q", got)
		}
		if got := m1.FormatMajor(); got != "1.00" {
			t.Errorf("FormatMajor: got %q", got)
		}
	})
}
