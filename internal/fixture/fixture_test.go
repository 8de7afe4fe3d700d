package fixture_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/dues"
	"github.com/xraph/dues/internal/fixture"
	"github.com/xraph/dues/store/memory"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/types"
)

const dataset = `
tenants:
  - code: acme
    name: Acme Congregation
    currency: USD
    email: office@acme.test
    automations_enabled: true
    plans:
      - name: adults
        age_start: 0
        annual_due: "1500.00"
    event_types:
      - kind: wedding
        name: Wedding
        amount: "500"
    families:
      - number: 7
        name: Levi
        email: levi@acme.test
        enrolled_at: 2024-01-01
        members:
          - first_name: Avi
            last_name: Levi
            birth_date: 1980-06-01
            gender: male
            lunar_birth_date: {year: 5740, month: 9, day: 16}
        payments:
          - date: 2024-01-15
            amount: "1500"
            type: check
            member: Avi
        events:
          - kind: wedding
            date: 2024-03-01
            member: Avi
`

func newEngine(t *testing.T) *dues.Engine {
	t.Helper()
	eng := dues.New(memory.New(),
		dues.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dues.WithClock(func() time.Time { return time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC) }),
	)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop() })
	return eng
}

func TestApply(t *testing.T) {
	ds, err := fixture.Parse([]byte(dataset))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	eng := newEngine(t)
	ctx := context.Background()

	ix, err := ds.Apply(ctx, eng)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	tn, err := ix.Tenant("ACME")
	if err != nil {
		t.Fatalf("Tenant: %v", err)
	}
	if tn.Currency != "usd" {
		t.Errorf("currency: got %q, want usd", tn.Currency)
	}

	f, err := ix.Family("ACME", 7)
	if err != nil {
		t.Fatalf("Family: %v", err)
	}
	members, err := eng.ListMembers(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 1 || members[0].LunarBirthDate == nil || members[0].LunarBirthDate.Day != 16 {
		t.Fatalf("members: got %+v", members)
	}

	b, err := eng.ComputeBalance(ctx, f.ID, temporal.Date(2024, 4, 1))
	if err != nil {
		t.Fatalf("ComputeBalance: %v", err)
	}
	if !b.Amount.Equal(types.USD(-50000)) {
		t.Errorf("balance: got %v, want -$500.00", b.Amount)
	}

	if _, err := ix.Family("ACME", 8); !errors.Is(err, dues.ErrFamilyNotFound) {
		t.Errorf("unknown family: got %v, want ErrFamilyNotFound", err)
	}
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad money",
			yaml: `
tenants:
  - code: acme
    currency: USD
    plans:
      - name: all
        annual_due: "15.001"
`,
		},
		{
			name: "unknown member",
			yaml: `
tenants:
  - code: acme
    currency: USD
    plans:
      - name: all
        annual_due: "100"
    families:
      - name: Levi
        enrolled_at: 2024-01-01
        members:
          - first_name: Avi
            birth_date: 1980-06-01
        payments:
          - date: 2024-01-15
            amount: "10"
            member: Dina
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := fixture.Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if _, err := ds.Apply(context.Background(), newEngine(t)); err == nil {
				t.Fatal("Apply: expected error")
			}
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := fixture.Parse([]byte("tenants: [")); err == nil {
		t.Fatal("expected error")
	}
}
