package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/tenant"
	"github.com/xraph/dues/types"
)

func testView() StatementView {
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return StatementView{
		Tenant: &tenant.Tenant{Code: "ACME", Name: "Acme Shul", Currency: "usd"},
		Family: &family.Family{Number: 1, Name: "Levi"},
		Statement: &statement.Statement{
			Number:         "ACME-2024-03-00001",
			PeriodStart:    march,
			PeriodEnd:      march.AddDate(0, 1, 0),
			OpeningBalance: types.USD(0),
			Income:         types.USD(0),
			Withdrawals:    types.USD(0),
			Events:         types.USD(50000),
			Dues:           types.USD(0),
			ClosingBalance: types.USD(-50000),
			Lines: []statement.Line{{
				Date:           march,
				Kind:           statement.LineEvent,
				Description:    "Wedding <Dan & Noa>",
				Amount:         types.USD(50000),
				SignedAmount:   types.USD(-50000),
				RunningBalance: types.USD(-50000),
			}},
			Status: statement.StatusIssued,
		},
	}
}

func TestStatementHTML(t *testing.T) {
	out, err := HTML(context.Background(), Statement(testView()))
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"ACME-2024-03-00001",
		"March 2024",
		"Wedding &lt;Dan &amp; Noa&gt;",
		"Amount due: <strong>$500.00</strong>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "<Dan") {
		t.Error("line description was not escaped")
	}
	if strings.Contains(out, "VOID") {
		t.Error("issued statement rendered as void")
	}
}

func TestStatementHTMLEmptyAndVoid(t *testing.T) {
	v := testView()
	v.Statement.Lines = nil
	v.Statement.ClosingBalance = types.USD(1000)
	v.Statement.Status = statement.StatusVoid
	v.Statement.VoidReason = "regenerated"

	out, err := HTML(context.Background(), Statement(v))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No activity this period.") {
		t.Error("expected empty-period notice")
	}
	if strings.Contains(out, "Amount due") {
		t.Error("credit balance should not show an amount due")
	}
	if !strings.Contains(out, "VOID: regenerated") {
		t.Error("expected void banner")
	}
}

func TestStatementHTMLSummaryRows(t *testing.T) {
	out, err := HTML(context.Background(), Statement(testView()))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`<table class="summary"><tr><th>Opening balance</th>`,
		`<tr><th>Events</th><td>$500.00</td></tr>`,
		`<tr><th>Closing balance</th>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestStatementHTMLCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := HTML(ctx, Statement(testView())); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestSubject(t *testing.T) {
	got := Subject(testView())
	want := "Acme Shul statement ACME-2024-03-00001 for March 2024"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
