package audithook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/types"
)

type captured struct {
	mu     sync.Mutex
	events []*AuditEvent
}

func (c *captured) Record(_ context.Context, evt *AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captured) last(t *testing.T) *AuditEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		t.Fatal("no audit events recorded")
	}
	return c.events[len(c.events)-1]
}

func TestExtensionRecordsPayments(t *testing.T) {
	rec := &captured{}
	ext := New(rec)

	p := &payment.Payment{
		ID:       id.NewPaymentID(),
		TenantID: id.NewTenantID(),
		FamilyID: id.NewFamilyID(),
		Amount:   types.USD(150000),
		Date:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Type:     payment.TypeTransfer,
	}
	if err := ext.OnPaymentRecorded(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	evt := rec.last(t)
	if evt.Action != ActionPaymentRecorded {
		t.Errorf("action: got %q", evt.Action)
	}
	if evt.ResourceID != p.ID.String() {
		t.Errorf("resource id: got %q, want %q", evt.ResourceID, p.ID.String())
	}
	if evt.TenantID != p.TenantID.String() {
		t.Errorf("tenant id: got %q", evt.TenantID)
	}
	if evt.Metadata["amount"] != "$1500.00" {
		t.Errorf("amount: got %v", evt.Metadata["amount"])
	}
}

func TestExtensionOverdueSeverity(t *testing.T) {
	tests := []struct {
		tier overdue.Tier
		want string
	}{
		{overdue.Tier1, SeverityWarning},
		{overdue.Tier2, SeverityWarning},
		{overdue.Tier3, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			rec := &captured{}
			ext := New(rec)
			c := overdue.Classification{
				FamilyID:    id.NewFamilyID(),
				DaysOverdue: 12,
				Amount:      types.USD(5000),
				Tier:        tt.tier,
			}
			if err := ext.OnOverdueEscalated(context.Background(), id.NewTenantID(), c); err != nil {
				t.Fatal(err)
			}
			if got := rec.last(t).Severity; got != tt.want {
				t.Errorf("severity: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtensionAutomationOutcome(t *testing.T) {
	tests := []struct {
		name        string
		summary     plugin.AutomationSummary
		wantAction  string
		wantOutcome string
	}{
		{
			name:        "clean",
			summary:     plugin.AutomationSummary{Generated: 3},
			wantAction:  ActionAutomationCompleted,
			wantOutcome: OutcomeSuccess,
		},
		{
			name:        "partial",
			summary:     plugin.AutomationSummary{Generated: 2, Err: errors.New("one family failed")},
			wantAction:  ActionAutomationFailed,
			wantOutcome: OutcomePartial,
		},
		{
			name:        "failed",
			summary:     plugin.AutomationSummary{Err: errors.New("store down")},
			wantAction:  ActionAutomationFailed,
			wantOutcome: OutcomeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captured{}
			ext := New(rec)
			tt.summary.TenantID = id.NewTenantID()
			tt.summary.Period = statement.Period{Year: 2024, Month: time.March}

			if err := ext.OnAutomationCompleted(context.Background(), tt.summary); err != nil {
				t.Fatal(err)
			}
			evt := rec.last(t)
			if evt.Action != tt.wantAction || evt.Outcome != tt.wantOutcome {
				t.Errorf("got %s/%s, want %s/%s", evt.Action, evt.Outcome, tt.wantAction, tt.wantOutcome)
			}
			if tt.summary.Err != nil && evt.Reason == "" {
				t.Error("expected reason for failed run")
			}
		})
	}
}

func TestExtensionActionFilters(t *testing.T) {
	f := &family.Family{ID: id.NewFamilyID(), TenantID: id.NewTenantID(), Number: 7}
	ctx := context.Background()

	t.Run("Enabled", func(t *testing.T) {
		rec := &captured{}
		ext := New(rec, WithEnabledActions(ActionStatementGenerated))
		if err := ext.OnFamilyEnrolled(ctx, f); err != nil {
			t.Fatal(err)
		}
		if len(rec.events) != 0 {
			t.Errorf("expected no events, got %d", len(rec.events))
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		rec := &captured{}
		ext := New(rec, WithDisabledActions(ActionFamilyEnrolled))
		if err := ext.OnFamilyEnrolled(ctx, f); err != nil {
			t.Fatal(err)
		}
		if len(rec.events) != 0 {
			t.Errorf("expected no events, got %d", len(rec.events))
		}
		if !ext.enabled[ActionPaymentRecorded] {
			t.Error("other actions should stay enabled")
		}
	})
}

func TestExtensionSwallowsRecorderErrors(t *testing.T) {
	failing := RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend unavailable")
	})
	ext := New(failing, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	s := &statement.Statement{ID: id.NewStatementID(), TenantID: id.NewTenantID(), Number: "ACME-2024-03-00001"}
	if err := ext.OnStatementVoided(context.Background(), s, "corrected"); err != nil {
		t.Errorf("recorder errors must not propagate, got %v", err)
	}
}
