// Package audithook bridges dues engine events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/statement"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnFamilyEnrolled        = (*Extension)(nil)
	_ plugin.OnPaymentRecorded       = (*Extension)(nil)
	_ plugin.OnWithdrawalRecorded    = (*Extension)(nil)
	_ plugin.OnLifecycleCharged      = (*Extension)(nil)
	_ plugin.OnStatementGenerated    = (*Extension)(nil)
	_ plugin.OnStatementVoided       = (*Extension)(nil)
	_ plugin.OnStatementRunCompleted = (*Extension)(nil)
	_ plugin.OnOverdueEscalated      = (*Extension)(nil)
	_ plugin.OnAutomationCompleted   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It matches chronicle.Emitter but is defined locally so this package
// carries no Chronicle dependency.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges dues engine events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Record hooks
// ──────────────────────────────────────────────────

// OnFamilyEnrolled implements plugin.OnFamilyEnrolled.
func (e *Extension) OnFamilyEnrolled(ctx context.Context, f *family.Family) error {
	kv := []any{"number", f.Number, "name", f.Name}
	if !f.ParentFamilyID.IsNil() {
		kv = append(kv, "parent_family_id", f.ParentFamilyID.String())
	}
	return e.record(ctx, ActionFamilyEnrolled, SeverityInfo, OutcomeSuccess,
		ResourceFamily, f.ID.String(), f.TenantID, CategoryMembership, nil,
		kv...,
	)
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), p.TenantID, CategoryPayment, nil,
		"family_id", p.FamilyID.String(),
		"amount", p.Amount.String(),
		"type", string(p.Type),
	)
}

// OnWithdrawalRecorded implements plugin.OnWithdrawalRecorded.
func (e *Extension) OnWithdrawalRecorded(ctx context.Context, w *payment.Withdrawal) error {
	return e.record(ctx, ActionWithdrawalRecorded, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, w.ID.String(), w.TenantID, CategoryPayment, nil,
		"family_id", w.FamilyID.String(),
		"amount", w.Amount.String(),
		"reason", w.Reason,
	)
}

// OnLifecycleCharged implements plugin.OnLifecycleCharged.
func (e *Extension) OnLifecycleCharged(ctx context.Context, c *lifecycle.Charge, automatic bool) error {
	action := ActionChargeRecorded
	if automatic {
		action = ActionTriggerApplied
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceCharge, c.ID.String(), c.TenantID, CategoryBilling, nil,
		"family_id", c.FamilyID.String(),
		"kind", string(c.Kind),
		"amount", c.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Statement hooks
// ──────────────────────────────────────────────────

// OnStatementGenerated implements plugin.OnStatementGenerated.
func (e *Extension) OnStatementGenerated(ctx context.Context, s *statement.Statement) error {
	return e.record(ctx, ActionStatementGenerated, SeverityInfo, OutcomeSuccess,
		ResourceStatement, s.ID.String(), s.TenantID, CategoryBilling, nil,
		"number", s.Number,
		"family_id", s.FamilyID.String(),
		"closing_balance", s.ClosingBalance.String(),
	)
}

// OnStatementVoided implements plugin.OnStatementVoided.
func (e *Extension) OnStatementVoided(ctx context.Context, s *statement.Statement, reason string) error {
	return e.record(ctx, ActionStatementVoided, SeverityWarning, OutcomeSuccess,
		ResourceStatement, s.ID.String(), s.TenantID, CategoryBilling, nil,
		"number", s.Number,
		"void_reason", reason,
	)
}

// OnStatementRunCompleted implements plugin.OnStatementRunCompleted.
func (e *Extension) OnStatementRunCompleted(ctx context.Context, run plugin.RunSummary) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if run.Failed > 0 || run.Incomplete {
		outcome, severity = OutcomePartial, SeverityWarning
	}
	return e.record(ctx, ActionStatementRun, severity, outcome,
		ResourceTenant, run.TenantID.String(), run.TenantID, CategoryBilling, nil,
		"period", run.Period.String(),
		"generated", run.Generated,
		"skipped", run.Skipped,
		"failed", run.Failed,
		"incomplete", run.Incomplete,
	)
}

// ──────────────────────────────────────────────────
// Automation hooks
// ──────────────────────────────────────────────────

// OnOverdueEscalated implements plugin.OnOverdueEscalated.
func (e *Extension) OnOverdueEscalated(ctx context.Context, tenantID id.TenantID, c overdue.Classification) error {
	severity := SeverityWarning
	if c.Tier == overdue.Tier3 {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionOverdueEscalated, severity, OutcomeSuccess,
		ResourceFamily, c.FamilyID.String(), tenantID, CategoryCollection, nil,
		"tier", c.Tier.String(),
		"days_overdue", c.DaysOverdue,
		"amount", c.Amount.String(),
	)
}

// OnAutomationCompleted implements plugin.OnAutomationCompleted.
func (e *Extension) OnAutomationCompleted(ctx context.Context, s plugin.AutomationSummary) error {
	action, severity, outcome := ActionAutomationCompleted, SeverityInfo, OutcomeSuccess
	switch {
	case s.Err != nil && s.Generated == 0 && s.Triggers == 0:
		action, severity, outcome = ActionAutomationFailed, SeverityError, OutcomeFailure
	case s.Err != nil:
		action, severity, outcome = ActionAutomationFailed, SeverityWarning, OutcomePartial
	}
	return e.record(ctx, action, severity, outcome,
		ResourceTenant, s.TenantID.String(), s.TenantID, CategoryAutomation, s.Err,
		"period", s.Period.String(),
		"triggers", s.Triggers,
		"generated", s.Generated,
		"dispatched", s.Dispatched,
		"overdue", s.Overdue,
		"elapsed_ms", s.Elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// Recorder failures are logged and never surface to the engine.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID string,
	tenantID id.TenantID,
	category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		TenantID:   tenantID.String(),
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
