// Package observability provides a metrics extension for the dues engine
// that records event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/statement"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnFamilyEnrolled        = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded       = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalRecorded    = (*MetricsExtension)(nil)
	_ plugin.OnLifecycleCharged      = (*MetricsExtension)(nil)
	_ plugin.OnStatementGenerated    = (*MetricsExtension)(nil)
	_ plugin.OnStatementVoided       = (*MetricsExtension)(nil)
	_ plugin.OnStatementRunCompleted = (*MetricsExtension)(nil)
	_ plugin.OnOverdueEscalated      = (*MetricsExtension)(nil)
	_ plugin.OnAutomationCompleted   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine-wide metrics.
// Register it as a dues plugin to track ledger and automation activity.
type MetricsExtension struct {
	factory MetricFactory

	// Record metrics
	FamiliesEnrolled    Counter
	SubFamiliesFormed   Counter
	PaymentsRecorded    Counter
	PaymentAmount       Histogram
	WithdrawalsRecorded Counter
	ChargesRecorded     Counter
	TriggersApplied     Counter

	// Statement metrics
	StatementsGenerated Counter
	StatementsVoided    Counter
	StatementsSkipped   Counter
	StatementsFailed    Counter
	StatementRunLatency Histogram
	RunsIncomplete      Counter

	// Overdue metrics
	OverdueTier1 Counter
	OverdueTier2 Counter
	OverdueTier3 Counter
	OverdueDays  Histogram

	// Automation metrics
	AutomationRuns      Counter
	AutomationFailures  Counter
	AutomationLatency   Histogram
	StatementsSent      Counter
	StatementSendFailed Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Record metrics
		FamiliesEnrolled:    factory.Counter("dues.family.enrolled"),
		SubFamiliesFormed:   factory.Counter("dues.family.sub_family_formed"),
		PaymentsRecorded:    factory.Counter("dues.payment.recorded"),
		PaymentAmount:       factory.Histogram("dues.payment.amount_minor"),
		WithdrawalsRecorded: factory.Counter("dues.withdrawal.recorded"),
		ChargesRecorded:     factory.Counter("dues.lifecycle.charged"),
		TriggersApplied:     factory.Counter("dues.lifecycle.triggers_applied"),

		// Statement metrics
		StatementsGenerated: factory.Counter("dues.statement.generated"),
		StatementsVoided:    factory.Counter("dues.statement.voided"),
		StatementsSkipped:   factory.Counter("dues.statement.skipped"),
		StatementsFailed:    factory.Counter("dues.statement.failed"),
		StatementRunLatency: factory.Histogram("dues.statement.run.latency_ms"),
		RunsIncomplete:      factory.Counter("dues.statement.run.incomplete"),

		// Overdue metrics
		OverdueTier1: factory.Counter("dues.overdue.tier1"),
		OverdueTier2: factory.Counter("dues.overdue.tier2"),
		OverdueTier3: factory.Counter("dues.overdue.tier3"),
		OverdueDays:  factory.Histogram("dues.overdue.days"),

		// Automation metrics
		AutomationRuns:      factory.Counter("dues.automation.runs"),
		AutomationFailures:  factory.Counter("dues.automation.failures"),
		AutomationLatency:   factory.Histogram("dues.automation.latency_ms"),
		StatementsSent:      factory.Counter("dues.dispatch.sent"),
		StatementSendFailed: factory.Counter("dues.dispatch.failed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Record hooks
// ──────────────────────────────────────────────────

// OnFamilyEnrolled implements plugin.OnFamilyEnrolled.
func (m *MetricsExtension) OnFamilyEnrolled(_ context.Context, f *family.Family) error {
	m.FamiliesEnrolled.Inc()
	if !f.ParentFamilyID.IsNil() {
		m.SubFamiliesFormed.Inc()
	}
	return nil
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, p *payment.Payment) error {
	m.PaymentsRecorded.Inc()
	m.PaymentAmount.Observe(float64(p.Amount.Amount))
	return nil
}

// OnWithdrawalRecorded implements plugin.OnWithdrawalRecorded.
func (m *MetricsExtension) OnWithdrawalRecorded(_ context.Context, _ *payment.Withdrawal) error {
	m.WithdrawalsRecorded.Inc()
	return nil
}

// OnLifecycleCharged implements plugin.OnLifecycleCharged.
func (m *MetricsExtension) OnLifecycleCharged(_ context.Context, _ *lifecycle.Charge, automatic bool) error {
	m.ChargesRecorded.Inc()
	if automatic {
		m.TriggersApplied.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Statement hooks
// ──────────────────────────────────────────────────

// OnStatementGenerated implements plugin.OnStatementGenerated.
func (m *MetricsExtension) OnStatementGenerated(_ context.Context, _ *statement.Statement) error {
	m.StatementsGenerated.Inc()
	return nil
}

// OnStatementVoided implements plugin.OnStatementVoided.
func (m *MetricsExtension) OnStatementVoided(_ context.Context, _ *statement.Statement, _ string) error {
	m.StatementsVoided.Inc()
	return nil
}

// OnStatementRunCompleted implements plugin.OnStatementRunCompleted.
// Generated statements are counted per statement by OnStatementGenerated.
func (m *MetricsExtension) OnStatementRunCompleted(_ context.Context, run plugin.RunSummary) error {
	m.StatementsSkipped.Add(float64(run.Skipped))
	m.StatementsFailed.Add(float64(run.Failed))
	m.StatementRunLatency.Observe(float64(run.Elapsed.Milliseconds()))
	if run.Incomplete {
		m.RunsIncomplete.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Automation hooks
// ──────────────────────────────────────────────────

// OnOverdueEscalated implements plugin.OnOverdueEscalated.
func (m *MetricsExtension) OnOverdueEscalated(_ context.Context, _ id.TenantID, c overdue.Classification) error {
	switch c.Tier {
	case overdue.Tier1:
		m.OverdueTier1.Inc()
	case overdue.Tier2:
		m.OverdueTier2.Inc()
	case overdue.Tier3:
		m.OverdueTier3.Inc()
	}
	m.OverdueDays.Observe(float64(c.DaysOverdue))
	return nil
}

// OnAutomationCompleted implements plugin.OnAutomationCompleted.
func (m *MetricsExtension) OnAutomationCompleted(_ context.Context, s plugin.AutomationSummary) error {
	m.AutomationRuns.Inc()
	if s.Err != nil {
		m.AutomationFailures.Inc()
	}
	m.AutomationLatency.Observe(float64(s.Elapsed.Milliseconds()))
	m.StatementsSent.Add(float64(s.Dispatched))
	m.StatementSendFailed.Add(float64(s.DispatchFailed))
	return nil
}
