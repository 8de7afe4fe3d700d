// Package plugin provides an extensible plugin system for the dues engine.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/tenant"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Record hooks
// ──────────────────────────────────────────────────

// OnFamilyEnrolled is called after a family is created, including
// families formed by a member's marriage.
type OnFamilyEnrolled interface {
	Plugin
	OnFamilyEnrolled(ctx context.Context, f *family.Family) error
}

// OnPaymentRecorded is called after a payment is stored.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, p *payment.Payment) error
}

// OnWithdrawalRecorded is called after a withdrawal is stored.
type OnWithdrawalRecorded interface {
	Plugin
	OnWithdrawalRecorded(ctx context.Context, w *payment.Withdrawal) error
}

// OnLifecycleCharged is called after a lifecycle charge is stored.
// automatic is true for charges raised by trigger detection.
type OnLifecycleCharged interface {
	Plugin
	OnLifecycleCharged(ctx context.Context, c *lifecycle.Charge, automatic bool) error
}

// ──────────────────────────────────────────────────
// Statement hooks
// ──────────────────────────────────────────────────

// OnStatementGenerated is called once per newly stored statement.
type OnStatementGenerated interface {
	Plugin
	OnStatementGenerated(ctx context.Context, s *statement.Statement) error
}

// OnStatementVoided is called after a statement is voided.
type OnStatementVoided interface {
	Plugin
	OnStatementVoided(ctx context.Context, s *statement.Statement, reason string) error
}

// RunSummary describes one finished statement batch.
type RunSummary struct {
	TenantID   id.TenantID
	Period     statement.Period
	Generated  int
	Skipped    int
	Failed     int
	Incomplete bool
	Elapsed    time.Duration
}

// OnStatementRunCompleted is called when a statement batch finishes,
// including batches cut short by cancellation.
type OnStatementRunCompleted interface {
	Plugin
	OnStatementRunCompleted(ctx context.Context, run RunSummary) error
}

// ──────────────────────────────────────────────────
// Automation hooks
// ──────────────────────────────────────────────────

// OnOverdueEscalated is called for every family the monthly automation
// finds overdue.
type OnOverdueEscalated interface {
	Plugin
	OnOverdueEscalated(ctx context.Context, tenantID id.TenantID, c overdue.Classification) error
}

// AutomationSummary describes one tenant's automation pipeline.
type AutomationSummary struct {
	TenantID       id.TenantID
	Period         statement.Period
	Triggers       int
	Generated      int
	Skipped        int
	Failed         int
	Dispatched     int
	DispatchFailed int
	Overdue        int
	Err            error
	Elapsed        time.Duration
}

// OnAutomationCompleted is called after each tenant pipeline, whether it
// succeeded or not.
type OnAutomationCompleted interface {
	Plugin
	OnAutomationCompleted(ctx context.Context, s AutomationSummary) error
}

// ──────────────────────────────────────────────────
// Statement dispatch
// ──────────────────────────────────────────────────

// Delivery is everything a dispatcher needs to deliver one statement.
type Delivery struct {
	Tenant    *tenant.Tenant
	Family    *family.Family
	Statement *statement.Statement
}

// StatementDispatcher delivers generated statements (email, queue, push).
// Failures are counted by the caller and never fail the pipeline.
type StatementDispatcher interface {
	Plugin
	Dispatch(ctx context.Context, d Delivery) error
}
