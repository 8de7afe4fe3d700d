package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/statement"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins. Hook implementations are
// discovered once at registration and cached per interface.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                  []OnInit
	onShutdown              []OnShutdown
	onFamilyEnrolled        []OnFamilyEnrolled
	onPaymentRecorded       []OnPaymentRecorded
	onWithdrawalRecorded    []OnWithdrawalRecorded
	onLifecycleCharged      []OnLifecycleCharged
	onStatementGenerated    []OnStatementGenerated
	onStatementVoided       []OnStatementVoided
	onStatementRunCompleted []OnStatementRunCompleted
	onOverdueEscalated      []OnOverdueEscalated
	onAutomationCompleted   []OnAutomationCompleted
	dispatchers             []StatementDispatcher
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	cache := func(name string, ok bool, add func()) {
		if ok {
			add()
			hooks = append(hooks, name)
		}
	}

	v1, ok := p.(OnInit)
	cache("OnInit", ok, func() { r.onInit = append(r.onInit, v1) })
	v2, ok := p.(OnShutdown)
	cache("OnShutdown", ok, func() { r.onShutdown = append(r.onShutdown, v2) })
	v3, ok := p.(OnFamilyEnrolled)
	cache("OnFamilyEnrolled", ok, func() { r.onFamilyEnrolled = append(r.onFamilyEnrolled, v3) })
	v4, ok := p.(OnPaymentRecorded)
	cache("OnPaymentRecorded", ok, func() { r.onPaymentRecorded = append(r.onPaymentRecorded, v4) })
	v5, ok := p.(OnWithdrawalRecorded)
	cache("OnWithdrawalRecorded", ok, func() { r.onWithdrawalRecorded = append(r.onWithdrawalRecorded, v5) })
	v6, ok := p.(OnLifecycleCharged)
	cache("OnLifecycleCharged", ok, func() { r.onLifecycleCharged = append(r.onLifecycleCharged, v6) })
	v7, ok := p.(OnStatementGenerated)
	cache("OnStatementGenerated", ok, func() { r.onStatementGenerated = append(r.onStatementGenerated, v7) })
	v8, ok := p.(OnStatementVoided)
	cache("OnStatementVoided", ok, func() { r.onStatementVoided = append(r.onStatementVoided, v8) })
	v9, ok := p.(OnStatementRunCompleted)
	cache("OnStatementRunCompleted", ok, func() { r.onStatementRunCompleted = append(r.onStatementRunCompleted, v9) })
	v10, ok := p.(OnOverdueEscalated)
	cache("OnOverdueEscalated", ok, func() { r.onOverdueEscalated = append(r.onOverdueEscalated, v10) })
	v11, ok := p.(OnAutomationCompleted)
	cache("OnAutomationCompleted", ok, func() { r.onAutomationCompleted = append(r.onAutomationCompleted, v11) })
	v12, ok := p.(StatementDispatcher)
	cache("StatementDispatcher", ok, func() { r.dispatchers = append(r.dispatchers, v12) })

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// HasDispatchers reports whether any StatementDispatcher is registered.
func (r *Registry) HasDispatchers() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dispatchers) > 0
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// snapshot copies a cached hook slice under the read lock.
func snapshot[T Plugin](r *Registry, hooks *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *hooks
}

// emit calls fn for every plugin, logging failures at Warn.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitFamilyEnrolled emits a family enrolled event.
func (r *Registry) EmitFamilyEnrolled(ctx context.Context, f *family.Family) {
	emit(ctx, r, "OnFamilyEnrolled", snapshot(r, &r.onFamilyEnrolled), func(p OnFamilyEnrolled) error {
		return p.OnFamilyEnrolled(ctx, f)
	})
}

// EmitPaymentRecorded emits a payment recorded event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, pay *payment.Payment) {
	emit(ctx, r, "OnPaymentRecorded", snapshot(r, &r.onPaymentRecorded), func(p OnPaymentRecorded) error {
		return p.OnPaymentRecorded(ctx, pay)
	})
}

// EmitWithdrawalRecorded emits a withdrawal recorded event.
func (r *Registry) EmitWithdrawalRecorded(ctx context.Context, w *payment.Withdrawal) {
	emit(ctx, r, "OnWithdrawalRecorded", snapshot(r, &r.onWithdrawalRecorded), func(p OnWithdrawalRecorded) error {
		return p.OnWithdrawalRecorded(ctx, w)
	})
}

// EmitLifecycleCharged emits a lifecycle charge event.
func (r *Registry) EmitLifecycleCharged(ctx context.Context, c *lifecycle.Charge, automatic bool) {
	emit(ctx, r, "OnLifecycleCharged", snapshot(r, &r.onLifecycleCharged), func(p OnLifecycleCharged) error {
		return p.OnLifecycleCharged(ctx, c, automatic)
	})
}

// EmitStatementGenerated emits a statement generated event.
func (r *Registry) EmitStatementGenerated(ctx context.Context, s *statement.Statement) {
	emit(ctx, r, "OnStatementGenerated", snapshot(r, &r.onStatementGenerated), func(p OnStatementGenerated) error {
		return p.OnStatementGenerated(ctx, s)
	})
}

// EmitStatementVoided emits a statement voided event.
func (r *Registry) EmitStatementVoided(ctx context.Context, s *statement.Statement, reason string) {
	emit(ctx, r, "OnStatementVoided", snapshot(r, &r.onStatementVoided), func(p OnStatementVoided) error {
		return p.OnStatementVoided(ctx, s, reason)
	})
}

// EmitStatementRunCompleted emits a statement batch completion event.
func (r *Registry) EmitStatementRunCompleted(ctx context.Context, run RunSummary) {
	emit(ctx, r, "OnStatementRunCompleted", snapshot(r, &r.onStatementRunCompleted), func(p OnStatementRunCompleted) error {
		return p.OnStatementRunCompleted(ctx, run)
	})
}

// EmitOverdueEscalated emits an overdue escalation event.
func (r *Registry) EmitOverdueEscalated(ctx context.Context, tenantID id.TenantID, c overdue.Classification) {
	emit(ctx, r, "OnOverdueEscalated", snapshot(r, &r.onOverdueEscalated), func(p OnOverdueEscalated) error {
		return p.OnOverdueEscalated(ctx, tenantID, c)
	})
}

// EmitAutomationCompleted emits a tenant automation completion event.
func (r *Registry) EmitAutomationCompleted(ctx context.Context, s AutomationSummary) {
	emit(ctx, r, "OnAutomationCompleted", snapshot(r, &r.onAutomationCompleted), func(p OnAutomationCompleted) error {
		return p.OnAutomationCompleted(ctx, s)
	})
}

// Dispatch hands d to every StatementDispatcher and counts the outcomes.
func (r *Registry) Dispatch(ctx context.Context, d Delivery) (delivered, failed int) {
	for _, p := range snapshot(r, &r.dispatchers) {
		err := r.callWithTimeout(ctx, p.Name(), func() error { return p.Dispatch(ctx, d) })
		if err != nil {
			failed++
			r.logger.Warn("statement dispatch failed",
				"plugin", p.Name(),
				"statement", d.Statement.Number,
				"error", err,
			)
			continue
		}
		delivered++
	}
	return delivered, failed
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the statement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
