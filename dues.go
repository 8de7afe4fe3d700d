package dues

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/temporal"
)

// Engine is the ledger and statement engine. It holds no per-tenant state;
// every call reads what it needs from the store.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   func() time.Time

	// Configuration
	workers           int
	tenantParallelism int
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:             s,
		plugins:           plugin.NewRegistry(),
		logger:            slog.Default(),
		clock:             time.Now,
		workers:           4,
		tenantParallelism: 4,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the wall clock used to decide "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.clock = now
	}
}

// WithWorkers bounds the number of families processed concurrently within
// one tenant's statement run.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTenantParallelism bounds the number of tenant pipelines run at once
// by RunMonthlyAutomations.
func WithTenantParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.tenantParallelism = n
		}
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("dues engine started",
		"workers", e.workers,
		"tenant_parallelism", e.tenantParallelism,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Today returns the current civil date according to the engine clock.
func (e *Engine) Today() time.Time {
	return temporal.Day(e.clock())
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}
