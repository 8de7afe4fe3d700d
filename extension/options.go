package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/dues"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/store/mongo"
	"github.com/xraph/dues/store/postgres"
	"github.com/xraph/dues/store/sqlite"
)

// Option configures the dues Forge extension.
type Option func(*Extension)

// WithStore sets the store for the dues engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres backs the engine with a PostgreSQL grove database.
func WithPostgres(db *grove.DB) Option {
	return func(e *Extension) { e.store = postgres.New(db) }
}

// WithSQLite backs the engine with a SQLite grove database.
func WithSQLite(db *grove.DB) Option {
	return func(e *Extension) { e.store = sqlite.New(db) }
}

// WithMongo backs the engine with a MongoDB grove database.
func WithMongo(db *grove.DB) Option {
	return func(e *Extension) { e.store = mongo.New(db) }
}

// WithEngineOption passes a dues.Option through to the underlying engine.
func WithEngineOption(opt dues.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a dues plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, dues.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithWorkers sets the family worker pool size.
func WithWorkers(n int) Option {
	return func(e *Extension) { e.config.Workers = n }
}

// WithTenantParallelism sets how many tenant pipelines run at once.
func WithTenantParallelism(n int) Option {
	return func(e *Extension) { e.config.TenantParallelism = n }
}

// WithPluginTimeout sets the per-hook timeout.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}
