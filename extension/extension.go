// Package extension provides the Forge extension adapter for the dues
// engine.
//
// It implements the forge.Extension interface to integrate dues into a
// Forge application with DI registration and lifecycle management. The
// extension never schedules automations itself; a cron job or an admin
// endpoint resolves *dues.Engine from the container and calls
// RunMonthlyAutomations.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.dues" or "dues" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/dues"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "dues"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Family dues ledger and statement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the dues engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *dues.Engine
	store      store.Store
	engineOpts []dues.Option
}

// New creates a new dues Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *dues.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = dues.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*dues.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("dues: extension not initialized")
	}

	if e.config.DisableMigrate {
		// Migrations run elsewhere; plugins still need OnInit.
		e.engine.Plugins().EmitInit(ctx, e.engine)
	} else if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("dues: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs dues.Option values from the resolved config.
// Pass-through options come last so they override config-derived ones.
func (e *Extension) buildEngineOpts() []dues.Option {
	opts := make([]dues.Option, 0, len(e.engineOpts)+3)

	if e.config.Workers > 0 {
		opts = append(opts, dues.WithWorkers(e.config.Workers))
	}
	if e.config.TenantParallelism > 0 {
		opts = append(opts, dues.WithTenantParallelism(e.config.TenantParallelism))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, dues.WithPluginTimeout(e.config.PluginTimeout))
	}

	return append(opts, e.engineOpts...)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("dues: configuration is required but not found in config files; " +
				"ensure 'extensions.dues' or 'dues' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("dues: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("workers", e.config.Workers),
		forge.F("tenant_parallelism", e.config.TenantParallelism),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.dues", "dues"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("dues: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("dues: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Workers == 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.TenantParallelism == 0 {
		cfg.TenantParallelism = defaults.TenantParallelism
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.Workers == 0 {
		yamlConfig.Workers = programmaticConfig.Workers
	}
	if yamlConfig.TenantParallelism == 0 {
		yamlConfig.TenantParallelism = programmaticConfig.TenantParallelism
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	return mergeWithDefaults(yamlConfig)
}
