package extension

import "time"

// Config holds the dues extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.dues" or "dues" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Workers bounds the family worker pool of one statement run (default: 8).
	Workers int `json:"workers" mapstructure:"workers" yaml:"workers"`

	// TenantParallelism bounds how many tenant pipelines an automation run
	// executes at once (default: 4).
	TenantParallelism int `json:"tenant_parallelism" mapstructure:"tenant_parallelism" yaml:"tenant_parallelism"`

	// PluginTimeout bounds a single plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           8,
		TenantParallelism: 4,
		PluginTimeout:     5 * time.Second,
	}
}
