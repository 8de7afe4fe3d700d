// Package config loads duesctl settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds duesctl settings. Dispatch is enabled per transport when its
// host or URL is set.
type Config struct {
	// Dataset
	DataFile string

	// Engine
	Workers           int
	TenantParallelism int
	PluginTimeout     time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	LogLevel string
}

// Load reads the configuration from DUES_* and transport variables.
func Load() *Config {
	return &Config{
		DataFile: getEnv("DUES_DATA", "./dues.yaml"),

		Workers:           getEnvInt("DUES_WORKERS", 8),
		TenantParallelism: getEnvInt("DUES_TENANT_PARALLELISM", 4),
		PluginTimeout:     getEnvDuration("DUES_PLUGIN_TIMEOUT", 5*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "dues"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "statements_ready"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.DataFile == "" {
		problems = append(problems, "DUES_DATA cannot be empty")
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("invalid worker count %d: must be at least 1", c.Workers))
	}
	if c.TenantParallelism < 1 {
		problems = append(problems, fmt.Sprintf("invalid tenant parallelism %d: must be at least 1", c.TenantParallelism))
	}
	if c.PluginTimeout <= 0 {
		problems = append(problems, "plugin timeout must be positive")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SMTPHost != "" && (c.SMTPPort < 1 || c.SMTPPort > 65535) {
		problems = append(problems, fmt.Sprintf("invalid SMTP port %d: must be between 1 and 65535", c.SMTPPort))
	}

	if _, err := c.Level(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.New("configuration validation failed: " + strings.Join(problems, "; "))
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s'", c.LogLevel)
	}
	return l, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
