// Package config loads dcheck runner configuration with Viper.
//
// Precedence (lowest to highest): defaults < /etc/dcheck/config.toml <
// ~/.dcheck/config.toml < project dcheck.toml (found by walking up from the
// working directory) < DCHECK_* environment variables < command-line flags.
package config

import "time"

// Config represents the runner configuration
type Config struct {
	Runner RunnerConfig `mapstructure:"runner" toml:"runner"`
	Log    LogConfig    `mapstructure:"log" toml:"log"`
	Source SourceConfig `mapstructure:"source" toml:"source"`
}

// RunnerConfig configures the orchestrator
type RunnerConfig struct {
	OutputRoot           string `mapstructure:"output_root" toml:"output_root"`                       // Default output root when the plan has none
	ModuleTimeoutSeconds int    `mapstructure:"module_timeout_seconds" toml:"module_timeout_seconds"` // Bound on each module invocation
	TasksPerMinute       int    `mapstructure:"tasks_per_minute" toml:"tasks_per_minute"`             // 0 = unthrottled
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"` // Structured JSON logs on stdout
}

// SourceConfig configures the table source the built-in modules read from
type SourceConfig struct {
	Driver string `mapstructure:"driver" toml:"driver"` // Only "sqlite3" ships with dcheck
	DSN    string `mapstructure:"dsn" toml:"dsn"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// ModuleTimeout returns the configured module timeout as a duration
func (c *Config) ModuleTimeout() time.Duration {
	return time.Duration(c.Runner.ModuleTimeoutSeconds) * time.Second
}
