package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values
const (
	DefaultOutputRoot           = "./out"
	DefaultModuleTimeoutSeconds = 600
	DefaultSourceDriver         = "sqlite3"
	DefaultSourceDSN            = "warehouse.db"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("runner.output_root", DefaultOutputRoot)
	v.SetDefault("runner.module_timeout_seconds", DefaultModuleTimeoutSeconds)
	v.SetDefault("runner.tasks_per_minute", 0)

	v.SetDefault("log.json", false)

	v.SetDefault("source.driver", DefaultSourceDriver)
	v.SetDefault("source.dsn", DefaultSourceDSN)
}

// BindSensitiveEnvVars explicitly binds values that are usually injected by
// the job scheduler rather than written to files
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("source.dsn", "DCHECK_SOURCE_DSN")
	_ = v.BindEnv("runner.output_root", "DCHECK_OUTPUT_ROOT")
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Runner: {OutputRoot: %s, ModuleTimeout: %ds, TasksPerMinute: %d}, Source: {Driver: %s}}",
		c.Runner.OutputRoot, c.Runner.ModuleTimeoutSeconds, c.Runner.TasksPerMinute, c.Source.Driver)
}
