package config

import "github.com/teranos/dcheck/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Runner.OutputRoot == "" {
		return errors.New("runner.output_root cannot be empty")
	}

	// Module timeout: a zero timeout would let a module block forever
	if c.Runner.ModuleTimeoutSeconds <= 0 {
		return errors.Newf("runner.module_timeout_seconds must be > 0, got %d", c.Runner.ModuleTimeoutSeconds)
	}

	// Throttle: 0 = unthrottled, negative = invalid
	if c.Runner.TasksPerMinute < 0 {
		return errors.Newf("runner.tasks_per_minute must be >= 0, got %d", c.Runner.TasksPerMinute)
	}

	if c.Source.Driver != "" && c.Source.Driver != DefaultSourceDriver {
		return errors.Newf("source.driver %q is not supported (only %q ships with dcheck)", c.Source.Driver, DefaultSourceDriver)
	}

	return nil
}
