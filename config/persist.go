package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/dcheck/errors"
)

// Default returns a Config populated with the built-in defaults
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			OutputRoot:           DefaultOutputRoot,
			ModuleTimeoutSeconds: DefaultModuleTimeoutSeconds,
		},
		Source: SourceConfig{
			Driver: DefaultSourceDriver,
			DSN:    DefaultSourceDSN,
		},
	}
}

// WriteStarter writes cfg as TOML to path. An existing file is kept as
// path.back1 so an accidental `config init` can be undone.
func WriteStarter(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	if content, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".back1", content, DefaultFilePermissions); err != nil {
			return errors.Wrap(err, "failed to create .back1")
		}
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config to %s", path)
	}
	return nil
}

// Render returns cfg as TOML, for `dcheck config show`
func Render(cfg *Config) (string, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal config")
	}
	return string(data), nil
}
