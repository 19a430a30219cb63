package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance, no user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultOutputRoot, cfg.Runner.OutputRoot)
	assert.Equal(t, 10*time.Minute, cfg.ModuleTimeout())
	assert.Equal(t, 0, cfg.Runner.TasksPerMinute)
	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, "sqlite3", cfg.Source.Driver)
	assert.Equal(t, DefaultSourceDSN, cfg.Source.DSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero throttle is valid (unthrottled)", mutate: func(c *Config) { c.Runner.TasksPerMinute = 0 }},
		{
			name:    "negative throttle is invalid",
			mutate:  func(c *Config) { c.Runner.TasksPerMinute = -1 },
			wantErr: "runner.tasks_per_minute must be >= 0, got -1",
		},
		{
			name:    "zero module timeout is invalid",
			mutate:  func(c *Config) { c.Runner.ModuleTimeoutSeconds = 0 },
			wantErr: "runner.module_timeout_seconds must be > 0",
		},
		{
			name:    "empty output root is invalid",
			mutate:  func(c *Config) { c.Runner.OutputRoot = "" },
			wantErr: "runner.output_root cannot be empty",
		},
		{
			name:    "unknown driver is invalid",
			mutate:  func(c *Config) { c.Source.Driver = "postgres" },
			wantErr: "not supported",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "dcheck.toml")
	content := `
[runner]
output_root = "/data/dq"
module_timeout_seconds = 30

[source]
dsn = "/data/warehouse.db"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/data/dq", cfg.Runner.OutputRoot)
	assert.Equal(t, 30*time.Second, cfg.ModuleTimeout())
	assert.Equal(t, "/data/warehouse.db", cfg.Source.DSN)
	// untouched keys keep their defaults
	assert.Equal(t, "sqlite3", cfg.Source.Driver)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "dcheck.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[runner]\ntasks_per_minute = -5\n"), 0644))

	_, err := LoadFromFile(configPath)
	assert.ErrorContains(t, err, "invalid configuration")

	_, err = LoadFromFile(filepath.Join(tmpDir, "missing.toml"))
	assert.Error(t, err)
}

func TestMergeConfigFiles_Precedence(t *testing.T) {
	tmpDir := t.TempDir()
	system := filepath.Join(tmpDir, "system.toml")
	project := filepath.Join(tmpDir, "project.toml")
	require.NoError(t, os.WriteFile(system, []byte("[runner]\noutput_root = \"/system\"\ntasks_per_minute = 5\n"), 0644))
	require.NoError(t, os.WriteFile(project, []byte("[runner]\noutput_root = \"/project\"\n"), 0644))

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []string{system, filepath.Join(tmpDir, "absent.toml"), project})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, "/project", cfg.Runner.OutputRoot)
	assert.Equal(t, 5, cfg.Runner.TasksPerMinute)
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	assert.Empty(t, findProjectConfig(nested))

	target := filepath.Join(root, ProjectConfigName)
	require.NoError(t, os.WriteFile(target, []byte(""), 0644))
	assert.Equal(t, target, findProjectConfig(nested))
}

func TestWriteStarter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "dcheck.toml")
	cfg := Default()
	cfg.Runner.TasksPerMinute = 12

	require.NoError(t, WriteStarter(path, cfg))
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	// second write keeps a backup of the first
	require.NoError(t, WriteStarter(path, Default()))
	_, err = os.Stat(path + ".back1")
	assert.NoError(t, err)

	rendered, err := Render(cfg)
	require.NoError(t, err)
	assert.Contains(t, rendered, "tasks_per_minute = 12")
}
