package plan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
)

type catalog map[string]bool

func (c catalog) Has(name string) bool { return c[name] }

var knownModules = catalog{"core_quality": true, "gdpr_pii": true}

func defaultOpts() LoadOptions {
	return LoadOptions{
		DefaultOutputRoot:    "./out",
		DefaultModuleTimeout: 10 * time.Minute,
		Catalog:              knownModules,
	}
}

func loadYAML(t *testing.T, src string, opts LoadOptions) (*RunSpec, error) {
	t.Helper()
	return Load(strings.NewReader(src), FormatYAML, opts)
}

const twoTables = `
run:
  id: nightly
  output_path: /data/dq
  fail_on: [error]
  continue_on_error: false
tables:
  - name: main.sales.orders
    modules: [core_quality, gdpr_pii]
    config:
      core_quality: {min_rows: 10}
  - name: main.sales.customers
`

func TestLoad_YAML(t *testing.T) {
	spec, err := loadYAML(t, twoTables, defaultOpts())
	require.NoError(t, err)

	assert.Equal(t, "nightly", spec.RunID)
	assert.Equal(t, "/data/dq", spec.OutputRoot)
	assert.Equal(t, filepath.Join("/data/dq", "nightly"), spec.RunDir())
	assert.False(t, spec.ContinueOnError)
	assert.False(t, spec.AllowRaw)
	assert.Equal(t, 10*time.Minute, spec.ModuleTimeout)
	assert.Equal(t, []string{"error"}, spec.FailOn().Strings())
	assert.True(t, spec.ShouldFail(check.SeverityError))
	assert.False(t, spec.ShouldFail(check.SeverityFail))

	tasks := spec.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, []string{"main.sales.orders", "main.sales.customers"}, spec.TableIDs())
	assert.Equal(t, []string{"core_quality", "gdpr_pii"}, tasks[0].Modules)
	assert.Equal(t, 10, tasks[0].ModuleConfig("core_quality")["min_rows"])
	assert.Nil(t, tasks[0].ModuleConfig("gdpr_pii"))
	assert.Equal(t, []string{DefaultModule}, tasks[1].Modules)
}

func TestLoad_TOML(t *testing.T) {
	src := `
[run]
id = "nightly"
fail_on = "warning, fail"
allow_pii_output = true
module_timeout = "90s"

[[tables]]
name = "main.hr.employees"
modules = "gdpr_pii"

[tables.config.gdpr_pii]
sample_rows = 500
`
	spec, err := Load(strings.NewReader(src), FormatTOML, defaultOpts())
	require.NoError(t, err)

	assert.Equal(t, "out", spec.OutputRoot, "falls back to the configured default")
	assert.True(t, spec.ContinueOnError, "continue_on_error defaults to true")
	assert.True(t, spec.AllowRaw)
	assert.Equal(t, 90*time.Second, spec.ModuleTimeout)
	assert.Equal(t, []string{"warning", "fail"}, spec.FailOn().Strings())

	tasks := spec.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"gdpr_pii"}, tasks[0].Modules)
	assert.Equal(t, int64(500), tasks[0].ModuleConfig("gdpr_pii")["sample_rows"])
}

func TestLoad_Defaults(t *testing.T) {
	spec, err := loadYAML(t, "run: {id: r1}\ntables:\n  - name: t1\n", defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"error", "fail"}, spec.FailOn().Strings())
	assert.True(t, spec.ContinueOnError)
	assert.False(t, spec.AllowRaw)
}

func TestLoad_Overrides(t *testing.T) {
	opts := defaultOpts()
	opts.RunID = "rerun-7"
	opts.OutputRoot = "dbfs:/mnt/dq"
	opts.FailOn = []string{"fail"}
	opts.AllowRaw = true
	opts.ModuleTimeout = 30 * time.Second
	opts.Limit = 1

	spec, err := loadYAML(t, twoTables, opts)
	require.NoError(t, err)

	assert.Equal(t, "rerun-7", spec.RunID)
	assert.Equal(t, "/dbfs/mnt/dq", spec.OutputRoot)
	assert.Equal(t, []string{"fail"}, spec.FailOn().Strings())
	assert.True(t, spec.AllowRaw)
	assert.Equal(t, 30*time.Second, spec.ModuleTimeout)
	assert.Equal(t, []string{"main.sales.orders"}, spec.TableIDs())
}

func TestLoad_SpecErrors(t *testing.T) {
	tests := []struct {
		name    string
		plan    string
		opts    func(*LoadOptions)
		wantErr string
	}{
		{
			name:    "missing run id",
			plan:    "tables:\n  - name: t1\n",
			wantErr: "run.id is required",
		},
		{
			name:    "run id with separator",
			plan:    "run: {id: a/b}\ntables:\n  - name: t1\n",
			wantErr: "path separators",
		},
		{
			name:    "no tables",
			plan:    "run: {id: r1}\n",
			wantErr: "at least 1 table",
		},
		{
			name:    "table without name",
			plan:    "run: {id: r1}\ntables:\n  - modules: [core_quality]\n",
			wantErr: "tables[1].name is required",
		},
		{
			name:    "duplicate table",
			plan:    "run: {id: r1}\ntables:\n  - name: t1\n  - name: t2\n  - name: t1\n",
			wantErr: `tables[3]: duplicate table "t1"`,
		},
		{
			name:    "unknown fail_on severity",
			plan:    "run: {id: r1, fail_on: [error, catastrophic]}\ntables:\n  - name: t1\n",
			wantErr: `unknown severity "catastrophic"`,
		},
		{
			name:    "ok is not a failure severity",
			plan:    "run: {id: r1, fail_on: ok}\ntables:\n  - name: t1\n",
			wantErr: `unknown severity "ok"`,
		},
		{
			name:    "unknown module",
			plan:    "run: {id: r1}\ntables:\n  - name: t1\n    modules: [row_magic]\n",
			wantErr: `unknown module "row_magic"`,
		},
		{
			name:    "config for unlisted module",
			plan:    "run: {id: r1}\ntables:\n  - name: t1\n    modules: [core_quality]\n    config:\n      gdpr_pii: {sample_rows: 5}\n",
			wantErr: "not in its modules",
		},
		{
			name:    "bad timeout",
			plan:    "run: {id: r1, module_timeout: soon}\ntables:\n  - name: t1\n",
			wantErr: "not a duration",
		},
		{
			name:    "non-positive timeout",
			plan:    "run: {id: r1, module_timeout: 0s}\ntables:\n  - name: t1\n",
			wantErr: "positive duration",
		},
		{
			name:    "unknown key",
			plan:    "run: {id: r1, fail_fast: true}\ntables:\n  - name: t1\n",
			wantErr: "invalid YAML plan",
		},
		{
			name:    "empty plan",
			plan:    "",
			wantErr: "plan is empty",
		},
		{
			name:    "version constraint not met",
			plan:    "run: {id: r1, requires: '>= 2.0.0'}\ntables:\n  - name: t1\n",
			opts:    func(o *LoadOptions) { o.RunnerVersion = "1.4.0" },
			wantErr: "plan requires dcheck >= 2.0.0",
		},
		{
			name:    "negative limit",
			plan:    "run: {id: r1}\ntables:\n  - name: t1\n",
			opts:    func(o *LoadOptions) { o.Limit = -1 },
			wantErr: "limit must be >= 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOpts()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			_, err := loadYAML(t, tt.plan, opts)
			require.Error(t, err)
			assert.True(t, errors.IsSpecError(err), "expected a spec error, got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Requires(t *testing.T) {
	plan := "run: {id: r1, requires: '>= 0.3.0, < 1.0.0'}\ntables:\n  - name: t1\n"

	opts := defaultOpts()
	opts.RunnerVersion = "0.4.1"
	_, err := loadYAML(t, plan, opts)
	assert.NoError(t, err)

	opts.RunnerVersion = "dev"
	_, err = loadYAML(t, plan, opts)
	assert.NoError(t, err, "development builds skip the check")
}

func TestRunSpec_TasksAreCopies(t *testing.T) {
	spec, err := loadYAML(t, twoTables, defaultOpts())
	require.NoError(t, err)

	tasks := spec.Tasks()
	tasks[0].TableID = "mutated"
	assert.Equal(t, "main.sales.orders", spec.Tasks()[0].TableID)

	tasks[0].Modules[0] = "row_magic"
	tasks[0].Config["core_quality"]["min_rows"] = 0
	tasks[0].Config["gdpr_pii"] = map[string]any{"sample_rows": 1}
	fresh := spec.Tasks()[0]
	assert.Equal(t, []string{"core_quality", "gdpr_pii"}, fresh.Modules)
	assert.Equal(t, 10, fresh.ModuleConfig("core_quality")["min_rows"])
	assert.Nil(t, fresh.ModuleConfig("gdpr_pii"))

	set := spec.FailOn()
	set[check.SeverityWarning] = struct{}{}
	assert.False(t, spec.ShouldFail(check.SeverityWarning))
}

func TestRunSpec_TasksCopyNestedConfig(t *testing.T) {
	plan := "run: {id: r1}\ntables:\n  - name: t1\n    modules: [core_quality]\n" +
		"    config:\n      core_quality: {required_columns: [id, amount], thresholds: {nulls: 0.5}}\n"
	spec, err := loadYAML(t, plan, defaultOpts())
	require.NoError(t, err)

	cfg := spec.Tasks()[0].ModuleConfig("core_quality")
	cfg["required_columns"].([]any)[0] = "mutated"
	cfg["thresholds"].(map[string]any)["nulls"] = 1.0

	fresh := spec.Tasks()[0].ModuleConfig("core_quality")
	assert.Equal(t, []any{"id", "amount"}, fresh["required_columns"])
	assert.Equal(t, map[string]any{"nulls": 0.5}, fresh["thresholds"])
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte(twoTables), 0644))

	spec, err := LoadFile(path, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, path, spec.Source)

	_, err = LoadFile(filepath.Join(dir, "plan.json"), defaultOpts())
	assert.True(t, errors.IsSpecError(err))

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"), defaultOpts())
	assert.True(t, errors.IsSpecError(err))
}

func TestFetch_LocalPathPassesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoTables), 0644))

	got, err := Fetch(context.Background(), path, t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestNormalizeOutputRoot(t *testing.T) {
	assert.Equal(t, "/dbfs/mnt/out", NormalizeOutputRoot("dbfs:/mnt/out"))
	assert.Equal(t, "out", NormalizeOutputRoot("./out/"))
	assert.Equal(t, "", NormalizeOutputRoot(""))
}
