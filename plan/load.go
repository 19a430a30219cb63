package plan

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/version"
)

// Format identifies the plan encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the plan format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", errors.NewSpecError("%s: unsupported plan format (want .yaml, .yml or .toml)", path)
	}
}

// Catalog reports which module names can be executed. *check.Registry
// satisfies it.
type Catalog interface {
	Has(name string) bool
}

// LoadOptions carries command-line overrides and configuration defaults.
// Overrides win over the plan; the plan wins over defaults.
type LoadOptions struct {
	// Overrides
	RunID         string
	OutputRoot    string
	FailOn        []string
	AllowRaw      bool // can only enable raw output, never disable it
	ModuleTimeout time.Duration
	Limit         int // first N tables, 0 = all

	// Defaults from configuration
	DefaultOutputRoot    string
	DefaultModuleTimeout time.Duration

	// Catalog of known modules. nil skips the module name check.
	Catalog Catalog

	// RunnerVersion is checked against the plan's requires constraint.
	// Development builds skip the check.
	RunnerVersion string

	// Source is recorded on the RunSpec for audit
	Source string
}

// LoadFile reads and validates the plan at path
func LoadFile(path string, opts LoadOptions) (*RunSpec, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to open plan %s", path), errors.ErrSpecInvalid)
	}
	defer f.Close()

	if opts.Source == "" {
		opts.Source = path
	}
	spec, err := Load(f, format, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return spec, nil
}

// Load decodes and validates a plan. It has no side effects; every failure
// is a spec error.
func Load(r io.Reader, format Format, opts LoadOptions) (*RunSpec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read plan"), errors.ErrSpecInvalid)
	}

	doc, err := decode(data, format)
	if err != nil {
		return nil, err
	}
	return build(doc, opts)
}

func decode(data []byte, format Format) (*document, error) {
	var doc document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.NewSpecError("plan is empty")
			}
			return nil, errors.Mark(errors.Wrap(err, "invalid YAML plan"), errors.ErrSpecInvalid)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &doc)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "invalid TOML plan"), errors.ErrSpecInvalid)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.NewSpecError("unknown plan keys: %v", undecoded)
		}
	default:
		return nil, errors.NewSpecError("unsupported plan format %q", format)
	}
	return &doc, nil
}

func build(doc *document, opts LoadOptions) (*RunSpec, error) {
	spec := &RunSpec{
		RunID:           firstNonEmpty(opts.RunID, doc.Run.ID),
		OutputRoot:      NormalizeOutputRoot(firstNonEmpty(opts.OutputRoot, doc.Run.OutputPath, doc.Run.Output, opts.DefaultOutputRoot)),
		ContinueOnError: true,
		AllowRaw:        doc.Run.AllowPIIOutput || opts.AllowRaw,
		Requires:        strings.TrimSpace(doc.Run.Requires),
		Source:          opts.Source,
	}
	if doc.Run.ContinueOnError != nil {
		spec.ContinueOnError = *doc.Run.ContinueOnError
	}

	if spec.RunID == "" {
		return nil, errors.NewSpecError("run.id is required")
	}
	if strings.ContainsAny(spec.RunID, `/\`) || spec.RunID == "." || spec.RunID == ".." {
		return nil, errors.NewSpecError("run.id %q must not contain path separators", spec.RunID)
	}
	if spec.OutputRoot == "" {
		return nil, errors.NewSpecError("run.output_path is required")
	}

	failOn, err := parseFailOn(doc.Run.FailOn, opts.FailOn)
	if err != nil {
		return nil, err
	}
	spec.failOn = failOn

	timeout, err := resolveTimeout(doc.Run.ModuleTimeout, opts)
	if err != nil {
		return nil, err
	}
	spec.ModuleTimeout = timeout

	if err := checkRequires(spec.Requires, opts.RunnerVersion); err != nil {
		return nil, err
	}

	tasks, err := buildTasks(doc.Tables, opts.Catalog)
	if err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, errors.NewSpecError("limit must be >= 0, got %d", opts.Limit)
	}
	if opts.Limit > 0 && opts.Limit < len(tasks) {
		tasks = tasks[:opts.Limit]
	}
	spec.tasks = tasks

	return spec, nil
}

func parseFailOn(fromPlan stringList, override []string) (check.SeveritySet, error) {
	names := fromPlan.values
	if override != nil {
		names = trimAll(override)
	}
	if len(names) == 0 {
		return check.NewSeveritySet(DefaultFailOn...), nil
	}

	set := check.NewSeveritySet()
	for _, name := range names {
		sev, err := check.ParseSeverity(name)
		if err != nil || sev == check.SeverityOK {
			return nil, errors.NewSpecError("unknown severity %q in run.fail_on (allowed: warning, error, fail)", name)
		}
		set[sev] = struct{}{}
	}
	return set, nil
}

func resolveTimeout(fromPlan string, opts LoadOptions) (time.Duration, error) {
	timeout := opts.DefaultModuleTimeout
	if fromPlan != "" {
		d, err := time.ParseDuration(fromPlan)
		if err != nil {
			return 0, errors.NewSpecError("run.module_timeout %q is not a duration (e.g. 90s, 5m)", fromPlan)
		}
		timeout = d
	}
	if opts.ModuleTimeout != 0 {
		timeout = opts.ModuleTimeout
	}
	if timeout <= 0 {
		return 0, errors.NewSpecError("module timeout must be a positive duration, got %s", timeout)
	}
	return timeout, nil
}

func checkRequires(requires, runnerVersion string) error {
	if err := (version.Info{Version: runnerVersion}).Check(requires); err != nil {
		return errors.NewSpecError("run.requires: %v", err)
	}
	return nil
}

func buildTasks(tables []tableSection, catalog Catalog) ([]TableTask, error) {
	if len(tables) == 0 {
		return nil, errors.NewSpecError("tables must contain at least 1 table entry")
	}

	seen := make(map[string]int, len(tables))
	tasks := make([]TableTask, 0, len(tables))
	for i, t := range tables {
		pos := i + 1
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, errors.NewSpecError("tables[%d].name is required", pos)
		}
		if first, dup := seen[name]; dup {
			return nil, errors.NewSpecError("tables[%d]: duplicate table %q (first defined at tables[%d])", pos, name, first)
		}
		seen[name] = pos

		modules := t.Modules.values
		if !t.Modules.set {
			modules = []string{DefaultModule}
		}
		if len(modules) == 0 {
			return nil, errors.NewSpecError("tables[%d].modules must name at least one module", pos)
		}
		listed := make(map[string]bool, len(modules))
		for _, m := range modules {
			if listed[m] {
				return nil, errors.NewSpecError("tables[%d]: module %q listed twice", pos, m)
			}
			listed[m] = true
			if catalog != nil && !catalog.Has(m) {
				return nil, errors.NewSpecError("tables[%d]: unknown module %q", pos, m)
			}
		}

		config := make(map[string]map[string]any, len(t.Config))
		for m, cfg := range t.Config {
			if !listed[m] {
				return nil, errors.NewSpecError("tables[%d].config has settings for %q, which is not in its modules", pos, m)
			}
			config[m] = cfg
		}

		tasks = append(tasks, TableTask{TableID: name, Modules: modules, Config: config})
	}
	return tasks, nil
}

// NormalizeOutputRoot maps a dbfs:/ URI onto the /dbfs FUSE mount; other
// paths are cleaned and returned as-is.
func NormalizeOutputRoot(root string) string {
	if root == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(root, "dbfs:/"); ok {
		return filepath.Join("/dbfs", rest)
	}
	return filepath.Clean(root)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
