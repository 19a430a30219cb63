// Package plan turns a declarative run plan (YAML or TOML) into an immutable
// RunSpec the runner executes.
package plan

import (
	"path/filepath"
	"time"

	"github.com/teranos/dcheck/check"
)

// DefaultModule runs when a table lists no modules
const DefaultModule = "core_quality"

// DefaultFailOn is the fail-on set used when the plan names none
var DefaultFailOn = []check.Severity{check.SeverityError, check.SeverityFail}

// TableTask is one table's validation work unit.
type TableTask struct {
	TableID string
	Modules []string
	Config  map[string]map[string]any
}

// ModuleConfig returns the configuration for one module, or nil.
func (t TableTask) ModuleConfig(module string) map[string]any {
	return t.Config[module]
}

// RunSpec is the validated description of a run. It is never mutated after
// Load returns; slice and set accessors hand out copies.
type RunSpec struct {
	RunID           string
	OutputRoot      string
	ContinueOnError bool
	AllowRaw        bool
	ModuleTimeout   time.Duration
	Requires        string // runner version constraint, empty = any
	Source          string // where the plan was read from, for audit

	failOn check.SeveritySet
	tasks  []TableTask
}

// Tasks returns the table tasks in plan order. Each task is a deep copy, so
// callers may modify module lists and configs freely.
func (s *RunSpec) Tasks() []TableTask {
	out := make([]TableTask, len(s.tasks))
	for i, task := range s.tasks {
		out[i] = task.clone()
	}
	return out
}

func (t TableTask) clone() TableTask {
	c := TableTask{TableID: t.TableID}
	if t.Modules != nil {
		c.Modules = append([]string(nil), t.Modules...)
	}
	if t.Config != nil {
		c.Config = make(map[string]map[string]any, len(t.Config))
		for module, cfg := range t.Config {
			c.Config[module] = cloneValue(cfg).(map[string]any)
		}
	}
	return c
}

// cloneValue copies the containers a decoded plan can hold. Scalars are
// immutable and returned as is.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		if v == nil {
			return v
		}
		l := make([]any, len(v))
		for i, e := range v {
			l[i] = cloneValue(e)
		}
		return l
	case []map[string]any:
		if v == nil {
			return v
		}
		l := make([]map[string]any, len(v))
		for i, e := range v {
			l[i] = cloneValue(e).(map[string]any)
		}
		return l
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}

// TaskCount returns the number of tasks
func (s *RunSpec) TaskCount() int {
	return len(s.tasks)
}

// TableIDs returns table identifiers in plan order
func (s *RunSpec) TableIDs() []string {
	out := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.TableID
	}
	return out
}

// FailOn returns a copy of the fail-on set
func (s *RunSpec) FailOn() check.SeveritySet {
	return check.NewSeveritySet(s.failOn.Sorted()...)
}

// ShouldFail reports whether severity sev constitutes a run-level failure
func (s *RunSpec) ShouldFail(sev check.Severity) bool {
	return s.failOn.Contains(sev)
}

// RunDir is the directory holding this run's ledger and artifacts
func (s *RunSpec) RunDir() string {
	return filepath.Join(s.OutputRoot, s.RunID)
}
