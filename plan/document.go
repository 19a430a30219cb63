package plan

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/dcheck/errors"
)

// document mirrors the on-disk plan layout:
//
//	run:
//	  id: nightly-2026-10-16
//	  output_path: /data/dq
//	  fail_on: error,fail
//	  continue_on_error: false
//	  allow_pii_output: false
//	  module_timeout: 5m
//	  requires: ">= 0.3.0"
//	tables:
//	  - name: main.sales.orders
//	    modules: [core_quality, gdpr_pii]
//	    config:
//	      core_quality: {min_rows: 1}
type document struct {
	Run    runSection     `yaml:"run" toml:"run"`
	Tables []tableSection `yaml:"tables" toml:"tables"`
}

type runSection struct {
	ID              string     `yaml:"id" toml:"id"`
	OutputPath      string     `yaml:"output_path" toml:"output_path"`
	Output          string     `yaml:"output" toml:"output"`
	FailOn          stringList `yaml:"fail_on" toml:"fail_on"`
	ContinueOnError *bool      `yaml:"continue_on_error" toml:"continue_on_error"`
	AllowPIIOutput  bool       `yaml:"allow_pii_output" toml:"allow_pii_output"`
	ModuleTimeout   string     `yaml:"module_timeout" toml:"module_timeout"`
	Requires        string     `yaml:"requires" toml:"requires"`
}

type tableSection struct {
	Name    string                    `yaml:"name" toml:"name"`
	Modules stringList                `yaml:"modules" toml:"modules"`
	Config  map[string]map[string]any `yaml:"config" toml:"config"`
}

// stringList accepts either a sequence or a comma-separated string.
type stringList struct {
	values []string
	set    bool
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler
func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		l.values = splitCommaList(node.Value)
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return errors.Wrapf(err, "line %d: expected a list of strings", node.Line)
		}
		l.values = trimAll(items)
	default:
		return errors.Newf("line %d: expected a list of strings or a comma-separated string", node.Line)
	}
	l.set = true
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler
func (l *stringList) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		l.values = splitCommaList(v)
	case []any:
		items := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return errors.Newf("item %d: expected a string, got %T", i, item)
			}
			items = append(items, s)
		}
		l.values = trimAll(items)
	default:
		return errors.Newf("expected a list of strings or a comma-separated string, got %T", data)
	}
	l.set = true
	return nil
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
