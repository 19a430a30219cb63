package modules

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
)

// options reads module configuration. Plans decoded from YAML, TOML or JSON
// produce different Go types for the same number, so every accessor accepts
// all of them.
type options struct {
	module string
	values map[string]any
	known  map[string]bool
}

func newOptions(module string, values map[string]any, known ...string) (*options, error) {
	o := &options{module: module, values: values, known: make(map[string]bool, len(known))}
	for _, k := range known {
		o.known[k] = true
	}
	var unknown []string
	for k := range values {
		if !o.known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.Newf("%s: unknown option(s) %s (known: %s)",
			module, strings.Join(unknown, ", "), strings.Join(known, ", "))
	}
	return o, nil
}

func (o *options) Int(key string, def int) (int, error) {
	v, ok := o.values[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.Newf("%s.%s must be an integer, got %v", o.module, key, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errors.Newf("%s.%s must be an integer, got %s", o.module, key, n)
		}
		return int(i), nil
	default:
		return 0, errors.Newf("%s.%s must be an integer, got %T", o.module, key, v)
	}
}

func (o *options) Float(key string, def float64) (float64, error) {
	v, ok := o.values[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, errors.Newf("%s.%s must be a number, got %s", o.module, key, n)
		}
		return f, nil
	default:
		return 0, errors.Newf("%s.%s must be a number, got %T", o.module, key, v)
	}
}

func (o *options) Strings(key string) ([]string, error) {
	v, ok := o.values[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch s := v.(type) {
	case string:
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for i, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, errors.Newf("%s.%s[%d] must be a string, got %T", o.module, key, i, item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, errors.Newf("%s.%s must be a list of strings, got %T", o.module, key, v)
	}
}

func (o *options) Severity(key string, def check.Severity) (check.Severity, error) {
	v, ok := o.values[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, errors.Newf("%s.%s must be a severity name, got %T", o.module, key, v)
	}
	sev, err := check.ParseSeverity(s)
	if err != nil {
		return def, errors.Wrapf(err, "%s.%s", o.module, key)
	}
	return sev, nil
}
