// Package redact is the single gate every finding passes through before it
// is persisted. With raw output disabled, evidence of sensitive (or
// undeclared) findings is replaced by a marker carrying only a count and a
// shape, and free text is scrubbed of obvious personal data.
package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/teranos/dcheck/check"
)

// MaxPaths caps the redaction paths recorded per artifact.
const MaxPaths = 200

// Reason recorded on every redaction report
const Reason = "allow_pii_output=false"

// Marker replaces suppressed evidence.
type Marker struct {
	Redacted bool   `json:"redacted"`
	Summary  string `json:"summary"`
	Count    int    `json:"count"`
	Shape    string `json:"shape"`
}

// Report describes what the gate changed in one table outcome.
type Report struct {
	Applied bool     `json:"applied"`
	Reason  string   `json:"reason,omitempty"`
	Events  int      `json:"events"`
	Paths   []string `json:"paths,omitempty"`
}

// Sanitize applies the redaction policy to a single finding and returns the
// sanitized copy together with the relative paths that were changed.
// Rule, severity, count and metrics always pass through.
func Sanitize(f check.Finding, allowRaw bool) (check.Finding, []string) {
	if allowRaw {
		return f, nil
	}

	var paths []string
	if redacted := RedactString(f.Message); redacted != f.Message {
		f.Message = redacted
		paths = append(paths, "message")
	}

	if f.Evidence == nil {
		return f, paths
	}

	if f.IsSensitive() {
		f.Evidence = NewMarker(f.Evidence, f.Count)
		f.Redacted = true
		return f, append(paths, "evidence")
	}

	// Declared non-sensitive: keep it, but scrub anything that looks personal
	normalized, err := normalize(f.Evidence)
	if err != nil {
		f.Evidence = NewMarker(f.Evidence, f.Count)
		f.Redacted = true
		return f, append(paths, "evidence")
	}
	var evidencePaths []string
	f.Evidence = scrub(normalized, "evidence", &evidencePaths)
	if len(evidencePaths) > 0 {
		f.Redacted = true
	}
	return f, append(paths, evidencePaths...)
}

// SanitizeOutcome applies Sanitize to every finding of every module result.
// The input is not modified.
func SanitizeOutcome(results []check.ModuleResult, allowRaw bool) ([]check.ModuleResult, Report) {
	out := make([]check.ModuleResult, len(results))
	var report Report
	for i, r := range results {
		findings := make([]check.Finding, len(r.Findings))
		for j, f := range r.Findings {
			sanitized, paths := Sanitize(f, allowRaw)
			findings[j] = sanitized
			for _, p := range paths {
				report.Events++
				if len(report.Paths) < MaxPaths {
					report.Paths = append(report.Paths, fmt.Sprintf("%s.findings[%d].%s", r.Module, j, p))
				}
			}
		}
		r.Findings = findings
		out[i] = r
	}
	if report.Events > 0 {
		report.Applied = true
		report.Reason = Reason
	}
	return out, report
}

// NewMarker builds the redaction marker for a suppressed value. count wins
// when positive, otherwise the value's length is used.
func NewMarker(value any, count int) Marker {
	n, shape := describe(value)
	if count > 0 {
		n = count
	}
	noun := "matches"
	if n == 1 {
		noun = "match"
	}
	return Marker{
		Redacted: true,
		Summary:  fmt.Sprintf("value suppressed; %d %s", n, noun),
		Count:    n,
		Shape:    shape,
	}
}

// describe returns the element count and a shape label without looking at
// the content itself.
func describe(value any) (int, string) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), fmt.Sprintf("list[%d]", rv.Len())
	case reflect.Map:
		return rv.Len(), fmt.Sprintf("object[%d]", rv.Len())
	case reflect.String:
		return 1, "string"
	case reflect.Invalid:
		return 0, "null"
	default:
		return 1, "scalar"
	}
}

// normalize converts arbitrary evidence into its JSON value tree
func normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func scrub(value any, path string, paths *[]string) any {
	switch v := value.(type) {
	case string:
		if ContainsPII(v) {
			*paths = append(*paths, path)
			return RedactString(v)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = scrub(item, fmt.Sprintf("%s[%d]", path, i), paths)
		}
		return v
	case map[string]any:
		for _, key := range slices.Sorted(maps.Keys(v)) {
			v[key] = scrub(v[key], path+"."+key, paths)
		}
		return v
	default:
		return v
	}
}
