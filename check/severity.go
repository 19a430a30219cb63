// Package check defines the contract between the run orchestrator and the
// validation modules it drives: severities, findings, the Validator
// capability and the module Registry.
package check

import (
	"strings"

	"github.com/teranos/dcheck/errors"
)

// Severity is the ordinal outcome classification ok < warning < error < fail.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityError
	SeverityFail
)

var severityNames = [...]string{"ok", "warning", "error", "fail"}

// AllSeverities lists every severity in ascending order.
func AllSeverities() []Severity {
	return []Severity{SeverityOK, SeverityWarning, SeverityError, SeverityFail}
}

// String returns the lowercase text form
func (s Severity) String() string {
	if s < SeverityOK || s > SeverityFail {
		return "unknown"
	}
	return severityNames[s]
}

// Valid reports whether s is one of the four defined severities
func (s Severity) Valid() bool {
	return s >= SeverityOK && s <= SeverityFail
}

// ParseSeverity parses the text form, case-insensitively.
func ParseSeverity(text string) (Severity, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for i, name := range severityNames {
		if name == normalized {
			return Severity(i), nil
		}
	}
	return SeverityOK, errors.Newf("unknown severity %q (allowed: %s)", text, strings.Join(severityNames[:], ", "))
}

// MaxSeverity returns the highest of the given severities (ok when empty).
func MaxSeverity(severities ...Severity) Severity {
	max := SeverityOK
	for _, s := range severities {
		if s > max {
			max = s
		}
	}
	return max
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Newf("invalid severity value %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SeveritySet is a set of severities, used for fail-on policies.
type SeveritySet map[Severity]struct{}

// NewSeveritySet builds a set from the given severities
func NewSeveritySet(severities ...Severity) SeveritySet {
	set := make(SeveritySet, len(severities))
	for _, s := range severities {
		set[s] = struct{}{}
	}
	return set
}

// Contains reports whether s is in the set
func (set SeveritySet) Contains(s Severity) bool {
	_, ok := set[s]
	return ok
}

// Sorted returns the members in ascending severity order
func (set SeveritySet) Sorted() []Severity {
	out := make([]Severity, 0, len(set))
	for _, s := range AllSeverities() {
		if set.Contains(s) {
			out = append(out, s)
		}
	}
	return out
}

// Strings returns the members' text forms in ascending order
func (set SeveritySet) Strings() []string {
	sorted := set.Sorted()
	out := make([]string, len(sorted))
	for i, s := range sorted {
		out[i] = s.String()
	}
	return out
}
