package check

// Finding is a single issue or observation reported by a validation module.
//
// Rule, Severity, Count and Metrics are structural and always persisted as-is.
// Message and Evidence may carry row-level content and pass through the
// redaction gate before anything is written.
type Finding struct {
	Rule     string         `json:"rule,omitempty"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Count    int            `json:"count,omitempty"`
	Metrics  map[string]any `json:"metrics,omitempty"`

	// Sensitive declares whether Evidence holds raw sample data, row-level
	// content or personally identifying values. nil means the module did not
	// declare it, which is treated as sensitive.
	Sensitive *bool `json:"sensitive,omitempty"`
	Evidence  any   `json:"evidence,omitempty"`

	// Redacted is set by the redaction gate when Evidence was replaced.
	Redacted bool `json:"redacted,omitempty"`
}

// Declare returns a sensitivity declaration for Finding.Sensitive.
func Declare(sensitive bool) *bool {
	return &sensitive
}

// IsSensitive reports whether the finding must be treated as sensitive.
// Undeclared sensitivity counts as sensitive.
func (f Finding) IsSensitive() bool {
	return f.Sensitive == nil || *f.Sensitive
}

// MaxFindingSeverity returns the highest severity across findings (ok when empty).
func MaxFindingSeverity(findings []Finding) Severity {
	max := SeverityOK
	for _, f := range findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}
