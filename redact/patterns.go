package redact

import "regexp"

// Kinds of personal data the patterns recognise
const (
	KindEmail      = "email"
	KindSSN        = "ssn"
	KindNationalID = "national_id"
	KindPhone      = "phone"
)

// pattern is one safety-belt rule. Modules are expected to declare sensitive
// evidence themselves; these catch values that leak into free text anyway.
type pattern struct {
	kind        string
	re          *regexp.Regexp
	replacement string
}

// Order matters: the phone pattern would also swallow SSNs and national ids.
var patterns = []pattern{
	{KindEmail, regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`), "[REDACTED_EMAIL]"},
	{KindSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED_SSN]"},
	{KindNationalID, regexp.MustCompile(`\b\d{11}\b`), "[REDACTED_NATIONAL_ID]"},
	{KindPhone, regexp.MustCompile(`\+?\d[\d\s\-]{6,}\d`), "[REDACTED_PHONE]"},
}

// ContainsPII reports whether text matches any safety-belt pattern.
func ContainsPII(text string) bool {
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// RedactString replaces every safety-belt match in text.
func RedactString(text string) string {
	for _, p := range patterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// Classify returns the kinds of personal data found in text, in pattern
// order. A value claimed by an earlier pattern is not reported again by a
// later, broader one.
func Classify(text string) []string {
	var kinds []string
	for _, p := range patterns {
		if p.re.MatchString(text) {
			kinds = append(kinds, p.kind)
			text = p.re.ReplaceAllString(text, p.replacement)
		}
	}
	return kinds
}
