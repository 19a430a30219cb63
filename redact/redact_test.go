package redact

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dcheck/check"
)

func TestContainsPII(t *testing.T) {
	assert.True(t, ContainsPII("a@b.com"))
	assert.True(t, ContainsPII("01019012345"))
	assert.True(t, ContainsPII("+4791122334"))
	assert.True(t, ContainsPII("ssn 123-45-6789"))
	assert.False(t, ContainsPII("null ratio 0.25 in column email"))
	assert.False(t, ContainsPII(""))
}

func TestRedactString(t *testing.T) {
	s := "mail a@b.com fnr 01019012345 phone +4791122334 ssn 123-45-6789"
	r := RedactString(s)
	assert.NotContains(t, r, "a@b.com")
	assert.NotContains(t, r, "01019012345")
	assert.NotContains(t, r, "+4791122334")
	assert.NotContains(t, r, "123-45-6789")
	assert.Contains(t, r, "[REDACTED_EMAIL]")
	assert.Contains(t, r, "[REDACTED_SSN]")
	assert.Contains(t, r, "[REDACTED_NATIONAL_ID]")
	assert.Contains(t, r, "[REDACTED_PHONE]")
}

func TestSanitize_SensitiveEvidence(t *testing.T) {
	f := check.Finding{
		Rule:      "ssn_detected",
		Severity:  check.SeverityError,
		Message:   "column ssn holds social security numbers",
		Sensitive: check.Declare(true),
		Evidence:  "123-45-6789",
		Metrics:   map[string]any{"column": "ssn"},
	}

	got, paths := Sanitize(f, false)

	assert.Equal(t, []string{"evidence"}, paths)
	assert.True(t, got.Redacted)
	assert.Equal(t, Marker{Redacted: true, Summary: "value suppressed; 1 match", Count: 1, Shape: "string"}, got.Evidence)
	// structural fields pass through
	assert.Equal(t, "ssn_detected", got.Rule)
	assert.Equal(t, check.SeverityError, got.Severity)
	assert.Equal(t, f.Metrics, got.Metrics)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "123-45-6789")
	assert.Contains(t, string(data), `"redacted":true`)

	// the input is untouched
	assert.Equal(t, "123-45-6789", f.Evidence)
}

func TestSanitize_UndeclaredIsSensitive(t *testing.T) {
	f := check.Finding{
		Severity: check.SeverityWarning,
		Message:  "sample values",
		Evidence: []string{"ola", "kari", "per"},
	}
	got, _ := Sanitize(f, false)
	assert.Equal(t, Marker{Redacted: true, Summary: "value suppressed; 3 matches", Count: 3, Shape: "list[3]"}, got.Evidence)

	f.Count = 42
	got, _ = Sanitize(f, false)
	assert.Equal(t, 42, got.Evidence.(Marker).Count)
	assert.Equal(t, "value suppressed; 42 matches", got.Evidence.(Marker).Summary)
}

func TestSanitize_NonSensitiveEvidenceIsScrubbed(t *testing.T) {
	f := check.Finding{
		Severity:  check.SeverityWarning,
		Message:   "contact ops@example.com",
		Sensitive: check.Declare(false),
		Evidence: map[string]any{
			"columns": []string{"id", "owner@example.com"},
			"ratio":   0.5,
		},
	}

	got, paths := Sanitize(f, false)

	assert.Equal(t, []string{"message", "evidence.columns[1]"}, paths)
	assert.Equal(t, "contact [REDACTED_EMAIL]", got.Message)
	assert.True(t, got.Redacted)
	evidence := got.Evidence.(map[string]any)
	assert.Equal(t, []any{"id", "[REDACTED_EMAIL]"}, evidence["columns"])
	assert.Equal(t, json.Number("0.5"), evidence["ratio"])
}

func TestSanitize_AllowRaw(t *testing.T) {
	f := check.Finding{
		Message:   "a@b.com",
		Sensitive: check.Declare(true),
		Evidence:  "123-45-6789",
	}
	got, paths := Sanitize(f, true)
	assert.Equal(t, f, got)
	assert.Empty(t, paths)
}

func TestSanitize_NoEvidence(t *testing.T) {
	f := check.Finding{Rule: "min_rows", Severity: check.SeverityFail, Message: "0 rows"}
	got, paths := Sanitize(f, false)
	assert.Equal(t, f, got)
	assert.Empty(t, paths)
}

func TestSanitizeOutcome(t *testing.T) {
	results := []check.ModuleResult{
		{Module: "core_quality", Findings: []check.Finding{{Message: "fine", Sensitive: check.Declare(false)}}},
		{Module: "gdpr_pii", Findings: []check.Finding{
			{Message: "emails", Evidence: []string{"a@b.com"}},
			{Message: "phones", Evidence: []string{"+4791122334"}},
		}},
	}

	out, report := SanitizeOutcome(results, false)

	assert.True(t, report.Applied)
	assert.Equal(t, Reason, report.Reason)
	assert.Equal(t, 2, report.Events)
	assert.Equal(t, []string{"gdpr_pii.findings[0].evidence", "gdpr_pii.findings[1].evidence"}, report.Paths)
	assert.IsType(t, Marker{}, out[1].Findings[0].Evidence)
	assert.Equal(t, []string{"a@b.com"}, results[1].Findings[0].Evidence, "input not modified")

	_, report = SanitizeOutcome(results, true)
	assert.False(t, report.Applied)
	assert.Zero(t, report.Events)
}

func TestSanitizeOutcome_PathsCapped(t *testing.T) {
	findings := make([]check.Finding, MaxPaths+50)
	for i := range findings {
		findings[i] = check.Finding{Message: "x", Evidence: "secret"}
	}
	_, report := SanitizeOutcome([]check.ModuleResult{{Module: "m", Findings: findings}}, false)
	assert.Len(t, report.Paths, MaxPaths)
	assert.Equal(t, MaxPaths+50, report.Events)
}

func TestNewMarker_Shapes(t *testing.T) {
	assert.Equal(t, "object[2]", NewMarker(map[string]int{"a": 1, "b": 2}, 0).Shape)
	assert.Equal(t, "scalar", NewMarker(42, 0).Shape)
	assert.True(t, strings.HasPrefix(NewMarker(nil, 0).Summary, "value suppressed; 0"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, []string{KindEmail}, Classify("kari@example.com"))
	assert.Equal(t, []string{KindSSN}, Classify("123-45-6789"), "ssn is not also a phone number")
	assert.Equal(t, []string{KindNationalID}, Classify("01019012345"))
	assert.Equal(t, []string{KindPhone}, Classify("+47 911 22 334"))
	assert.Equal(t, []string{KindEmail, KindPhone}, Classify("a@b.no / +4791122334"))
	assert.Empty(t, Classify("vip"))
}
