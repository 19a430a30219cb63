package modules

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/redact"
	"github.com/teranos/dcheck/source"
)

// GDPRPIIName is the module name used in plans
const GDPRPIIName = "gdpr_pii"

// GDPRPII scans a sample of text columns for personal data.
//
// Options:
//
//	sample_rows   rows to sample (default 1000)
//	max_examples  raw example values kept per kind (default 3)
//	columns       restrict the scan to these columns (default: all text columns)
//	severity      severity of a detection (default error)
//
// Detections carry the matched values as evidence and are declared
// sensitive, so they are only ever persisted raw when the run allows it.
type GDPRPII struct {
	source source.TableSource
}

// NewGDPRPII creates the module over src
func NewGDPRPII(src source.TableSource) *GDPRPII {
	return &GDPRPII{source: src}
}

// Name implements check.Validator
func (m *GDPRPII) Name() string { return GDPRPIIName }

type detection struct {
	count    int
	columns  map[string]int
	examples []string
}

// Run implements check.Validator
func (m *GDPRPII) Run(ctx context.Context, tableID string, config map[string]any) ([]check.Finding, error) {
	opts, err := newOptions(GDPRPIIName, config, "columns", "max_examples", "sample_rows", "severity")
	if err != nil {
		return nil, err
	}
	sampleRows, err := opts.Int("sample_rows", 1000)
	if err != nil {
		return nil, err
	}
	if sampleRows <= 0 {
		return nil, errors.Newf("%s.sample_rows must be positive, got %d", GDPRPIIName, sampleRows)
	}
	maxExamples, err := opts.Int("max_examples", 3)
	if err != nil {
		return nil, err
	}
	restrict, err := opts.Strings("columns")
	if err != nil {
		return nil, err
	}
	severity, err := opts.Severity("severity", check.SeverityError)
	if err != nil {
		return nil, err
	}

	cols, err := m.source.Describe(ctx, tableID)
	if err != nil {
		return nil, err
	}
	scanned := textColumns(cols, restrict)
	if len(scanned) == 0 {
		return []check.Finding{{
			Rule:      "pii_scan",
			Severity:  check.SeverityOK,
			Message:   "no text columns to scan",
			Sensitive: check.Declare(false),
		}}, nil
	}

	rows, err := m.source.Sample(ctx, tableID, scanned, sampleRows)
	if err != nil {
		return nil, err
	}

	found := make(map[string]*detection)
	for _, row := range rows {
		for _, col := range scanned {
			value, ok := row[col]
			if !ok || value == "" {
				continue
			}
			for _, kind := range redact.Classify(value) {
				d := found[kind]
				if d == nil {
					d = &detection{columns: make(map[string]int)}
					found[kind] = d
				}
				d.count++
				d.columns[col]++
				if len(d.examples) < maxExamples {
					d.examples = append(d.examples, value)
				}
			}
		}
	}

	if len(found) == 0 {
		return []check.Finding{{
			Rule:      "pii_scan",
			Severity:  check.SeverityOK,
			Message:   fmt.Sprintf("no personal data detected in %d sampled rows", len(rows)),
			Metrics:   map[string]any{"sampled_rows": len(rows), "columns": len(scanned)},
			Sensitive: check.Declare(false),
		}}, nil
	}

	kinds := make([]string, 0, len(found))
	for kind := range found {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	findings := make([]check.Finding, 0, len(kinds))
	for _, kind := range kinds {
		d := found[kind]
		columns := make([]string, 0, len(d.columns))
		for col := range d.columns {
			columns = append(columns, col)
		}
		sort.Strings(columns)
		findings = append(findings, check.Finding{
			Rule:     "pii_" + kind,
			Severity: severity,
			Message: fmt.Sprintf("%d value(s) resembling %s in column(s) %s",
				d.count, strings.ReplaceAll(kind, "_", " "), strings.Join(columns, ", ")),
			Count:     d.count,
			Metrics:   map[string]any{"columns": columns, "sampled_rows": len(rows)},
			Sensitive: check.Declare(true),
			Evidence:  map[string]any{"examples": d.examples},
		})
	}
	return findings, nil
}

// textColumns picks the columns worth scanning. SQLite columns without a
// declared type hold text as often as not, so they are included.
func textColumns(cols []source.Column, restrict []string) []string {
	var out []string
	for _, c := range cols {
		if len(restrict) > 0 {
			if slices.Contains(restrict, c.Name) {
				out = append(out, c.Name)
			}
			continue
		}
		t := strings.ToUpper(c.Type)
		if t == "" || strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") ||
			strings.Contains(t, "CLOB") || strings.Contains(t, "STRING") {
			out = append(out, c.Name)
		}
	}
	return out
}
