package modules

import (
	"context"
	"fmt"
	"slices"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/source"
)

// CoreQualityName is the module name used in plans
const CoreQualityName = "core_quality"

// CoreQuality checks row counts, required columns and null ratios.
//
// Options:
//
//	min_rows          minimum row count (default 1), below it: error
//	required_columns  columns that must exist, missing: error
//	max_null_ratio    per-column null ratio limit in [0,1] (default 1, off)
//	columns           restrict null checks to these columns
//	null_severity     severity for null ratio breaches (default warning)
type CoreQuality struct {
	source source.TableSource
}

// NewCoreQuality creates the module over src
func NewCoreQuality(src source.TableSource) *CoreQuality {
	return &CoreQuality{source: src}
}

// Name implements check.Validator
func (m *CoreQuality) Name() string { return CoreQualityName }

// Run implements check.Validator
func (m *CoreQuality) Run(ctx context.Context, tableID string, config map[string]any) ([]check.Finding, error) {
	opts, err := newOptions(CoreQualityName, config,
		"columns", "max_null_ratio", "min_rows", "null_severity", "required_columns")
	if err != nil {
		return nil, err
	}
	minRows, err := opts.Int("min_rows", 1)
	if err != nil {
		return nil, err
	}
	maxNullRatio, err := opts.Float("max_null_ratio", 1)
	if err != nil {
		return nil, err
	}
	if maxNullRatio < 0 || maxNullRatio > 1 {
		return nil, errors.Newf("%s.max_null_ratio must be within [0, 1], got %v", CoreQualityName, maxNullRatio)
	}
	required, err := opts.Strings("required_columns")
	if err != nil {
		return nil, err
	}
	restrict, err := opts.Strings("columns")
	if err != nil {
		return nil, err
	}
	nullSeverity, err := opts.Severity("null_severity", check.SeverityWarning)
	if err != nil {
		return nil, err
	}

	cols, err := m.source.Describe(ctx, tableID)
	if err != nil {
		return nil, err
	}
	names := source.ColumnNames(cols)

	rows, err := m.source.Count(ctx, tableID)
	if err != nil {
		return nil, err
	}

	notSensitive := check.Declare(false)
	findings := []check.Finding{{
		Rule:      "row_count",
		Severity:  check.SeverityOK,
		Message:   fmt.Sprintf("%d rows, %d columns", rows, len(cols)),
		Metrics:   map[string]any{"rows": rows, "columns": len(cols)},
		Sensitive: notSensitive,
	}}

	if rows < int64(minRows) {
		findings = append(findings, check.Finding{
			Rule:      "min_rows",
			Severity:  check.SeverityError,
			Message:   fmt.Sprintf("table has %d rows, expected at least %d", rows, minRows),
			Metrics:   map[string]any{"rows": rows, "min_rows": minRows},
			Sensitive: notSensitive,
		})
	}

	for _, col := range required {
		if !slices.Contains(names, col) {
			findings = append(findings, check.Finding{
				Rule:      "required_column",
				Severity:  check.SeverityError,
				Message:   fmt.Sprintf("required column %s is missing", col),
				Metrics:   map[string]any{"column": col},
				Sensitive: notSensitive,
			})
		}
	}

	if maxNullRatio >= 1 || rows == 0 {
		return findings, nil
	}

	checked := names
	if len(restrict) > 0 {
		checked = make([]string, 0, len(restrict))
		for _, col := range restrict {
			if slices.Contains(names, col) {
				checked = append(checked, col)
			}
		}
	}
	nulls, err := m.source.NullCounts(ctx, tableID, checked)
	if err != nil {
		return nil, err
	}
	for _, col := range checked {
		ratio := float64(nulls[col]) / float64(rows)
		if ratio > maxNullRatio {
			findings = append(findings, check.Finding{
				Rule:      "max_null_ratio",
				Severity:  nullSeverity,
				Message:   fmt.Sprintf("column %s is %.1f%% null (limit %.1f%%)", col, ratio*100, maxNullRatio*100),
				Count:     int(nulls[col]),
				Metrics:   map[string]any{"column": col, "null_ratio": ratio, "nulls": nulls[col]},
				Sensitive: notSensitive,
			})
		}
	}
	return findings, nil
}
