// Package source is the data-access layer the built-in modules read tables
// through. dcheck ships a SQLite implementation; anything satisfying
// TableSource can stand in for it.
package source

import (
	"context"
	"strings"

	"github.com/teranos/dcheck/errors"
)

// Column describes one table column
type Column struct {
	Name    string
	Type    string
	NotNull bool
}

// Row is one sampled row; NULL values are absent from the map
type Row map[string]string

// TableSource materializes a table for inspection.
type TableSource interface {
	// Describe returns the table's columns in declaration order.
	// A missing table is a not-found error.
	Describe(ctx context.Context, table string) ([]Column, error)

	// Count returns the number of rows
	Count(ctx context.Context, table string) (int64, error)

	// NullCounts returns the number of NULLs per requested column
	NullCounts(ctx context.Context, table string, columns []string) (map[string]int64, error)

	// Sample returns up to limit rows restricted to columns
	Sample(ctx context.Context, table string, columns []string, limit int) ([]Row, error)
}

// ColumnNames returns the names of cols
func ColumnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// quoteIdent quotes a single SQL identifier
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// splitTableID splits "schema.table" or "table" into its parts. Longer
// catalog-qualified ids are rejected: SQLite has no catalog level.
func splitTableID(table string) (schema, name string, err error) {
	parts := strings.Split(table, ".")
	switch len(parts) {
	case 1:
		name = parts[0]
	case 2:
		schema, name = parts[0], parts[1]
	default:
		return "", "", errors.Newf("table id %q has %d parts; expected table or schema.table", table, len(parts))
	}
	if name == "" || (len(parts) == 2 && schema == "") {
		return "", "", errors.Newf("table id %q has an empty part", table)
	}
	return schema, name, nil
}

// qualifiedName returns the quoted, optionally schema-qualified table name
func qualifiedName(table string) (string, error) {
	schema, name, err := splitTableID(table)
	if err != nil {
		return "", err
	}
	if schema == "" {
		return quoteIdent(name), nil
	}
	return quoteIdent(schema) + "." + quoteIdent(name), nil
}
