package source

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/logger"
)

// SQLSource reads tables through database/sql using SQLite syntax.
type SQLSource struct {
	db     *sql.DB
	logger *zap.SugaredLogger

	// Trace logs every statement at debug level (-vvv)
	Trace bool
}

// NewSQLSource wraps an open database
func NewSQLSource(db *sql.DB, log *zap.SugaredLogger) *SQLSource {
	if log == nil {
		log = logger.ComponentLogger("source")
	}
	return &SQLSource{db: db, logger: log}
}

// OpenSQLite opens a SQLite database read-only with a busy timeout, so
// validation never contends with the writers that own the warehouse file.
func OpenSQLite(dsn string, log *zap.SugaredLogger) (*SQLSource, error) {
	if log == nil {
		log = logger.ComponentLogger("source")
	}
	log.Debugw("Opening table source", "driver", "sqlite3", "dsn", dsn)

	db, err := sql.Open("sqlite3", readOnlyDSN(dsn))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Set busy timeout to 5 seconds
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	return NewSQLSource(db, log), nil
}

// readOnlyDSN adds mode=ro to file DSNs; in-memory databases are left alone
func readOnlyDSN(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + "mode=ro"
}

// Close closes the database
func (s *SQLSource) Close() error {
	return s.db.Close()
}

func (s *SQLSource) trace(query string, args ...interface{}) {
	if s.Trace {
		s.logger.Debugw("SQL", "query", query, "args", args)
	}
}

// Describe implements TableSource
func (s *SQLSource) Describe(ctx context.Context, table string) ([]Column, error) {
	schema, name, err := splitTableID(table)
	if err != nil {
		return nil, err
	}
	query := "PRAGMA table_info(" + quoteIdent(name) + ")"
	if schema != "" {
		query = "PRAGMA " + quoteIdent(schema) + ".table_info(" + quoteIdent(name) + ")"
	}
	s.trace(query)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to describe %s", table)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			col     Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return nil, errors.Wrapf(err, "failed to scan column of %s", table)
		}
		col.NotNull = notNull != 0
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to describe %s", table)
	}
	if len(cols) == 0 {
		return nil, errors.NewNotFoundError("table %s does not exist", table)
	}
	return cols, nil
}

// Count implements TableSource
func (s *SQLSource) Count(ctx context.Context, table string) (int64, error) {
	qualified, err := qualifiedName(table)
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + qualified
	s.trace(query)

	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "failed to count rows of %s", table)
	}
	return n, nil
}

// NullCounts implements TableSource with a single scan of the table
func (s *SQLSource) NullCounts(ctx context.Context, table string, columns []string) (map[string]int64, error) {
	if len(columns) == 0 {
		return map[string]int64{}, nil
	}
	qualified, err := qualifiedName(table)
	if err != nil {
		return nil, err
	}

	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = "COALESCE(SUM(CASE WHEN " + quoteIdent(c) + " IS NULL THEN 1 ELSE 0 END), 0)"
	}
	query := "SELECT " + strings.Join(exprs, ", ") + " FROM " + qualified
	s.trace(query)

	counts := make([]int64, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range counts {
		dest[i] = &counts[i]
	}
	if err := s.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return nil, errors.Wrapf(err, "failed to count nulls in %s", table)
	}

	out := make(map[string]int64, len(columns))
	for i, c := range columns {
		out[c] = counts[i]
	}
	return out, nil
}

// Sample implements TableSource
func (s *SQLSource) Sample(ctx context.Context, table string, columns []string, limit int) ([]Row, error) {
	if len(columns) == 0 || limit <= 0 {
		return nil, nil
	}
	qualified, err := qualifiedName(table)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	query := "SELECT " + strings.Join(quoted, ", ") + " FROM " + qualified + " LIMIT ?"
	s.trace(query, limit)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sample %s", table)
	}
	defer rows.Close()

	var out []Row
	values := make([]sql.NullString, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrapf(err, "failed to scan sample of %s", table)
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			if values[i].Valid {
				row[c] = values[i].String
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to sample %s", table)
	}
	return out, nil
}
