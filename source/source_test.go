package source

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/dcheck/errors"
	dchecktest "github.com/teranos/dcheck/internal/testing"
)

func newWarehouseSource(t *testing.T) *SQLSource {
	t.Helper()
	return NewSQLSource(dchecktest.CreateWarehouse(t), zap.NewNop().Sugar())
}

func TestDescribe(t *testing.T) {
	src := newWarehouseSource(t)
	ctx := context.Background()

	cols, err := src.Describe(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer_id", "amount"}, ColumnNames(cols))
	assert.True(t, cols[1].NotNull)
	assert.Equal(t, "REAL", cols[2].Type)

	cols, err = src.Describe(ctx, "main.customers")
	require.NoError(t, err)
	assert.Len(t, cols, 5)

	_, err = src.Describe(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = src.Describe(ctx, "hive.main.customers")
	assert.ErrorContains(t, err, "expected table or schema.table")
}

func TestCountAndNulls(t *testing.T) {
	src := newWarehouseSource(t)
	ctx := context.Background()

	n, err := src.Count(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	nulls, err := src.NullCounts(ctx, "customers", []string{"name", "email", "phone"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"name": 1, "email": 2, "phone": 3}, nulls)

	nulls, err = src.NullCounts(ctx, "empty_table", []string{"label"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), nulls["label"])

	nulls, err = src.NullCounts(ctx, "customers", nil)
	require.NoError(t, err)
	assert.Empty(t, nulls)
}

func TestSample(t *testing.T) {
	src := newWarehouseSource(t)

	rows, err := src.Sample(context.Background(), "customers", []string{"id", "email"}, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"id": "1", "email": "kari@example.com"}, rows[0])

	rows, err = src.Sample(context.Background(), "customers", []string{"email"}, 0)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestSQLShape(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	src := NewSQLSource(db, zap.NewNop().Sugar())
	src.Trace = true
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT(*) FROM "sales"."or""ders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	n, err := src.Count(ctx, `sales.or"ders`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	mock.ExpectQuery(`SELECT COALESCE(SUM(CASE WHEN "a" IS NULL THEN 1 ELSE 0 END), 0), COALESCE(SUM(CASE WHEN "b" IS NULL THEN 1 ELSE 0 END), 0) FROM "t"`).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b"}).AddRow(1, 0))
	nulls, err := src.NullCounts(ctx, "t", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 1, "b": 0}, nulls)

	mock.ExpectQuery(`SELECT "email" FROM "t" LIMIT ?`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("x@y.z").AddRow(nil))
	rows, err := src.Sample(ctx, "t", []string{"email"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"email": "x@y.z"}, {}}, rows)

	mock.ExpectQuery(`PRAGMA "sales".table_info("orders")`).
		WillReturnRows(sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}))
	_, err = src.Describe(ctx, "sales.orders")
	assert.True(t, errors.IsNotFoundError(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadOnlyDSN(t *testing.T) {
	assert.Equal(t, "file:warehouse.db?mode=ro", readOnlyDSN("warehouse.db"))
	assert.Equal(t, "file:w.db?cache=shared&mode=ro", readOnlyDSN("file:w.db?cache=shared"))
	assert.Equal(t, ":memory:", readOnlyDSN(":memory:"))
	assert.Equal(t, "file:w.db?mode=rw", readOnlyDSN("file:w.db?mode=rw"))
}
