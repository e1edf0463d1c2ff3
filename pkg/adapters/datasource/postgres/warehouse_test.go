//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/testhelpers"
)

func setupWarehouse(t *testing.T) (*Warehouse, *arcsql.Schema) {
	t.Helper()
	engineDB := testhelpers.GetEngineDB(t)
	ctx := context.Background()

	w, err := New(ctx, &config.WarehouseConfig{
		Type:             config.WarehousePostgres,
		Schema:           "warehouse_test",
		StatementTimeout: 10 * time.Second,
	}, engineDB.DB.Pool, zap.NewNop())
	require.NoError(t, err)

	name := "dt_" + uuid.New().String()[:8]
	spec := datasource.TableSpec{
		Name: name,
		Columns: []datasource.ColumnSpec{
			{Name: "region", Type: arcsql.TypeString},
			{Name: "units", Type: arcsql.TypeInteger},
			{Name: "total", Type: arcsql.TypeFloat},
			{Name: "sold_on", Type: arcsql.TypeDate},
		},
	}
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	copied, err := w.ReplaceTable(ctx, spec, [][]any{
		{"north", int64(3), 10.5, day(1)},
		{"north", int64(1), 4.5, day(2)},
		{"south", int64(7), 30.0, day(3)},
		{nil, nil, nil, nil},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), copied)
	t.Cleanup(func() { _ = w.DropTable(context.Background(), "", name) })

	return w, &arcsql.Schema{
		Table:         "sales",
		Namespace:     w.Namespace(),
		PhysicalTable: name,
		Columns: []arcsql.SchemaColumn{
			{Name: "region", Type: arcsql.TypeString},
			{Name: "units", Type: arcsql.TypeInteger},
			{Name: "total", Type: arcsql.TypeFloat},
			{Name: "sold_on", Type: arcsql.TypeDate, Format: "YYYY-MM-DD"},
		},
	}
}

func run(t *testing.T, w *Warehouse, schema *arcsql.Schema, q *arcsql.ArcSQL) *datasource.Result {
	t.Helper()
	stmt, err := arcsql.Translate(q, schema, arcsql.Options{Dialect: w.Dialect()})
	require.NoError(t, err)
	res, err := w.Execute(context.Background(), stmt.SQL, stmt.Params, true)
	require.NoError(t, err)
	return res
}

func TestWarehouse_ExecuteTranslated(t *testing.T) {
	w, schema := setupWarehouse(t)

	t.Run("kpi sum over integers", func(t *testing.T) {
		res := run(t, w, schema, &arcsql.ArcSQL{
			Table:   "sales",
			Columns: []arcsql.Column{{Column: "units", Aggregation: arcsql.AggSum, Alias: "units"}},
		})
		require.Len(t, res.Rows, 1)
		assert.Equal(t, []string{"units"}, res.Columns)
		assert.Equal(t, int64(11), res.Rows[0]["units"])
	})

	t.Run("grouped and ordered", func(t *testing.T) {
		res := run(t, w, schema, &arcsql.ArcSQL{
			Table: "sales",
			Columns: []arcsql.Column{
				{Column: "region"},
				{Column: "total", Aggregation: arcsql.AggSum, Alias: "revenue"},
			},
			Filters: []arcsql.Filter{{Column: "region", Operator: arcsql.OpIsNotNull}},
			GroupBy: []string{"region"},
			OrderBy: []arcsql.OrderBy{{Column: "revenue", Direction: arcsql.Desc}},
		})
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "south", res.Rows[0]["region"])
		assert.Equal(t, 30.0, res.Rows[0]["revenue"])
		assert.Equal(t, 15.0, res.Rows[1]["revenue"])
	})

	t.Run("date filter and limit", func(t *testing.T) {
		limit := 1
		res := run(t, w, schema, &arcsql.ArcSQL{
			Table:   "sales",
			Columns: []arcsql.Column{{Column: "sold_on"}, {Column: "region"}},
			Filters: []arcsql.Filter{{Column: "sold_on", Operator: arcsql.OpGte, Value: "2024-01-02"}},
			OrderBy: []arcsql.OrderBy{{Column: "sold_on", Direction: arcsql.Asc}},
			Limit:   &limit,
		})
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "2024-01-02", res.Rows[0]["sold_on"])
	})

	t.Run("injection payload is only a value", func(t *testing.T) {
		res := run(t, w, schema, &arcsql.ArcSQL{
			Table:   "sales",
			Columns: []arcsql.Column{{Column: "*", Aggregation: arcsql.AggCount}},
			Filters: []arcsql.Filter{{Column: "region", Operator: arcsql.OpEq, Value: "'; DROP TABLE x; --"}},
		})
		require.Len(t, res.Rows, 1)
		assert.Equal(t, int64(0), res.Rows[0]["count"])

		after := run(t, w, schema, &arcsql.ArcSQL{
			Table:   "sales",
			Columns: []arcsql.Column{{Column: "*", Aggregation: arcsql.AggCount}},
		})
		assert.Equal(t, int64(4), after.Rows[0]["count"])
	})
}

func TestWarehouse_ExecuteWithoutFetch(t *testing.T) {
	w, schema := setupWarehouse(t)
	stmt, err := arcsql.Translate(&arcsql.ArcSQL{
		Table:   "sales",
		Columns: []arcsql.Column{{Column: "region"}},
	}, schema, arcsql.Options{Dialect: w.Dialect()})
	require.NoError(t, err)

	res, err := w.Execute(context.Background(), stmt.SQL, stmt.Params, false)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestWarehouse_ExecutionErrorsAreSanitized(t *testing.T) {
	w, schema := setupWarehouse(t)

	_, err := w.Execute(context.Background(),
		`SELECT "no_such_column" FROM `+Dialect.QuoteIdentifier(schema.Namespace)+"."+Dialect.QuoteIdentifier(schema.PhysicalTable),
		nil, true)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindExecutionError, appErr.Kind)
	assert.Equal(t, "column does not exist in the data table", appErr.Message)
	assert.NotContains(t, err.Error(), "no_such_column")

	_, err = w.Execute(context.Background(), `SELECT 1; SELECT 2`, nil, true)
	assert.True(t, apperrors.IsKind(err, apperrors.KindExecutionError))
}

func TestWarehouse_ReplaceKeepsOldTableOnFailure(t *testing.T) {
	w, schema := setupWarehouse(t)
	spec := datasource.TableSpec{
		Name:    schema.PhysicalTable,
		Columns: []datasource.ColumnSpec{{Name: "units", Type: arcsql.TypeInteger}},
	}

	_, err := w.ReplaceTable(context.Background(), spec, [][]any{{"not a number"}})
	require.Error(t, err)

	res := run(t, w, schema, &arcsql.ArcSQL{
		Table:   "sales",
		Columns: []arcsql.Column{{Column: "*", Aggregation: arcsql.AggCount}},
	})
	assert.Equal(t, int64(4), res.Rows[0]["count"])
}
