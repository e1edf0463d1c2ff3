package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	mssqldb "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/config"
)

func ordersSchema() *arcsql.Schema {
	return &arcsql.Schema{
		Table:         "orders",
		Namespace:     "dbo",
		PhysicalTable: "dt_9f00",
		Columns: []arcsql.SchemaColumn{
			{Name: "region", Type: arcsql.TypeString},
			{Name: "units", Type: arcsql.TypeInteger},
		},
	}
}

func TestDialect_Translate(t *testing.T) {
	limit := 10
	q := &arcsql.ArcSQL{
		Table: "orders",
		Columns: []arcsql.Column{
			{Column: "region"},
			{Column: "units", Aggregation: arcsql.AggAvg, Alias: "avg_units"},
		},
		Filters: []arcsql.Filter{{Column: "region", Operator: arcsql.OpIn, Value: []any{"north", "south"}}},
		GroupBy: []string{"region"},
		OrderBy: []arcsql.OrderBy{{Column: "avg_units", Direction: arcsql.Desc}},
		Limit:   &limit,
	}

	stmt, err := arcsql.Translate(q, ordersSchema(), arcsql.Options{Dialect: Dialect})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT TOP (@p1) [region], AVG(CAST([units] AS FLOAT)) AS [avg_units] FROM [dbo].[dt_9f00] `+
			`WHERE [region] IN (@p2, @p3) GROUP BY [region] ORDER BY [avg_units] DESC`,
		stmt.SQL)
	assert.Equal(t, []any{10, "north", "south"}, stmt.Params)
}

func TestDialect_MedianUnsupported(t *testing.T) {
	_, err := arcsql.Translate(&arcsql.ArcSQL{
		Table:   "orders",
		Columns: []arcsql.Column{{Column: "units", Aggregation: arcsql.AggMedian}},
	}, ordersSchema(), arcsql.Options{Dialect: Dialect})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnsupportedAggregation))
}

func TestDialect_QuoteIdentifier(t *testing.T) {
	assert.Equal(t, "[region]", Dialect.QuoteIdentifier("region"))
	assert.Equal(t, "[a]]b]", Dialect.QuoteIdentifier("a]b"))
	assert.Equal(t, "@p2", Dialect.Placeholder(2))
	assert.Equal(t, "[warehouse].[dt_1]", qualified("warehouse", "dt_1"))
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, "BIGINT", columnType(arcsql.TypeInteger))
	assert.Equal(t, "FLOAT", columnType(arcsql.TypeFloat))
	assert.Equal(t, "DATE", columnType(arcsql.TypeDate))
	assert.Equal(t, "NVARCHAR(MAX)", columnType(arcsql.TypeString))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		number int32
		want   string
	}{
		{207, "column does not exist in the data table"},
		{208, "data table has not been extracted"},
		{8134, "division by zero"},
		{245, "a value does not match the column type"},
		{156, "statement is not valid for this data table"},
		{50000, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.number), func(t *testing.T) {
			err := fmt.Errorf("query: %w", mssqldb.Error{Number: tt.number, Message: "Invalid column name 'secret'."})
			assert.Equal(t, tt.want, classify(err))
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(42), normalizeValue([]byte("42"), "DECIMAL"))
	assert.Equal(t, 12.5, normalizeValue([]byte("12.5000"), "NUMERIC"))
	assert.Equal(t, "abc", normalizeValue([]byte("abc"), "NVARCHAR"))
	assert.Equal(t, "2024-01-05", normalizeValue(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "DATE"))
}

func TestNamedParams(t *testing.T) {
	named := namedParams([]any{"north", int64(3)})
	require.Len(t, named, 2)
	assert.Equal(t, sql.Named("p1", "north"), named[0])
	assert.Equal(t, sql.Named("p2", int64(3)), named[1])
}

func TestNewWarehouse_DefaultsNamespace(t *testing.T) {
	w := newWarehouse(nil, &config.WarehouseConfig{Type: config.WarehouseMSSQL}, zap.NewNop())
	assert.Equal(t, "dbo", w.Namespace())

	_, err := w.Execute(context.Background(), "DELETE FROM [dbo].[t]", nil, false)
	assert.True(t, apperrors.IsKind(err, apperrors.KindExecutionError))
}

func TestNew_RequiresHost(t *testing.T) {
	_, err := New(context.Background(), &config.WarehouseConfig{Type: config.WarehouseMSSQL}, zap.NewNop())
	assert.ErrorContains(t, err, "WAREHOUSE_HOST")
}
