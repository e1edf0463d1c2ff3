package mssql

import (
	"fmt"
	"strings"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
)

// Dialect renders ArcSQL for SQL Server. It has no median aggregate.
var Dialect arcsql.Dialect = dialect{}

type dialect struct{}

func (dialect) Name() string { return "mssql" }

// QuoteIdentifier quotes like QUOTENAME: brackets, with ] doubled.
func (dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (dialect) Placeholder(position int) string {
	return fmt.Sprintf("@p%d", position)
}

func (dialect) Aggregate(fn arcsql.Aggregation, expr string) (string, bool) {
	switch fn {
	case arcsql.AggMedian:
		return "", false
	case arcsql.AggAvg:
		// AVG over an integer column truncates in SQL Server.
		return "AVG(CAST(" + expr + " AS FLOAT))", true
	}
	return arcsql.StandardAggregate(fn, expr)
}

func (dialect) Limit(placeholder string) (string, string) {
	return "TOP (" + placeholder + ")", ""
}

func columnType(t arcsql.ColumnType) string {
	switch t {
	case arcsql.TypeInteger:
		return "BIGINT"
	case arcsql.TypeFloat:
		return "FLOAT"
	case arcsql.TypeDate:
		return "DATE"
	default:
		return "NVARCHAR(MAX)"
	}
}

func qualified(namespace, name string) string {
	return Dialect.QuoteIdentifier(namespace) + "." + Dialect.QuoteIdentifier(name)
}
