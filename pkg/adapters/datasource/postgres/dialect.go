package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
)

// Dialect renders ArcSQL for PostgreSQL.
var Dialect arcsql.Dialect = dialect{}

type dialect struct{}

func (dialect) Name() string { return "postgres" }

func (dialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (dialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

func (dialect) Aggregate(fn arcsql.Aggregation, expr string) (string, bool) {
	if fn == arcsql.AggMedian {
		if expr == "*" {
			return "", false
		}
		return "percentile_cont(0.5) WITHIN GROUP (ORDER BY " + expr + ")", true
	}
	return arcsql.StandardAggregate(fn, expr)
}

func (dialect) Limit(placeholder string) (string, string) {
	return "", "LIMIT " + placeholder
}

// columnType maps a data table column type to its PostgreSQL type.
func columnType(t arcsql.ColumnType) string {
	switch t {
	case arcsql.TypeInteger:
		return "BIGINT"
	case arcsql.TypeFloat:
		return "DOUBLE PRECISION"
	case arcsql.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}
