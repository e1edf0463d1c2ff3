package arcsql

import (
	"fmt"
	"strings"
)

// Dialect renders the parts of a statement that differ between databases.
type Dialect interface {
	// Name identifies the dialect in logs and metrics.
	Name() string
	// QuoteIdentifier quotes and escapes a table, schema or column name.
	QuoteIdentifier(name string) string
	// Placeholder returns the bind marker for the 1-based parameter position.
	Placeholder(position int) string
	// Aggregate renders fn over expr. ok is false if the dialect cannot express fn.
	Aggregate(fn Aggregation, expr string) (sql string, ok bool)
	// Limit returns the fragment placed right after SELECT and the trailing fragment
	// that bound the row count to the given placeholder. One of them is empty.
	Limit(placeholder string) (afterSelect, trailing string)
}

// StandardAggregate renders the aggregations every supported database shares.
func StandardAggregate(fn Aggregation, expr string) (string, bool) {
	switch fn.normalized() {
	case AggSum:
		return "SUM(" + expr + ")", true
	case AggCount:
		return "COUNT(" + expr + ")", true
	case AggCountDistinct:
		if expr == "*" {
			return "", false
		}
		return "COUNT(DISTINCT " + expr + ")", true
	case AggAvg:
		return "AVG(" + expr + ")", true
	case AggMin:
		return "MIN(" + expr + ")", true
	case AggMax:
		return "MAX(" + expr + ")", true
	}
	return "", false
}

// ANSI is a portable dialect with double-quoted identifiers and $N placeholders.
// It has no median.
var ANSI Dialect = ansiDialect{}

type ansiDialect struct{}

func (ansiDialect) Name() string { return "ansi" }

func (ansiDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (ansiDialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

func (ansiDialect) Aggregate(fn Aggregation, expr string) (string, bool) {
	return StandardAggregate(fn, expr)
}

func (ansiDialect) Limit(placeholder string) (string, string) {
	return "", "LIMIT " + placeholder
}
