package arcsql

import (
	"fmt"
	"strings"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
)

// Validate checks every table and column reference against schema and every
// enumerated token against its closed set. It runs before Translate on agent output.
func Validate(q *ArcSQL, schema *Schema) error {
	if q == nil {
		return apperrors.New(apperrors.KindTranslationError, "query is empty")
	}
	if schema == nil {
		return apperrors.New(apperrors.KindTranslationError, "no schema bound to the query")
	}

	if !schema.MatchesTable(q.Table) {
		return apperrors.WithField(apperrors.KindSchemaMismatch, "table",
			fmt.Sprintf("unknown table %q, expected %q", q.Table, schema.Table))
	}

	outputs := make(map[string]bool, len(q.Columns))
	for _, c := range q.Columns {
		if err := validateColumn(c, schema); err != nil {
			return err
		}
		outputs[outputName(c)] = true
	}

	for _, f := range q.Filters {
		if _, ok := schema.Column(f.Column); !ok {
			return apperrors.WithField(apperrors.KindSchemaMismatch, f.Column, "filter references an unknown column")
		}
		if _, ok := f.Operator.Canonical(); !ok {
			return apperrors.WithField(apperrors.KindInvalidOperator, f.Column,
				fmt.Sprintf("operator %q is not one of %s", f.Operator, joinOperators()))
		}
	}

	for _, g := range q.GroupBy {
		if _, ok := schema.Column(g); !ok {
			return apperrors.WithField(apperrors.KindSchemaMismatch, g, "group by references an unknown column")
		}
	}

	for _, o := range q.OrderBy {
		if outputs[o.Column] {
			continue
		}
		if _, ok := schema.Column(o.Column); !ok {
			return apperrors.WithField(apperrors.KindSchemaMismatch, o.Column, "order by references an unknown column")
		}
	}

	return nil
}

func validateColumn(c Column, schema *Schema) error {
	agg := c.Aggregation.normalized()
	if isAggregated(c) && !agg.Known() {
		return apperrors.WithField(apperrors.KindInvalidAggregation, c.Column,
			fmt.Sprintf("aggregation %q is not one of %s", c.Aggregation, joinAggregations()))
	}

	if c.Column == "*" {
		if !isAggregated(c) {
			return apperrors.WithField(apperrors.KindSchemaMismatch, "*", "* can only be selected inside count")
		}
		if agg != AggCount {
			return apperrors.WithField(apperrors.KindInvalidAggregation, "*",
				fmt.Sprintf("%s cannot be applied to *", agg))
		}
		return nil
	}

	col, ok := schema.Column(c.Column)
	if !ok {
		return apperrors.WithField(apperrors.KindSchemaMismatch, c.Column, "selected column does not exist")
	}
	if agg.numeric() && !col.Type.Numeric() {
		return apperrors.WithField(apperrors.KindInvalidAggregation, c.Column,
			fmt.Sprintf("%s requires a numeric column, %s is %s", agg, col.Name, col.Type))
	}
	return nil
}

func joinAggregations() string {
	parts := make([]string, len(Aggregations))
	for i, a := range Aggregations {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

func joinOperators() string {
	parts := make([]string, len(Operators))
	for i, o := range Operators {
		parts[i] = string(o)
	}
	return strings.Join(parts, ", ")
}
