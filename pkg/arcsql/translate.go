package arcsql

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
)

// Options control translation. A nil Dialect means ANSI.
type Options struct {
	Dialect Dialect
	// SingleColumn requires exactly one output column, as kpi formulas do.
	SingleColumn bool
}

// Statement is a translated query: SQL text with placeholders and the values bound to them.
type Statement struct {
	SQL     string   `json:"sql"`
	Params  []any    `json:"params"`
	Columns []string `json:"columns"`
}

// Translate turns q into one SELECT statement against schema. The result depends only
// on (q, schema, opts): identical inputs give byte-identical SQL and parameters.
func Translate(q *ArcSQL, schema *Schema, opts Options) (*Statement, error) {
	if q == nil {
		return nil, apperrors.New(apperrors.KindTranslationError, "query is empty")
	}
	if schema == nil {
		return nil, apperrors.New(apperrors.KindTranslationError, "no schema bound to the query")
	}
	d := opts.Dialect
	if d == nil {
		d = ANSI
	}

	if len(q.Columns) == 0 {
		return nil, apperrors.New(apperrors.KindTranslationError, "query selects no columns")
	}
	if opts.SingleColumn && len(q.Columns) != 1 {
		return nil, apperrors.Newf(apperrors.KindMalformedKpiQuery,
			"a kpi query must select exactly one column, got %d", len(q.Columns))
	}
	if !schema.MatchesTable(q.Table) {
		return nil, apperrors.WithField(apperrors.KindSchemaMismatch, "table",
			fmt.Sprintf("unknown table %q, expected %q", q.Table, schema.Table))
	}

	t := &translator{d: d, schema: schema}
	if err := t.selectList(q.Columns); err != nil {
		return nil, err
	}
	if err := t.groupBy(q.GroupBy); err != nil {
		return nil, err
	}
	if err := t.where(q.Filters); err != nil {
		return nil, err
	}
	if err := t.orderBy(q.OrderBy); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	var trailing string
	if q.Limit != nil {
		if *q.Limit <= 0 {
			return nil, apperrors.WithField(apperrors.KindTranslationError, "limit", "limit must be a positive integer")
		}
		top, tail := d.Limit(t.bindRaw(*q.Limit))
		if top != "" {
			sb.WriteString(top)
			sb.WriteString(" ")
		}
		trailing = tail
	}
	sb.WriteString(strings.Join(t.items, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(t.tableExpr())
	if len(t.predicates) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(t.predicates, " AND "))
	}
	if len(t.groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(t.groups, ", "))
	}
	if len(t.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(t.orders, ", "))
	}
	if trailing != "" {
		sb.WriteString(" ")
		sb.WriteString(trailing)
	}

	params := t.params
	if params == nil {
		params = []any{}
	}
	return &Statement{SQL: sb.String(), Params: params, Columns: t.outputs}, nil
}

type translator struct {
	d      Dialect
	schema *Schema

	items      []string
	outputs    []string
	outputSet  map[string]bool
	plain      []string // resolved names of non-aggregated selections
	aggregated bool

	groups   []string
	groupSet map[string]bool

	predicates []string
	orders     []string
	params     []any
}

func (t *translator) tableExpr() string {
	physical := t.schema.PhysicalTable
	if physical == "" {
		physical = t.schema.Table
	}
	if t.schema.Namespace != "" {
		return t.d.QuoteIdentifier(t.schema.Namespace) + "." + t.d.QuoteIdentifier(physical)
	}
	return t.d.QuoteIdentifier(physical)
}

func (t *translator) selectList(cols []Column) error {
	t.outputSet = make(map[string]bool, len(cols))
	for _, c := range cols {
		var expr string
		var resolved SchemaColumn
		if c.Column == "*" {
			if !isAggregated(c) {
				return apperrors.WithField(apperrors.KindSchemaMismatch, "*", "* can only be selected inside count")
			}
			expr = "*"
		} else {
			col, ok := t.schema.Column(c.Column)
			if !ok {
				return apperrors.WithField(apperrors.KindSchemaMismatch, c.Column, "selected column does not exist")
			}
			resolved = col
			expr = t.d.QuoteIdentifier(col.Name)
		}

		name := c.Alias
		if isAggregated(c) {
			agg := c.Aggregation.normalized()
			if !agg.Known() {
				return apperrors.WithField(apperrors.KindUnsupportedAggregation, c.Column,
					fmt.Sprintf("aggregation %q is not supported", c.Aggregation))
			}
			if expr == "*" && agg != AggCount {
				return apperrors.WithField(apperrors.KindUnsupportedAggregation, "*",
					fmt.Sprintf("%s cannot be applied to *", agg))
			}
			if agg.numeric() && !resolved.Type.Numeric() {
				return apperrors.WithField(apperrors.KindTranslationError, c.Column,
					fmt.Sprintf("%s requires a numeric column, %s is %s", agg, resolved.Name, resolved.Type))
			}
			rendered, ok := t.d.Aggregate(agg, expr)
			if !ok {
				return apperrors.WithField(apperrors.KindUnsupportedAggregation, c.Column,
					fmt.Sprintf("aggregation %q is not supported by the %s dialect", agg, t.d.Name()))
			}
			if name == "" {
				name = defaultAggregateName(agg, resolved.Name)
			}
			expr = rendered + " AS " + t.d.QuoteIdentifier(name)
			t.aggregated = true
		} else {
			if name == "" {
				name = resolved.Name
			} else {
				expr += " AS " + t.d.QuoteIdentifier(name)
			}
			t.plain = append(t.plain, resolved.Name)
		}

		if t.outputSet[name] {
			return apperrors.WithField(apperrors.KindTranslationError, name, "duplicate output column name")
		}
		t.outputSet[name] = true
		t.outputs = append(t.outputs, name)
		t.items = append(t.items, expr)
	}
	return nil
}

func (t *translator) groupBy(groups []string) error {
	t.groupSet = make(map[string]bool, len(groups))
	for _, g := range groups {
		col, ok := t.schema.Column(g)
		if !ok {
			return apperrors.WithField(apperrors.KindSchemaMismatch, g, "group by references an unknown column")
		}
		if t.groupSet[col.Name] {
			return apperrors.WithField(apperrors.KindTranslationError, col.Name, "column appears twice in group by")
		}
		t.groupSet[col.Name] = true
		t.groups = append(t.groups, t.d.QuoteIdentifier(col.Name))
	}

	if t.aggregated || len(t.groups) > 0 {
		for _, p := range t.plain {
			if !t.groupSet[p] {
				return apperrors.WithField(apperrors.KindTranslationError, p,
					"non-aggregated column must appear in group by")
			}
		}
	}
	return nil
}

func (t *translator) where(filters []Filter) error {
	for _, f := range filters {
		col, ok := t.schema.Column(f.Column)
		if !ok {
			return apperrors.WithField(apperrors.KindSchemaMismatch, f.Column, "filter references an unknown column")
		}
		op, ok := f.Operator.Canonical()
		if !ok {
			return apperrors.WithField(apperrors.KindInvalidOperator, f.Column,
				fmt.Sprintf("operator %q is not supported", f.Operator))
		}
		pred, err := t.predicate(col, op, f.Value)
		if err != nil {
			return err
		}
		t.predicates = append(t.predicates, pred)
	}
	return nil
}

var comparisons = map[Operator]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func (t *translator) predicate(col SchemaColumn, op Operator, value any) (string, error) {
	ident := t.d.QuoteIdentifier(col.Name)

	switch op {
	case OpIsNull, OpIsNotNull:
		if value != nil {
			return "", apperrors.WithField(apperrors.KindTranslationError, col.Name, string(op)+" takes no value")
		}
		if op == OpIsNull {
			return ident + " IS NULL", nil
		}
		return ident + " IS NOT NULL", nil

	case OpIn, OpNotIn:
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			return "", apperrors.WithField(apperrors.KindTranslationError, col.Name, string(op)+" requires a non-empty list")
		}
		marks := make([]string, len(list))
		for i, v := range list {
			mark, err := t.bind(col, v)
			if err != nil {
				return "", err
			}
			marks[i] = mark
		}
		kw := " IN ("
		if op == OpNotIn {
			kw = " NOT IN ("
		}
		return ident + kw + strings.Join(marks, ", ") + ")", nil

	case OpBetween:
		list, ok := value.([]any)
		if !ok || len(list) != 2 {
			return "", apperrors.WithField(apperrors.KindTranslationError, col.Name, "between requires exactly two values")
		}
		lo, err := t.bind(col, list[0])
		if err != nil {
			return "", err
		}
		hi, err := t.bind(col, list[1])
		if err != nil {
			return "", err
		}
		return ident + " BETWEEN " + lo + " AND " + hi, nil

	case OpLike:
		if col.Type != TypeString {
			return "", apperrors.WithField(apperrors.KindTranslationError, col.Name, "like requires a string column")
		}
		mark, err := t.bind(col, value)
		if err != nil {
			return "", err
		}
		return ident + " LIKE " + mark, nil
	}

	sym, ok := comparisons[op]
	if !ok {
		return "", apperrors.WithField(apperrors.KindInvalidOperator, col.Name, fmt.Sprintf("operator %q is not supported", op))
	}
	mark, err := t.bind(col, value)
	if err != nil {
		return "", err
	}
	return ident + " " + sym + " " + mark, nil
}

func (t *translator) orderBy(orders []OrderBy) error {
	for _, o := range orders {
		var expr string
		if t.outputSet[o.Column] {
			expr = t.d.QuoteIdentifier(o.Column)
		} else {
			col, ok := t.schema.Column(o.Column)
			if !ok {
				return apperrors.WithField(apperrors.KindSchemaMismatch, o.Column, "order by references an unknown column")
			}
			if (t.aggregated || len(t.groups) > 0) && !t.groupSet[col.Name] {
				return apperrors.WithField(apperrors.KindTranslationError, col.Name,
					"order by column must be selected or grouped")
			}
			expr = t.d.QuoteIdentifier(col.Name)
		}

		switch Direction(strings.ToLower(string(o.Direction))) {
		case "", Asc:
			t.orders = append(t.orders, expr+" ASC")
		case Desc:
			t.orders = append(t.orders, expr+" DESC")
		default:
			return apperrors.WithField(apperrors.KindTranslationError, o.Column,
				fmt.Sprintf("sort direction %q must be asc or desc", o.Direction))
		}
	}
	return nil
}

func (t *translator) bind(col SchemaColumn, v any) (string, error) {
	coerced, err := coerce(col, v)
	if err != nil {
		return "", err
	}
	return t.bindRaw(coerced), nil
}

func (t *translator) bindRaw(v any) string {
	t.params = append(t.params, v)
	return t.d.Placeholder(len(t.params))
}

func defaultAggregateName(agg Aggregation, column string) string {
	if column == "" {
		return string(agg)
	}
	return string(agg) + "_" + column
}

func outputName(c Column) string {
	if c.Alias != "" {
		return c.Alias
	}
	if isAggregated(c) {
		col := c.Column
		if col == "*" {
			col = ""
		}
		return defaultAggregateName(c.Aggregation.normalized(), col)
	}
	return c.Column
}

// coerce converts a literal to the Go type bound for the column's declared type.
func coerce(col SchemaColumn, v any) (any, error) {
	bad := func(msg string) error {
		return apperrors.WithField(apperrors.KindTranslationError, col.Name, msg)
	}

	if v == nil {
		return nil, bad("null literal; use is_null or is_not_null")
	}

	switch col.Type {
	case TypeInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
			if s, isStr := v.(string); isStr {
				if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
					return n, nil
				}
			}
			return nil, bad(fmt.Sprintf("value %v is not an integer", v))
		}
		if n, isNum := v.(json.Number); isNum {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, bad(fmt.Sprintf("value %v is out of range for an integer column", v))
		}
		return int64(f), nil

	case TypeFloat:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
		if s, isStr := v.(string); isStr {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f, nil
			}
		}
		return nil, bad(fmt.Sprintf("value %v is not a number", v))

	case TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, bad(fmt.Sprintf("value %v is not a date string", v))
		}
		d, err := ParseDate(s, col.Format)
		if err != nil {
			return nil, bad(err.Error())
		}
		return d.Format(isoDate), nil

	case TypeString, "":
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(x), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
		return nil, bad(fmt.Sprintf("value of type %T cannot be compared to a string column", v))
	}

	return nil, bad(fmt.Sprintf("column type %q is not supported", col.Type))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

const isoDate = "2006-01-02"

// DateFormats maps the accepted user-facing date formats to Go layouts.
var DateFormats = map[string]string{
	"MM/DD/YYYY": "01/02/2006",
	"DD/MM/YYYY": "02/01/2006",
	"MM-DD-YYYY": "01-02-2006",
	"DD-MM-YYYY": "02-01-2006",
	"YYYY/MM/DD": "2006/01/02",
	"YYYY-MM-DD": isoDate,
}

// ParseDate parses s with the column's declared format, falling back to ISO 8601.
func ParseDate(s, format string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if layout, ok := DateFormats[format]; ok {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	if d, err := time.Parse(isoDate, s); err == nil {
		return d, nil
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d, nil
	}
	if format == "" {
		return time.Time{}, fmt.Errorf("value %q is not a YYYY-MM-DD date", s)
	}
	return time.Time{}, fmt.Errorf("value %q does not match date format %s", s, format)
}
