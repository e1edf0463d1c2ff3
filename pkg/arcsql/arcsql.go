// Package arcsql defines ArcSQL, the structured query descriptor produced by the
// analysis agent, and translates it into parameterized SQL for a known table schema.
//
// ArcSQL is deliberately small: one table, an ordered list of selected columns with
// optional aggregation, AND-ed filter predicates, grouping, ordering and a row limit.
// Identifiers are always resolved against a Schema and quoted by a Dialect; literal
// values are always emitted as placeholders with a parallel parameter list.
package arcsql

import (
	"encoding/json"
	"strings"
)

// Aggregation is an aggregate function name.
type Aggregation string

const (
	AggSum           Aggregation = "sum"
	AggCount         Aggregation = "count"
	AggCountDistinct Aggregation = "count_distinct"
	AggAvg           Aggregation = "avg"
	AggMin           Aggregation = "min"
	AggMax           Aggregation = "max"
	AggMedian        Aggregation = "median"
)

// Aggregations is the closed set of aggregation tokens ArcSQL accepts.
// A Dialect may still refuse one of them at translation time.
var Aggregations = []Aggregation{AggSum, AggCount, AggCountDistinct, AggAvg, AggMin, AggMax, AggMedian}

// Known reports whether a is part of the ArcSQL aggregation set.
func (a Aggregation) Known() bool {
	for _, v := range Aggregations {
		if v == a.normalized() {
			return true
		}
	}
	return false
}

func (a Aggregation) normalized() Aggregation {
	return Aggregation(strings.ToLower(strings.TrimSpace(string(a))))
}

// numeric reports whether the aggregation only makes sense over numbers.
func (a Aggregation) numeric() bool {
	switch a.normalized() {
	case AggSum, AggAvg, AggMedian:
		return true
	}
	return false
}

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNe        Operator = "ne"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpLike      Operator = "like"
	OpBetween   Operator = "between"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

// Operators is the closed set of canonical operator tokens.
var Operators = []Operator{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpLike, OpBetween, OpIsNull, OpIsNotNull}

var operatorAliases = map[string]Operator{
	"=":           OpEq,
	"==":          OpEq,
	"!=":          OpNe,
	"<>":          OpNe,
	">":           OpGt,
	">=":          OpGte,
	"<":           OpLt,
	"<=":          OpLte,
	"not in":      OpNotIn,
	"is null":     OpIsNull,
	"is not null": OpIsNotNull,
}

// Canonical maps symbolic spellings ("=", "<>", "not in") onto the canonical token.
// The second result is false if the operator is not part of the set.
func (o Operator) Canonical() (Operator, bool) {
	s := strings.ToLower(strings.TrimSpace(string(o)))
	if alias, ok := operatorAliases[s]; ok {
		return alias, true
	}
	for _, v := range Operators {
		if string(v) == s {
			return v, true
		}
	}
	return o, false
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ArcSQL is one semantic query. Treat it as immutable once handed to Translate.
type ArcSQL struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Table       string    `json:"table"`
	Columns     []Column  `json:"columns"`
	Filters     []Filter  `json:"filters,omitempty"`
	GroupBy     []string  `json:"groupBy,omitempty"`
	OrderBy     []OrderBy `json:"orderBy,omitempty"`
	Limit       *int      `json:"limit,omitempty"`
}

// Column is one selected output column.
type Column struct {
	Column      string      `json:"column"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Alias       string      `json:"alias,omitempty"`
}

// Filter is one predicate; predicates are combined with AND.
// Value is a scalar, or a list for in, not_in and between, and absent for the null checks.
type Filter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// OrderBy sorts by an output name or a table column.
type OrderBy struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction,omitempty"`
}

// Clone returns a deep copy so callers can keep a snapshot per turn.
func (q *ArcSQL) Clone() *ArcSQL {
	if q == nil {
		return nil
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil
	}
	var out ArcSQL
	if err := decodeStrict(data, &out); err != nil {
		return nil
	}
	return &out
}

// Decode parses a stored ArcSQL document. Unknown fields are rejected.
func Decode(data []byte) (*ArcSQL, error) {
	var q ArcSQL
	if err := decodeStrict(data, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func isAggregated(c Column) bool {
	return strings.TrimSpace(string(c.Aggregation)) != ""
}
