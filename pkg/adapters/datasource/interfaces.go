// Package datasource defines the warehouse that stores extracted data tables
// and runs translated ArcSQL statements against them.
package datasource

import (
	"context"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
)

// MaxResultRows is the hard cap on rows materialized by one Execute call.
const MaxResultRows = 10000

// Executor runs one translated statement with bound parameters.
type Executor interface {
	// Execute runs exactly one read-only statement. With fetchResults false the
	// statement runs but no rows are materialized. Failures are returned as
	// apperrors KindExecutionError with a message that carries no driver text.
	Execute(ctx context.Context, statement string, params []any, fetchResults bool) (*Result, error)
}

// Loader replaces and drops physical data tables.
type Loader interface {
	// ReplaceTable drops and recreates the table and loads rows in one transaction.
	// On error the previous table is left as it was.
	ReplaceTable(ctx context.Context, table TableSpec, rows [][]any) (int64, error)
	// DropTable removes the table if it exists.
	DropTable(ctx context.Context, namespace, name string) error
}

// Warehouse is a datasource that can hold and query data tables.
type Warehouse interface {
	Executor
	Loader
	// Dialect renders ArcSQL for this warehouse.
	Dialect() arcsql.Dialect
	// Namespace is the schema physical data tables are created in.
	Namespace() string
	Ping(ctx context.Context) error
	Close() error
}

// Result holds the rows of an executed statement in column order.
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
}

// TableSpec describes a physical table to create.
type TableSpec struct {
	Namespace string
	Name      string
	Columns   []ColumnSpec
}

// ColumnSpec is one column of a physical table.
type ColumnSpec struct {
	Name string
	Type arcsql.ColumnType
}

// ColumnNames returns the column names in order.
func (t TableSpec) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
