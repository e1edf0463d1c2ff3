// Package mssql implements the data table warehouse on SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mssqldb "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/logging"
)

// Warehouse stores data tables in a SQL Server schema.
type Warehouse struct {
	db        *sql.DB
	namespace string
	guard     *datasource.ExecutionGuard
	logger    *zap.Logger
}

var _ datasource.Warehouse = (*Warehouse)(nil)

// New opens a SQL Server connection pool and verifies it.
func New(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (*Warehouse, error) {
	if cfg.Host == "" {
		return nil, errors.New("mssql warehouse requires WAREHOUSE_HOST")
	}

	db, err := sql.Open("sqlserver", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %s", logging.SanitizeError(err))
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConnections))
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %s", logging.SanitizeError(err))
	}

	logger.Info("Connected to SQL Server warehouse",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema))
	return newWarehouse(db, cfg, logger), nil
}

func newWarehouse(db *sql.DB, cfg *config.WarehouseConfig, logger *zap.Logger) *Warehouse {
	ns := cfg.Schema
	if ns == "" {
		ns = "dbo"
	}
	return &Warehouse{
		db:        db,
		namespace: ns,
		logger:    logger,
		guard: &datasource.ExecutionGuard{
			Dialect:  Dialect.Name(),
			Timeout:  cfg.StatementTimeout,
			Classify: classify,
			Logger:   logger,
		},
	}
}

func (w *Warehouse) Dialect() arcsql.Dialect { return Dialect }

func (w *Warehouse) Namespace() string { return w.namespace }

func (w *Warehouse) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

// namedParams binds positional values to the @p1..@pN markers the dialect emits.
func namedParams(params []any) []any {
	named := make([]any, len(params))
	for i, p := range params {
		named[i] = sql.Named("p"+strconv.Itoa(i+1), p)
	}
	return named
}

func (w *Warehouse) Execute(ctx context.Context, statement string, params []any, fetchResults bool) (*datasource.Result, error) {
	stmt, err := w.guard.Prepare(statement)
	if err != nil {
		return nil, err
	}

	ctx, cancel := w.guard.WithTimeout(ctx)
	defer cancel()
	start := time.Now()

	if !fetchResults {
		_, err := w.db.ExecContext(ctx, stmt, namedParams(params)...)
		if err := w.guard.Done(ctx, start, stmt, err); err != nil {
			return nil, err
		}
		return &datasource.Result{Columns: []string{}, Rows: []map[string]any{}}, nil
	}

	rows, err := w.db.QueryContext(ctx, stmt, namedParams(params)...)
	if err != nil {
		return nil, w.guard.Done(ctx, start, stmt, err)
	}
	defer rows.Close()

	result, err := collect(rows)
	if err := w.guard.Done(ctx, start, stmt, err); err != nil {
		return nil, err
	}
	return result, nil
}

func collect(rows *sql.Rows) (*datasource.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	result := &datasource.Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if len(result.Rows) == datasource.MaxResultRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i], types[i].DatabaseTypeName())
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeValue parses DECIMAL, NUMERIC and MONEY, which the driver returns as bytes.
func normalizeValue(v any, dbType string) any {
	if b, ok := v.([]byte); ok && isDecimalType(dbType) {
		s := string(b)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
	return datasource.NormalizeValue(v)
}

func isDecimalType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

// ReplaceTable recreates the table and loads rows with a bulk copy.
func (w *Warehouse) ReplaceTable(ctx context.Context, table datasource.TableSpec, rows [][]any) (int64, error) {
	ns := table.Namespace
	if ns == "" {
		ns = w.namespace
	}
	name := qualified(ns, table.Name)

	defs := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		defs[i] = Dialect.QuoteIdentifier(c.Name) + " " + columnType(c.Type) + " NULL"
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"IF SCHEMA_ID(@p1) IS NULL EXEC('CREATE SCHEMA ' + QUOTENAME(@p1))", sql.Named("p1", ns)); err != nil {
		return 0, fmt.Errorf("failed to create schema %s: %w", ns, err)
	}
	ddl := []string{
		"DROP TABLE IF EXISTS " + name,
		"CREATE TABLE " + name + " (" + strings.Join(defs, ", ") + ")",
	}
	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to prepare table %s: %w", table.Name, err)
		}
	}

	bulk, err := tx.PrepareContext(ctx, mssqldb.CopyIn(name, mssqldb.BulkOptions{Tablock: true}, table.ColumnNames()...))
	if err != nil {
		return 0, fmt.Errorf("failed to start bulk copy: %w", err)
	}
	for _, row := range rows {
		if _, err := bulk.ExecContext(ctx, row...); err != nil {
			bulk.Close()
			return 0, fmt.Errorf("failed to load row into %s: %w", table.Name, err)
		}
	}
	res, err := bulk.ExecContext(ctx)
	if err != nil {
		bulk.Close()
		return 0, fmt.Errorf("failed to flush bulk copy: %w", err)
	}
	if err := bulk.Close(); err != nil {
		return 0, fmt.Errorf("failed to close bulk copy: %w", err)
	}
	copied, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit table %s: %w", table.Name, err)
	}

	w.logger.Info("Replaced data table", zap.String("table", name), zap.Int64("rows", copied))
	return copied, nil
}

func (w *Warehouse) DropTable(ctx context.Context, namespace, name string) error {
	if namespace == "" {
		namespace = w.namespace
	}
	if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+qualified(namespace, name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}

// classify maps SQL Server error numbers to caller-safe messages.
func classify(err error) string {
	var msErr mssqldb.Error
	if !errors.As(err, &msErr) {
		return ""
	}

	switch msErr.Number {
	case 207:
		return "column does not exist in the data table"
	case 208:
		return "data table has not been extracted"
	case 8134:
		return "division by zero"
	case 241, 245, 8114, 8115:
		return "a value does not match the column type"
	case 102, 156, 4145:
		return "statement is not valid for this data table"
	}
	return ""
}
