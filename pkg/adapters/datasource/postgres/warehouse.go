// Package postgres implements the data table warehouse on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/logging"
)

// Warehouse stores data tables in a PostgreSQL schema.
type Warehouse struct {
	pool      *pgxpool.Pool
	ownsPool  bool
	namespace string
	guard     *datasource.ExecutionGuard
	logger    *zap.Logger
}

var _ datasource.Warehouse = (*Warehouse)(nil)

// New opens the warehouse. When cfg shares the engine database, enginePool is reused
// and Close leaves it open.
func New(ctx context.Context, cfg *config.WarehouseConfig, enginePool *pgxpool.Pool, logger *zap.Logger) (*Warehouse, error) {
	w := &Warehouse{
		namespace: cfg.Schema,
		logger:    logger,
		guard: &datasource.ExecutionGuard{
			Dialect:  Dialect.Name(),
			Timeout:  cfg.StatementTimeout,
			Classify: classify,
			Logger:   logger,
		},
	}
	if w.namespace == "" {
		w.namespace = "public"
	}

	if cfg.SharesEngineDatabase() {
		if enginePool == nil {
			return nil, errors.New("warehouse shares the engine database but no engine pool was given")
		}
		w.pool = enginePool
		logger.Info("Warehouse uses the engine database", zap.String("schema", w.namespace))
		return w, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse warehouse connection string: %s", logging.SanitizeError(err))
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse pool: %s", logging.SanitizeError(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %s", logging.SanitizeError(err))
	}

	w.pool = pool
	w.ownsPool = true
	logger.Info("Connected to PostgreSQL warehouse",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("schema", w.namespace))
	return w, nil
}

func (w *Warehouse) Dialect() arcsql.Dialect { return Dialect }

func (w *Warehouse) Namespace() string { return w.namespace }

func (w *Warehouse) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

func (w *Warehouse) Close() error {
	if w.ownsPool {
		w.pool.Close()
	}
	return nil
}

// Execute runs one read-only statement. pgx sends params as bind values.
func (w *Warehouse) Execute(ctx context.Context, statement string, params []any, fetchResults bool) (*datasource.Result, error) {
	stmt, err := w.guard.Prepare(statement)
	if err != nil {
		return nil, err
	}

	ctx, cancel := w.guard.WithTimeout(ctx)
	defer cancel()
	start := time.Now()

	if !fetchResults {
		_, err := w.pool.Exec(ctx, stmt, params...)
		if err := w.guard.Done(ctx, start, stmt, err); err != nil {
			return nil, err
		}
		return &datasource.Result{Columns: []string{}, Rows: []map[string]any{}}, nil
	}

	rows, err := w.pool.Query(ctx, stmt, params...)
	if err != nil {
		return nil, w.guard.Done(ctx, start, stmt, err)
	}
	defer rows.Close()

	result, err := collect(rows)
	if err := w.guard.Done(ctx, start, stmt, err); err != nil {
		return nil, err
	}
	if result.Truncated {
		w.logger.Warn("Result truncated", zap.Int("max_rows", datasource.MaxResultRows))
	}
	return result, nil
}

func collect(rows pgx.Rows) (*datasource.Result, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	result := &datasource.Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if len(result.Rows) == datasource.MaxResultRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeValue turns NUMERIC results (SUM over BIGINT, percentile_cont) into
// int64 or float64 before the shared conversions.
func normalizeValue(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		if !n.Valid {
			return nil
		}
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		if f.Float64 == math.Trunc(f.Float64) && math.Abs(f.Float64) < 1<<53 {
			return int64(f.Float64)
		}
		return f.Float64
	}
	return datasource.NormalizeValue(v)
}

// ReplaceTable recreates the table and copies rows in with the COPY protocol.
func (w *Warehouse) ReplaceTable(ctx context.Context, table datasource.TableSpec, rows [][]any) (int64, error) {
	ns := table.Namespace
	if ns == "" {
		ns = w.namespace
	}
	ident := pgx.Identifier{ns, table.Name}

	defs := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + columnType(c.Type)
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ddl := []string{
		"CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{ns}.Sanitize(),
		"DROP TABLE IF EXISTS " + ident.Sanitize(),
		"CREATE TABLE " + ident.Sanitize() + " (" + strings.Join(defs, ", ") + ")",
	}
	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to prepare table %s: %w", table.Name, err)
		}
	}

	copied, err := tx.CopyFrom(ctx, ident, table.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to load rows into %s: %w", table.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit table %s: %w", table.Name, err)
	}

	w.logger.Info("Replaced data table",
		zap.String("table", ident.Sanitize()),
		zap.Int64("rows", copied))
	return copied, nil
}

func (w *Warehouse) DropTable(ctx context.Context, namespace, name string) error {
	if namespace == "" {
		namespace = w.namespace
	}
	ident := pgx.Identifier{namespace, name}
	if _, err := w.pool.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}

// classify maps a PostgreSQL error to a caller-safe message by SQLSTATE.
func classify(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}

	switch {
	case pgErr.Code == "42703":
		return "column does not exist in the data table"
	case pgErr.Code == "42P01":
		return "data table has not been extracted"
	case pgErr.Code == "57014":
		return "statement timed out"
	case pgErr.Code == "22012":
		return "division by zero"
	case strings.HasPrefix(pgErr.Code, "22"):
		return "a value does not match the column type"
	case strings.HasPrefix(pgErr.Code, "42"):
		return "statement is not valid for this data table"
	case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"):
		return "warehouse is unavailable"
	}
	return ""
}
