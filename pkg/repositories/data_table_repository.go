package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/database"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// DataTableRepository provides data access for data table metadata and its columns.
type DataTableRepository interface {
	Create(ctx context.Context, dt *models.DataTableMeta) error
	// GetByID loads the table with its columns ordered by position.
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.DataTableMeta, error)
	ListByWorkbook(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.DataTableMeta, error)
	// ReplaceExtraction stores a successful extraction: status, details and the full column list.
	ReplaceExtraction(ctx context.Context, dt *models.DataTableMeta) error
	// MarkExtractionFailed records a failed extraction without touching the previous columns.
	MarkExtractionFailed(ctx context.Context, userID string, id uuid.UUID, details models.JSONBMap) error
	// ResetExtraction clears columns and returns the table to pending.
	ResetExtraction(ctx context.Context, userID string, id uuid.UUID) error
}

type dataTableRepository struct{}

// NewDataTableRepository creates a new DataTableRepository.
func NewDataTableRepository() DataTableRepository {
	return &dataTableRepository{}
}

var _ DataTableRepository = (*dataTableRepository)(nil)

const dataTableColumns = `id, user_id, workbook_id, name, description, data_source_added, data_source,
	       extraction_status, extraction_details, created_at, updated_at`

func (r *dataTableRepository) Create(ctx context.Context, dt *models.DataTableMeta) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	now := time.Now()
	dt.ID = uuid.New()
	dt.CreatedAt = now
	dt.UpdatedAt = now
	if dt.DataSource == "" {
		dt.DataSource = models.DataSourceCSV
	}
	if dt.ExtractionStatus == "" {
		dt.ExtractionStatus = models.ExtractionPending
	}
	if dt.ExtractionDetails == nil {
		dt.ExtractionDetails = models.JSONBMap{}
	}
	dt.Columns = []models.DataTableColumnMeta{}

	sql := `
		INSERT INTO data_tables (` + dataTableColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := scope.Conn.Exec(ctx, sql,
		dt.ID, dt.UserID, dt.WorkbookID, dt.Name, dt.Description, dt.DataSourceAdded, dt.DataSource,
		dt.ExtractionStatus, dt.ExtractionDetails, dt.CreatedAt, dt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create data table: %w", err)
	}
	return nil
}

func (r *dataTableRepository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.DataTableMeta, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	sql := `SELECT ` + dataTableColumns + ` FROM data_tables WHERE user_id = $1 AND id = $2`

	dt, err := scanDataTable(scope.Conn.QueryRow(ctx, sql, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get data table: %w", err)
	}

	cols, err := r.listColumns(ctx, scope.Conn, []uuid.UUID{dt.ID})
	if err != nil {
		return nil, err
	}
	dt.Columns = cols[dt.ID]
	if dt.Columns == nil {
		dt.Columns = []models.DataTableColumnMeta{}
	}
	return dt, nil
}

func (r *dataTableRepository) ListByWorkbook(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.DataTableMeta, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	sql := `
		SELECT ` + dataTableColumns + `
		FROM data_tables
		WHERE user_id = $1 AND workbook_id = $2
		ORDER BY created_at`

	rows, err := scope.Conn.Query(ctx, sql, userID, workbookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list data tables: %w", err)
	}
	defer rows.Close()

	tables := make([]*models.DataTableMeta, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		dt, err := scanDataTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data table: %w", err)
		}
		tables = append(tables, dt)
		ids = append(ids, dt.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data tables: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return tables, nil
	}
	cols, err := r.listColumns(ctx, scope.Conn, ids)
	if err != nil {
		return nil, err
	}
	for _, dt := range tables {
		dt.Columns = cols[dt.ID]
		if dt.Columns == nil {
			dt.Columns = []models.DataTableColumnMeta{}
		}
	}
	return tables, nil
}

func (r *dataTableRepository) ReplaceExtraction(ctx context.Context, dt *models.DataTableMeta) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	dt.UpdatedAt = time.Now()
	result, err := tx.Exec(ctx, `
		UPDATE data_tables
		SET name = $3, data_source_added = $4, data_source = $5, extraction_status = $6,
		    extraction_details = $7, updated_at = $8
		WHERE user_id = $1 AND id = $2`,
		dt.UserID, dt.ID, dt.Name, dt.DataSourceAdded, dt.DataSource, dt.ExtractionStatus,
		dt.ExtractionDetails, dt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update data table: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM data_table_columns WHERE data_table_id = $1`, dt.ID); err != nil {
		return fmt.Errorf("failed to clear columns: %w", err)
	}

	for i := range dt.Columns {
		c := &dt.Columns[i]
		c.ID = uuid.New()
		c.DataTableID = dt.ID
		c.Position = i
		_, err := tx.Exec(ctx, `
			INSERT INTO data_table_columns (id, data_table_id, position, name, dtype, format, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.DataTableID, c.Position, c.Name, string(c.DType), c.Format, c.Description)
		if err != nil {
			return fmt.Errorf("failed to insert column %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit extraction: %w", err)
	}
	return nil
}

func (r *dataTableRepository) MarkExtractionFailed(ctx context.Context, userID string, id uuid.UUID, details models.JSONBMap) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE data_tables
		SET extraction_status = 'failed', extraction_details = $3, updated_at = NOW()
		WHERE user_id = $1 AND id = $2`, userID, id, details)
	if err != nil {
		return fmt.Errorf("failed to mark extraction failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataTableRepository) ResetExtraction(ctx context.Context, userID string, id uuid.UUID) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `
		UPDATE data_tables
		SET data_source_added = FALSE, extraction_status = 'pending', extraction_details = '{}', updated_at = NOW()
		WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to reset data table: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM data_table_columns WHERE data_table_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear columns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *dataTableRepository) listColumns(ctx context.Context, conn queryer, tableIDs []uuid.UUID) (map[uuid.UUID][]models.DataTableColumnMeta, error) {
	rows, err := conn.Query(ctx, `
		SELECT id, data_table_id, position, name, dtype, format, description
		FROM data_table_columns
		WHERE data_table_id = ANY($1)
		ORDER BY data_table_id, position`, tableIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.DataTableColumnMeta)
	for rows.Next() {
		var c models.DataTableColumnMeta
		var dtype string
		if err := rows.Scan(&c.ID, &c.DataTableID, &c.Position, &c.Name, &dtype, &c.Format, &c.Description); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		c.DType = arcsqlType(dtype)
		out[c.DataTableID] = append(out[c.DataTableID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return out, nil
}

func scanDataTable(row pgx.Row) (*models.DataTableMeta, error) {
	var dt models.DataTableMeta
	err := row.Scan(&dt.ID, &dt.UserID, &dt.WorkbookID, &dt.Name, &dt.Description, &dt.DataSourceAdded,
		&dt.DataSource, &dt.ExtractionStatus, &dt.ExtractionDetails, &dt.CreatedAt, &dt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &dt, nil
}
