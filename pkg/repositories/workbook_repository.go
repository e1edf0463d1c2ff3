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

// errNoScope is returned when a repository is called outside database.WithUserContext.
var errNoScope = errors.New("no user scope in context")

// WorkbookRepository provides data access for workbooks.
type WorkbookRepository interface {
	Create(ctx context.Context, wb *models.Workbook) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Workbook, error)
	ListActive(ctx context.Context, userID string) ([]*models.Workbook, error)
	SoftDelete(ctx context.Context, userID string, id uuid.UUID) error
}

type workbookRepository struct{}

// NewWorkbookRepository creates a new WorkbookRepository.
func NewWorkbookRepository() WorkbookRepository {
	return &workbookRepository{}
}

var _ WorkbookRepository = (*workbookRepository)(nil)

func (r *workbookRepository) Create(ctx context.Context, wb *models.Workbook) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	now := time.Now()
	wb.ID = uuid.New()
	wb.IsActive = true
	wb.CreatedAt = now
	wb.UpdatedAt = now

	sql := `
		INSERT INTO workbooks (id, user_id, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := scope.Conn.Exec(ctx, sql,
		wb.ID, wb.UserID, wb.Name, wb.Description, wb.IsActive, wb.CreatedAt, wb.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	return nil
}

func (r *workbookRepository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Workbook, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	sql := `
		SELECT id, user_id, name, description, is_active, created_at, updated_at
		FROM workbooks
		WHERE user_id = $1 AND id = $2 AND is_active`

	wb, err := scanWorkbook(scope.Conn.QueryRow(ctx, sql, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workbook: %w", err)
	}
	return wb, nil
}

func (r *workbookRepository) ListActive(ctx context.Context, userID string) ([]*models.Workbook, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	sql := `
		SELECT id, user_id, name, description, is_active, created_at, updated_at
		FROM workbooks
		WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workbooks: %w", err)
	}
	defer rows.Close()

	workbooks := make([]*models.Workbook, 0)
	for rows.Next() {
		wb, err := scanWorkbook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workbook: %w", err)
		}
		workbooks = append(workbooks, wb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workbooks: %w", err)
	}
	return workbooks, nil
}

func (r *workbookRepository) SoftDelete(ctx context.Context, userID string, id uuid.UUID) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	sql := `
		UPDATE workbooks
		SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND is_active`

	result, err := scope.Conn.Exec(ctx, sql, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete workbook: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanWorkbook(row pgx.Row) (*models.Workbook, error) {
	var wb models.Workbook
	err := row.Scan(&wb.ID, &wb.UserID, &wb.Name, &wb.Description, &wb.IsActive, &wb.CreatedAt, &wb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wb, nil
}
