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

// FormulaRepository provides data access for formulas.
type FormulaRepository interface {
	Create(ctx context.Context, f *models.Formula) error
	// GetByID returns the formula whether or not it is active.
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Formula, error)
	ListActiveByWorkbook(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.Formula, error)
	// SetThreadID binds the conversation thread after it was established.
	SetThreadID(ctx context.Context, userID string, id uuid.UUID, threadID string) error
	// ApplyTurn writes a successful turn and bumps the version. It returns the new version;
	// a value other than expectedVersion+1 means another turn wrote in between.
	ApplyTurn(ctx context.Context, userID string, id uuid.UUID, expectedVersion int, update *models.FormulaTurnUpdate) (int, error)
	SoftDelete(ctx context.Context, userID string, id uuid.UUID) error
}

type formulaRepository struct{}

// NewFormulaRepository creates a new FormulaRepository.
func NewFormulaRepository() FormulaRepository {
	return &formulaRepository{}
}

var _ FormulaRepository = (*formulaRepository)(nil)

const formulaColumns = `id, user_id, workbook_id, data_table_id, name, description, formula_type,
	       arc_sql, raw_arc_sql, thread_id, version, is_active, created_at, updated_at`

func (r *formulaRepository) Create(ctx context.Context, f *models.Formula) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	now := time.Now()
	f.ID = uuid.New()
	f.IsActive = true
	f.Version = 0
	f.CreatedAt = now
	f.UpdatedAt = now

	raw, err := marshalArcSQL(f.RawArcSQL)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO formulas (` + formulaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = scope.Conn.Exec(ctx, sql,
		f.ID, f.UserID, f.WorkbookID, f.DataTableID, f.Name, f.Description, f.FormulaType,
		f.ArcSQL, raw, f.ThreadID, f.Version, f.IsActive, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create formula: %w", err)
	}
	return nil
}

func (r *formulaRepository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Formula, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	sql := `SELECT ` + formulaColumns + ` FROM formulas WHERE user_id = $1 AND id = $2`

	f, err := scanFormula(scope.Conn.QueryRow(ctx, sql, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get formula: %w", err)
	}
	return f, nil
}

func (r *formulaRepository) ListActiveByWorkbook(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.Formula, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	sql := `
		SELECT ` + formulaColumns + `
		FROM formulas
		WHERE user_id = $1 AND workbook_id = $2 AND is_active
		ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, sql, userID, workbookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list formulas: %w", err)
	}
	defer rows.Close()

	formulas := make([]*models.Formula, 0)
	for rows.Next() {
		f, err := scanFormula(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan formula: %w", err)
		}
		formulas = append(formulas, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating formulas: %w", err)
	}
	return formulas, nil
}

func (r *formulaRepository) SetThreadID(ctx context.Context, userID string, id uuid.UUID, threadID string) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE formulas SET thread_id = $3, updated_at = NOW()
		WHERE user_id = $1 AND id = $2`, userID, id, threadID)
	if err != nil {
		return fmt.Errorf("failed to set thread id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *formulaRepository) ApplyTurn(ctx context.Context, userID string, id uuid.UUID, expectedVersion int, update *models.FormulaTurnUpdate) (int, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return 0, errNoScope
	}

	raw, err := marshalArcSQL(update.RawArcSQL)
	if err != nil {
		return 0, err
	}

	// Last writer wins; the returned version lets the caller detect the race.
	sql := `
		UPDATE formulas
		SET name = $3, description = $4, formula_type = $5, arc_sql = $6, raw_arc_sql = $7,
		    version = version + 1, updated_at = NOW()
		WHERE user_id = $1 AND id = $2
		RETURNING version`

	var newVersion int
	err = scope.Conn.QueryRow(ctx, sql, userID, id,
		update.Name, update.Description, update.FormulaType, update.ArcSQL, raw).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to apply turn: %w", err)
	}
	return newVersion, nil
}

func (r *formulaRepository) SoftDelete(ctx context.Context, userID string, id uuid.UUID) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE formulas SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND is_active`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete formula: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanFormula(row pgx.Row) (*models.Formula, error) {
	var f models.Formula
	var raw []byte
	err := row.Scan(&f.ID, &f.UserID, &f.WorkbookID, &f.DataTableID, &f.Name, &f.Description, &f.FormulaType,
		&f.ArcSQL, &raw, &f.ThreadID, &f.Version, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if f.RawArcSQL, err = unmarshalArcSQL(raw); err != nil {
		return nil, err
	}
	return &f, nil
}
