package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/database"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// ReportRepository provides data access for reports.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Report, error)
	ListByWorkbook(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.Report, error)
	Update(ctx context.Context, report *models.Report) error
	SoftDelete(ctx context.Context, userID string, id uuid.UUID) error
}

type reportRepository struct{}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository() ReportRepository {
	return &reportRepository{}
}

var _ ReportRepository = (*reportRepository)(nil)

const reportColumns = `id, user_id, workbook_id, name, rows, shared_with, is_active, created_at, updated_at`

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	now := time.Now()
	report.ID = uuid.New()
	report.IsActive = true
	report.CreatedAt = now
	report.UpdatedAt = now
	normalizeReport(report)

	rows, err := json.Marshal(report.Rows)
	if err != nil {
		return fmt.Errorf("failed to marshal report rows: %w", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		report.ID, report.UserID, report.WorkbookID, report.Name, rows, report.SharedWith,
		report.IsActive, report.CreatedAt, report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *reportRepository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Report, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	report, err := scanReport(scope.Conn.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE user_id = $1 AND id = $2 AND is_active`, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func (r *reportRepository) ListByWorkbook(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.Report, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE user_id = $1 AND workbook_id = $2 AND is_active
		ORDER BY created_at DESC`, userID, workbookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*models.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}

func (r *reportRepository) Update(ctx context.Context, report *models.Report) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	report.UpdatedAt = time.Now()
	normalizeReport(report)
	rows, err := json.Marshal(report.Rows)
	if err != nil {
		return fmt.Errorf("failed to marshal report rows: %w", err)
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE reports
		SET name = $3, rows = $4, shared_with = $5, updated_at = $6
		WHERE user_id = $1 AND id = $2 AND is_active`,
		report.UserID, report.ID, report.Name, rows, report.SharedWith, report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *reportRepository) SoftDelete(ctx context.Context, userID string, id uuid.UUID) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE reports SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND is_active`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func normalizeReport(report *models.Report) {
	if report.Rows == nil {
		report.Rows = []models.ReportRow{}
	}
	if report.SharedWith == nil {
		report.SharedWith = []string{}
	}
}

func scanReport(row pgx.Row) (*models.Report, error) {
	var report models.Report
	var rows []byte
	err := row.Scan(&report.ID, &report.UserID, &report.WorkbookID, &report.Name, &rows, &report.SharedWith,
		&report.IsActive, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rows, &report.Rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report rows: %w", err)
	}
	normalizeReport(&report)
	return &report, nil
}
