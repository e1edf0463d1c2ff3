package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/repositories"
)

// DefaultReportName is used when a report is saved without a name.
const DefaultReportName = "Untitled Report"

// ReportRequest holds the editable fields of a report.
type ReportRequest struct {
	Name       string             `json:"name"`
	Rows       []models.ReportRow `json:"rows"`
	SharedWith []string           `json:"sharedWith"`
}

// ReportService manages the reports of a workbook.
type ReportService interface {
	List(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.Report, error)
	Create(ctx context.Context, userID string, workbookID uuid.UUID, req *ReportRequest) (*models.Report, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*models.Report, error)
	Update(ctx context.Context, userID string, id uuid.UUID, req *ReportRequest) (*models.Report, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

type reportService struct {
	reportRepo   repositories.ReportRepository
	formulaRepo  repositories.FormulaRepository
	workbookRepo repositories.WorkbookRepository
	logger       *zap.Logger
}

// NewReportService creates a new report service.
func NewReportService(
	reportRepo repositories.ReportRepository,
	formulaRepo repositories.FormulaRepository,
	workbookRepo repositories.WorkbookRepository,
	logger *zap.Logger,
) ReportService {
	return &reportService{
		reportRepo:   reportRepo,
		formulaRepo:  formulaRepo,
		workbookRepo: workbookRepo,
		logger:       logger.Named("report"),
	}
}

var _ ReportService = (*reportService)(nil)

func (s *reportService) List(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.Report, error) {
	if _, err := s.workbookRepo.GetByID(ctx, userID, workbookID); err != nil {
		return nil, err
	}
	return s.reportRepo.ListByWorkbook(ctx, userID, workbookID)
}

func (s *reportService) Create(ctx context.Context, userID string, workbookID uuid.UUID, req *ReportRequest) (*models.Report, error) {
	if _, err := s.workbookRepo.GetByID(ctx, userID, workbookID); err != nil {
		return nil, err
	}

	report := &models.Report{UserID: userID, WorkbookID: workbookID}
	if err := s.apply(ctx, report, req); err != nil {
		return nil, err
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		s.logger.Error("Failed to create report",
			zap.String("workbook_id", workbookID.String()),
			zap.Error(err))
		return nil, err
	}
	return report, nil
}

func (s *reportService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Report, error) {
	return s.reportRepo.GetByID(ctx, userID, id)
}

func (s *reportService) Update(ctx context.Context, userID string, id uuid.UUID, req *ReportRequest) (*models.Report, error) {
	report, err := s.reportRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, report, req); err != nil {
		return nil, err
	}
	if err := s.reportRepo.Update(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *reportService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.reportRepo.SoftDelete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("Deleted report", zap.String("report_id", id.String()))
	return nil
}

// apply validates req and copies it onto report.
func (s *reportService) apply(ctx context.Context, report *models.Report, req *ReportRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultReportName
	}
	if err := validateName("name", name); err != nil {
		return err
	}

	shared, err := normalizeSharedWith(req.SharedWith)
	if err != nil {
		return err
	}

	rows := req.Rows
	if rows == nil {
		rows = []models.ReportRow{}
	}
	if err := s.validateRows(ctx, report.UserID, report.WorkbookID, rows); err != nil {
		return err
	}

	report.Name = name
	report.Rows = rows
	report.SharedWith = shared
	return nil
}

func (s *reportService) validateRows(ctx context.Context, userID string, workbookID uuid.UUID, rows []models.ReportRow) error {
	checked := make(map[uuid.UUID]bool)
	for i, row := range rows {
		if row.RowType != models.FormulaTypeKPI && row.RowType != models.FormulaTypeTable {
			return apperrors.WithField(apperrors.KindValidation, fmt.Sprintf("rows[%d].rowType", i),
				fmt.Sprintf("row type must be kpi or table, got %q", row.RowType))
		}
		for j, col := range row.Columns {
			field := fmt.Sprintf("rows[%d].columns[%d]", i, j)
			if ct := col.Config.ChartType; ct != nil && !models.IsValidChartType(*ct) {
				return apperrors.WithField(apperrors.KindValidation, field+".config.chartType",
					fmt.Sprintf("invalid chart type: %s", *ct))
			}

			formulaID, err := uuid.Parse(strings.TrimSpace(col.Formula))
			if err != nil {
				return apperrors.WithField(apperrors.KindValidation, field+".formula", "formula must be a formula id")
			}
			if checked[formulaID] {
				continue
			}
			f, err := s.formulaRepo.GetByID(ctx, userID, formulaID)
			if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			if err != nil || !f.IsActive || f.WorkbookID != workbookID {
				return apperrors.WithField(apperrors.KindValidation, field+".formula",
					"formula is not an active formula of this workbook")
			}
			checked[formulaID] = true
		}
	}
	return nil
}

// normalizeSharedWith drops empty entries, removes duplicates and validates every address.
func normalizeSharedWith(emails []string) ([]string, error) {
	out := make([]string, 0, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" || seen[strings.ToLower(e)] {
			continue
		}
		addr, err := mail.ParseAddress(e)
		if err != nil || addr.Address != e {
			return nil, apperrors.WithField(apperrors.KindValidation, "sharedWith",
				fmt.Sprintf("'%s' is not a valid email address", e))
		}
		seen[strings.ToLower(e)] = true
		out = append(out, e)
	}
	return out, nil
}
