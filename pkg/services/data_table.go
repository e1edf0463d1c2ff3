package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/repositories"
)

// CreateDataTableRequest holds the fields for a new, still empty data table.
type CreateDataTableRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ExtractColumn declares one column of an upload.
type ExtractColumn struct {
	Name        string            `json:"name"`
	DType       arcsql.ColumnType `json:"dtype"`
	Format      string            `json:"format"`
	Description string            `json:"description"`
}

// ExtractRequest is an uploaded CSV: declared columns and the parsed rows keyed by column name.
type ExtractRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Columns     []ExtractColumn  `json:"columns"`
	Rows        []map[string]any `json:"rows"`
}

// DataTableService manages data tables and the warehouse tables holding their rows.
type DataTableService interface {
	List(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.DataTableMeta, error)
	Create(ctx context.Context, userID string, workbookID uuid.UUID, req *CreateDataTableRequest) (*models.DataTableMeta, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*models.DataTableMeta, error)
	// Extract replaces the table's rows and columns with an upload.
	Extract(ctx context.Context, userID string, id uuid.UUID, req *ExtractRequest) (*models.DataTableMeta, error)
	// DeleteExtraction drops the rows and returns the table to pending.
	DeleteExtraction(ctx context.Context, userID string, id uuid.UUID) (*models.DataTableMeta, error)
}

type dataTableService struct {
	dataTableRepo repositories.DataTableRepository
	workbookRepo  repositories.WorkbookRepository
	warehouse     datasource.Warehouse
	schemas       SchemaProvider
	limits        config.DatasetsConfig
	logger        *zap.Logger
}

// NewDataTableService creates a new data table service.
func NewDataTableService(
	dataTableRepo repositories.DataTableRepository,
	workbookRepo repositories.WorkbookRepository,
	warehouse datasource.Warehouse,
	schemas SchemaProvider,
	limits config.DatasetsConfig,
	logger *zap.Logger,
) DataTableService {
	return &dataTableService{
		dataTableRepo: dataTableRepo,
		workbookRepo:  workbookRepo,
		warehouse:     warehouse,
		schemas:       schemas,
		limits:        limits,
		logger:        logger.Named("data-table"),
	}
}

var _ DataTableService = (*dataTableService)(nil)

func (s *dataTableService) List(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.DataTableMeta, error) {
	if _, err := s.workbookRepo.GetByID(ctx, userID, workbookID); err != nil {
		return nil, err
	}
	return s.dataTableRepo.ListByWorkbook(ctx, userID, workbookID)
}

func (s *dataTableService) Create(ctx context.Context, userID string, workbookID uuid.UUID, req *CreateDataTableRequest) (*models.DataTableMeta, error) {
	if err := validateName("name", req.Name); err != nil {
		return nil, err
	}
	if _, err := s.workbookRepo.GetByID(ctx, userID, workbookID); err != nil {
		return nil, err
	}

	dt := &models.DataTableMeta{
		UserID:      userID,
		WorkbookID:  workbookID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		DataSource:  models.DataSourceCSV,
	}
	if err := s.dataTableRepo.Create(ctx, dt); err != nil {
		s.logger.Error("Failed to create data table",
			zap.String("workbook_id", workbookID.String()),
			zap.Error(err))
		return nil, err
	}
	return dt, nil
}

func (s *dataTableService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.DataTableMeta, error) {
	return s.dataTableRepo.GetByID(ctx, userID, id)
}

func (s *dataTableService) Extract(ctx context.Context, userID string, id uuid.UUID, req *ExtractRequest) (*models.DataTableMeta, error) {
	dt, err := s.dataTableRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = dt.Name
	}
	if err := validateName("name", name); err != nil {
		return nil, err
	}
	columns, err := s.validateUpload(req)
	if err != nil {
		return nil, err
	}

	rows, err := convertRows(columns, req.Rows)
	if err != nil {
		s.markFailed(ctx, dt, err, len(req.Rows), len(columns))
		return nil, err
	}

	spec := datasource.TableSpec{
		Namespace: s.warehouse.Namespace(),
		Name:      dt.PhysicalName(),
		Columns:   make([]datasource.ColumnSpec, len(columns)),
	}
	for i, c := range columns {
		spec.Columns[i] = datasource.ColumnSpec{Name: c.Name, Type: c.DType}
	}

	loaded, err := s.warehouse.ReplaceTable(ctx, spec, rows)
	if err != nil {
		s.logger.Error("Failed to load data table",
			zap.String("data_table_id", id.String()),
			zap.Error(err))
		loadErr := apperrors.New(apperrors.KindExecutionError, "the rows could not be loaded into the warehouse")
		s.markFailed(ctx, dt, loadErr, len(req.Rows), len(columns))
		return nil, loadErr
	}

	dt.Name = name
	if d := strings.TrimSpace(req.Description); d != "" {
		dt.Description = d
	}
	dt.Columns = columns
	dt.DataSourceAdded = true
	dt.DataSource = models.DataSourceCSV
	dt.ExtractionStatus = models.ExtractionSuccess
	dt.ExtractionDetails = models.JSONBMap{
		"rows":    loaded,
		"columns": len(columns),
	}
	if err := s.dataTableRepo.ReplaceExtraction(ctx, dt); err != nil {
		return nil, err
	}
	s.schemas.Invalidate(id)

	s.logger.Info("Extracted data table",
		zap.String("data_table_id", id.String()),
		zap.Int64("rows", loaded),
		zap.Int("columns", len(columns)))
	return dt, nil
}

func (s *dataTableService) DeleteExtraction(ctx context.Context, userID string, id uuid.UUID) (*models.DataTableMeta, error) {
	dt, err := s.dataTableRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.warehouse.DropTable(ctx, s.warehouse.Namespace(), dt.PhysicalName()); err != nil {
		s.logger.Error("Failed to drop data table",
			zap.String("data_table_id", id.String()),
			zap.Error(err))
		return nil, apperrors.New(apperrors.KindExecutionError, "the warehouse table could not be dropped")
	}
	if err := s.dataTableRepo.ResetExtraction(ctx, userID, id); err != nil {
		return nil, err
	}
	s.schemas.Invalidate(id)

	return s.dataTableRepo.GetByID(ctx, userID, id)
}

// validateUpload checks limits and column declarations. Failures leave the table untouched.
func (s *dataTableService) validateUpload(req *ExtractRequest) ([]models.DataTableColumnMeta, error) {
	if len(req.Columns) == 0 {
		return nil, apperrors.WithField(apperrors.KindValidation, "columns", "at least one column is required")
	}
	if len(req.Columns) > s.limits.ColumnLimit {
		return nil, apperrors.WithField(apperrors.KindValidation, "columns",
			fmt.Sprintf("max columns allowed is %d", s.limits.ColumnLimit))
	}
	if len(req.Rows) == 0 {
		return nil, apperrors.WithField(apperrors.KindValidation, "rows", "at least one row is required")
	}
	if len(req.Rows) > s.limits.RowLimit {
		return nil, apperrors.WithField(apperrors.KindValidation, "rows",
			fmt.Sprintf("max rows allowed is %d", s.limits.RowLimit))
	}

	seen := make(map[string]bool, len(req.Columns))
	columns := make([]models.DataTableColumnMeta, len(req.Columns))
	for i, c := range req.Columns {
		name := strings.TrimSpace(c.Name)
		field := fmt.Sprintf("columns[%d].name", i)
		if err := validateName(field, name); err != nil {
			return nil, err
		}
		if seen[strings.ToLower(name)] {
			return nil, apperrors.WithField(apperrors.KindValidation, field, fmt.Sprintf("duplicate column %q", name))
		}
		seen[strings.ToLower(name)] = true

		dtype := arcsql.ColumnType(strings.ToLower(string(c.DType)))
		if !dtype.Valid() {
			return nil, apperrors.WithField(apperrors.KindValidation, fmt.Sprintf("columns[%d].dtype", i),
				fmt.Sprintf("unknown data type %q", c.DType))
		}

		format := ""
		if dtype == arcsql.TypeDate {
			format = strings.ToUpper(strings.TrimSpace(c.Format))
			if _, ok := arcsql.DateFormats[format]; !ok {
				return nil, apperrors.WithField(apperrors.KindValidation, fmt.Sprintf("columns[%d].format", i),
					fmt.Sprintf("unknown date format %q", c.Format))
			}
		}

		columns[i] = models.DataTableColumnMeta{
			Position:    i,
			Name:        name,
			DType:       dtype,
			Format:      format,
			Description: strings.TrimSpace(c.Description),
		}
	}
	return columns, nil
}

func (s *dataTableService) markFailed(ctx context.Context, dt *models.DataTableMeta, cause error, rows, columns int) {
	details := models.JSONBMap{
		"error":   failureMessage(cause),
		"rows":    rows,
		"columns": columns,
	}
	if err := s.dataTableRepo.MarkExtractionFailed(ctx, dt.UserID, dt.ID, details); err != nil {
		s.logger.Warn("Failed to record extraction failure",
			zap.String("data_table_id", dt.ID.String()),
			zap.Error(err))
	}
}

// convertRows converts every cell to its column's declared type, in column order.
func convertRows(columns []models.DataTableColumnMeta, rows []map[string]any) ([][]any, error) {
	out := make([][]any, len(rows))
	for r, row := range rows {
		values := make([]any, len(columns))
		for c, col := range columns {
			v, err := convertCell(col, row[col.Name])
			if err != nil {
				return nil, apperrors.WithField(apperrors.KindValidation, col.Name,
					fmt.Sprintf("row %d: %v", r+1, err))
			}
			values[c] = v
		}
		out[r] = values
	}
	return out, nil
}

// convertCell returns nil for missing and blank values of non-string columns.
func convertCell(col models.DataTableColumnMeta, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && col.DType != arcsql.TypeString {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		v = s
	}

	switch col.DType {
	case arcsql.TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case json.Number:
			return x.String(), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
		return fmt.Sprint(v), nil

	case arcsql.TypeInteger:
		switch x := v.(type) {
		case string:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n, nil
			}
			if f, err := strconv.ParseFloat(x, 64); err == nil && f == math.Trunc(f) {
				return int64(f), nil
			}
		case float64:
			if x == math.Trunc(x) && !math.IsInf(x, 0) {
				return int64(x), nil
			}
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n, nil
			}
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		}
		return nil, fmt.Errorf("%v is not an integer", v)

	case arcsql.TypeFloat:
		switch x := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f, nil
			}
		case float64:
			return x, nil
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f, nil
			}
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		}
		return nil, fmt.Errorf("%v is not a number", v)

	case arcsql.TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%v is not a date", v)
		}
		return arcsql.ParseDate(s, col.Format)
	}
	return nil, fmt.Errorf("unsupported data type %q", col.DType)
}
