package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/repositories"
)

// CreateFormulaRequest holds the fields for a new formula.
type CreateFormulaRequest struct {
	DataTableID uuid.UUID `json:"dataTable"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// FormulaValue is the shaped result of running a formula's current query.
type FormulaValue struct {
	FormulaID   uuid.UUID `json:"formula_id"`
	FormulaType string    `json:"formula_type"`
	// Value is a scalar for kpi formulas and a list of rows for table formulas.
	Value     any      `json:"value"`
	Columns   []string `json:"columns"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
}

// FormulaService manages formulas, their conversations and their values.
type FormulaService interface {
	List(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.Formula, error)
	Create(ctx context.Context, userID string, workbookID uuid.UUID, req *CreateFormulaRequest) (*models.Formula, error)
	// Get returns an active formula.
	Get(ctx context.Context, userID string, id uuid.UUID) (*models.Formula, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error

	ListMessages(ctx context.Context, userID string, id uuid.UUID) ([]*models.FormulaMessage, error)
	// PostMessage runs one agent turn. The bound data table must be extracted.
	PostMessage(ctx context.Context, userID string, id uuid.UUID, text string) (*AgentRunResponse, error)

	// Value re-translates the stored ArcSQL against the current schema, executes it
	// and shapes the rows by formula type.
	Value(ctx context.Context, userID string, id uuid.UUID) (*FormulaValue, error)
	// Translate validates and translates q against a data table without running it.
	Translate(ctx context.Context, userID string, dataTableID uuid.UUID, q *arcsql.ArcSQL, formulaType string) (*arcsql.Statement, error)
}

type formulaService struct {
	formulaRepo   repositories.FormulaRepository
	messageRepo   repositories.FormulaMessageRepository
	dataTableRepo repositories.DataTableRepository
	workbookRepo  repositories.WorkbookRepository
	schemas       SchemaProvider
	session       AgentSession
	warehouse     datasource.Warehouse
	logger        *zap.Logger
}

// NewFormulaService creates a new formula service.
func NewFormulaService(
	formulaRepo repositories.FormulaRepository,
	messageRepo repositories.FormulaMessageRepository,
	dataTableRepo repositories.DataTableRepository,
	workbookRepo repositories.WorkbookRepository,
	schemas SchemaProvider,
	session AgentSession,
	warehouse datasource.Warehouse,
	logger *zap.Logger,
) FormulaService {
	return &formulaService{
		formulaRepo:   formulaRepo,
		messageRepo:   messageRepo,
		dataTableRepo: dataTableRepo,
		workbookRepo:  workbookRepo,
		schemas:       schemas,
		session:       session,
		warehouse:     warehouse,
		logger:        logger.Named("formula"),
	}
}

var _ FormulaService = (*formulaService)(nil)

func (s *formulaService) List(ctx context.Context, userID string, workbookID uuid.UUID) ([]*models.Formula, error) {
	if _, err := s.workbookRepo.GetByID(ctx, userID, workbookID); err != nil {
		return nil, err
	}
	return s.formulaRepo.ListActiveByWorkbook(ctx, userID, workbookID)
}

func (s *formulaService) Create(ctx context.Context, userID string, workbookID uuid.UUID, req *CreateFormulaRequest) (*models.Formula, error) {
	if req.DataTableID == uuid.Nil {
		return nil, apperrors.WithField(apperrors.KindValidation, "dataTable", "data table is required")
	}
	name := strings.TrimSpace(req.Name)
	if name != "" {
		if err := validateName("name", name); err != nil {
			return nil, err
		}
	}

	if _, err := s.workbookRepo.GetByID(ctx, userID, workbookID); err != nil {
		return nil, err
	}
	dt, err := s.dataTableRepo.GetByID(ctx, userID, req.DataTableID)
	if err != nil {
		return nil, err
	}
	if dt.WorkbookID != workbookID {
		return nil, apperrors.WithField(apperrors.KindValidation, "dataTable", "data table belongs to another workbook")
	}

	f := &models.Formula{
		UserID:      userID,
		WorkbookID:  workbookID,
		DataTableID: dt.ID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.formulaRepo.Create(ctx, f); err != nil {
		s.logger.Error("Failed to create formula",
			zap.String("workbook_id", workbookID.String()),
			zap.Error(err))
		return nil, err
	}
	return f, nil
}

func (s *formulaService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Formula, error) {
	f, err := s.formulaRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !f.IsActive {
		return nil, apperrors.ErrNotFound
	}
	return f, nil
}

func (s *formulaService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.formulaRepo.SoftDelete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("Deleted formula", zap.String("formula_id", id.String()))
	return nil
}

func (s *formulaService) ListMessages(ctx context.Context, userID string, id uuid.UUID) ([]*models.FormulaMessage, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByFormula(ctx, userID, id)
}

func (s *formulaService) PostMessage(ctx context.Context, userID string, id uuid.UUID, text string) (*AgentRunResponse, error) {
	f, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.WithField(apperrors.KindValidation, "text", "text is required")
	}

	ts, err := s.schemas.TableSchema(ctx, userID, f.DataTableID)
	if err != nil {
		return nil, err
	}
	if !ts.Meta.IsReady() {
		return nil, apperrors.ErrDataNotReady
	}

	return s.session.RunTurn(ctx, f, text)
}

func (s *formulaService) Value(ctx context.Context, userID string, id uuid.UUID) (*FormulaValue, error) {
	f, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !f.HasQuery() {
		return nil, apperrors.ErrNoQuery
	}

	ts, err := s.schemas.TableSchema(ctx, userID, f.DataTableID)
	if err != nil {
		return nil, err
	}
	if !ts.Meta.IsReady() {
		return nil, apperrors.ErrDataNotReady
	}

	stmt, err := validateAndTranslate(f.RawArcSQL, ts.Schema, s.warehouse.Dialect(), f.FormulaType == models.FormulaTypeKPI)
	if err != nil {
		return nil, err
	}
	if stmt.SQL != f.ArcSQL {
		s.logger.Debug("Formula SQL changed with the current schema",
			zap.String("formula_id", id.String()))
	}

	result, err := s.warehouse.Execute(ctx, stmt.SQL, stmt.Params, true)
	if err != nil {
		return nil, err
	}

	value, err := ShapeResult(f.FormulaType, result.Rows)
	if err != nil {
		return nil, err
	}

	return &FormulaValue{
		FormulaID:   f.ID,
		FormulaType: f.FormulaType,
		Value:       value,
		Columns:     result.Columns,
		RowCount:    result.RowCount,
		Truncated:   result.Truncated,
	}, nil
}

func (s *formulaService) Translate(ctx context.Context, userID string, dataTableID uuid.UUID, q *arcsql.ArcSQL, formulaType string) (*arcsql.Statement, error) {
	if formulaType != models.FormulaTypeKPI && formulaType != models.FormulaTypeTable {
		return nil, apperrors.WithField(apperrors.KindUnknownFormulaType, "formula_type",
			"formula type must be kpi or table")
	}
	ts, err := s.schemas.TableSchema(ctx, userID, dataTableID)
	if err != nil {
		return nil, err
	}
	return validateAndTranslate(q, ts.Schema, s.warehouse.Dialect(), formulaType == models.FormulaTypeKPI)
}
