package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/repositories"
	"github.com/arcwise-inc/arc-engine/pkg/sql"
)

// WorkbookService manages a user's workbooks.
type WorkbookService interface {
	List(ctx context.Context, userID string) ([]*models.Workbook, error)
	Create(ctx context.Context, userID, name, description string) (*models.Workbook, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*models.Workbook, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

type workbookService struct {
	workbookRepo repositories.WorkbookRepository
	logger       *zap.Logger
}

// NewWorkbookService creates a new workbook service.
func NewWorkbookService(workbookRepo repositories.WorkbookRepository, logger *zap.Logger) WorkbookService {
	return &workbookService{
		workbookRepo: workbookRepo,
		logger:       logger.Named("workbook"),
	}
}

var _ WorkbookService = (*workbookService)(nil)

func (s *workbookService) List(ctx context.Context, userID string) ([]*models.Workbook, error) {
	return s.workbookRepo.ListActive(ctx, userID)
}

func (s *workbookService) Create(ctx context.Context, userID, name, description string) (*models.Workbook, error) {
	if err := validateName("name", name); err != nil {
		return nil, err
	}

	wb := &models.Workbook{
		UserID:      userID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}
	if err := s.workbookRepo.Create(ctx, wb); err != nil {
		s.logger.Error("Failed to create workbook", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return wb, nil
}

func (s *workbookService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Workbook, error) {
	return s.workbookRepo.GetByID(ctx, userID, id)
}

func (s *workbookService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.workbookRepo.SoftDelete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("Deleted workbook", zap.String("workbook_id", id.String()))
	return nil
}

// validateName applies the SQL naming rules and reports failures against field.
func validateName(field, name string) error {
	err := sql.ValidateName(name)
	if err == nil {
		return nil
	}
	var nameErr *sql.NameError
	if errors.As(err, &nameErr) {
		return apperrors.WithField(apperrors.KindValidation, field, nameErr.Reason)
	}
	return err
}
