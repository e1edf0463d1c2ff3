package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/auth"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/services"
)

// mockAuthService accepts requests carrying "Authorization: Bearer good".
type mockAuthService struct {
	subject string
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if r.Header.Get("Authorization") != "Bearer good" {
		return nil, "", errors.New("invalid token")
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: m.subject}}, "good", nil
}

func (m *mockAuthService) RequireSubject(claims *auth.Claims) error {
	if claims.Subject == "" {
		return auth.ErrMissingSubject
	}
	return nil
}

func newTestAuthMiddleware() *auth.Middleware {
	return auth.NewMiddleware(&mockAuthService{subject: "user-1"}, zap.NewNop())
}

// passThroughUser stands in for database.WithUserContext.
func passThroughUser(next http.HandlerFunc) http.HandlerFunc {
	return next
}

type mockFormulaService struct {
	services.FormulaService

	formula  *models.Formula
	turn     *services.AgentRunResponse
	value    *services.FormulaValue
	stmt     *arcsql.Statement
	err      error
	lastText string
	lastType string
}

func (m *mockFormulaService) Create(ctx context.Context, userID string, workbookID uuid.UUID, req *services.CreateFormulaRequest) (*models.Formula, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.formula, nil
}

func (m *mockFormulaService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Formula, error) {
	return m.formula, m.err
}

func (m *mockFormulaService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	return m.err
}

func (m *mockFormulaService) PostMessage(ctx context.Context, userID string, id uuid.UUID, text string) (*services.AgentRunResponse, error) {
	m.lastText = text
	return m.turn, m.err
}

func (m *mockFormulaService) Value(ctx context.Context, userID string, id uuid.UUID) (*services.FormulaValue, error) {
	return m.value, m.err
}

func (m *mockFormulaService) Translate(ctx context.Context, userID string, dataTableID uuid.UUID, q *arcsql.ArcSQL, formulaType string) (*arcsql.Statement, error) {
	m.lastType = formulaType
	return m.stmt, m.err
}

type mockWorkbookService struct {
	services.WorkbookService

	workbooks []*models.Workbook
	err       error
	created   string
}

func (m *mockWorkbookService) List(ctx context.Context, userID string) ([]*models.Workbook, error) {
	return m.workbooks, m.err
}

func (m *mockWorkbookService) Create(ctx context.Context, userID, name, description string) (*models.Workbook, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = name
	return &models.Workbook{ID: uuid.New(), UserID: userID, Name: name, Description: description}, nil
}

type mockDataTableService struct {
	services.DataTableService

	table *models.DataTableMeta
	err   error
}

func (m *mockDataTableService) Extract(ctx context.Context, userID string, id uuid.UUID, req *services.ExtractRequest) (*models.DataTableMeta, error) {
	return m.table, m.err
}
