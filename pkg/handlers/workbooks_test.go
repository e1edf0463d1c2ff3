package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

func newWorkbookMux(svc *mockWorkbookService) *http.ServeMux {
	mux := http.NewServeMux()
	NewWorkbookHandler(svc, zap.NewNop()).RegisterRoutes(mux, newTestAuthMiddleware(), passThroughUser)
	return mux
}

func TestWorkbookHandler_List(t *testing.T) {
	svc := &mockWorkbookService{workbooks: []*models.Workbook{
		{ID: uuid.New(), Name: "Q3 planning"},
		{ID: uuid.New(), Name: "Churn"},
	}}

	rec := serve(newWorkbookMux(svc), http.MethodGet, "/api/workbooks", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool                 `json:"success"`
		Data    WorkbookListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, "Q3 planning", resp.Data.Workbooks[0].Name)
}

func TestWorkbookHandler_Create(t *testing.T) {
	svc := &mockWorkbookService{}

	rec := serve(newWorkbookMux(svc), http.MethodPost, "/api/workbooks", `{"name":"Q3 planning"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Q3 planning", svc.created)
}

func TestWorkbookHandler_Create_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"malformed body", `{"name":`, nil, http.StatusBadRequest},
		{"reserved name", `{"name":"select"}`, apperrors.WithField(apperrors.KindValidation, "name", "name is a reserved word"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockWorkbookService{err: tt.err}

			rec := serve(newWorkbookMux(svc), http.MethodPost, "/api/workbooks", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, svc.created)
		})
	}
}
