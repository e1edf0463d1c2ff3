package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/auth"
	"github.com/arcwise-inc/arc-engine/pkg/services"
)

// TranslateRequest for POST /api/datatables/{did}/translate
type TranslateRequest struct {
	ArcSQL      *arcsql.ArcSQL `json:"arcSql"`
	FormulaType string         `json:"formulaType"`
}

// DataTableHandler handles data table HTTP requests.
type DataTableHandler struct {
	dataTableService services.DataTableService
	formulaService   services.FormulaService
	logger           *zap.Logger
}

// NewDataTableHandler creates a new data table handler.
func NewDataTableHandler(
	dataTableService services.DataTableService,
	formulaService services.FormulaService,
	logger *zap.Logger,
) *DataTableHandler {
	return &DataTableHandler{
		dataTableService: dataTableService,
		formulaService:   formulaService,
		logger:           logger,
	}
}

// RegisterRoutes registers the data table handler's routes on the given mux.
func (h *DataTableHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, userMiddleware UserMiddleware) {
	mux.HandleFunc("GET /api/workbooks/{wid}/datatables", authMiddleware.RequireAuth(userMiddleware(h.List)))
	mux.HandleFunc("POST /api/workbooks/{wid}/datatables", authMiddleware.RequireAuth(userMiddleware(h.Create)))
	mux.HandleFunc("GET /api/datatables/{did}", authMiddleware.RequireAuth(userMiddleware(h.Get)))
	mux.HandleFunc("POST /api/datatables/{did}/extract", authMiddleware.RequireAuth(userMiddleware(h.Extract)))
	mux.HandleFunc("DELETE /api/datatables/{did}/extraction", authMiddleware.RequireAuth(userMiddleware(h.DeleteExtraction)))
	mux.HandleFunc("POST /api/datatables/{did}/translate", authMiddleware.RequireAuth(userMiddleware(h.Translate)))
}

// List handles GET /api/workbooks/{wid}/datatables
func (h *DataTableHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}

	tables, err := h.dataTableService.List(r.Context(), userID, workbookID)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, tables, h.logger)
}

// Create handles POST /api/workbooks/{wid}/datatables
func (h *DataTableHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateDataTableRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	dt, err := h.dataTableService.Create(r.Context(), userID, workbookID, &req)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, dt, h.logger)
}

// Get handles GET /api/datatables/{did}
func (h *DataTableHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseDataTableID(w, r, h.logger)
	if !ok {
		return
	}

	dt, err := h.dataTableService.Get(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, dt, h.logger)
}

// Extract handles POST /api/datatables/{did}/extract
func (h *DataTableHandler) Extract(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseDataTableID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.ExtractRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	dt, err := h.dataTableService.Extract(r.Context(), userID, id, &req)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, dt, h.logger)
}

// DeleteExtraction handles DELETE /api/datatables/{did}/extraction
func (h *DataTableHandler) DeleteExtraction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseDataTableID(w, r, h.logger)
	if !ok {
		return
	}

	dt, err := h.dataTableService.DeleteExtraction(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, dt, h.logger)
}

// Translate handles POST /api/datatables/{did}/translate. The query is validated
// and translated but never executed.
func (h *DataTableHandler) Translate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseDataTableID(w, r, h.logger)
	if !ok {
		return
	}

	var req TranslateRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if req.ArcSQL == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "arcSql is required", h.logger)
		return
	}

	stmt, err := h.formulaService.Translate(r.Context(), userID, id, req.ArcSQL, req.FormulaType)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, stmt, h.logger)
}
