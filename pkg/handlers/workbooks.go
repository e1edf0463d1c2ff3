package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/auth"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/services"
)

// CreateWorkbookRequest for POST /api/workbooks
type CreateWorkbookRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WorkbookListResponse for GET /api/workbooks
type WorkbookListResponse struct {
	Workbooks []*models.Workbook `json:"workbooks"`
	Total     int                `json:"total"`
}

// WorkbookHandler handles workbook HTTP requests.
type WorkbookHandler struct {
	workbookService services.WorkbookService
	logger          *zap.Logger
}

// NewWorkbookHandler creates a new workbook handler.
func NewWorkbookHandler(workbookService services.WorkbookService, logger *zap.Logger) *WorkbookHandler {
	return &WorkbookHandler{
		workbookService: workbookService,
		logger:          logger,
	}
}

// RegisterRoutes registers the workbook handler's routes on the given mux.
func (h *WorkbookHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, userMiddleware UserMiddleware) {
	mux.HandleFunc("GET /api/workbooks", authMiddleware.RequireAuth(userMiddleware(h.List)))
	mux.HandleFunc("POST /api/workbooks", authMiddleware.RequireAuth(userMiddleware(h.Create)))
	mux.HandleFunc("GET /api/workbooks/{wid}", authMiddleware.RequireAuth(userMiddleware(h.Get)))
	mux.HandleFunc("DELETE /api/workbooks/{wid}", authMiddleware.RequireAuth(userMiddleware(h.Delete)))
}

// List handles GET /api/workbooks
func (h *WorkbookHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	workbooks, err := h.workbookService.List(r.Context(), userID)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, WorkbookListResponse{Workbooks: workbooks, Total: len(workbooks)}, h.logger)
}

// Create handles POST /api/workbooks
func (h *WorkbookHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateWorkbookRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	wb, err := h.workbookService.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, wb, h.logger)
}

// Get handles GET /api/workbooks/{wid}
func (h *WorkbookHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}

	wb, err := h.workbookService.Get(r.Context(), userID, workbookID)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, wb, h.logger)
}

// Delete handles DELETE /api/workbooks/{wid}
func (h *WorkbookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.workbookService.Delete(r.Context(), userID, workbookID); err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
