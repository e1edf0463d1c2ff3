package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/auth"
	"github.com/arcwise-inc/arc-engine/pkg/services"
)

// ReportHandler handles report HTTP requests.
type ReportHandler struct {
	reportService services.ReportService
	logger        *zap.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reportService services.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        logger,
	}
}

// RegisterRoutes registers the report handler's routes on the given mux.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, userMiddleware UserMiddleware) {
	mux.HandleFunc("GET /api/workbooks/{wid}/reports", authMiddleware.RequireAuth(userMiddleware(h.List)))
	mux.HandleFunc("POST /api/workbooks/{wid}/reports", authMiddleware.RequireAuth(userMiddleware(h.Create)))
	mux.HandleFunc("GET /api/reports/{rid}", authMiddleware.RequireAuth(userMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/reports/{rid}", authMiddleware.RequireAuth(userMiddleware(h.Update)))
	mux.HandleFunc("DELETE /api/reports/{rid}", authMiddleware.RequireAuth(userMiddleware(h.Delete)))
}

// List handles GET /api/workbooks/{wid}/reports
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}

	reports, err := h.reportService.List(r.Context(), userID, workbookID)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, reports, h.logger)
}

// Create handles POST /api/workbooks/{wid}/reports
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.ReportRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	report, err := h.reportService.Create(r.Context(), userID, workbookID, &req)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, report, h.logger)
}

// Get handles GET /api/reports/{rid}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseReportID(w, r, h.logger)
	if !ok {
		return
	}

	report, err := h.reportService.Get(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, report, h.logger)
}

// Update handles PUT /api/reports/{rid}
func (h *ReportHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseReportID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.ReportRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	report, err := h.reportService.Update(r.Context(), userID, id, &req)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, report, h.logger)
}

// Delete handles DELETE /api/reports/{rid}
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseReportID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.reportService.Delete(r.Context(), userID, id); err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
