package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/auth"
	"github.com/arcwise-inc/arc-engine/pkg/services"
)

// PostMessageRequest for POST /api/formulas/{fid}/messages
type PostMessageRequest struct {
	Text string `json:"text"`
}

// TurnErrorResponse is the body of a failed turn.
type TurnErrorResponse struct {
	Error            string         `json:"error"`
	Kind             apperrors.Kind `json:"kind"`
	Retries          int            `json:"retries,omitempty"`
	TokenUtilization *float64       `json:"token_utilization,omitempty"`
}

// FormulaHandler handles formula, message and value HTTP requests.
type FormulaHandler struct {
	formulaService services.FormulaService
	logger         *zap.Logger
}

// NewFormulaHandler creates a new formula handler.
func NewFormulaHandler(formulaService services.FormulaService, logger *zap.Logger) *FormulaHandler {
	return &FormulaHandler{
		formulaService: formulaService,
		logger:         logger,
	}
}

// RegisterRoutes registers the formula handler's routes on the given mux.
func (h *FormulaHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, userMiddleware UserMiddleware) {
	mux.HandleFunc("GET /api/workbooks/{wid}/formulas", authMiddleware.RequireAuth(userMiddleware(h.List)))
	mux.HandleFunc("POST /api/workbooks/{wid}/formulas", authMiddleware.RequireAuth(userMiddleware(h.Create)))
	mux.HandleFunc("GET /api/formulas/{fid}", authMiddleware.RequireAuth(userMiddleware(h.Get)))
	mux.HandleFunc("DELETE /api/formulas/{fid}", authMiddleware.RequireAuth(userMiddleware(h.Delete)))
	mux.HandleFunc("GET /api/formulas/{fid}/messages", authMiddleware.RequireAuth(userMiddleware(h.ListMessages)))
	mux.HandleFunc("POST /api/formulas/{fid}/messages", authMiddleware.RequireAuth(userMiddleware(h.PostMessage)))
	mux.HandleFunc("GET /api/formulas/{fid}/value", authMiddleware.RequireAuth(userMiddleware(h.Value)))
}

// List handles GET /api/workbooks/{wid}/formulas
func (h *FormulaHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}

	formulas, err := h.formulaService.List(r.Context(), userID, workbookID)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, formulas, h.logger)
}

// Create handles POST /api/workbooks/{wid}/formulas
func (h *FormulaHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateFormulaRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	f, err := h.formulaService.Create(r.Context(), userID, workbookID, &req)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, f, h.logger)
}

// Get handles GET /api/formulas/{fid}
func (h *FormulaHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseFormulaID(w, r, h.logger)
	if !ok {
		return
	}

	f, err := h.formulaService.Get(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, f, h.logger)
}

// Delete handles DELETE /api/formulas/{fid}
func (h *FormulaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseFormulaID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.formulaService.Delete(r.Context(), userID, id); err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /api/formulas/{fid}/messages
func (h *FormulaHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseFormulaID(w, r, h.logger)
	if !ok {
		return
	}

	messages, err := h.formulaService.ListMessages(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, messages, h.logger)
}

// PostMessage handles POST /api/formulas/{fid}/messages.
// 201 carries the model message; a token limit is a 403 and other failed turns a 400.
func (h *FormulaHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseFormulaID(w, r, h.logger)
	if !ok {
		return
	}

	var req PostMessageRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	resp, err := h.formulaService.PostMessage(r.Context(), userID, id, req.Text)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}

	if resp.Success {
		writeData(w, http.StatusCreated, resp.ModelMessage, h.logger)
		return
	}

	body := TurnErrorResponse{Error: resp.Message, Kind: resp.ErrorKind, Retries: resp.Retries}
	status := http.StatusBadRequest
	if resp.ErrorKind == apperrors.KindTokenLimitExceeded {
		utilization := resp.TokenUtilization
		body.TokenUtilization = &utilization
		status = http.StatusForbidden
	}
	if err := WriteJSON(w, status, body); err != nil {
		h.logger.Error("Failed to write turn error", zap.Error(err))
	}
}

// Value handles GET /api/formulas/{fid}/value
func (h *FormulaHandler) Value(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseFormulaID(w, r, h.logger)
	if !ok {
		return
	}

	v, err := h.formulaService.Value(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, v, h.logger)
}
