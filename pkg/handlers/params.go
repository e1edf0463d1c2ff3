package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/auth"
)

// UserMiddleware wraps handlers that touch user-owned rows (database.WithUserContext).
type UserMiddleware func(http.HandlerFunc) http.HandlerFunc

// ParseWorkbookID extracts and validates the workbook ID from the path parameter wid.
func ParseWorkbookID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "wid", "invalid_workbook_id", "Invalid workbook ID format", logger)
}

// ParseDataTableID extracts and validates the data table ID from the path parameter did.
func ParseDataTableID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "did", "invalid_data_table_id", "Invalid data table ID format", logger)
}

// ParseFormulaID extracts and validates the formula ID from the path parameter fid.
func ParseFormulaID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "fid", "invalid_formula_id", "Invalid formula ID format", logger)
}

// ParseReportID extracts and validates the report ID from the path parameter rid.
func ParseReportID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "rid", "invalid_report_id", "Invalid report ID format", logger)
}

// requireUser returns the authenticated user, writing a 401 when there is none.
func requireUser(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", logger)
		return "", false
	}
	return userID, true
}

func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}
