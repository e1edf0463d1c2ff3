package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
)

// maxBodyBytes caps request bodies. Extraction uploads are the largest.
const maxBodyBytes = 32 << 20

// ApiResponse wraps data in the format expected by the frontend.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeData writes a successful ApiResponse.
func writeData(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError writes an error body, logging encoding failures.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, logger *zap.Logger) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", logger)
		return false
	}
	return true
}

// appErrorBody is the error body for structured application errors.
type appErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusForKind maps error kinds to HTTP status codes.
var statusForKind = map[apperrors.Kind]int{
	apperrors.KindValidation:             http.StatusBadRequest,
	apperrors.KindSchemaMismatch:         http.StatusBadRequest,
	apperrors.KindInvalidAggregation:     http.StatusBadRequest,
	apperrors.KindInvalidOperator:        http.StatusBadRequest,
	apperrors.KindUnsupportedAggregation: http.StatusBadRequest,
	apperrors.KindMalformedKpiQuery:      http.StatusBadRequest,
	apperrors.KindTranslationError:       http.StatusBadRequest,
	apperrors.KindUnknownFormulaType:     http.StatusBadRequest,
	apperrors.KindEmptyResult:            http.StatusUnprocessableEntity,
	apperrors.KindTurnFailed:             http.StatusBadRequest,
	apperrors.KindTokenLimitExceeded:     http.StatusForbidden,
	apperrors.KindExecutionError:         http.StatusBadGateway,
}

// writeAppError maps service errors onto HTTP responses. Unknown errors become a
// generic 500 so driver messages never reach the client.
func writeAppError(w http.ResponseWriter, err error, logger *zap.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Resource not found", logger)
		return
	case errors.Is(err, apperrors.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Access denied", logger)
		return
	case errors.Is(err, apperrors.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "Resource already exists", logger)
		return
	case errors.Is(err, apperrors.ErrDataNotReady):
		writeError(w, http.StatusBadRequest, "data_not_ready", "The data table has not been extracted yet", logger)
		return
	case errors.Is(err, apperrors.ErrNoQuery):
		writeError(w, http.StatusBadRequest, "no_query", "The formula has no query yet", logger)
		return
	}

	if appErr, ok := apperrors.As(err); ok {
		status, known := statusForKind[appErr.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		body := appErrorBody{Error: string(appErr.Kind), Message: appErr.Message, Field: appErr.Field}
		if werr := WriteJSON(w, status, body); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	logger.Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", logger)
}
