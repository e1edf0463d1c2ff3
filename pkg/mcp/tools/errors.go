// Package tools provides the MCP tools of arc-engine.
package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
)

// ErrorResponse is a structured error returned as a tool result, so the
// calling model sees what to fix instead of a transport failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{Error: true, Code: code, Message: message})
}

func newErrorResult(resp ErrorResponse) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// toolError converts a service error into an actionable tool result. It returns
// nil for errors the client cannot act on, which callers return as Go errors.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", "no such formula or data table")
	case errors.Is(err, apperrors.ErrDataNotReady):
		return NewErrorResult("data_not_ready", "the data table has not been extracted yet")
	case errors.Is(err, apperrors.ErrNoQuery):
		return NewErrorResult("no_query", "the formula has no query yet")
	}
	if appErr, ok := apperrors.As(err); ok {
		return newErrorResult(ErrorResponse{
			Error:   true,
			Code:    string(appErr.Kind),
			Message: appErr.Message,
			Field:   appErr.Field,
		})
	}
	return nil
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
