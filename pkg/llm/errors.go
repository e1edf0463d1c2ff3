package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
)

// ErrorType says which part of the provider setup a failure points at.
type ErrorType string

const (
	ErrorTypeNone     ErrorType = ""
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeThread   ErrorType = "thread"
	ErrorTypeCircuit  ErrorType = "circuit_open"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error is a classified model provider failure.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int    // HTTP status when the provider answered
	Provider   string // openai, anthropic
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.Provider != "" {
		parts = append(parts, "provider="+e.Provider)
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a classified error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError turns an SDK or transport error into an *Error. The HTTP status of
// go-openai and go-anthropic errors decides first; the message text is the fallback.
func ClassifyError(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	classified := classifyByStatus(err)
	if classified == nil {
		classified = classifyByMessage(err)
	}
	classified.Provider = provider
	return classified
}

func classifyByStatus(err error) *Error {
	status := 0

	var oaAPI *openai.APIError
	var oaReq *openai.RequestError
	var anReq *anthropic.RequestError
	var anAPI *anthropic.APIError
	switch {
	case errors.As(err, &oaAPI):
		status = oaAPI.HTTPStatusCode
	case errors.As(err, &oaReq):
		status = oaReq.HTTPStatusCode
	case errors.As(err, &anReq):
		status = anReq.StatusCode
	case errors.As(err, &anAPI):
		switch string(anAPI.Type) {
		case "authentication_error", "permission_error":
			status = http.StatusUnauthorized
		case "not_found_error":
			status = http.StatusNotFound
		case "rate_limit_error":
			status = http.StatusTooManyRequests
		case "overloaded_error":
			status = http.StatusServiceUnavailable
		case "api_error":
			status = http.StatusInternalServerError
		case "invalid_request_error":
			status = http.StatusBadRequest
		}
	}
	if status == 0 {
		return nil
	}

	var e *Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case status == http.StatusNotFound:
		e = NewError(ErrorTypeModel, "model or endpoint not found", false, err)
	case status == http.StatusTooManyRequests:
		e = NewError(ErrorTypeUnknown, "rate limited", true, err)
	case status >= 500:
		e = NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		e = NewError(ErrorTypeUnknown, "request rejected", false, err)
	}
	e.StatusCode = status
	return e
}

func classifyByMessage(err error) *Error {
	lower := strings.ToLower(err.Error())
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("unauthorized", "invalid api key", "invalid x-api-key"):
		return NewError(ErrorTypeAuth, "authentication failed", false, err)
	case has("model") && has("not found", "does not exist"):
		return NewError(ErrorTypeModel, "model not found", false, err)
	case has("connection refused", "no such host", "connection reset"):
		return NewError(ErrorTypeEndpoint, "connection failed", true, err)
	case has("timeout", "deadline exceeded"):
		return NewError(ErrorTypeEndpoint, "request timeout", true, err)
	case has("rate limit", "overloaded"):
		return NewError(ErrorTypeUnknown, "rate limited", true, err)
	}
	return NewError(ErrorTypeUnknown, "model provider error", false, err)
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType returns the ErrorType of err, or ErrorTypeUnknown.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
