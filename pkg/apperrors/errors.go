package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrDataNotReady = errors.New("data extraction not successful")
	ErrNoQuery      = errors.New("formula has no query yet")
)

// Kind classifies a pipeline failure. Values are stable and returned to API clients.
type Kind string

const (
	KindSchemaMismatch         Kind = "SchemaMismatch"
	KindInvalidAggregation     Kind = "InvalidAggregation"
	KindInvalidOperator        Kind = "InvalidOperator"
	KindUnsupportedAggregation Kind = "UnsupportedAggregation"
	KindMalformedKpiQuery      Kind = "MalformedKpiQuery"
	KindTranslationError       Kind = "TranslationError"
	KindExecutionError         Kind = "ExecutionError"
	KindTokenLimitExceeded     Kind = "TokenLimitExceeded"
	KindTurnFailed             Kind = "TurnFailed"
	KindEmptyResult            Kind = "EmptyResult"
	KindUnknownFormulaType     Kind = "UnknownFormulaType"
	KindValidation             Kind = "ValidationError"
)

// Error is a classified failure with enough detail for the caller to fix the request.
// Field names the offending column, operator or request field when there is one.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same Kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Field == ""
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField creates a classified error naming the offending field.
func WithField(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Message: message, Field: field}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in the chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// As returns the first *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
