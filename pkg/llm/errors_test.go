package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		status    int
	}{
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, ErrorTypeAuth, false, 401},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, ErrorTypeUnknown, true, 429},
		{"openai 503 request error", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")}, ErrorTypeEndpoint, true, 503},
		{"openai 404", fmt.Errorf("call: %w", &openai.APIError{HTTPStatusCode: 404}), ErrorTypeModel, false, 404},
		{"openai 400", &openai.APIError{HTTPStatusCode: 400}, ErrorTypeUnknown, false, 400},
		{"anthropic overloaded", &anthropic.APIError{Type: "overloaded_error", Message: "busy"}, ErrorTypeEndpoint, true, 503},
		{"anthropic auth", &anthropic.APIError{Type: "authentication_error"}, ErrorTypeAuth, false, 401},
		{"anthropic request error 500", &anthropic.RequestError{StatusCode: 500, Err: errors.New("boom")}, ErrorTypeEndpoint, true, 500},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true, 0},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeEndpoint, true, 0},
		{"invalid api key text", errors.New("Invalid API key provided"), ErrorTypeAuth, false, 0},
		{"model missing text", errors.New("the model gpt-9 does not exist"), ErrorTypeModel, false, 0},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError("openai", tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, "openai", got.Provider)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyError_KeepsClassified(t *testing.T) {
	orig := NewError(ErrorTypeThread, "thread missing", false, nil)
	assert.Same(t, orig, ClassifyError("anthropic", fmt.Errorf("wrap: %w", orig)))
	assert.Nil(t, ClassifyError("openai", nil))
}

func TestError_Message(t *testing.T) {
	err := NewError(ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503"))
	err.Provider = "openai"
	err.StatusCode = 503
	assert.Equal(t, "endpoint provider=openai HTTP 503 server error: HTTP 503", err.Error())
	assert.True(t, err.IsRetryable())
	assert.True(t, IsRetryable(fmt.Errorf("turn: %w", err)))
	assert.Equal(t, ErrorTypeEndpoint, GetErrorType(err))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
