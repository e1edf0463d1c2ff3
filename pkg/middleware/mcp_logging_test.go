package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arcwise-inc/arc-engine/pkg/logging"
	"github.com/arcwise-inc/arc-engine/pkg/metrics"
)

func serveMCP(t *testing.T, logger *zap.Logger, reqBody, respBody string) *httptest.ResponseRecorder {
	t.Helper()
	handler := MCPRequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, reqBody, string(got), "body must be restored for the MCP server")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respBody))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody)))
	return rec
}

func TestMCPRequestLogger(t *testing.T) {
	tests := []struct {
		name        string
		tool        string
		respBody    string
		wantMessage string
		wantResult  string
	}{
		{
			name:        "success",
			tool:        "list_formulas",
			respBody:    `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"[]"}]}}`,
			wantMessage: "MCP response success",
			wantResult:  "ok",
		},
		{
			name:        "json-rpc error",
			tool:        "get_formula_value",
			respBody:    `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"formula not found"}}`,
			wantMessage: "MCP response error",
			wantResult:  "error",
		},
		{
			name:        "tool error result",
			tool:        "translate_arcsql",
			respBody:    `{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[{"type":"text","text":"SchemaMismatch"}]}}`,
			wantMessage: "MCP tool returned error result",
			wantResult:  "tool_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			counter := metrics.MCPToolCallsTotal.WithLabelValues(tt.tool, tt.wantResult)
			before := testutil.ToFloat64(counter)

			reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"` + tt.tool + `","arguments":{"formula_id":"f-1","api_key":"secret"}}}`
			serveMCP(t, zap.New(core), reqBody, tt.respBody)

			require.Equal(t, 2, logs.Len())
			request := logs.All()[0]
			assert.Equal(t, "MCP request", request.Message)
			assert.Equal(t, tt.tool, request.ContextMap()["tool"])
			args := request.ContextMap()["arguments"].(map[string]any)
			assert.Equal(t, logging.RedactedText, args["api_key"])

			assert.Equal(t, tt.wantMessage, logs.All()[1].Message)
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}

func TestMCPRequestLogger_NonToolCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	rec := serveMCP(t, zap.New(core), reqBody, `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, logs.Len(), "only the request is logged for non tool calls")
}

func TestMCPRequestLogger_InvalidJSON(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := serveMCP(t, zap.New(core), "not json", "nope")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, logs.Len(), 1)
}
