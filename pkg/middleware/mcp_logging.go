package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/logging"
	"github.com/arcwise-inc/arc-engine/pkg/metrics"
)

// maxMCPBody caps how much of a JSON-RPC body is buffered for logging.
const maxMCPBody = 1 << 20

// MCPRequestLogger logs JSON-RPC tool calls on the MCP endpoint and counts them per tool.
// Arguments are logged through logging.SanitizeArguments. A nil logger disables logging,
// but metrics are still recorded.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxMCPBody))
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "unreadable request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var call jsonRPCRequest
			if err := json.Unmarshal(body, &call); err != nil {
				logger.Debug("MCP request is not JSON-RPC", zap.Error(err))
			}
			tool := call.Params.Name

			logger.Debug("MCP request",
				zap.String("method", call.Method),
				zap.String("tool", tool),
				zap.Any("arguments", logging.SanitizeArguments(call.Params.Arguments)),
			)

			rec := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			if call.Method != "tools/call" {
				return
			}

			var resp jsonRPCResponse
			_ = json.Unmarshal(rec.body.Bytes(), &resp)

			switch {
			case resp.Error != nil:
				metrics.MCPToolCallsTotal.WithLabelValues(tool, "error").Inc()
				logger.Debug("MCP response error",
					zap.String("tool", tool),
					zap.Int("error_code", resp.Error.Code),
					zap.String("error_message", resp.Error.Message),
					zap.Duration("duration", duration),
				)
			case resp.Result.IsError:
				metrics.MCPToolCallsTotal.WithLabelValues(tool, "tool_error").Inc()
				logger.Debug("MCP tool returned error result",
					zap.String("tool", tool),
					zap.Duration("duration", duration),
				)
			default:
				metrics.MCPToolCallsTotal.WithLabelValues(tool, "ok").Inc()
				logger.Debug("MCP response success",
					zap.String("tool", tool),
					zap.Duration("duration", duration),
				)
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	if r.body.Len() < maxMCPBody {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
