// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes.
const (
	TurnSucceeded   = "succeeded"
	TurnFailed      = "failed"
	TurnTokenLimit  = "token_limit"
	TurnThreadError = "thread_error"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arc_engine_build_info",
			Help: "Build information of arc-engine",
		},
		[]string{"version"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arc_engine_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AgentTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_engine_agent_turns_total",
			Help: "Agent turns by outcome",
		},
		[]string{"outcome"},
	)

	AgentRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arc_engine_agent_retries_total",
			Help: "Model calls repeated after an invalid or failed reply",
		},
	)

	AgentTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_engine_agent_tokens_total",
			Help: "Tokens consumed by model calls",
		},
		[]string{"direction"},
	)

	AgentTurnConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arc_engine_agent_turn_conflicts_total",
			Help: "Turns that overwrote a formula changed by a concurrent turn",
		},
	)

	TranslationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_engine_arcsql_translations_total",
			Help: "ArcSQL translations by result (ok or error kind)",
		},
		[]string{"result"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_engine_executions_total",
			Help: "Warehouse statement executions",
		},
		[]string{"dialect", "result"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arc_engine_execution_duration_seconds",
			Help:    "Duration of warehouse statement executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dialect"},
	)

	InjectionFindingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arc_engine_injection_findings_total",
			Help: "Bound parameter values flagged by libinjection",
		},
	)

	SchemaCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_engine_schema_cache_total",
			Help: "Schema cache lookups by result",
		},
		[]string{"result"},
	)

	MCPToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_engine_mcp_tool_calls_total",
			Help: "MCP tool calls by tool and result",
		},
		[]string{"tool", "result"},
	)
)

// Middleware records request counts and latency. The path label is the
// ServeMux route pattern, so unmatched paths collapse into one series.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming MCP responses pass through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
