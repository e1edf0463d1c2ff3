package datasource

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/logging"
	"github.com/arcwise-inc/arc-engine/pkg/metrics"
	"github.com/arcwise-inc/arc-engine/pkg/sql"
)

// Classifier turns a driver error into a message that is safe to return to callers.
// It returns "" when the error has no known public description.
type Classifier func(err error) string

// ExecutionGuard holds what every adapter does around a statement execution:
// single-statement checks, timeouts, metrics and error sanitizing.
type ExecutionGuard struct {
	Dialect  string
	Timeout  time.Duration
	Classify Classifier
	Logger   *zap.Logger
}

// Prepare normalizes the statement and rejects anything but one read-only statement.
func (g *ExecutionGuard) Prepare(statement string) (string, error) {
	normalized, err := sql.NormalizeStatement(statement)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(g.Dialect, "rejected").Inc()
		return "", apperrors.Wrap(apperrors.KindExecutionError, "statement rejected", err)
	}
	return normalized, nil
}

// WithTimeout bounds ctx by the configured statement timeout.
func (g *ExecutionGuard) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.Timeout)
}

// Done records metrics for a finished execution and converts a failure into an
// ExecutionError. The raw driver error is logged, sanitized, and never returned.
func (g *ExecutionGuard) Done(ctx context.Context, start time.Time, statement string, err error) error {
	metrics.ExecutionDuration.WithLabelValues(g.Dialect).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.ExecutionsTotal.WithLabelValues(g.Dialect, "ok").Inc()
		return nil
	}
	metrics.ExecutionsTotal.WithLabelValues(g.Dialect, "error").Inc()

	g.Logger.Warn("Statement execution failed",
		zap.String("statement", logging.SanitizeQuery(statement)),
		zap.String("error", logging.SanitizeError(err)))

	return apperrors.New(apperrors.KindExecutionError, g.publicMessage(ctx, err))
}

func (g *ExecutionGuard) publicMessage(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "statement timed out"
	case errors.Is(err, context.Canceled):
		return "statement canceled"
	}
	if g.Classify != nil {
		if msg := g.Classify(err); msg != "" {
			return msg
		}
	}
	return "statement execution failed"
}

// NormalizeValue converts driver values into JSON-friendly forms: byte slices become
// strings and midnight UTC timestamps become YYYY-MM-DD dates.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.UTC().Format(time.RFC3339)
	}
	return v
}
