package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arcwise-inc/arc-engine/pkg/sql"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func TestLogInjectionPattern(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	auditor.now = func() time.Time { return fixed }

	formulaID := uuid.New()
	auditor.LogInjectionPattern("user-123", formulaID, InjectionDetails{
		QueryName: "units_by_region",
		Findings:  []sql.InjectionFinding{{Param: "$1", Fingerprint: "s&1c"}},
	})

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "security_audit", entry.LoggerName)

	fields := entry.ContextMap()
	assert.Equal(t, "user-123", fields["user_id"])
	assert.Equal(t, formulaID.String(), fields["formula_id"])
	assert.Equal(t, "warning", fields["severity"])

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(fields["event_json"].(string)), &event))
	assert.Equal(t, EventInjectionPattern, event.EventType)
	assert.Equal(t, fixed, event.Timestamp)
	assert.Equal(t, formulaID, event.FormulaID)
}

func TestLogInjectionPattern_NoFindings(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogInjectionPattern("user-123", uuid.New(), InjectionDetails{QueryName: "clean"})

	assert.Equal(t, 0, recorded.Len())
}
