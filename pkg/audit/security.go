// Package audit provides security audit logging for SIEM consumption.
// Events are logged as structured JSON under the "security_audit" logger.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/sql"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionPattern is logged when a value bound into agent-generated SQL
	// matches a libinjection pattern.
	EventInjectionPattern SecurityEventType = "sql_injection_pattern"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	UserID    string            `json:"user_id"`
	FormulaID uuid.UUID         `json:"formula_id"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails lists the flagged parameters of one statement.
type InjectionDetails struct {
	QueryName string                 `json:"query_name"`
	Findings  []sql.InjectionFinding `json:"findings"`
}

// SecurityAuditor logs security events.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates an auditor logging under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LogInjectionPattern records bound values that look like injection payloads.
// Values are bound, never interpolated, so this is logged at WARN as a
// diagnostic rather than a blocked attack.
func (a *SecurityAuditor) LogInjectionPattern(userID string, formulaID uuid.UUID, details InjectionDetails) {
	if len(details.Findings) == 0 {
		return
	}
	event := a.event(EventInjectionPattern, userID, formulaID, details, "warning")

	fingerprints := make([]string, len(details.Findings))
	for i, f := range details.Findings {
		fingerprints[i] = f.Fingerprint
	}

	a.logger.Warn("Bound parameters match SQL injection patterns",
		zap.String("event_json", marshal(event)),
		zap.String("user_id", userID),
		zap.String("formula_id", formulaID.String()),
		zap.String("query_name", details.QueryName),
		zap.Strings("fingerprints", fingerprints),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) event(t SecurityEventType, userID string, formulaID uuid.UUID, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: a.now(),
		EventType: t,
		UserID:    userID,
		FormulaID: formulaID,
		Details:   details,
		Severity:  severity,
	}
}

// marshal ignores errors; every event field is a JSON-safe type.
func marshal(event SecurityEvent) string {
	b, _ := json.Marshal(event)
	return string(b)
}
