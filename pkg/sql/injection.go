package sql

import (
	"strconv"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding describes a bound value that looks like an SQL injection payload.
// Bound values cannot change the statement; findings are recorded as diagnostics only.
type InjectionFinding struct {
	Param       string `json:"param"`
	Fingerprint string `json:"fingerprint"`
}

// CheckParameterForInjection runs libinjection over a string value.
// Non-string values return nil.
func CheckParameterForInjection(paramName string, value any) *InjectionFinding {
	s, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(s)
	if !isSQLi {
		return nil
	}
	return &InjectionFinding{Param: paramName, Fingerprint: string(fingerprint)}
}

// CheckBoundParameters checks positional parameters, naming each by its 1-based position.
// The result is empty, never nil, when every value is clean.
func CheckBoundParameters(params []any) []InjectionFinding {
	findings := make([]InjectionFinding, 0)
	for i, v := range params {
		if f := CheckParameterForInjection("$"+strconv.Itoa(i+1), v); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}
