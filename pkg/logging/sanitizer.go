// Package logging scrubs secrets and internals from text before it is logged or returned.
package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 200
	// MaxArgumentLength is the longest string argument kept in tool-call logs.
	MaxArgumentLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	passwordRule = rule{regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`), "${1}=" + RedactedText}
	bearerRule   = rule{regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`), "Bearer " + RedactedText}
	apiKeyRule   = rule{regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`), "${1}=" + RedactedText}
	providerKey  = rule{regexp.MustCompile(`sk-[A-Za-z0-9-_]{16,}`), RedactedText}
	credsRule    = rule{regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`), "://" + RedactedText + "@" + RedactedText}

	sensitiveKeys = []string{"password", "secret", "token", "key", "credential"}
)

func apply(s string, rules ...rule) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString removes credentials from a DSN or URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return apply(connStr, passwordRule, credsRule)
}

// SanitizeError returns err's text with passwords, tokens, API keys and URL credentials removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return apply(err.Error(), passwordRule, bearerRule, apiKeyRule, providerKey, credsRule)
}

// SanitizeQuery truncates a SQL statement for logging and removes credential patterns.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return apply(TruncateString(query, MaxQueryLogLength), passwordRule, apiKeyRule)
}

// SanitizeArguments redacts values under sensitive keys and truncates long strings.
func SanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			out[k] = RedactedText
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = TruncateString(s, MaxArgumentLength)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(k string) bool {
	lower := strings.ToLower(k)
	for _, word := range sensitiveKeys {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// TruncateString shortens s to maxLen runes and adds an ellipsis when it was cut.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
