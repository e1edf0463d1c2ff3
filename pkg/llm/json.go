package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply contains no JSON object.
var ErrNoJSON = errors.New("no valid JSON object found in reply")

// thinkTagPattern matches a leading <think>...</think> block some models emit.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// ExtractJSON returns the first balanced JSON object in a model reply, skipping
// think blocks, markdown fences and surrounding prose.
func ExtractJSON(reply string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(reply, "")

	trimmed := strings.TrimSpace(cleaned)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	for start := strings.IndexByte(cleaned, '{'); start >= 0; {
		if obj, ok := balancedObject(cleaned[start:]); ok && json.Valid([]byte(obj)) {
			return obj, nil
		}
		next := strings.IndexByte(cleaned[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSON
}

// balancedObject returns the prefix of s that closes the object opened at s[0].
// Braces inside JSON strings are ignored.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
