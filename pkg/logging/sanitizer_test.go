package logging

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		absent   string
	}{
		{"empty", "", "", "x"},
		{"postgres dsn", "host=db user=arc password=hunter2 dbname=arc", "password=[REDACTED]", "hunter2"},
		{"url credentials", "postgres://arc:hunter2@db:5432/arc", "://[REDACTED]@[REDACTED]", "hunter2"},
		{"sqlserver url", "sqlserver://sa:S3cret!@wh:1433?database=warehouse", "[REDACTED]", "S3cret"},
		{"no secrets", "host=db dbname=arc", "host=db dbname=arc", "REDACTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeConnectionString(tt.input)
			assert.Contains(t, got, tt.contains)
			assert.NotContains(t, got, tt.absent)
		})
	}
}

func TestSanitizeError(t *testing.T) {
	assert.Equal(t, "", SanitizeError(nil))

	tests := []struct {
		name   string
		err    error
		absent string
	}{
		{"password", errors.New("connect failed: password=hunter2"), "hunter2"},
		{"bearer token", errors.New("rejected Bearer eyJhbGciOi.eyJzdWIiOi.c2lnbmF0dXJl"), "eyJzdWIiOi"},
		{"provider key", errors.New("401 for key sk-abcdefghijklmnopqrstuvwxyz"), "sk-abcdefghijklmnop"},
		{"api key param", errors.New("GET /v1?api_key=abcdefghijklmnopqrstuvwxyz failed"), "abcdefghijklmnopqrstuvwxyz"},
		{"dsn in error", errors.New("dial postgres://arc:hunter2@db/arc: refused"), "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeError(tt.err)
			assert.NotContains(t, got, tt.absent)
			assert.Contains(t, got, RedactedText)
		})
	}
}

func TestSanitizeQuery(t *testing.T) {
	long := "SELECT " + strings.Repeat("x", MaxQueryLogLength)
	got := SanitizeQuery(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, []rune(got), MaxQueryLogLength+3)

	assert.Equal(t, `SELECT "a" FROM "t"`, SanitizeQuery(`SELECT "a" FROM "t"`))
	assert.Equal(t, "", SanitizeQuery(""))
}

func TestSanitizeArguments(t *testing.T) {
	assert.Nil(t, SanitizeArguments(nil))

	got := SanitizeArguments(map[string]any{
		"formula_id": "f-1",
		"api_token":  "abc",
		"Password":   "hunter2",
		"arcsql":     strings.Repeat("q", MaxArgumentLength+10),
		"limit":      10,
	})
	assert.Equal(t, "f-1", got["formula_id"])
	assert.Equal(t, RedactedText, got["api_token"])
	assert.Equal(t, RedactedText, got["Password"])
	assert.Equal(t, 10, got["limit"])
	assert.Len(t, []rune(got["arcsql"].(string)), MaxArgumentLength+3)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 3))
	assert.Equal(t, "ab...", TruncateString("abc", 2))
	assert.Equal(t, "日本...", TruncateString("日本語", 2))
}
