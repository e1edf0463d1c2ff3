package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"ordinary", "Weekly revenue", ""},
		{"underscores", "orders_2024", ""},
		{"max length", strings.Repeat("a", MaxNameLength), ""},
		{"empty", "", "must not be empty"},
		{"blank", "   ", "must not be empty"},
		{"too long", strings.Repeat("a", MaxNameLength+1), "255 characters or fewer"},
		{"reserved keyword", "Select", "reserved SQL keyword"},
		{"reserved keyword lower", "order", "reserved SQL keyword"},
		{"ddl keyword", "DROP", "reserved for SQL"},
		{"semicolon", "a;b", "';' is not allowed"},
		{"comment", "a--b", "'--' is not allowed"},
		{"quote", "it's", `''' is not allowed`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			var nameErr *NameError
			assert.ErrorAs(t, err, &nameErr)
		})
	}
}

func TestNameRulesLoad(t *testing.T) {
	r, err := loadNameRules()
	require.NoError(t, err)
	assert.NotEmpty(t, r.ReservedKeywords)
	assert.NotEmpty(t, r.DDLKeywords)
	assert.Contains(t, r.InvalidCharacters, ";")
}
