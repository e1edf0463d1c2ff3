package sql

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// MaxNameLength is the longest name accepted for reports, data tables and columns.
const MaxNameLength = 255

//go:embed names.yaml
var namesYAML []byte

type nameRules struct {
	ReservedKeywords  []string `yaml:"reserved_keywords"`
	DDLKeywords       []string `yaml:"ddl_keywords"`
	InvalidCharacters []string `yaml:"invalid_characters"`

	reserved map[string]struct{}
	ddl      map[string]struct{}
}

var (
	rulesOnce sync.Once
	rules     *nameRules
	rulesErr  error
)

func loadNameRules() (*nameRules, error) {
	rulesOnce.Do(func() {
		var r nameRules
		if err := yaml.Unmarshal(namesYAML, &r); err != nil {
			rulesErr = fmt.Errorf("failed to parse name rules: %w", err)
			return
		}
		r.reserved = toSet(r.ReservedKeywords)
		r.ddl = toSet(r.DDLKeywords)
		rules = &r
	})
	return rules, rulesErr
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// NameError explains why a name was rejected.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return e.Reason
}

// ValidateName rejects empty or over-long names, SQL reserved and DDL keywords,
// and names containing characters that are unsafe in identifiers.
func ValidateName(name string) error {
	r, err := loadNameRules()
	if err != nil {
		return err
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &NameError{Name: name, Reason: "name must not be empty"}
	}
	if len([]rune(name)) > MaxNameLength {
		return &NameError{Name: name, Reason: fmt.Sprintf("name must be %d characters or fewer", MaxNameLength)}
	}

	lower := strings.ToLower(trimmed)
	if _, ok := r.reserved[lower]; ok {
		return &NameError{Name: name, Reason: fmt.Sprintf("'%s' is a reserved SQL keyword", name)}
	}
	if _, ok := r.ddl[lower]; ok {
		return &NameError{Name: name, Reason: fmt.Sprintf("'%s' is reserved for SQL, and invalid", name)}
	}
	for _, c := range r.InvalidCharacters {
		if strings.Contains(name, c) {
			return &NameError{Name: name, Reason: fmt.Sprintf("'%s' is not allowed in the name", c)}
		}
	}
	return nil
}
