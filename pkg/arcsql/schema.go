package arcsql

import "strings"

// ColumnType is the declared type of a data table column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeDate    ColumnType = "date"
)

// Valid reports whether t is a supported column type.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeDate:
		return true
	}
	return false
}

// Numeric reports whether the column holds numbers.
func (t ColumnType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// Schema describes the one table an ArcSQL query may reference.
// Table is the logical name the agent sees; Namespace and PhysicalTable locate the data.
type Schema struct {
	Table         string         `json:"table"`
	Namespace     string         `json:"namespace,omitempty"`
	PhysicalTable string         `json:"physicalTable"`
	Columns       []SchemaColumn `json:"columns"`
}

// SchemaColumn is one column of the bound data table.
type SchemaColumn struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Format      string     `json:"format,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Column resolves a column reference. An exact match wins; otherwise a
// case-insensitive match is accepted only when it is unambiguous.
func (s *Schema) Column(name string) (SchemaColumn, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	var found SchemaColumn
	matches := 0
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			found = c
			matches++
		}
	}
	return found, matches == 1
}

// MatchesTable reports whether ref names this schema's table.
func (s *Schema) MatchesTable(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == s.Table || strings.EqualFold(ref, s.Table) || (s.PhysicalTable != "" && ref == s.PhysicalTable)
}

// ColumnNames returns the column names in declaration order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
