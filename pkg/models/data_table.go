package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
)

// Extraction status values for a data table.
const (
	ExtractionPending = "pending"
	ExtractionSuccess = "success"
	ExtractionFailed  = "failed"
)

// DataSourceCSV is the only supported data source.
const DataSourceCSV = "csv"

// DataTableMeta describes one uploaded data table. The rows live in a physical
// warehouse table named by PhysicalName.
type DataTableMeta struct {
	ID                uuid.UUID             `json:"id"`
	UserID            string                `json:"user_id"`
	WorkbookID        uuid.UUID             `json:"workbook_id"`
	Name              string                `json:"name"`
	Description       string                `json:"description"`
	DataSourceAdded   bool                  `json:"data_source_added"`
	DataSource        string                `json:"data_source"`
	ExtractionStatus  string                `json:"extraction_status"`
	ExtractionDetails JSONBMap              `json:"extraction_details,omitempty"`
	Columns           []DataTableColumnMeta `json:"columns"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// IsReady reports whether rows were extracted and can be queried.
func (m *DataTableMeta) IsReady() bool {
	return m.DataSourceAdded && m.ExtractionStatus == ExtractionSuccess
}

// PhysicalName is the warehouse table holding the extracted rows.
func (m *DataTableMeta) PhysicalName() string {
	return "dt_" + strings.ReplaceAll(m.ID.String(), "-", "")
}

// Schema derives the ArcSQL schema the agent and translator work against.
func (m *DataTableMeta) Schema(namespace string) *arcsql.Schema {
	s := &arcsql.Schema{
		Table:         m.Name,
		Namespace:     namespace,
		PhysicalTable: m.PhysicalName(),
		Columns:       make([]arcsql.SchemaColumn, len(m.Columns)),
	}
	for i, c := range m.Columns {
		s.Columns[i] = arcsql.SchemaColumn{
			Name:        c.Name,
			Type:        c.DType,
			Format:      c.Format,
			Description: c.Description,
		}
	}
	return s
}

// DataTableColumnMeta is one declared column of a data table.
type DataTableColumnMeta struct {
	ID          uuid.UUID         `json:"id"`
	DataTableID uuid.UUID         `json:"data_table_id"`
	Position    int               `json:"position"`
	Name        string            `json:"name"`
	DType       arcsql.ColumnType `json:"dtype"`
	Format      string            `json:"format"` // date columns only
	Description string            `json:"description"`
}
