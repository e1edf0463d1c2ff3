package models

import (
	"time"

	"github.com/google/uuid"
)

// Chart types a report column may render with.
const (
	ChartBar   = "bar-chart"
	ChartLine  = "line-chart"
	ChartPie   = "pie-chart"
	ChartTable = "table"
)

// ValidChartTypes lists the accepted chart types. A nil chart type is also allowed.
var ValidChartTypes = []string{ChartBar, ChartLine, ChartPie, ChartTable}

// IsValidChartType checks a non-nil chart type.
func IsValidChartType(t string) bool {
	for _, c := range ValidChartTypes {
		if c == t {
			return true
		}
	}
	return false
}

// Report arranges formula results into rows of columns.
type Report struct {
	ID         uuid.UUID   `json:"id"`
	UserID     string      `json:"user_id"`
	WorkbookID uuid.UUID   `json:"workbook_id"`
	Name       string      `json:"name"`
	Rows       []ReportRow `json:"rows"`
	SharedWith []string    `json:"shared_with"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ReportRow is a row of kpi or table columns.
type ReportRow struct {
	RowType string         `json:"rowType"`
	Columns []ReportColumn `json:"columns"`
}

// ReportColumn renders one formula.
type ReportColumn struct {
	Config  ReportColumnConfig `json:"config"`
	Formula string             `json:"formula"`
}

// ReportColumnConfig holds display options. Both keys are always present, possibly null.
type ReportColumnConfig struct {
	ChartType *string `json:"chartType"`
	X         *string `json:"x"`
}
