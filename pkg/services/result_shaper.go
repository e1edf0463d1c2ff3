package services

import (
	"fmt"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// ShapeResult turns executed rows into a formula value: the single scalar for kpi,
// the rows unchanged for table.
func ShapeResult(formulaType string, rows []map[string]any) (any, error) {
	switch formulaType {
	case models.FormulaTypeKPI:
		if len(rows) == 0 {
			return nil, apperrors.New(apperrors.KindEmptyResult, "the kpi query returned no rows")
		}
		if len(rows) > 1 {
			return nil, apperrors.Newf(apperrors.KindMalformedKpiQuery,
				"a kpi query must return one row, got %d", len(rows))
		}
		row := rows[0]
		if len(row) != 1 {
			return nil, apperrors.Newf(apperrors.KindMalformedKpiQuery,
				"a kpi row must have exactly one column, got %d", len(row))
		}
		for _, v := range row {
			return v, nil
		}
	case models.FormulaTypeTable:
		return rows, nil
	}
	return nil, apperrors.WithField(apperrors.KindUnknownFormulaType, "formula_type",
		fmt.Sprintf("unknown formula type %q", formulaType))
}
