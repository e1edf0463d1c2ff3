package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

func newDataTableMux(tables *mockDataTableService, formulas *mockFormulaService) *http.ServeMux {
	mux := http.NewServeMux()
	NewDataTableHandler(tables, formulas, zap.NewNop()).RegisterRoutes(mux, newTestAuthMiddleware(), passThroughUser)
	return mux
}

func TestDataTableHandler_Extract(t *testing.T) {
	path := "/api/datatables/" + uuid.NewString() + "/extract"
	body := `{"rows":[{"region":"west"}],"columns":[{"name":"region","dtype":"string"}]}`

	t.Run("success", func(t *testing.T) {
		tables := &mockDataTableService{table: &models.DataTableMeta{ID: uuid.New(), ExtractionStatus: models.ExtractionSuccess}}

		rec := serve(newDataTableMux(tables, &mockFormulaService{}), "POST", path, body)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("conversion failure names the field", func(t *testing.T) {
		tables := &mockDataTableService{err: apperrors.WithField(apperrors.KindValidation, "units", "row 2: cannot convert")}

		rec := serve(newDataTableMux(tables, &mockFormulaService{}), "POST", path, body)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp appErrorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "units", resp.Field)
	})

	t.Run("load failure", func(t *testing.T) {
		tables := &mockDataTableService{err: apperrors.New(apperrors.KindExecutionError, "failed to load rows")}

		rec := serve(newDataTableMux(tables, &mockFormulaService{}), "POST", path, body)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestDataTableHandler_Translate(t *testing.T) {
	path := "/api/datatables/" + uuid.NewString() + "/translate"

	t.Run("returns statement", func(t *testing.T) {
		formulas := &mockFormulaService{stmt: &arcsql.Statement{SQL: `SELECT "region" FROM "dt_1"`, Columns: []string{"region"}}}

		rec := serve(newDataTableMux(&mockDataTableService{}, formulas), "POST", path,
			`{"arcSql":{"name":"q","table":"sales","columns":[{"column":"region"}]},"formulaType":"table"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data arcsql.Statement `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, []string{"region"}, resp.Data.Columns)
		assert.Equal(t, "table", formulas.lastType)
	})

	t.Run("missing query", func(t *testing.T) {
		rec := serve(newDataTableMux(&mockDataTableService{}, &mockFormulaService{}), "POST", path, `{"formulaType":"kpi"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed kpi", func(t *testing.T) {
		formulas := &mockFormulaService{err: apperrors.New(apperrors.KindMalformedKpiQuery, "kpi queries select exactly one column")}

		rec := serve(newDataTableMux(&mockDataTableService{}, formulas), "POST", path,
			`{"arcSql":{"name":"q","table":"sales","columns":[{"column":"a"},{"column":"b"}]},"formulaType":"kpi"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp appErrorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, string(apperrors.KindMalformedKpiQuery), resp.Error)
	})
}
