package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// stubSession records turns without calling an agent.
type stubSession struct {
	calls int
	texts []string
}

func (s *stubSession) RunTurn(_ context.Context, f *models.Formula, text string) (*AgentRunResponse, error) {
	s.calls++
	s.texts = append(s.texts, text)
	return &AgentRunResponse{Success: true, MessageType: "text", Message: "ok"}, nil
}

type formulaFixture struct {
	workbook  *models.Workbook
	table     *models.DataTableMeta
	tables    *mockDataTableRepo
	formulas  *mockFormulaRepo
	warehouse *mockWarehouse
	session   *stubSession
	service   FormulaService
}

func newFormulaFixture(t *testing.T) *formulaFixture {
	t.Helper()
	wb := &models.Workbook{ID: uuid.New(), UserID: testUserID, Name: "Sales", IsActive: true}
	table := salesTable(wb.ID)

	f := &formulaFixture{
		workbook:  wb,
		table:     table,
		tables:    newMockDataTableRepo(table),
		formulas:  newMockFormulaRepo(),
		warehouse: &mockWarehouse{},
		session:   &stubSession{},
	}
	schemas := NewSchemaProvider(f.tables, "warehouse", time.Minute, zap.NewNop())
	t.Cleanup(schemas.Close)
	f.service = NewFormulaService(f.formulas, &mockMessageRepo{}, f.tables, newMockWorkbookRepo(wb),
		schemas, f.session, f.warehouse, zap.NewNop())
	return f
}

func (f *formulaFixture) create(t *testing.T) *models.Formula {
	t.Helper()
	formula, err := f.service.Create(context.Background(), testUserID, f.workbook.ID,
		&CreateFormulaRequest{DataTableID: f.table.ID, Name: "Units"})
	require.NoError(t, err)
	return formula
}

func totalUnitsQuery() *arcsql.ArcSQL {
	return &arcsql.ArcSQL{
		Name:    "Total units",
		Table:   "sales",
		Columns: []arcsql.Column{{Column: "units", Aggregation: arcsql.AggSum, Alias: "total_units"}},
	}
}

func TestFormulaService_Create(t *testing.T) {
	f := newFormulaFixture(t)
	ctx := context.Background()

	formula := f.create(t)
	assert.Equal(t, f.table.ID, formula.DataTableID)
	assert.True(t, formula.IsActive)
	assert.False(t, formula.HasQuery())
	assert.Equal(t, models.ThreadNone, formula.ThreadState())

	other := salesTable(uuid.New())
	f.tables.tables[other.ID] = other
	_, err := f.service.Create(ctx, testUserID, f.workbook.ID, &CreateFormulaRequest{DataTableID: other.ID})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "dataTable", appErr.Field)

	_, err = f.service.Create(ctx, testUserID, f.workbook.ID, &CreateFormulaRequest{})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.service.Create(ctx, testUserID, f.workbook.ID, &CreateFormulaRequest{DataTableID: f.table.ID, Name: "where"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestFormulaService_Value(t *testing.T) {
	f := newFormulaFixture(t)
	formula := f.create(t)
	stored := f.formulas.formulas[formula.ID]
	stored.FormulaType = models.FormulaTypeKPI
	stored.RawArcSQL = totalUnitsQuery()
	f.warehouse.result = &datasource.Result{
		Columns:  []string{"total_units"},
		Rows:     []map[string]any{{"total_units": int64(42)}},
		RowCount: 1,
	}

	v, err := f.service.Value(context.Background(), testUserID, formula.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Value)
	assert.Equal(t, models.FormulaTypeKPI, v.FormulaType)
	assert.Equal(t, []string{"total_units"}, v.Columns)

	require.Len(t, f.warehouse.executed, 1)
	assert.Contains(t, f.warehouse.executed[0], `SUM("units") AS "total_units"`)
	assert.Contains(t, f.warehouse.executed[0], f.table.PhysicalName())
}

func TestFormulaService_ValueTable(t *testing.T) {
	f := newFormulaFixture(t)
	formula := f.create(t)
	rows := []map[string]any{
		{"region": "north", "units": int64(3)},
		{"region": "south", "units": int64(5)},
	}
	stored := f.formulas.formulas[formula.ID]
	stored.FormulaType = models.FormulaTypeTable
	stored.RawArcSQL = &arcsql.ArcSQL{
		Table:   "sales",
		Columns: []arcsql.Column{{Column: "region"}, {Column: "units"}},
	}
	f.warehouse.result = &datasource.Result{Columns: []string{"region", "units"}, Rows: rows, RowCount: 2}

	v, err := f.service.Value(context.Background(), testUserID, formula.ID)
	require.NoError(t, err)
	assert.Equal(t, rows, v.Value)
	assert.Equal(t, 2, v.RowCount)
}

func TestFormulaService_ValueErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no query yet", func(t *testing.T) {
		f := newFormulaFixture(t)
		formula := f.create(t)
		_, err := f.service.Value(ctx, testUserID, formula.ID)
		assert.ErrorIs(t, err, apperrors.ErrNoQuery)
		assert.Empty(t, f.warehouse.executed)
	})

	t.Run("data not extracted", func(t *testing.T) {
		f := newFormulaFixture(t)
		formula := f.create(t)
		f.formulas.formulas[formula.ID].RawArcSQL = totalUnitsQuery()
		f.formulas.formulas[formula.ID].FormulaType = models.FormulaTypeKPI
		f.tables.tables[f.table.ID].ExtractionStatus = models.ExtractionFailed

		_, err := f.service.Value(ctx, testUserID, formula.ID)
		assert.ErrorIs(t, err, apperrors.ErrDataNotReady)
	})

	t.Run("column dropped by a later extraction", func(t *testing.T) {
		f := newFormulaFixture(t)
		formula := f.create(t)
		f.formulas.formulas[formula.ID].RawArcSQL = totalUnitsQuery()
		f.formulas.formulas[formula.ID].FormulaType = models.FormulaTypeKPI
		f.tables.tables[f.table.ID].Columns = f.tables.tables[f.table.ID].Columns[:1]

		_, err := f.service.Value(ctx, testUserID, formula.ID)
		assert.Equal(t, apperrors.KindSchemaMismatch, apperrors.KindOf(err))
		assert.Empty(t, f.warehouse.executed)
	})

	t.Run("kpi without rows", func(t *testing.T) {
		f := newFormulaFixture(t)
		formula := f.create(t)
		f.formulas.formulas[formula.ID].RawArcSQL = totalUnitsQuery()
		f.formulas.formulas[formula.ID].FormulaType = models.FormulaTypeKPI

		_, err := f.service.Value(ctx, testUserID, formula.ID)
		assert.Equal(t, apperrors.KindEmptyResult, apperrors.KindOf(err))
	})

	t.Run("deleted formula", func(t *testing.T) {
		f := newFormulaFixture(t)
		formula := f.create(t)
		require.NoError(t, f.service.Delete(ctx, testUserID, formula.ID))

		_, err := f.service.Value(ctx, testUserID, formula.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = f.service.Get(ctx, testUserID, formula.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestFormulaService_PostMessage(t *testing.T) {
	ctx := context.Background()
	f := newFormulaFixture(t)
	formula := f.create(t)

	resp, err := f.service.PostMessage(ctx, testUserID, formula.ID, "total units")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"total units"}, f.session.texts)

	_, err = f.service.PostMessage(ctx, testUserID, formula.ID, "   ")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, 1, f.session.calls)
}

func TestFormulaService_PostMessage_DataNotReady(t *testing.T) {
	f := newFormulaFixture(t)
	f.table.DataSourceAdded = false
	formula := f.create(t)

	_, err := f.service.PostMessage(context.Background(), testUserID, formula.ID, "total units")
	assert.ErrorIs(t, err, apperrors.ErrDataNotReady)
	assert.Zero(t, f.session.calls)
}

func TestFormulaService_Translate(t *testing.T) {
	f := newFormulaFixture(t)
	ctx := context.Background()

	stmt, err := f.service.Translate(ctx, testUserID, f.table.ID, totalUnitsQuery(), models.FormulaTypeKPI)
	require.NoError(t, err)
	assert.Equal(t, []string{"total_units"}, stmt.Columns)
	assert.Empty(t, f.warehouse.executed, "translate never runs the query")

	_, err = f.service.Translate(ctx, testUserID, f.table.ID, totalUnitsQuery(), "chart")
	assert.Equal(t, apperrors.KindUnknownFormulaType, apperrors.KindOf(err))

	twoColumns := &arcsql.ArcSQL{Table: "sales", Columns: []arcsql.Column{{Column: "region"}, {Column: "units"}}}
	_, err = f.service.Translate(ctx, testUserID, f.table.ID, twoColumns, models.FormulaTypeKPI)
	assert.Equal(t, apperrors.KindMalformedKpiQuery, apperrors.KindOf(err))

	_, err = f.service.Translate(ctx, testUserID, f.table.ID, twoColumns, models.FormulaTypeTable)
	assert.NoError(t, err)
}
