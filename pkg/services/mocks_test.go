package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

const testUserID = "user-1"

// mockWorkbookRepo implements repositories.WorkbookRepository for testing.
type mockWorkbookRepo struct {
	workbooks map[uuid.UUID]*models.Workbook
}

func newMockWorkbookRepo(wbs ...*models.Workbook) *mockWorkbookRepo {
	m := &mockWorkbookRepo{workbooks: make(map[uuid.UUID]*models.Workbook)}
	for _, wb := range wbs {
		m.workbooks[wb.ID] = wb
	}
	return m
}

func (m *mockWorkbookRepo) Create(_ context.Context, wb *models.Workbook) error {
	wb.ID = uuid.New()
	wb.IsActive = true
	wb.CreatedAt = time.Now()
	wb.UpdatedAt = wb.CreatedAt
	m.workbooks[wb.ID] = wb
	return nil
}

func (m *mockWorkbookRepo) GetByID(_ context.Context, userID string, id uuid.UUID) (*models.Workbook, error) {
	wb, ok := m.workbooks[id]
	if !ok || wb.UserID != userID || !wb.IsActive {
		return nil, apperrors.ErrNotFound
	}
	return wb, nil
}

func (m *mockWorkbookRepo) ListActive(_ context.Context, userID string) ([]*models.Workbook, error) {
	out := make([]*models.Workbook, 0)
	for _, wb := range m.workbooks {
		if wb.UserID == userID && wb.IsActive {
			out = append(out, wb)
		}
	}
	return out, nil
}

func (m *mockWorkbookRepo) SoftDelete(_ context.Context, userID string, id uuid.UUID) error {
	wb, ok := m.workbooks[id]
	if !ok || wb.UserID != userID || !wb.IsActive {
		return apperrors.ErrNotFound
	}
	wb.IsActive = false
	return nil
}

// mockDataTableRepo implements repositories.DataTableRepository for testing.
type mockDataTableRepo struct {
	tables       map[uuid.UUID]*models.DataTableMeta
	getCalls     int
	failed       map[uuid.UUID]models.JSONBMap
	replaceCalls int
}

func newMockDataTableRepo(tables ...*models.DataTableMeta) *mockDataTableRepo {
	m := &mockDataTableRepo{
		tables: make(map[uuid.UUID]*models.DataTableMeta),
		failed: make(map[uuid.UUID]models.JSONBMap),
	}
	for _, dt := range tables {
		m.tables[dt.ID] = dt
	}
	return m
}

func (m *mockDataTableRepo) Create(_ context.Context, dt *models.DataTableMeta) error {
	dt.ID = uuid.New()
	if dt.ExtractionStatus == "" {
		dt.ExtractionStatus = models.ExtractionPending
	}
	dt.Columns = []models.DataTableColumnMeta{}
	m.tables[dt.ID] = dt
	return nil
}

func (m *mockDataTableRepo) GetByID(_ context.Context, userID string, id uuid.UUID) (*models.DataTableMeta, error) {
	m.getCalls++
	dt, ok := m.tables[id]
	if !ok || dt.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	cp := *dt
	return &cp, nil
}

func (m *mockDataTableRepo) ListByWorkbook(_ context.Context, userID string, workbookID uuid.UUID) ([]*models.DataTableMeta, error) {
	out := make([]*models.DataTableMeta, 0)
	for _, dt := range m.tables {
		if dt.UserID == userID && dt.WorkbookID == workbookID {
			out = append(out, dt)
		}
	}
	return out, nil
}

func (m *mockDataTableRepo) ReplaceExtraction(_ context.Context, dt *models.DataTableMeta) error {
	m.replaceCalls++
	cp := *dt
	m.tables[dt.ID] = &cp
	return nil
}

func (m *mockDataTableRepo) MarkExtractionFailed(_ context.Context, _ string, id uuid.UUID, details models.JSONBMap) error {
	m.failed[id] = details
	if dt, ok := m.tables[id]; ok {
		dt.ExtractionStatus = models.ExtractionFailed
		dt.ExtractionDetails = details
	}
	return nil
}

func (m *mockDataTableRepo) ResetExtraction(_ context.Context, userID string, id uuid.UUID) error {
	dt, ok := m.tables[id]
	if !ok || dt.UserID != userID {
		return apperrors.ErrNotFound
	}
	dt.DataSourceAdded = false
	dt.ExtractionStatus = models.ExtractionPending
	dt.ExtractionDetails = models.JSONBMap{}
	dt.Columns = []models.DataTableColumnMeta{}
	return nil
}

// mockFormulaRepo implements repositories.FormulaRepository for testing.
type mockFormulaRepo struct {
	mu           sync.Mutex
	formulas     map[uuid.UUID]*models.Formula
	setThreadErr error
	applyErr     error
	applyCalls   int
	// concurrentTurns bumps the stored version before ApplyTurn, as a racing turn would.
	concurrentTurns int
}

func newMockFormulaRepo(formulas ...*models.Formula) *mockFormulaRepo {
	m := &mockFormulaRepo{formulas: make(map[uuid.UUID]*models.Formula)}
	for _, f := range formulas {
		m.formulas[f.ID] = f
	}
	return m
}

func (m *mockFormulaRepo) Create(_ context.Context, f *models.Formula) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = uuid.New()
	f.IsActive = true
	f.CreatedAt = time.Now()
	m.formulas[f.ID] = f
	return nil
}

func (m *mockFormulaRepo) GetByID(_ context.Context, userID string, id uuid.UUID) (*models.Formula, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.formulas[id]
	if !ok || f.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockFormulaRepo) ListActiveByWorkbook(_ context.Context, userID string, workbookID uuid.UUID) ([]*models.Formula, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Formula, 0)
	for _, f := range m.formulas {
		if f.UserID == userID && f.WorkbookID == workbookID && f.IsActive {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockFormulaRepo) SetThreadID(_ context.Context, userID string, id uuid.UUID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setThreadErr != nil {
		return m.setThreadErr
	}
	f, ok := m.formulas[id]
	if !ok || f.UserID != userID {
		return apperrors.ErrNotFound
	}
	f.ThreadID = &threadID
	return nil
}

func (m *mockFormulaRepo) ApplyTurn(_ context.Context, userID string, id uuid.UUID, _ int, update *models.FormulaTurnUpdate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.applyErr != nil {
		return 0, m.applyErr
	}
	f, ok := m.formulas[id]
	if !ok || f.UserID != userID {
		return 0, apperrors.ErrNotFound
	}
	f.Version += m.concurrentTurns
	f.Name = update.Name
	f.Description = update.Description
	f.FormulaType = update.FormulaType
	f.ArcSQL = update.ArcSQL
	f.RawArcSQL = update.RawArcSQL
	f.Version++
	return f.Version, nil
}

func (m *mockFormulaRepo) SoftDelete(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.formulas[id]
	if !ok || f.UserID != userID || !f.IsActive {
		return apperrors.ErrNotFound
	}
	f.IsActive = false
	return nil
}

// mockMessageRepo implements repositories.FormulaMessageRepository for testing.
type mockMessageRepo struct {
	messages []*models.FormulaMessage
}

func (m *mockMessageRepo) Create(_ context.Context, msg *models.FormulaMessage) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockMessageRepo) ListByFormula(_ context.Context, userID string, formulaID uuid.UUID) ([]*models.FormulaMessage, error) {
	out := make([]*models.FormulaMessage, 0)
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.FormulaID == formulaID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockMessageRepo) byUserType(userType string) []*models.FormulaMessage {
	var out []*models.FormulaMessage
	for _, msg := range m.messages {
		if msg.UserType == userType {
			out = append(out, msg)
		}
	}
	return out
}

// mockUsageRepo implements repositories.UsageRepository for testing.
type mockUsageRepo struct {
	records   []*models.UsageRecord
	used      int
	lastSince time.Time
}

func (m *mockUsageRepo) Record(_ context.Context, rec *models.UsageRecord) error {
	rec.ID = uuid.New()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockUsageRepo) SumTokensSince(_ context.Context, _ string, since time.Time) (int, error) {
	m.lastSince = since
	return m.used, nil
}

// mockReportRepo implements repositories.ReportRepository for testing.
type mockReportRepo struct {
	reports map[uuid.UUID]*models.Report
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{reports: make(map[uuid.UUID]*models.Report)}
}

func (m *mockReportRepo) Create(_ context.Context, report *models.Report) error {
	report.ID = uuid.New()
	report.IsActive = true
	m.reports[report.ID] = report
	return nil
}

func (m *mockReportRepo) GetByID(_ context.Context, userID string, id uuid.UUID) (*models.Report, error) {
	r, ok := m.reports[id]
	if !ok || r.UserID != userID || !r.IsActive {
		return nil, apperrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockReportRepo) ListByWorkbook(_ context.Context, userID string, workbookID uuid.UUID) ([]*models.Report, error) {
	out := make([]*models.Report, 0)
	for _, r := range m.reports {
		if r.UserID == userID && r.WorkbookID == workbookID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReportRepo) Update(_ context.Context, report *models.Report) error {
	if _, ok := m.reports[report.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *report
	m.reports[report.ID] = &cp
	return nil
}

func (m *mockReportRepo) SoftDelete(_ context.Context, userID string, id uuid.UUID) error {
	r, ok := m.reports[id]
	if !ok || r.UserID != userID || !r.IsActive {
		return apperrors.ErrNotFound
	}
	r.IsActive = false
	return nil
}

// mockWarehouse implements datasource.Warehouse for testing.
type mockWarehouse struct {
	result     *datasource.Result
	execErr    error
	replaceErr error

	executed   []string
	params     [][]any
	replaced   []datasource.TableSpec
	loadedRows [][]any
	dropped    []string
}

var _ datasource.Warehouse = (*mockWarehouse)(nil)

func (m *mockWarehouse) Execute(_ context.Context, statement string, params []any, _ bool) (*datasource.Result, error) {
	m.executed = append(m.executed, statement)
	m.params = append(m.params, params)
	if m.execErr != nil {
		return nil, m.execErr
	}
	if m.result == nil {
		return &datasource.Result{Rows: []map[string]any{}}, nil
	}
	return m.result, nil
}

func (m *mockWarehouse) ReplaceTable(_ context.Context, table datasource.TableSpec, rows [][]any) (int64, error) {
	if m.replaceErr != nil {
		return 0, m.replaceErr
	}
	m.replaced = append(m.replaced, table)
	m.loadedRows = rows
	return int64(len(rows)), nil
}

func (m *mockWarehouse) DropTable(_ context.Context, _ string, name string) error {
	m.dropped = append(m.dropped, name)
	return nil
}

func (m *mockWarehouse) Dialect() arcsql.Dialect { return arcsql.ANSI }
func (m *mockWarehouse) Namespace() string { return "warehouse" }
func (m *mockWarehouse) Ping(_ context.Context) error { return nil }
func (m *mockWarehouse) Close() error { return nil }

// salesTable is an extracted data table the agent can query.
func salesTable(workbookID uuid.UUID) *models.DataTableMeta {
	return &models.DataTableMeta{
		ID:               uuid.New(),
		UserID:           testUserID,
		WorkbookID:       workbookID,
		Name:             "sales",
		Description:      "Daily sales",
		DataSourceAdded:  true,
		DataSource:       models.DataSourceCSV,
		ExtractionStatus: models.ExtractionSuccess,
		Columns: []models.DataTableColumnMeta{
			{Name: "region", DType: arcsql.TypeString, Position: 0},
			{Name: "units", DType: arcsql.TypeInteger, Position: 1},
		},
	}
}
