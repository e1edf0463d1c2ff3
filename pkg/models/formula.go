package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
)

// Formula types.
const (
	FormulaTypeKPI   = "kpi"
	FormulaTypeTable = "table"
)

// ThreadState is the conversation state of a formula.
type ThreadState string

const (
	ThreadNone   ThreadState = "no_thread"
	ThreadActive ThreadState = "thread_active"
)

// Formula is one saved analysis backed by an agent conversation.
// ArcSQL caches the translated SQL text of RawArcSQL.
type Formula struct {
	ID          uuid.UUID      `json:"id"`
	UserID      string         `json:"user_id"`
	WorkbookID  uuid.UUID      `json:"workbook_id"`
	DataTableID uuid.UUID      `json:"data_table_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	FormulaType string         `json:"formula_type"` // "kpi", "table" or "" before the first turn
	ArcSQL      string         `json:"arc_sql"`
	RawArcSQL   *arcsql.ArcSQL `json:"raw_arc_sql,omitempty"`
	ThreadID    *string        `json:"thread_id,omitempty"`
	Version     int            `json:"version"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ThreadState derives the conversation state from the persisted thread id.
func (f *Formula) ThreadState() ThreadState {
	if f.ThreadID == nil || *f.ThreadID == "" {
		return ThreadNone
	}
	return ThreadActive
}

// HasQuery reports whether a turn has produced a query yet.
func (f *Formula) HasQuery() bool {
	return f.RawArcSQL != nil
}

// FormulaTurnUpdate is what a successful turn writes back to the formula.
type FormulaTurnUpdate struct {
	Name        string
	Description string
	FormulaType string
	ArcSQL      string
	RawArcSQL   *arcsql.ArcSQL
}

// Message author types.
const (
	UserTypeUser  = "user"
	UserTypeModel = "model"
)

// FormulaMessage is one append-only turn entry.
type FormulaMessage struct {
	ID           uuid.UUID      `json:"id"`
	FormulaID    uuid.UUID      `json:"formula_id"`
	UserID       string         `json:"user_id"`
	UserType     string         `json:"user_type"`
	MessageType  string         `json:"message_type"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Text         string         `json:"text"`
	RawArcSQL    *arcsql.ArcSQL `json:"raw_arc_sql,omitempty"`
	Retries      int            `json:"retries"`
	RunDetails   JSONBMap       `json:"run_details,omitempty"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	CreatedAt    time.Time      `json:"created_at"`
}
