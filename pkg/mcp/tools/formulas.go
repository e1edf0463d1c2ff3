package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/auth"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/services"
)

// ScopeProvider opens a user-scoped database context (database.UserScopeProvider).
type ScopeProvider interface {
	WithUserScope(ctx context.Context, userID string) (context.Context, func(), error)
}

// FormulaToolDeps contains dependencies for the formula tools.
type FormulaToolDeps struct {
	Scopes         ScopeProvider
	FormulaService services.FormulaService
	Logger         *zap.Logger
}

// formulaSummary is the list_formulas entry.
type formulaSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FormulaType string    `json:"formula_type,omitempty"`
	DataTableID uuid.UUID `json:"data_table_id"`
	HasQuery    bool      `json:"has_query"`
}

type translateResult struct {
	SQL     string   `json:"sql"`
	Params  []any    `json:"params"`
	Columns []string `json:"columns"`
}

// RegisterFormulaTools registers list_formulas, get_formula_value and translate_arcsql.
func RegisterFormulaTools(s *server.MCPServer, deps *FormulaToolDeps) {
	registerListFormulasTool(s, deps)
	registerGetFormulaValueTool(s, deps)
	registerTranslateTool(s, deps)
}

// userScope resolves the caller and opens a user-scoped context.
func userScope(ctx context.Context, deps *FormulaToolDeps) (string, context.Context, func(), error) {
	userID, err := auth.RequireUserIDFromContext(ctx)
	if err != nil {
		return "", nil, nil, fmt.Errorf("authentication required")
	}
	scoped, cleanup, err := deps.Scopes.WithUserScope(ctx, userID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to open user scope: %w", err)
	}
	return userID, scoped, cleanup, nil
}

func parseID(req mcp.CallToolRequest, name string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(name)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_argument", err.Error())
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_argument", name+" must be a UUID")
	}
	return id, nil
}

func registerListFormulasTool(s *server.MCPServer, deps *FormulaToolDeps) {
	tool := mcp.NewTool(
		"list_formulas",
		mcp.WithDescription("Lists the active formulas of a workbook, newest first."),
		mcp.WithString("workbook_id", mcp.Required(), mcp.Description("Workbook UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workbookID, bad := parseID(req, "workbook_id")
		if bad != nil {
			return bad, nil
		}
		userID, ctx, cleanup, err := userScope(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		formulas, err := deps.FormulaService.List(ctx, userID, workbookID)
		if err != nil {
			if res := toolError(err); res != nil {
				return res, nil
			}
			return nil, err
		}

		out := make([]formulaSummary, len(formulas))
		for i, f := range formulas {
			out[i] = summarize(f)
		}
		return jsonResult(map[string]any{"formulas": out, "count": len(out)})
	})
}

func registerGetFormulaValueTool(s *server.MCPServer, deps *FormulaToolDeps) {
	tool := mcp.NewTool(
		"get_formula_value",
		mcp.WithDescription("Runs a formula's current query and returns a scalar for kpi formulas "+
			"or the rows for table formulas."),
		mcp.WithString("formula_id", mcp.Required(), mcp.Description("Formula UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		formulaID, bad := parseID(req, "formula_id")
		if bad != nil {
			return bad, nil
		}
		userID, ctx, cleanup, err := userScope(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		value, err := deps.FormulaService.Value(ctx, userID, formulaID)
		if err != nil {
			if res := toolError(err); res != nil {
				return res, nil
			}
			deps.Logger.Error("get_formula_value failed",
				zap.String("formula_id", formulaID.String()),
				zap.Error(err))
			return nil, err
		}
		return jsonResult(value)
	})
}

func registerTranslateTool(s *server.MCPServer, deps *FormulaToolDeps) {
	tool := mcp.NewTool(
		"translate_arcsql",
		mcp.WithDescription("Validates an ArcSQL document against a data table and returns the "+
			"parameterized SQL without running it."),
		mcp.WithString("data_table_id", mcp.Required(), mcp.Description("Data table UUID")),
		mcp.WithString("arc_sql", mcp.Required(), mcp.Description("ArcSQL JSON document")),
		mcp.WithString("formula_type",
			mcp.Description("kpi requires exactly one selected column"),
			mcp.Enum(models.FormulaTypeKPI, models.FormulaTypeTable)),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dataTableID, bad := parseID(req, "data_table_id")
		if bad != nil {
			return bad, nil
		}
		doc, err := req.RequireString("arc_sql")
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}
		q, err := arcsql.Decode([]byte(doc))
		if err != nil {
			return NewErrorResult("invalid_arc_sql", fmt.Sprintf("arc_sql is not a valid ArcSQL document: %v", err)), nil
		}
		formulaType := getOptionalString(req, "formula_type")
		if formulaType == "" {
			formulaType = models.FormulaTypeTable
		}

		userID, ctx, cleanup, err := userScope(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		stmt, err := deps.FormulaService.Translate(ctx, userID, dataTableID, q, formulaType)
		if err != nil {
			if res := toolError(err); res != nil {
				return res, nil
			}
			return nil, err
		}
		params := stmt.Params
		if params == nil {
			params = []any{}
		}
		return jsonResult(translateResult{SQL: stmt.SQL, Params: params, Columns: stmt.Columns})
	})
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, _ := args[key].(string)
	return strings.TrimSpace(val)
}

func summarize(f *models.Formula) formulaSummary {
	return formulaSummary{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		FormulaType: f.FormulaType,
		DataTableID: f.DataTableID,
		HasQuery:    f.HasQuery(),
	}
}
