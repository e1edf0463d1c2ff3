// Package prompts builds the text sent to the analysis agent.
package prompts

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
)

// AgentContext is what the agent knows about the data table a formula is bound to.
type AgentContext struct {
	Schema           *arcsql.Schema
	TableDescription string
	// Aggregations the warehouse dialect can render. Empty means all of them.
	Aggregations []arcsql.Aggregation
}

// BuildAgentSystemContext creates the system message that starts a formula's thread.
// It lists the table columns and the exact reply document the agent must return.
func BuildAgentSystemContext(c AgentContext) string {
	var prompt strings.Builder
	table := c.Schema.Table

	prompt.WriteString("You are a data analyst. The user asks questions about one data table and you answer ")
	prompt.WriteString("with a structured ArcSQL query that the application translates and runs for them.\n\n")

	prompt.WriteString("## Data Table\n\n")
	prompt.WriteString(fmt.Sprintf("Table: `%s`\n", table))
	prompt.WriteString(fmt.Sprintf("Each row is one %s.\n", entityName(table)))
	if c.TableDescription != "" {
		prompt.WriteString(fmt.Sprintf("Description: %s\n", c.TableDescription))
	}
	prompt.WriteString("\nColumns:\n")
	for _, col := range c.Schema.Columns {
		line := fmt.Sprintf("- `%s` (%s", col.Name, col.Type)
		if col.Type == arcsql.TypeDate && col.Format != "" {
			line += ", format " + col.Format
		}
		line += ")"
		if col.Description != "" {
			line += ": " + col.Description
		}
		prompt.WriteString(line + "\n")
	}
	prompt.WriteString("\n")

	aggs := c.Aggregations
	if len(aggs) == 0 {
		aggs = arcsql.Aggregations
	}
	prompt.WriteString("## ArcSQL\n\n")
	prompt.WriteString("- `table`: must be `" + table + "`\n")
	prompt.WriteString("- `columns`: ordered list of `{column, aggregation?, alias?}`. ")
	prompt.WriteString("Aggregations: " + joinTokens(aggs) + ". Use `*` only with `count`.\n")
	prompt.WriteString("- `filters`: list of `{column, operator, value}`, combined with AND. ")
	prompt.WriteString("Operators: " + joinTokens(arcsql.Operators) + ". ")
	prompt.WriteString("`in`, `not_in` take a list, `between` takes `[low, high]`, `is_null` and `is_not_null` take no value.\n")
	prompt.WriteString("- `groupBy`: columns to group by. Every selected column without an aggregation must be grouped.\n")
	prompt.WriteString("- `orderBy`: list of `{column, direction}` with direction `asc` or `desc`. The column may be an alias.\n")
	prompt.WriteString("- `limit`: optional positive integer.\n")
	prompt.WriteString("- `name` and `description`: a short title and one sentence describing the result.\n\n")
	prompt.WriteString("Date values are written as `YYYY-MM-DD`. Only reference the columns listed above.\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond with one JSON object:\n")
	prompt.WriteString("- `messageType`: `kpi` when the answer is a single number, `table` for rows, ")
	prompt.WriteString("`text` when you need to ask a question or cannot answer with a query\n")
	prompt.WriteString("- `message`: a short reply to the user\n")
	prompt.WriteString("- `arcSql`: the query for `kpi` and `table`, `null` for `text`\n\n")
	prompt.WriteString("A `kpi` query selects exactly one column and returns one row.\n\n")

	entities := inflection.Plural(entityName(table))
	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(fmt.Sprintf(`{
  "messageType": "kpi",
  "message": "Here is the result over all %s.",
  "arcSql": {
    "name": "%s",
    "description": "%s over all %s.",
    "table": "%s",
    "columns": [%s]
  }
}
`, entities, exampleName(c.Schema), exampleName(c.Schema), entities, table, exampleColumn(c.Schema)))
	prompt.WriteString("```\n\n")

	prompt.WriteString("Return ONLY the JSON, no additional text.\n")
	return prompt.String()
}

// BuildCorrectionMessage asks the agent to fix its previous reply.
func BuildCorrectionMessage(reason string) string {
	return fmt.Sprintf("Your previous reply could not be used: %s. "+
		"Reply again with one JSON object in the required format, referencing only the listed columns.", reason)
}

// entityName turns a table name like "monthly_sales" into "monthly sale".
func entityName(table string) string {
	words := strings.FieldsFunc(strings.ToLower(table), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(words) == 0 {
		return "record"
	}
	words[len(words)-1] = inflection.Singular(words[len(words)-1])
	return strings.Join(words, " ")
}

// exampleColumn sums the first numeric column, or counts rows when there is none.
func exampleColumn(schema *arcsql.Schema) string {
	if col, ok := firstNumeric(schema); ok {
		return fmt.Sprintf(`{"column": %q, "aggregation": "sum", "alias": %q}`, col, "total_"+col)
	}
	return `{"column": "*", "aggregation": "count", "alias": "row_count"}`
}

func exampleName(schema *arcsql.Schema) string {
	if col, ok := firstNumeric(schema); ok {
		return "Total " + strings.ReplaceAll(col, "_", " ")
	}
	return "Row count"
}

func firstNumeric(schema *arcsql.Schema) (string, bool) {
	for _, col := range schema.Columns {
		if col.Type.Numeric() {
			return col.Name, true
		}
	}
	return "", false
}

func joinTokens[T ~string](tokens []T) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = "`" + string(t) + "`"
	}
	return strings.Join(quoted, ", ")
}
