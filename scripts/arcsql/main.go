// arcsql translates ArcSQL documents against a table schema and, with a model
// endpoint configured, asks the analysis agent a question end to end.
//
//	go run ./scripts/arcsql translate --schema sales.json --query total.json --dialect postgres
//	AGENT_API_KEY=... go run ./scripts/arcsql ask --schema sales.json "total units by region"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource/mssql"
	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource/postgres"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/llm"
	"github.com/arcwise-inc/arc-engine/pkg/prompts"
)

var (
	schemaPath  string
	dialectName string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "arcsql",
	Short:         "Translate ArcSQL and exercise the analysis agent",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "path to the table schema JSON")
	rootCmd.PersistentFlags().StringVar(&dialectName, "dialect", "ansi", "SQL dialect: ansi, postgres or mssql")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log model calls")
	_ = rootCmd.MarkPersistentFlagRequired("schema")

	rootCmd.AddCommand(newTranslateCmd(), newAskCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newTranslateCmd() *cobra.Command {
	var queryPath string
	var kpi bool

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Validate an ArcSQL document and print the SQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, dialect, err := loadSchemaAndDialect()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(queryPath)
			if err != nil {
				return fmt.Errorf("read query: %w", err)
			}
			q, err := arcsql.Decode(data)
			if err != nil {
				return fmt.Errorf("decode query: %w", err)
			}
			return printStatement(q, schema, dialect, kpi)
		},
	}
	cmd.Flags().StringVar(&queryPath, "query", "", "path to the ArcSQL JSON document")
	cmd.Flags().BoolVar(&kpi, "kpi", false, "require a single output column")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newAskCmd() *cobra.Command {
	cfg := config.AgentConfig{
		Provider:    config.ProviderOpenAI,
		Temperature: 0.1,
		MaxTokens:   2048,
		Timeout:     60 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the analysis agent a question about the schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, dialect, err := loadSchemaAndDialect()
			if err != nil {
				return err
			}
			cfg.APIKey = os.Getenv("AGENT_API_KEY")

			logger := zap.NewNop()
			if verbose {
				logger, _ = zap.NewDevelopment()
			}

			agent, err := llm.NewAnalysisAgent(&cfg, llm.NewMemoryThreadStore(), logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			threadID, err := agent.StartThread(ctx, prompts.BuildAgentSystemContext(prompts.AgentContext{Schema: schema}))
			if err != nil {
				return err
			}
			return ask(ctx, agent, threadID, strings.Join(args, " "), schema, dialect)
		},
	}
	cmd.Flags().StringVar(&cfg.Provider, "provider", cfg.Provider, "openai or anthropic")
	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", "", "OpenAI-compatible base URL")
	cmd.Flags().StringVar(&cfg.Model, "model", "gpt-4o-mini", "model name")
	return cmd
}

func ask(ctx context.Context, agent llm.AnalysisAgent, threadID, question string, schema *arcsql.Schema, dialect arcsql.Dialect) error {
	start := time.Now()
	reply, err := agent.SendMessage(ctx, threadID, question)
	if err != nil {
		return err
	}
	fmt.Printf("model=%s duration=%s input_tokens=%d output_tokens=%d\n",
		agent.Model(), time.Since(start).Round(time.Millisecond), reply.InputTokens, reply.OutputTokens)

	doc, err := llm.ExtractJSON(reply.Content)
	if err != nil {
		return fmt.Errorf("reply carries no JSON document: %w\n%s", err, reply.Content)
	}
	parsed, err := arcsql.ParseReply(doc)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", parsed.Type, parsed.Message)
	if !parsed.Actionable() {
		return nil
	}
	return printStatement(parsed.ArcSQL, schema, dialect, parsed.Type == arcsql.ReplyKPI)
}

func printStatement(q *arcsql.ArcSQL, schema *arcsql.Schema, dialect arcsql.Dialect, kpi bool) error {
	if err := arcsql.Validate(q, schema); err != nil {
		return err
	}
	stmt, err := arcsql.Translate(q, schema, arcsql.Options{Dialect: dialect, SingleColumn: kpi})
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(stmt, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func loadSchemaAndDialect() (*arcsql.Schema, arcsql.Dialect, error) {
	var dialect arcsql.Dialect
	switch dialectName {
	case "ansi":
		dialect = arcsql.ANSI
	case "postgres":
		dialect = postgres.Dialect
	case "mssql":
		dialect = mssql.Dialect
	default:
		return nil, nil, fmt.Errorf("unknown dialect %q", dialectName)
	}

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read schema: %w", err)
	}
	var schema arcsql.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, nil, fmt.Errorf("decode schema: %w", err)
	}
	if schema.PhysicalTable == "" {
		schema.PhysicalTable = schema.Table
	}
	return &schema, dialect, nil
}
