package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/apperrors"
	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/audit"
	"github.com/arcwise-inc/arc-engine/pkg/llm"
	"github.com/arcwise-inc/arc-engine/pkg/metrics"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/prompts"
	"github.com/arcwise-inc/arc-engine/pkg/repositories"
	"github.com/arcwise-inc/arc-engine/pkg/retry"
	"github.com/arcwise-inc/arc-engine/pkg/sql"
)

// AgentRunResponse is the outcome of one turn. Failed turns set ErrorKind and carry
// the failure text in Message; Success turns carry the model's reply.
type AgentRunResponse struct {
	Success     bool              `json:"success"`
	ErrorKind   apperrors.Kind    `json:"error_kind,omitempty"`
	Message     string            `json:"message"`
	MessageType string            `json:"message_type,omitempty"`
	ArcSQL      *arcsql.ArcSQL    `json:"arc_sql,omitempty"`
	Statement   *arcsql.Statement `json:"statement,omitempty"`
	Retries     int               `json:"retries"`
	// TokenUtilization is the percent of the token limit used before the turn.
	TokenUtilization float64 `json:"token_utilization"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`

	UserMessage  *models.FormulaMessage `json:"user_message,omitempty"`
	ModelMessage *models.FormulaMessage `json:"model_message,omitempty"`
}

// AgentSession runs conversation turns for formulas.
type AgentSession interface {
	// RunTurn sends userText to the formula's agent thread and applies the reply.
	// Turn outcomes, including failures, are reported in the response; the error is
	// reserved for persistence failures and canceled contexts.
	RunTurn(ctx context.Context, formula *models.Formula, userText string) (*AgentRunResponse, error)
}

// AgentSessionConfig bounds the model calls of one turn.
type AgentSessionConfig struct {
	// MaxRetries is the number of model calls after the first one.
	MaxRetries int
	RetryDelay time.Duration
	// Clock drives the retry waits. Nil means the real clock.
	Clock clockwork.Clock
	// Auditor receives injection diagnostics. Nil logs through the session logger.
	Auditor *audit.SecurityAuditor
}

func (c AgentSessionConfig) retryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   c.MaxRetries,
		InitialDelay: c.RetryDelay,
		MaxDelay:     c.RetryDelay * 8,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		Clock:        c.Clock,
	}
}

type agentSession struct {
	agent       llm.AnalysisAgent
	schemas     SchemaProvider
	limiter     UsageLimiter
	formulaRepo repositories.FormulaRepository
	messageRepo repositories.FormulaMessageRepository
	dialect     arcsql.Dialect
	retryCfg    *retry.Config
	auditor     *audit.SecurityAuditor
	logger      *zap.Logger
}

// NewAgentSession creates an AgentSession translating replies for dialect.
func NewAgentSession(
	agent llm.AnalysisAgent,
	schemas SchemaProvider,
	limiter UsageLimiter,
	formulaRepo repositories.FormulaRepository,
	messageRepo repositories.FormulaMessageRepository,
	dialect arcsql.Dialect,
	cfg AgentSessionConfig,
	logger *zap.Logger,
) AgentSession {
	auditor := cfg.Auditor
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(logger)
	}
	return &agentSession{
		agent:       agent,
		schemas:     schemas,
		limiter:     limiter,
		formulaRepo: formulaRepo,
		messageRepo: messageRepo,
		dialect:     dialect,
		retryCfg:    cfg.retryConfig(),
		auditor:     auditor,
		logger:      logger.Named("agent-session"),
	}
}

var _ AgentSession = (*agentSession)(nil)

// turnOutput is a reply that parsed, validated and translated.
type turnOutput struct {
	reply     *arcsql.Reply
	statement *arcsql.Statement
}

func (s *agentSession) RunTurn(ctx context.Context, formula *models.Formula, userText string) (*AgentRunResponse, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return failedTurn(apperrors.KindValidation, "text is required"), nil
	}

	// The token gate runs before anything is persisted or sent.
	util, err := s.limiter.CheckUtilization(ctx, formula.UserID)
	if err != nil {
		return nil, err
	}
	if util.LimitExceeded {
		metrics.AgentTurnsTotal.WithLabelValues(metrics.TurnTokenLimit).Inc()
		resp := failedTurn(apperrors.KindTokenLimitExceeded, util.Message)
		resp.TokenUtilization = util.Percent
		return resp, nil
	}

	ts, err := s.schemas.TableSchema(ctx, formula.UserID, formula.DataTableID)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	if !ts.Meta.IsReady() {
		return nil, apperrors.ErrDataNotReady
	}

	userMsg := &models.FormulaMessage{
		FormulaID:   formula.ID,
		UserID:      formula.UserID,
		UserType:    models.UserTypeUser,
		MessageType: string(arcsql.ReplyText),
		Text:        userText,
	}
	if err := s.messageRepo.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}

	threadID, err := s.ensureThread(ctx, formula, ts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		metrics.AgentTurnsTotal.WithLabelValues(metrics.TurnThreadError).Inc()
		s.logger.Error("Failed to start agent thread",
			zap.String("formula_id", formula.ID.String()),
			zap.Error(err))
		resp := failedTurn(apperrors.KindTurnFailed, "could not start the agent conversation: "+failureMessage(err))
		resp.TokenUtilization = util.Percent
		resp.UserMessage = userMsg
		return resp, nil
	}

	var (
		text         = userText
		failures     []string
		inputTokens  int
		outputTokens int
	)
	output, attempts, err := retry.DoWithResult(ctx, s.retryCfg, func(attempt int) (*turnOutput, error) {
		reply, err := s.agent.SendMessage(ctx, threadID, text)
		if err != nil {
			// The thread is unchanged, so the same text is sent again.
			failures = append(failures, failureMessage(err))
			s.logger.Warn("Agent call failed",
				zap.String("formula_id", formula.ID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}
		inputTokens += reply.InputTokens
		outputTokens += reply.OutputTokens

		out, err := s.interpret(reply.Content, ts.Schema)
		if err != nil {
			reason := failureMessage(err)
			failures = append(failures, reason)
			text = prompts.BuildCorrectionMessage(reason)
			s.logger.Info("Agent reply rejected",
				zap.String("formula_id", formula.ID.String()),
				zap.Int("attempt", attempt),
				zap.String("reason", reason))
			return nil, &arcsql.InvalidReply{Reason: reason}
		}
		return out, nil
	})

	s.recordUsage(ctx, formula, inputTokens, outputTokens, err == nil)
	if attempts > 1 {
		metrics.AgentRetriesTotal.Add(float64(attempts - 1))
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.AgentTurnsTotal.WithLabelValues(metrics.TurnFailed).Inc()
		last := failureMessage(err)
		if len(failures) > 0 {
			last = failures[len(failures)-1]
		}
		resp := failedTurn(apperrors.KindTurnFailed,
			fmt.Sprintf("the agent did not produce a usable reply after %d attempts: %s", attempts, last))
		resp.Retries = attempts - 1
		resp.TokenUtilization = util.Percent
		resp.InputTokens = inputTokens
		resp.OutputTokens = outputTokens
		resp.UserMessage = userMsg
		return resp, nil
	}

	modelMsg, err := s.applyReply(ctx, formula, output, attempts, failures, inputTokens, outputTokens)
	if err != nil {
		return nil, err
	}
	metrics.AgentTurnsTotal.WithLabelValues(metrics.TurnSucceeded).Inc()

	return &AgentRunResponse{
		Success:          true,
		Message:          output.reply.Message,
		MessageType:      string(output.reply.Type),
		ArcSQL:           output.reply.ArcSQL,
		Statement:        output.statement,
		Retries:          attempts - 1,
		TokenUtilization: util.Percent,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		UserMessage:      userMsg,
		ModelMessage:     modelMsg,
	}, nil
}

// ensureThread returns the formula's thread, starting one on the first turn. The thread
// id is persisted only after the agent created it.
func (s *agentSession) ensureThread(ctx context.Context, formula *models.Formula, ts *TableSchema) (string, error) {
	if formula.ThreadState() == models.ThreadActive {
		return *formula.ThreadID, nil
	}

	systemContext := prompts.BuildAgentSystemContext(prompts.AgentContext{
		Schema:           ts.Schema,
		TableDescription: ts.Meta.Description,
		Aggregations:     SupportedAggregations(s.dialect),
	})

	threadID, _, err := retry.DoWithResult(ctx, s.retryCfg, func(int) (string, error) {
		return s.agent.StartThread(ctx, systemContext)
	})
	if err != nil {
		return "", err
	}

	if err := s.formulaRepo.SetThreadID(ctx, formula.UserID, formula.ID, threadID); err != nil {
		return "", apperrors.Wrap(apperrors.KindTurnFailed, "failed to save thread id", err)
	}
	formula.ThreadID = &threadID

	s.logger.Info("Started agent thread",
		zap.String("formula_id", formula.ID.String()),
		zap.String("thread_id", threadID))
	return threadID, nil
}

// interpret turns a raw reply into a translated query. Any error is a reason the
// agent can act on in a correction message.
func (s *agentSession) interpret(content string, schema *arcsql.Schema) (*turnOutput, error) {
	doc, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, &arcsql.InvalidReply{Reason: "the reply must be one JSON object"}
	}
	reply, err := arcsql.ParseReply(doc)
	if err != nil {
		return nil, err
	}
	if !reply.Actionable() {
		return &turnOutput{reply: reply}, nil
	}

	stmt, err := validateAndTranslate(reply.ArcSQL, schema, s.dialect, reply.Type == arcsql.ReplyKPI)
	if err != nil {
		return nil, err
	}
	return &turnOutput{reply: reply, statement: stmt}, nil
}

// applyReply persists the formula update for query replies, then the model message.
func (s *agentSession) applyReply(
	ctx context.Context,
	formula *models.Formula,
	output *turnOutput,
	attempts int,
	failures []string,
	inputTokens, outputTokens int,
) (*models.FormulaMessage, error) {
	reply := output.reply
	details := models.JSONBMap{
		"attempts": attempts,
		"dialect":  s.dialect.Name(),
	}
	if len(failures) > 0 {
		details["failures"] = failures
	}

	msg := &models.FormulaMessage{
		FormulaID:    formula.ID,
		UserID:       formula.UserID,
		UserType:     models.UserTypeModel,
		MessageType:  string(reply.Type),
		Text:         reply.Message,
		Retries:      attempts - 1,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}

	if output.statement != nil {
		details["sql"] = output.statement.SQL
		details["params"] = output.statement.Params

		findings := sql.CheckBoundParameters(output.statement.Params)
		if len(findings) > 0 {
			details["injection_findings"] = findings
			metrics.InjectionFindingsTotal.Add(float64(len(findings)))
			s.auditor.LogInjectionPattern(formula.UserID, formula.ID, audit.InjectionDetails{
				QueryName: reply.ArcSQL.Name,
				Findings:  findings,
			})
		}

		msg.Name = reply.ArcSQL.Name
		msg.Description = reply.ArcSQL.Description
		msg.RawArcSQL = reply.ArcSQL.Clone()
	}
	msg.RunDetails = details

	// A model message never describes a query the formula does not hold.
	if output.statement != nil {
		if err := s.applyTurn(ctx, formula, reply, output.statement); err != nil {
			return nil, err
		}
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("record model message: %w", err)
	}
	return msg, nil
}

func (s *agentSession) applyTurn(ctx context.Context, formula *models.Formula, reply *arcsql.Reply, stmt *arcsql.Statement) error {
	update := &models.FormulaTurnUpdate{
		Name:        firstNonEmpty(reply.ArcSQL.Name, formula.Name),
		Description: firstNonEmpty(reply.ArcSQL.Description, formula.Description),
		FormulaType: string(reply.Type),
		ArcSQL:      stmt.SQL,
		RawArcSQL:   reply.ArcSQL,
	}
	newVersion, err := s.formulaRepo.ApplyTurn(ctx, formula.UserID, formula.ID, formula.Version, update)
	if err != nil {
		return fmt.Errorf("apply turn: %w", err)
	}
	if newVersion != formula.Version+1 {
		metrics.AgentTurnConflicts.Inc()
		s.logger.Warn("Formula changed by a concurrent turn, last write wins",
			zap.String("formula_id", formula.ID.String()),
			zap.Int("expected_version", formula.Version+1),
			zap.Int("new_version", newVersion))
	}

	formula.Name = update.Name
	formula.Description = update.Description
	formula.FormulaType = update.FormulaType
	formula.ArcSQL = update.ArcSQL
	formula.RawArcSQL = update.RawArcSQL
	formula.Version = newVersion
	return nil
}

func (s *agentSession) recordUsage(ctx context.Context, formula *models.Formula, inputTokens, outputTokens int, succeeded bool) {
	metrics.AgentTokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	metrics.AgentTokensTotal.WithLabelValues("output").Add(float64(outputTokens))

	formulaID := formula.ID
	err := s.limiter.Record(ctx, &models.UsageRecord{
		UserID:       formula.UserID,
		FormulaID:    &formulaID,
		Model:        s.agent.Model(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Succeeded:    succeeded,
	})
	if err != nil {
		// The turn result stands; only the ledger entry is lost.
		s.logger.Error("Failed to record token usage",
			zap.String("formula_id", formula.ID.String()),
			zap.Int("input_tokens", inputTokens),
			zap.Int("output_tokens", outputTokens),
			zap.Error(err))
	}
}

// validateAndTranslate checks q against schema and renders it for dialect.
// translations are counted by result.
func validateAndTranslate(q *arcsql.ArcSQL, schema *arcsql.Schema, dialect arcsql.Dialect, kpi bool) (*arcsql.Statement, error) {
	err := arcsql.Validate(q, schema)
	var stmt *arcsql.Statement
	if err == nil {
		stmt, err = arcsql.Translate(q, schema, arcsql.Options{Dialect: dialect, SingleColumn: kpi})
	}
	if err != nil {
		result := string(apperrors.KindOf(err))
		if result == "" {
			result = string(apperrors.KindTranslationError)
		}
		metrics.TranslationsTotal.WithLabelValues(result).Inc()
		return nil, err
	}
	metrics.TranslationsTotal.WithLabelValues("ok").Inc()
	return stmt, nil
}

// SupportedAggregations lists the ArcSQL aggregations dialect can render.
func SupportedAggregations(dialect arcsql.Dialect) []arcsql.Aggregation {
	var out []arcsql.Aggregation
	for _, agg := range arcsql.Aggregations {
		if _, ok := dialect.Aggregate(agg, "x"); ok {
			out = append(out, agg)
		}
	}
	return out
}

func failedTurn(kind apperrors.Kind, message string) *AgentRunResponse {
	return &AgentRunResponse{ErrorKind: kind, Message: message}
}

// failureMessage is the user-facing text of a turn failure.
func failureMessage(err error) string {
	var invalid *arcsql.InvalidReply
	if errors.As(err, &invalid) {
		return invalid.Reason
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return llmErr.Message
	}
	if appErr, ok := apperrors.As(err); ok {
		msg := string(appErr.Kind) + ": " + appErr.Message
		if appErr.Field != "" {
			msg += " (" + appErr.Field + ")"
		}
		return msg
	}
	return err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
