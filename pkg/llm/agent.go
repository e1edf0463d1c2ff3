// Package llm talks to the model providers behind the analysis agent.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// Thread message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AnalysisAgent is the conversational model contract the agent session depends on.
type AnalysisAgent interface {
	// StartThread opens a conversation primed with systemContext and returns its id.
	StartThread(ctx context.Context, systemContext string) (string, error)
	// SendMessage sends text on an existing thread and returns the raw model reply.
	SendMessage(ctx context.Context, threadID string, text string) (*AgentReply, error)
	// Model names the model replies come from.
	Model() string
}

// AgentReply is one raw model reply with its token usage.
type AgentReply struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// ThreadStore persists conversation history between turns.
type ThreadStore interface {
	Append(ctx context.Context, threadID string, msgs ...models.ThreadMessage) error
	Load(ctx context.Context, threadID string) ([]models.ThreadMessage, error)
}

// completer sends a full conversation to a provider and returns the next reply.
// history excludes the system message, which is passed separately.
type completer interface {
	complete(ctx context.Context, system string, history []models.ThreadMessage) (*AgentReply, error)
	provider() string
	model() string
}

// threadAgent keeps provider calls stateless by replaying the stored thread on each message.
type threadAgent struct {
	completer completer
	store     ThreadStore
	breaker   *CircuitBreaker
	timeout   time.Duration
	logger    *zap.Logger
}

var _ AnalysisAgent = (*threadAgent)(nil)

// NewAnalysisAgent builds the agent for cfg.Provider with threads kept in store.
func NewAnalysisAgent(cfg *config.AgentConfig, store ThreadStore, logger *zap.Logger) (AnalysisAgent, error) {
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("agent requires AGENT_API_KEY or AGENT_ENDPOINT")
	}

	var c completer
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c = newOpenAICompleter(cfg)
	case config.ProviderAnthropic:
		c = newAnthropicCompleter(cfg)
	default:
		return nil, fmt.Errorf("unsupported agent provider: %s", cfg.Provider)
	}

	return newThreadAgent(c, store, NewCircuitBreaker(DefaultCircuitBreakerConfig()), cfg.Timeout, logger), nil
}

func newThreadAgent(c completer, store ThreadStore, breaker *CircuitBreaker, timeout time.Duration, logger *zap.Logger) *threadAgent {
	return &threadAgent{
		completer: c,
		store:     store,
		breaker:   breaker,
		timeout:   timeout,
		logger:    logger.Named("agent").With(zap.String("provider", c.provider())),
	}
}

func (a *threadAgent) Model() string { return a.completer.model() }

func (a *threadAgent) StartThread(ctx context.Context, systemContext string) (string, error) {
	threadID := uuid.NewString()
	err := a.store.Append(ctx, threadID, models.ThreadMessage{
		Role:      RoleSystem,
		Content:   systemContext,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", NewError(ErrorTypeThread, "failed to start thread", true, err)
	}

	a.logger.Debug("Started thread", zap.String("thread_id", threadID), zap.Int("context_len", len(systemContext)))
	return threadID, nil
}

func (a *threadAgent) SendMessage(ctx context.Context, threadID string, text string) (*AgentReply, error) {
	stored, err := a.store.Load(ctx, threadID)
	if err != nil {
		return nil, NewError(ErrorTypeThread, "failed to load thread", true, err)
	}
	if len(stored) == 0 {
		return nil, NewError(ErrorTypeThread, "thread "+threadID+" not found", false, nil)
	}

	var system string
	history := make([]models.ThreadMessage, 0, len(stored))
	for _, m := range stored {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		history = append(history, m)
	}
	userMsg := models.ThreadMessage{Role: RoleUser, Content: text, CreatedAt: time.Now().UTC()}
	history = append(history, userMsg)

	if err := a.breaker.Allow(); err != nil {
		return nil, err
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := a.completer.complete(callCtx, system, history)
	if err != nil {
		a.breaker.RecordFailure()
		classified := ClassifyError(a.completer.provider(), err)
		a.logger.Error("Model call failed",
			zap.String("thread_id", threadID),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("type", string(classified.Type)),
			zap.Bool("retryable", classified.Retryable),
			zap.Error(err))
		return nil, classified
	}
	a.breaker.RecordSuccess()

	a.logger.Info("Model call completed",
		zap.String("thread_id", threadID),
		zap.String("model", a.completer.model()),
		zap.Int("input_tokens", reply.InputTokens),
		zap.Int("output_tokens", reply.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	err = a.store.Append(ctx, threadID, userMsg, models.ThreadMessage{
		Role:      RoleAssistant,
		Content:   reply.Content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		// The reply is still usable; the next turn just lacks this exchange.
		a.logger.Warn("Failed to store thread messages", zap.String("thread_id", threadID), zap.Error(err))
	}
	return reply, nil
}
