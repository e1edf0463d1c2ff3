package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// anthropicCompleter calls the Anthropic messages API.
type anthropicCompleter struct {
	client      *anthropic.Client
	modelName   string
	temperature float32
	maxTokens   int
}

func newAnthropicCompleter(cfg *config.AgentConfig) *anthropicCompleter {
	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &anthropicCompleter{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		modelName:   cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   maxTokens,
	}
}

func (c *anthropicCompleter) provider() string { return config.ProviderAnthropic }

func (c *anthropicCompleter) model() string { return c.modelName }

func (c *anthropicCompleter) complete(ctx context.Context, system string, history []models.ThreadMessage) (*AgentReply, error) {
	messages := make([]anthropic.Message, 0, len(history))
	for _, m := range history {
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantTextMessage(m.Content))
		} else {
			messages = append(messages, anthropic.NewUserTextMessage(m.Content))
		}
	}

	temperature := c.temperature
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.modelName),
		System:      system,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, NewError(ErrorTypeEndpoint, "no text content in response", true, errors.New("empty content"))
	}

	return &AgentReply{
		Content:      text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
