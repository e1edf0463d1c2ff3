package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// openAICompleter calls an OpenAI-compatible chat completions endpoint in JSON mode.
type openAICompleter struct {
	client      *openai.Client
	modelName   string
	temperature float32
	maxTokens   int
}

func newOpenAICompleter(cfg *config.AgentConfig) *openAICompleter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	return &openAICompleter{
		client:      openai.NewClientWithConfig(clientConfig),
		modelName:   cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *openAICompleter) provider() string { return config.ProviderOpenAI }

func (c *openAICompleter) model() string { return c.modelName }

func (c *openAICompleter) complete(ctx context.Context, system string, history []models.ThreadMessage) (*AgentReply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeEndpoint, "no choices in response", true, errors.New("empty choices"))
	}

	return &AgentReply{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
