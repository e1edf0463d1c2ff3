package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockAgent is a configurable AnalysisAgent for tests. Set the func fields to control
// behavior; calls are counted.
type MockAgent struct {
	// StartThreadFunc is called by StartThread. If nil, a sequential thread id is returned.
	StartThreadFunc func(ctx context.Context, systemContext string) (string, error)

	// SendMessageFunc is called by SendMessage. If nil, an empty reply is returned.
	// attempt counts SendMessage calls from zero.
	SendMessageFunc func(ctx context.Context, threadID string, text string, attempt int) (*AgentReply, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	mu               sync.Mutex
	StartThreadCalls int
	SendMessageCalls int
	SentTexts        []string
}

var _ AnalysisAgent = (*MockAgent)(nil)

// NewMockAgent creates a mock with defaults.
func NewMockAgent() *MockAgent {
	return &MockAgent{ModelName: "mock-model"}
}

func (m *MockAgent) StartThread(ctx context.Context, systemContext string) (string, error) {
	m.mu.Lock()
	m.StartThreadCalls++
	n := m.StartThreadCalls
	m.mu.Unlock()

	if m.StartThreadFunc != nil {
		return m.StartThreadFunc(ctx, systemContext)
	}
	return fmt.Sprintf("thread-%d", n), nil
}

func (m *MockAgent) SendMessage(ctx context.Context, threadID string, text string) (*AgentReply, error) {
	m.mu.Lock()
	attempt := m.SendMessageCalls
	m.SendMessageCalls++
	m.SentTexts = append(m.SentTexts, text)
	m.mu.Unlock()

	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, threadID, text, attempt)
	}
	return &AgentReply{}, nil
}

func (m *MockAgent) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}
