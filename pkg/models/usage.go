package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one ledger entry of tokens consumed by an agent turn.
type UsageRecord struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	FormulaID    *uuid.UUID `json:"formula_id,omitempty"`
	Model        string     `json:"model"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	Succeeded    bool       `json:"succeeded"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TotalTokens is the sum of input and output tokens.
func (u *UsageRecord) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// ThreadMessage is one entry of a stored agent conversation.
type ThreadMessage struct {
	Role      string    `json:"role"` // system, user, assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
