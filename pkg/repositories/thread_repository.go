package repositories

import (
	"context"
	"fmt"

	"github.com/arcwise-inc/arc-engine/pkg/database"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// ThreadRepository stores agent conversation history in PostgreSQL.
// It satisfies llm.ThreadStore when Redis is not configured.
type ThreadRepository interface {
	Append(ctx context.Context, threadID string, msgs ...models.ThreadMessage) error
	Load(ctx context.Context, threadID string) ([]models.ThreadMessage, error)
}

type threadRepository struct{}

// NewThreadRepository creates a new ThreadRepository.
func NewThreadRepository() ThreadRepository {
	return &threadRepository{}
}

var _ ThreadRepository = (*threadRepository)(nil)

func (r *threadRepository) Append(ctx context.Context, threadID string, msgs ...models.ThreadMessage) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	for _, m := range msgs {
		_, err := scope.Conn.Exec(ctx, `
			INSERT INTO agent_thread_messages (thread_id, role, content)
			VALUES ($1, $2, $3)`, threadID, m.Role, m.Content)
		if err != nil {
			return fmt.Errorf("failed to append thread message: %w", err)
		}
	}
	return nil
}

func (r *threadRepository) Load(ctx context.Context, threadID string) ([]models.ThreadMessage, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT role, content, created_at
		FROM agent_thread_messages
		WHERE thread_id = $1
		ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	defer rows.Close()

	msgs := make([]models.ThreadMessage, 0)
	for rows.Next() {
		var m models.ThreadMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread messages: %w", err)
	}
	return msgs, nil
}
