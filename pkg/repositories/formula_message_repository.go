package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arcwise-inc/arc-engine/pkg/database"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// FormulaMessageRepository provides append-only storage for formula turns.
type FormulaMessageRepository interface {
	Create(ctx context.Context, msg *models.FormulaMessage) error
	// ListByFormula returns messages ordered by creation time.
	ListByFormula(ctx context.Context, userID string, formulaID uuid.UUID) ([]*models.FormulaMessage, error)
}

type formulaMessageRepository struct{}

// NewFormulaMessageRepository creates a new FormulaMessageRepository.
func NewFormulaMessageRepository() FormulaMessageRepository {
	return &formulaMessageRepository{}
}

var _ FormulaMessageRepository = (*formulaMessageRepository)(nil)

func (r *formulaMessageRepository) Create(ctx context.Context, msg *models.FormulaMessage) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	if msg.RunDetails == nil {
		msg.RunDetails = models.JSONBMap{}
	}

	raw, err := marshalArcSQL(msg.RawArcSQL)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO formula_messages (
			id, formula_id, user_id, user_type, message_type, name, description, text,
			raw_arc_sql, retries, run_details, input_tokens, output_tokens, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = scope.Conn.Exec(ctx, sql,
		msg.ID, msg.FormulaID, msg.UserID, msg.UserType, msg.MessageType, msg.Name, msg.Description, msg.Text,
		raw, msg.Retries, msg.RunDetails, msg.InputTokens, msg.OutputTokens, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create formula message: %w", err)
	}
	return nil
}

func (r *formulaMessageRepository) ListByFormula(ctx context.Context, userID string, formulaID uuid.UUID) ([]*models.FormulaMessage, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	sql := `
		SELECT id, formula_id, user_id, user_type, message_type, name, description, text,
		       raw_arc_sql, retries, run_details, input_tokens, output_tokens, created_at
		FROM formula_messages
		WHERE user_id = $1 AND formula_id = $2
		ORDER BY created_at, id`

	rows, err := scope.Conn.Query(ctx, sql, userID, formulaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list formula messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.FormulaMessage, 0)
	for rows.Next() {
		msg, err := scanFormulaMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan formula message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating formula messages: %w", err)
	}
	return messages, nil
}

func scanFormulaMessage(row pgx.Row) (*models.FormulaMessage, error) {
	var m models.FormulaMessage
	var raw []byte
	err := row.Scan(&m.ID, &m.FormulaID, &m.UserID, &m.UserType, &m.MessageType, &m.Name, &m.Description, &m.Text,
		&raw, &m.Retries, &m.RunDetails, &m.InputTokens, &m.OutputTokens, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if m.RawArcSQL, err = unmarshalArcSQL(raw); err != nil {
		return nil, err
	}
	return &m, nil
}
