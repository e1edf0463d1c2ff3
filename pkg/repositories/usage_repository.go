package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arcwise-inc/arc-engine/pkg/database"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// UsageRepository is the token usage ledger.
type UsageRepository interface {
	Record(ctx context.Context, rec *models.UsageRecord) error
	// SumTokensSince totals input and output tokens recorded for the user at or after since.
	SumTokensSince(ctx context.Context, userID string, since time.Time) (int, error)
}

type usageRepository struct{}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository() UsageRepository {
	return &usageRepository{}
}

var _ UsageRepository = (*usageRepository)(nil)

func (r *usageRepository) Record(ctx context.Context, rec *models.UsageRecord) error {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return errNoScope
	}

	rec.ID = uuid.New()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO usage_records (id, user_id, formula_id, model, input_tokens, output_tokens, succeeded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, rec.FormulaID, rec.Model, rec.InputTokens, rec.OutputTokens, rec.Succeeded, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

func (r *usageRepository) SumTokensSince(ctx context.Context, userID string, since time.Time) (int, error) {
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		return 0, errNoScope
	}

	var total int64
	err := scope.Conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return int(total), nil
}
