package services

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/repositories"
)

// Utilization is the result of a token utilization check.
type Utilization struct {
	LimitExceeded bool
	// Percent of the limit consumed within the window. May exceed 100.
	Percent float64
	Used    int
	Limit   int
	Message string
}

// UsageLimiter gates agent turns on the tokens a user consumed over a rolling window.
type UsageLimiter interface {
	CheckUtilization(ctx context.Context, userID string) (*Utilization, error)
	// Record appends one turn's token usage to the ledger.
	Record(ctx context.Context, rec *models.UsageRecord) error
}

type usageLimiter struct {
	usageRepo repositories.UsageRepository
	cfg       config.UsageConfig
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewUsageLimiter creates a UsageLimiter. A nil clock means the real clock.
func NewUsageLimiter(usageRepo repositories.UsageRepository, cfg config.UsageConfig, clock clockwork.Clock, logger *zap.Logger) UsageLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &usageLimiter{
		usageRepo: usageRepo,
		cfg:       cfg,
		clock:     clock,
		logger:    logger.Named("usage"),
	}
}

var _ UsageLimiter = (*usageLimiter)(nil)

func (l *usageLimiter) CheckUtilization(ctx context.Context, userID string) (*Utilization, error) {
	since := l.clock.Now().Add(-l.cfg.Window())
	used, err := l.usageRepo.SumTokensSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("sum token usage: %w", err)
	}

	u := &Utilization{Used: used, Limit: l.cfg.TokenLimit}
	if l.cfg.TokenLimit > 0 {
		u.Percent = float64(used) / float64(l.cfg.TokenLimit) * 100
	}
	if used >= l.cfg.TokenLimit {
		u.LimitExceeded = true
		u.Message = fmt.Sprintf("Token limit reached: %d of %d tokens used in the last %d days",
			used, l.cfg.TokenLimit, l.cfg.WindowDays)
		l.logger.Info("Token limit reached",
			zap.String("user_id", userID),
			zap.Int("used", used),
			zap.Int("limit", l.cfg.TokenLimit))
	}
	return u, nil
}

func (l *usageLimiter) Record(ctx context.Context, rec *models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.clock.Now()
	}
	return l.usageRepo.Record(ctx, rec)
}
