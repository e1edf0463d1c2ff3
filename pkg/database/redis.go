package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arcwise-inc/arc-engine/pkg/config"
)

// NewRedisClient creates a Redis client for the conversation thread store.
// Returns nil if Redis is not configured.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	return client, nil
}
