package services

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/models"
)

func TestUsageLimiter_CheckUtilization(t *testing.T) {
	tests := []struct {
		name         string
		used         int
		wantExceeded bool
		wantPercent  float64
	}{
		{"no usage", 0, false, 0},
		{"under limit", 250, false, 25},
		{"at limit", 1000, true, 100},
		{"over limit", 1500, true, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockUsageRepo{used: tt.used}
			limiter := NewUsageLimiter(repo, config.UsageConfig{TokenLimit: 1000, WindowDays: 30}, clockwork.NewFakeClock(), zap.NewNop())

			u, err := limiter.CheckUtilization(context.Background(), testUserID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExceeded, u.LimitExceeded)
			assert.InDelta(t, tt.wantPercent, u.Percent, 0.001)
			if tt.wantExceeded {
				assert.Contains(t, u.Message, "30 days")
			} else {
				assert.Empty(t, u.Message)
			}
		})
	}
}

func TestUsageLimiter_RollingWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC))
	repo := &mockUsageRepo{}
	limiter := NewUsageLimiter(repo, config.UsageConfig{TokenLimit: 1000, WindowDays: 7}, clock, zap.NewNop())

	_, err := limiter.CheckUtilization(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 24, 12, 0, 0, 0, time.UTC), repo.lastSince)

	clock.Advance(24 * time.Hour)
	_, err = limiter.CheckUtilization(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 25, 12, 0, 0, 0, time.UTC), repo.lastSince)
}

func TestUsageLimiter_RecordStampsTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	repo := &mockUsageRepo{}
	limiter := NewUsageLimiter(repo, config.UsageConfig{TokenLimit: 1000, WindowDays: 30}, clockwork.NewFakeClockAt(now), zap.NewNop())

	require.NoError(t, limiter.Record(context.Background(), &models.UsageRecord{UserID: testUserID, InputTokens: 10}))
	require.Len(t, repo.records, 1)
	assert.Equal(t, now, repo.records[0].CreatedAt)
}
