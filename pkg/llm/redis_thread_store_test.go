//go:build integration

package llm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/testhelpers"
)

func TestRedisThreadStore(t *testing.T) {
	client := testhelpers.GetRedis(t)
	store := NewRedisThreadStore(client, "test:thread:", time.Hour)
	ctx := context.Background()
	threadID := uuid.NewString()

	require.NoError(t, store.Append(ctx, threadID, models.ThreadMessage{Role: RoleSystem, Content: "schema"}))
	require.NoError(t, store.Append(ctx, threadID,
		models.ThreadMessage{Role: RoleUser, Content: "total units"},
		models.ThreadMessage{Role: RoleAssistant, Content: `{"messageType":"text"}`}))
	require.NoError(t, store.Append(ctx, threadID))

	msgs, err := store.Load(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, `{"messageType":"text"}`, msgs[2].Content)

	ttl, err := client.TTL(ctx, "test:thread:"+threadID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)

	missing, err := store.Load(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, missing)
}
