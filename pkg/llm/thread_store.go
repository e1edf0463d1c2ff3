package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcwise-inc/arc-engine/pkg/models"
)

// RedisThreadStore keeps each thread as a Redis list of JSON messages. The TTL is
// refreshed on every append, so idle threads expire.
type RedisThreadStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ThreadStore = (*RedisThreadStore)(nil)

// NewRedisThreadStore creates a store writing keys as prefix+threadID.
func NewRedisThreadStore(client *redis.Client, prefix string, ttl time.Duration) *RedisThreadStore {
	return &RedisThreadStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisThreadStore) key(threadID string) string {
	return s.prefix + threadID
}

func (s *RedisThreadStore) Append(ctx context.Context, threadID string, msgs ...models.ThreadMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, len(msgs))
	for i, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode thread message: %w", err)
		}
		values[i] = data
	}

	key := s.key(threadID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to thread %s: %w", threadID, err)
	}
	return nil
}

func (s *RedisThreadStore) Load(ctx context.Context, threadID string) ([]models.ThreadMessage, error) {
	raw, err := s.client.LRange(ctx, s.key(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}

	msgs := make([]models.ThreadMessage, 0, len(raw))
	for _, r := range raw {
		var m models.ThreadMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("failed to decode thread message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// MemoryThreadStore keeps threads in process memory. Used by the offline CLI and tests.
type MemoryThreadStore struct {
	mu      sync.Mutex
	threads map[string][]models.ThreadMessage
}

var _ ThreadStore = (*MemoryThreadStore)(nil)

func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string][]models.ThreadMessage)}
}

func (s *MemoryThreadStore) Append(_ context.Context, threadID string, msgs ...models.ThreadMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], msgs...)
	return nil
}

func (s *MemoryThreadStore) Load(_ context.Context, threadID string) ([]models.ThreadMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ThreadMessage, len(s.threads[threadID]))
	copy(out, s.threads[threadID])
	return out, nil
}
