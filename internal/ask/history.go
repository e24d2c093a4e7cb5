package ask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// History stores the conversation turns a stateful engine feeds back into
// the model. Implementations are last-write-wins: concurrent Ask calls may
// interleave their appends and the engine does not serialize them.
type History interface {
	Messages(ctx context.Context) ([]Message, error)
	Append(ctx context.Context, messages ...Message) error
	Clear(ctx context.Context) error
}

// MemoryHistory keeps turns in process memory. It is unsynchronized on
// purpose: a CLI session has one caller, and the server treats history as
// advisory context rather than a consistent log.
type MemoryHistory struct {
	messages []Message
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Messages(_ context.Context) ([]Message, error) {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out, nil
}

func (h *MemoryHistory) Append(_ context.Context, messages ...Message) error {
	h.messages = append(h.messages, messages...)
	return nil
}

func (h *MemoryHistory) Clear(_ context.Context) error {
	h.messages = nil
	return nil
}

// RedisHistory keeps turns in a Redis list so conversation state survives
// process restarts. Each entry is one JSON-encoded Message; the key TTL is
// refreshed on every append.
type RedisHistory struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisHistory(client redis.Cmdable, key string, ttl time.Duration) *RedisHistory {
	if key == "" {
		key = "askdb:history"
	}
	return &RedisHistory{client: client, key: key, ttl: ttl}
}

func (h *RedisHistory) Messages(ctx context.Context) ([]Message, error) {
	rows, err := h.client.LRange(ctx, h.key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	messages := make([]Message, 0, len(rows))
	for i, row := range rows {
		var message Message
		if err := json.Unmarshal([]byte(row), &message); err != nil {
			return nil, fmt.Errorf("decode history entry %d: %w", i, err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (h *RedisHistory) Append(ctx context.Context, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, message := range messages {
		encoded, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("encode history entry: %w", err)
		}
		values = append(values, encoded)
	}
	if err := h.client.RPush(ctx, h.key, values...).Err(); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if h.ttl > 0 {
		if err := h.client.Expire(ctx, h.key, h.ttl).Err(); err != nil {
			return fmt.Errorf("refresh history ttl: %w", err)
		}
	}
	return nil
}

func (h *RedisHistory) Clear(ctx context.Context) error {
	if err := h.client.Del(ctx, h.key).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

var _ History = (*MemoryHistory)(nil)
var _ History = (*RedisHistory)(nil)
