package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matt-riley/splitz/internal/visitor"
)

const defaultRedisTTL = 30 * 24 * time.Hour

// RedisStore persists visitor state as JSON strings under
// splitz:visitor:<code>, each with a sliding TTL so idle visitors age out.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a [RedisStore] on an existing client. A ttl of zero
// uses the 30-day default.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(code string) string {
	return "splitz:visitor:" + code
}

// Save writes the visitor state, resetting the TTL.
func (s *RedisStore) Save(ctx context.Context, state visitor.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal visitor state: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(state.Code), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save visitor: %w", err)
	}

	return nil
}

// Load returns the stored visitor state, or ErrNotFound (wrapped).
func (s *RedisStore) Load(ctx context.Context, code string) (visitor.State, error) {
	payload, err := s.client.Get(ctx, redisKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return visitor.State{}, fmt.Errorf("load visitor %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return visitor.State{}, fmt.Errorf("load visitor: %w", err)
	}

	var state visitor.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return visitor.State{}, fmt.Errorf("decode visitor state: %w", err)
	}

	return state, nil
}

// Delete removes the visitor key. Absent keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, redisKey(code)).Err(); err != nil {
		return fmt.Errorf("delete visitor: %w", err)
	}
	return nil
}

// Close releases the client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
