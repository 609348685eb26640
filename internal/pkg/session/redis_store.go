// internal/pkg/session/redis_store.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(jti string) string {
	return fmt.Sprintf("session:revoked:%s", jti)
}

// Put stores the revocation until the token would have expired anyway.
func (s *RedisStore) Put(ctx context.Context, r *Revocation) error {
	ttl := time.Until(r.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal revocation: %w", err)
	}
	if err := s.client.Set(ctx, s.key(r.JTI), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revocation in redis: %w", err)
	}
	return nil
}

// Get returns nil, nil when the token was never revoked.
func (s *RedisStore) Get(ctx context.Context, jti string) (*Revocation, error) {
	data, err := s.client.Get(ctx, s.key(jti)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read revocation: %w", err)
	}

	var r Revocation
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revocation: %w", err)
	}
	return &r, nil
}
