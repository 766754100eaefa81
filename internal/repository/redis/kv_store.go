package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/admin-iam/internal/core/port"
)

// KeyValueStore implements port.KeyValueStore on a Redis client. It backs
// both the role permission cache and the refresh-token ledger.
type KeyValueStore struct {
	client red.UniversalClient
}

// NewKeyValueStore wraps client.
func NewKeyValueStore(client red.UniversalClient) *KeyValueStore {
	return &KeyValueStore{client: client}
}

// Get returns the value at key and whether it exists.
func (s *KeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value at key; ttl 0 keeps it until deleted.
func (s *KeyValueStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("redis set %s: negative ttl", key)
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (s *KeyValueStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SetIfNotExists issues SET NX with ttl and reports whether this call wrote the key.
func (s *KeyValueStore) SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("redis setnx %s: ttl must be positive", key)
	}
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

var _ port.KeyValueStore = (*KeyValueStore)(nil)
