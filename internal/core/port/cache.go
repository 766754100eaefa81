package port

import (
	"context"
	"time"
)

// KeyValueStore is the shared key-value store backing the permission cache and
// the refresh-token ledger.
type KeyValueStore interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value; a zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// SetIfNotExists stores value only when key is absent and reports whether it did.
	SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}
