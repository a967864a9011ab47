// Package kvstore defines the key-value store port used for conversation
// memory, lexical index caching, and live usage counters.
package kvstore

import (
	"context"
	"time"
)

// Store is the minimal key-value surface the services need. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key with the given TTL. A zero TTL means no
	// expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, keys ...string) error
	// IncrBy atomically adds delta to the integer at key, creating it at
	// zero when absent, and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	// Expire resets the TTL on key. Absent keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
