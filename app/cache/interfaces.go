package cache

import (
	"context"
	"time"
)

// CooldownStore provides the atomic set-if-absent-with-TTL operation backing
// manual trigger rate limiting. Two concurrent triggers for the same key must
// never both succeed.
type CooldownStore interface {
	// SetIfAbsent writes the key with the given TTL if it does not exist.
	// Returns true when the key was written, false when it already existed.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Delete removes the key, releasing its cooldown window early.
	Delete(ctx context.Context, key string) error
}
