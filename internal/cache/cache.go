// Package cache provides the key-value-with-expiry abstraction backing the
// identity and reference-data resolver caches. The resolvers receive a Cache
// as a constructor dependency: tests and single-process deployments use the
// in-memory store, shared deployments use the Redis-backed store.
//
// Writes are last-write-wins; concurrent resolutions of the same key may
// perform duplicate upstream lookups, which is acceptable because lookups
// are idempotent.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is a byte-oriented key-value store with per-entry TTL.
type Cache interface {
	// Get returns the stored value and whether the key was present and
	// unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value under key for the given TTL. A non-positive TTL
	// is a no-op.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// GetJSON fetches a JSON payload from the cache and unmarshals it into dest.
// Returns false if the key is absent, expired, or holds a malformed payload.
func GetJSON(ctx context.Context, c Cache, key string, dest any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// Treat corrupt entries as a miss; the resolver will overwrite.
		return false, nil
	}
	return true, nil
}

// SetJSON marshals value and stores it under key with the provided TTL.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
