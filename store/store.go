// Package store defines the storage abstraction used by typedcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// Important: the keyspace "<namespace>:" is owned by typedcache. External code
// MUST NOT write values under a cache's prefix. Foreign writes may be treated as
// corruption by strict envelope validation and deleted.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs.
// Must be safe for concurrent use and must be byte-for-byte
// transparent: Get must return exactly the []byte previously passed to Set for
// the same key. Implementations must not prepend/append metadata, transcode, or
// otherwise mutate values.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Non-positive TTLs mean "no expiry". Returns ok=false when the store
	// rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Flush removes every key under prefix. In-process stores without key
	// iteration may clear more than the prefix; they document that.
	Flush(ctx context.Context, prefix string) error

	// Ping reports whether the store is reachable. In-process stores
	// always succeed.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
