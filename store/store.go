// Package store defines the remote key-value capability used by distcache.
//
// A Store is the only shared mutable resource the cache adapters touch. All
// coordination between concurrent callers (atomic insert-if-absent, ordering of
// writes to one key) is the store's job. Implementations MUST be byte-for-byte
// transparent: Get returns exactly the []byte previously written for a key.
//
// TTL convention for every write and Touch: ttl <= 0 means the entry never
// expires; a positive ttl is measured from the moment the store applies the call.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrKeyExists is returned by Insert when the key is already present.
	ErrKeyExists = errors.New("store: key exists")
	// ErrKeyNotFound is returned by Touch and Remove when the key is absent.
	ErrKeyNotFound = errors.New("store: key not found")
	// ErrUnavailable is returned when a store refuses calls without trying them
	// (open circuit, closed handle).
	ErrUnavailable = errors.New("store: unavailable")
	// ErrRejected is returned when a write was refused under memory pressure.
	ErrRejected = errors.New("store: write rejected")
)

// Store is a byte store with per-operation TTLs.
// Must be safe for concurrent use and linearizable per key.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Insert stores value only if key is absent. Returns ErrKeyExists otherwise.
	Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Upsert stores value unconditionally.
	Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Touch re-applies ttl to an existing key without changing its value.
	// Returns ErrKeyNotFound when the key is absent.
	Touch(ctx context.Context, key string, ttl time.Duration) error

	// Remove deletes key. Returns ErrKeyNotFound when the key is absent.
	Remove(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
