package distcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/distcache/store"
)

// DistributedCache is the generic key/value cache contract over a remote store.
// Values are opaque bytes; see Typed for codec-backed values.
type DistributedCache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, opts *EntryOptions) error
	Refresh(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error

	// Async forms: same semantics, the caller's goroutine never waits on the store.
	GetAsync(ctx context.Context, key string) *Future[[]byte]
	SetAsync(ctx context.Context, key string, value []byte, opts *EntryOptions) *Future[struct{}]
	RefreshAsync(ctx context.Context, key string) *Future[struct{}]
	RemoveAsync(ctx context.Context, key string) *Future[struct{}]
}

// EntryOptions are per-call write options. Only sliding expiration is supported.
type EntryOptions struct {
	// SlidingExpiration overrides Options.DefaultLifetime when > 0.
	SlidingExpiration time.Duration
}

// Options configure a Cache. Only Store is required.
type Options struct {
	// Required. The cache does not own the handle and never closes it.
	Store store.Store

	DefaultLifetime   time.Duration // 0 => Infinite
	ThrowOnStoreError bool          // default false: log, notify hooks, degrade
	Logger            Logger        // if nil, NopLogger is used
	Hooks             Hooks         // if nil, NopHooks is used
}

func New(opts Options) (*Cache, error) {
	return newCache(opts)
}
