package distcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/distcache/store"
)

// Cache implements DistributedCache on top of a store.Store.
// It keeps no local state besides its configuration.
type Cache struct {
	store           store.Store
	defaultLifetime time.Duration
	policy          ErrorPolicy
}

var _ DistributedCache = (*Cache)(nil)

func newCache(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("distcache: store is required")
	}
	if opts.DefaultLifetime < 0 {
		return nil, fmt.Errorf("distcache: negative default lifetime %v", opts.DefaultLifetime)
	}
	return &Cache{
		store:           opts.Store,
		defaultLifetime: opts.DefaultLifetime,
		policy:          NewErrorPolicy(opts.ThrowOnStoreError, opts.Logger, opts.Hooks),
	}, nil
}

// Get reads key without touching its expiry. A missing key is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, invalidArg("key")
	}
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, c.policy.HandleStore(ctx, OpGet, key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

// Set overwrites key unconditionally. The lifetime is opts.SlidingExpiration,
// else the default lifetime, else Infinite.
func (c *Cache) Set(ctx context.Context, key string, value []byte, opts *EntryOptions) error {
	if key == "" {
		return invalidArg("key")
	}
	if len(value) == 0 {
		return invalidArg("value")
	}
	err := c.store.Upsert(ctx, key, value, c.lifetime(opts))
	return c.policy.HandleStore(ctx, OpUpsert, key, err)
}

// Refresh re-applies the default lifetime to an existing key ("touch").
// A missing key is reported through the error policy: best effort, not a
// guarantee of existence.
func (c *Cache) Refresh(ctx context.Context, key string) error {
	if key == "" {
		return invalidArg("key")
	}
	err := c.store.Touch(ctx, key, c.lifetime(nil))
	return c.policy.HandleStore(ctx, OpTouch, key, err)
}

// Remove deletes key. Removing a missing key succeeds.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if key == "" {
		return invalidArg("key")
	}
	err := c.store.Remove(ctx, key)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	return c.policy.HandleStore(ctx, OpRemove, key, err)
}

func (c *Cache) lifetime(opts *EntryOptions) time.Duration {
	var override time.Duration
	if opts != nil {
		override = opts.SlidingExpiration
	}
	return Lifetime(override, c.defaultLifetime)
}
