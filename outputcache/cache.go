package outputcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/codec"
	"github.com/unkn0wn-root/distcache/internal/util"
	"github.com/unkn0wn-root/distcache/store"
)

type Options[V any] struct {
	Store  store.Store    // required
	Codec  codec.Codec[V] // required
	Prefix string         // required; see Prefix()

	ThrowOnStoreError bool
	Logger            distcache.Logger // if nil, NopLogger is used
	Hooks             distcache.Hooks  // if nil, NopHooks is used

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

type Cache[V any] struct {
	store  store.Store
	codec  codec.Codec[V]
	prefix string
	policy distcache.ErrorPolicy
	now    func() time.Time
}

func New[V any](opts Options[V]) (*Cache[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("outputcache: store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("outputcache: codec is required")
	}
	if opts.Prefix == "" {
		return nil, fmt.Errorf("outputcache: prefix is required")
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		store:  opts.Store,
		codec:  opts.Codec,
		prefix: opts.Prefix,
		policy: distcache.NewErrorPolicy(opts.ThrowOnStoreError, opts.Logger, opts.Hooks),
		now:    now,
	}, nil
}

// Prefix builds the tenant namespace from the hosting site name and its
// application path: spaces in the site name become dashes.
//
//	Prefix("Default Web Site", "/shop") == "Default-Web-Site+/shopcache-"
func Prefix(siteName, appPath string) string {
	return strings.ReplaceAll(siteName, " ", "-") + "+" + appPath + "cache-"
}

// SanitizeKey returns the store key used for rawKey.
func (c *Cache[V]) SanitizeKey(rawKey string) string {
	return util.SanitizeKey(c.prefix, rawKey)
}

// Add stores entry under rawKey unless a value is already there, and returns
// whichever value is authoritative afterwards: entry when it was inserted (or
// written by the race fallback), the stored value otherwise.
//
// Store failures other than "exists" are passed to the error policy and entry
// is returned without a second write.
func (c *Cache[V]) Add(ctx context.Context, rawKey string, entry V, utcExpiry time.Time) (V, error) {
	if rawKey == "" {
		return entry, fmt.Errorf("%w: key is required", distcache.ErrInvalidArgument)
	}
	key := c.SanitizeKey(rawKey)
	payload, err := c.encode(key, entry)
	if err != nil {
		return entry, err
	}
	ttl := c.ttl(utcExpiry)

	err = c.store.Insert(ctx, key, payload, ttl)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, store.ErrKeyExists) {
		return entry, c.policy.HandleStore(ctx, distcache.OpInsert, key, err)
	}

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		return entry, c.policy.HandleStore(ctx, distcache.OpGet, key, err)
	}
	if v, ok := c.decode(key, raw, found); ok {
		return v, nil
	}

	// Taken on insert, gone on read: overwrite once. Upsert cannot fail with
	// "exists", so this never needs to loop.
	c.policy.HandleRace(key)
	if err := c.store.Upsert(ctx, key, payload, ttl); err != nil {
		return entry, c.policy.HandleStore(ctx, distcache.OpUpsert, key, err)
	}
	return entry, nil
}

// Get returns the value under rawKey. Missing, empty or undecodable payloads
// are reported as absent.
func (c *Cache[V]) Get(ctx context.Context, rawKey string) (V, bool, error) {
	var zero V
	if rawKey == "" {
		return zero, false, fmt.Errorf("%w: key is required", distcache.ErrInvalidArgument)
	}
	key := c.SanitizeKey(rawKey)
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, false, c.policy.HandleStore(ctx, distcache.OpGet, key, err)
	}
	v, ok := c.decode(key, raw, found)
	return v, ok, nil
}

// Set overwrites rawKey unconditionally.
func (c *Cache[V]) Set(ctx context.Context, rawKey string, entry V, utcExpiry time.Time) error {
	if rawKey == "" {
		return fmt.Errorf("%w: key is required", distcache.ErrInvalidArgument)
	}
	key := c.SanitizeKey(rawKey)
	payload, err := c.encode(key, entry)
	if err != nil {
		return err
	}
	err = c.store.Upsert(ctx, key, payload, c.ttl(utcExpiry))
	return c.policy.HandleStore(ctx, distcache.OpUpsert, key, err)
}

// Remove deletes rawKey. A missing key is not an error.
func (c *Cache[V]) Remove(ctx context.Context, rawKey string) error {
	if rawKey == "" {
		return fmt.Errorf("%w: key is required", distcache.ErrInvalidArgument)
	}
	key := c.SanitizeKey(rawKey)
	err := c.store.Remove(ctx, key)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	return c.policy.HandleStore(ctx, distcache.OpRemove, key, err)
}

func (c *Cache[V]) ttl(utcExpiry time.Time) time.Duration {
	return distcache.LifetimeUntil(utcExpiry, c.now())
}

func (c *Cache[V]) encode(key string, v V) ([]byte, error) {
	b, err := c.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %q: %v", distcache.ErrSerialization, key, err)
	}
	// an empty payload reads back as a miss, so it can never be stored
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: entry for %q encodes to an empty payload", distcache.ErrInvalidArgument, key)
	}
	return b, nil
}

func (c *Cache[V]) decode(key string, raw []byte, found bool) (V, bool) {
	var zero V
	if !found || len(raw) == 0 {
		return zero, false
	}
	v, err := c.codec.Decode(raw)
	if err != nil {
		c.policy.HandleDecode(key, err)
		return zero, false
	}
	return v, true
}
