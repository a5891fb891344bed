package distcache

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/distcache/codec"
)

// Typed stores values of type V through a codec on top of a Cache.
// It adds serialization only; every store call goes through the byte API.
type Typed[V any] struct {
	cache *Cache
	codec codec.Codec[V]
}

func NewTyped[V any](c *Cache, cd codec.Codec[V]) (*Typed[V], error) {
	if c == nil {
		return nil, fmt.Errorf("distcache: cache is required")
	}
	if cd == nil {
		return nil, fmt.Errorf("distcache: codec is required")
	}
	return &Typed[V]{cache: c, codec: cd}, nil
}

// Get decodes the value under key. Undecodable payloads read as a miss.
func (t *Typed[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	raw, ok, err := t.cache.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := t.codec.Decode(raw)
	if err != nil {
		t.cache.policy.HandleDecode(key, err)
		return zero, false, nil
	}
	return v, true, nil
}

func (t *Typed[V]) Set(ctx context.Context, key string, value V, opts *EntryOptions) error {
	raw, err := t.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %v", ErrSerialization, key, err)
	}
	return t.cache.Set(ctx, key, raw, opts)
}

func (t *Typed[V]) Refresh(ctx context.Context, key string) error { return t.cache.Refresh(ctx, key) }
func (t *Typed[V]) Remove(ctx context.Context, key string) error  { return t.cache.Remove(ctx, key) }
