// Package distcache implements a distributed-cache contract (Get, Set, Refresh,
// Remove) over a remote key-value store, with sliding-expiration semantics mapped
// onto the store's per-operation TTL.
//
// Components:
//   - store.Store: remote capability (insert, upsert, get, touch, remove)
//     with implementations under store/ (Redis, SQL, Bolt, BigCache, Ristretto)
//     and decorators (breaker, otelstore).
//   - Cache: byte-valued adapter; Typed[V] adds a codec on top.
//   - outputcache: insert-if-absent response cache under sanitized keys.
//   - ErrorPolicy: log always, surface store failures only when configured.
//
// Lifetime resolution (Set, Refresh):
//
//	per-call SlidingExpiration > 0  -> used
//	else Options.DefaultLifetime > 0 -> used
//	else Infinite (0, never expires)
//
// Usage:
//
//	c, _ := distcache.New(distcache.Options{Store: st, DefaultLifetime: 10 * time.Minute})
//	_ = c.Set(ctx, "greeting", []byte("hi"), &distcache.EntryOptions{SlidingExpiration: 30 * time.Second})
//	v, ok, err := c.Get(ctx, "greeting")
package distcache
