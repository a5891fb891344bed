// Package storetest provides an in-memory store.Store double for tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/distcache/store"
)

type memEntry struct {
	v   []byte
	ttl time.Duration
	exp time.Time // zero => no TTL
}

// Call is one recorded store invocation.
type Call struct {
	Op  string
	Key string
	TTL time.Duration
}

// Mem is a map-backed store with a controllable clock, call recording and
// failure injection. Safe for concurrent use.
type Mem struct {
	mu    sync.Mutex
	m     map[string]memEntry
	now   time.Time
	calls []Call

	// Fail is consulted before every call; a non-nil result is returned as the
	// store error and the data is left untouched. Fail runs under the store
	// lock and must not call back into Mem.
	Fail func(op, key string) error
}

var _ store.Store = (*Mem)(nil)

func New() *Mem {
	return &Mem{m: make(map[string]memEntry), now: time.Unix(1_700_000_000, 0)}
}

// Advance moves the store clock forward, expiring entries whose TTL elapsed.
func (p *Mem) Advance(d time.Duration) {
	p.mu.Lock()
	p.now = p.now.Add(d)
	p.mu.Unlock()
}

// Now returns the store clock.
func (p *Mem) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// Calls returns a copy of the recorded calls.
func (p *Mem) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// TTL returns the ttl last applied to key (by a write or Touch).
func (p *Mem) TTL(key string) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.live(key)
	return e.ttl, ok
}

// Len returns the number of live entries.
func (p *Mem) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k := range p.m {
		if _, ok := p.live(k); ok {
			n++
		}
	}
	return n
}

// Keys returns the live keys in no particular order.
func (p *Mem) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.m))
	for k := range p.m {
		if _, ok := p.live(k); ok {
			out = append(out, k)
		}
	}
	return out
}

// Put writes raw bytes bypassing Fail and call recording.
func (p *Mem) Put(key string, value []byte) {
	p.mu.Lock()
	p.m[key] = memEntry{v: value}
	p.mu.Unlock()
}

// Evict removes key bypassing Fail and call recording.
func (p *Mem) Evict(key string) {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
}

func (p *Mem) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "get", key, 0); err != nil {
		return nil, false, err
	}
	e, ok := p.live(key)
	if !ok {
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Mem) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "insert", key, ttl); err != nil {
		return err
	}
	if _, ok := p.live(key); ok {
		return store.ErrKeyExists
	}
	p.write(key, value, ttl)
	return nil
}

func (p *Mem) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "upsert", key, ttl); err != nil {
		return err
	}
	p.write(key, value, ttl)
	return nil
}

func (p *Mem) Touch(ctx context.Context, key string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "touch", key, ttl); err != nil {
		return err
	}
	e, ok := p.live(key)
	if !ok {
		return store.ErrKeyNotFound
	}
	p.write(key, e.v, ttl)
	return nil
}

func (p *Mem) Remove(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "remove", key, 0); err != nil {
		return err
	}
	if _, ok := p.live(key); !ok {
		return store.ErrKeyNotFound
	}
	delete(p.m, key)
	return nil
}

func (p *Mem) Close(context.Context) error { return nil }

// enter records the call and applies cancellation and injected failures.
// Caller holds p.mu.
func (p *Mem) enter(ctx context.Context, op, key string, ttl time.Duration) error {
	p.calls = append(p.calls, Call{Op: op, Key: key, TTL: ttl})
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Fail != nil {
		return p.Fail(op, key)
	}
	return nil
}

func (p *Mem) live(key string) (memEntry, bool) {
	e, ok := p.m[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.exp.IsZero() && !p.now.Before(e.exp) {
		delete(p.m, key)
		return memEntry{}, false
	}
	return e, true
}

func (p *Mem) write(key string, value []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = p.now.Add(ttl)
	}
	p.m[key] = memEntry{v: append([]byte(nil), value...), ttl: ttl, exp: exp}
}
