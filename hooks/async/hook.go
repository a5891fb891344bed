// Package asynchook moves distcache.Hooks calls off the request path.
//
// Events are queued to a fixed worker pool and dropped when the queue is full
// or the hooks are closed, so a slow sink never delays a cache call.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{StoreFailureEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := distcache.New(distcache.Options{Store: st, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/store"
)

type Hooks struct {
	inner distcache.Hooks
	q     chan func()
	wg    sync.WaitGroup

	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Uint64
}

var _ distcache.Hooks = (*Hooks)(nil)

func New(inner distcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.q)
	h.mu.Unlock()
	h.wg.Wait()
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) StoreFailure(op, k string, st store.Status, err error) {
	h.try(func() { h.inner.StoreFailure(op, k, st, err) })
}
func (h *Hooks) DecodeFailure(k string, err error) { h.try(func() { h.inner.DecodeFailure(k, err) }) }
func (h *Hooks) RaceFallback(k string)             { h.try(func() { h.inner.RaceFallback(k) }) }
