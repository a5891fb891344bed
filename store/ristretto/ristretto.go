// Package ristretto implements store.Store on dgraph-io/ristretto with native TTLs.
//
// Ristretto may drop a write under admission pressure; Insert and Upsert then
// return store.ErrRejected. Every write waits for the buffers to drain so a
// following Get observes it.
package ristretto

import (
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/distcache/store"
)

type Store struct {
	c  *rc.Cache
	mu sync.Mutex // serializes writes
}

var _ store.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // in bytes; each entry costs len(value)
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, ok := s.get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Store) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return store.ErrKeyExists
	}
	return s.set(key, append([]byte(nil), value...), ttl)
}

func (s *Store) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(key, append([]byte(nil), value...), ttl)
}

// Touch re-sets the current value with the new ttl.
func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.get(key)
	if !ok {
		return store.ErrKeyNotFound
	}
	return s.set(key, b, ttl)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); !ok {
		return store.ErrKeyNotFound
	}
	s.c.Del(key)
	s.c.Wait()
	return nil
}

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's counters (nil unless Config.Metrics is set).
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }

// TTL returns the remaining ttl of key; 0 for entries that never expire.
func (s *Store) TTL(key string) (time.Duration, bool) { return s.c.GetTTL(key) }

func (s *Store) get(key string) ([]byte, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false
	}
	return b, true
}

func (s *Store) set(key string, b []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if !s.c.SetWithTTL(key, b, int64(len(b)), ttl) {
		return store.ErrRejected
	}
	s.c.Wait()
	// admission can still drop the item after a successful enqueue
	if _, ok := s.c.Get(key); !ok {
		return store.ErrRejected
	}
	return nil
}
