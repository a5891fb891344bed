// Package bigcache implements store.Store on allegro/bigcache.
//
// BigCache only knows a global LifeWindow, so each value is framed with its own
// deadline (internal/wire) and expired on read. LifeWindow still bounds every
// entry, including ones written with "never expire".
package bigcache

import (
	"context"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/distcache/internal/wire"
	"github.com/unkn0wn-root/distcache/store"
)

const defaultLifeWindow = 24 * time.Hour

type Store struct {
	c   *bc.BigCache
	now func() time.Time

	// serializes writes so Insert and Touch (read-modify-write) stay atomic
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 24h
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited

	Clock func() time.Time // defaults to time.Now
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = defaultLifeWindow
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{c: c, now: now}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	// read-only: dropping a dead frame here could delete a concurrent write
	_, payload, ok, err := s.load(key, false)
	if err != nil || !ok {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *Store) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, ok, err := s.load(key, true); err != nil {
		return err
	} else if ok {
		return store.ErrKeyExists
	}
	return s.c.Set(key, wire.EncodeEntry(wire.Deadline(s.now(), ttl), value))
}

func (s *Store) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Set(key, wire.EncodeEntry(wire.Deadline(s.now(), ttl), value))
}

func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, _, ok, err := s.load(key, true)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrKeyNotFound
	}
	if err := wire.Retouch(raw, wire.Deadline(s.now(), ttl)); err != nil {
		return err
	}
	return s.c.Set(key, raw)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, ok, err := s.load(key, true); err != nil {
		return err
	} else if !ok {
		return store.ErrKeyNotFound
	}
	err := s.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return store.ErrKeyNotFound
	}
	return err
}

func (s *Store) Close(context.Context) error {
	return s.c.Close()
}

// Len reports the number of entries held, including expired ones not yet read.
func (s *Store) Len() int { return s.c.Len() }

// load returns the framed entry (a private copy) and its payload.
// Expired or foreign entries read as a miss and are deleted when drop is set;
// callers passing drop must hold s.mu.
func (s *Store) load(key string, drop bool) (raw, payload []byte, ok bool, err error) {
	raw, err = s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	exp, payload, derr := wire.DecodeEntry(raw)
	if derr != nil || wire.Expired(exp, s.now()) {
		if drop {
			_ = s.c.Delete(key)
		}
		return nil, nil, false, nil
	}
	return raw, payload, true, nil
}
