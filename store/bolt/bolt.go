// Package bolt implements store.Store on a bbolt file: a persistent,
// single-node store for development and edge deployments.
//
// Every call runs in one bbolt transaction, which gives per-key
// linearizability. Values are framed with their deadline (internal/wire);
// expired entries read as absent and are removed by Sweep, which an optional
// janitor goroutine runs periodically.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/unkn0wn-root/distcache/internal/wire"
	"github.com/unkn0wn-root/distcache/store"
)

const defaultBucket = "distcache"

type Store struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ store.Store = (*Store)(nil)

type Options struct {
	// Bucket holds the entries. Defaults to "distcache".
	Bucket string

	// SweepInterval starts a janitor that deletes expired entries.
	// 0 disables it; Sweep can still be called directly.
	SweepInterval time.Duration

	// OpenTimeout bounds waiting for the file lock. Defaults to 1s.
	OpenTimeout time.Duration

	Clock func() time.Time // defaults to time.Now
}

// Open initializes or opens a Store at the given path.
func Open(path string, opts Options) (*Store, error) {
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt store: open %s: %w", path, err)
	}
	bucket := []byte(defaultBucket)
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, bucket: bucket, now: opts.Clock}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.SweepInterval > 0 {
		s.ticker = time.NewTicker(opts.SweepInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					_, _ = s.Sweep(context.Background())
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		payload, ok := s.live(tx, key)
		if ok {
			// bbolt memory is only valid inside the tx
			out = append([]byte{}, payload...)
		}
		return nil
	})
	if err != nil {
		return nil, false, mapErr(err)
	}
	return out, out != nil, nil
}

func (s *Store) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		if _, ok := s.live(tx, key); ok {
			return store.ErrKeyExists
		}
		return tx.Bucket(s.bucket).Put([]byte(key), wire.EncodeEntry(wire.Deadline(s.now(), ttl), value))
	})
}

func (s *Store) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), wire.EncodeEntry(wire.Deadline(s.now(), ttl), value))
	})
}

func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		payload, ok := s.live(tx, key)
		if !ok {
			return store.ErrKeyNotFound
		}
		return tx.Bucket(s.bucket).Put([]byte(key), wire.EncodeEntry(wire.Deadline(s.now(), ttl), payload))
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		if _, ok := s.live(tx, key); !ok {
			return store.ErrKeyNotFound
		}
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Sweep deletes expired and unreadable entries and returns how many it removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	n := 0
	err := s.update(ctx, func(tx *bolt.Tx) error {
		now := s.now()
		b := tx.Bucket(s.bucket)
		var dead [][]byte
		_ = b.ForEach(func(k, v []byte) error {
			exp, _, err := wire.DecodeEntry(v)
			if err != nil || wire.Expired(exp, now) {
				dead = append(dead, append([]byte(nil), k...))
			}
			return nil
		})
		for _, k := range dead {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(dead)
		return nil
	})
	return n, err
}

// Close stops the janitor and closes the database. Safe to call multiple times.
func (s *Store) Close(context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
		err = s.db.Close()
	})
	return err
}

func (s *Store) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr(s.db.Update(fn))
}

// live returns the payload of a non-expired entry. The slice aliases tx memory.
func (s *Store) live(tx *bolt.Tx, key string) ([]byte, bool) {
	v := tx.Bucket(s.bucket).Get([]byte(key))
	if v == nil {
		return nil, false
	}
	exp, payload, err := wire.DecodeEntry(v)
	if err != nil || wire.Expired(exp, s.now()) {
		return nil, false
	}
	return payload, true
}

func mapErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
