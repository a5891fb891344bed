// Package breaker wraps a store.Store with a circuit breaker (sony/gobreaker).
//
// Outcomes that describe data rather than the store's health (hit, miss,
// "exists", "not found") and failures seen after the caller's own context was
// done (canceled or past its deadline) count as successes. While the
// circuit is open calls fail fast with store.ErrUnavailable, which the cache
// error policy treats like any other store failure.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/distcache/store"
)

type Config struct {
	Name        string
	MaxRequests uint32        // half-open probes; defaults to 1
	Interval    time.Duration // closed-state count reset; defaults to 30s
	Timeout     time.Duration // open -> half-open; defaults to 60s

	// ReadyToTrip defaults to >= 5 requests with a failure ratio >= 0.5.
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

type Store struct {
	next store.Store
	cb   *gobreaker.CircuitBreaker
}

var _ store.Store = (*Store)(nil)

func New(next store.Store, cfg Config) *Store {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		}
	}
	return &Store{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:          cfg.Name,
			MaxRequests:   cfg.MaxRequests,
			Interval:      cfg.Interval,
			Timeout:       cfg.Timeout,
			ReadyToTrip:   cfg.ReadyToTrip,
			OnStateChange: cfg.OnStateChange,
			IsSuccessful:  healthy,
		}),
	}
}

// State reports the breaker state.
func (s *Store) State() gobreaker.State { return s.cb.State() }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	type hit struct {
		v  []byte
		ok bool
	}
	res, err := s.cb.Execute(func() (interface{}, error) {
		v, ok, err := s.next.Get(ctx, key)
		return hit{v, ok}, callerSide(ctx, err)
	})
	if err != nil {
		return nil, false, unavailable(err)
	}
	h := res.(hit)
	return h.v, h.ok, nil
}

func (s *Store) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.run(ctx, func() error { return s.next.Insert(ctx, key, value, ttl) })
}

func (s *Store) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.run(ctx, func() error { return s.next.Upsert(ctx, key, value, ttl) })
}

func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) error {
	return s.run(ctx, func() error { return s.next.Touch(ctx, key, ttl) })
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.run(ctx, func() error { return s.next.Remove(ctx, key) })
}

// Close bypasses the breaker.
func (s *Store) Close(ctx context.Context) error { return s.next.Close(ctx) }

func (s *Store) run(ctx context.Context, fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) { return nil, callerSide(ctx, fn()) })
	return unavailable(err)
}

// callerDone marks an error returned after the caller's context ended; it only
// lives between the call and healthy.
type callerDone struct{ err error }

func (e callerDone) Error() string { return e.err.Error() }
func (e callerDone) Unwrap() error { return e.err }

func callerSide(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return callerDone{err}
	}
	return err
}

func healthy(err error) bool {
	var cd callerDone
	return err == nil ||
		errors.As(err, &cd) ||
		errors.Is(err, store.ErrKeyExists) ||
		errors.Is(err, store.ErrKeyNotFound)
}

func unavailable(err error) error {
	var cd callerDone
	if errors.As(err, &cd) {
		return cd.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
