// Package redis implements store.Store on Redis (standalone, sentinel or cluster)
// through go-redis' UniversalClient.
//
// Insert is SET NX, Upsert is SET, Touch is PEXPIRE (or PERSIST for
// "never expire" inside a MULTI with EXISTS), Remove is DEL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/distcache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	ns          string
	closeClient bool
}

var _ store.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client

	// Namespace is prepended to every key as "<ns>:". Empty means no prefix.
	Namespace string
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ns := ""
	if cfg.Namespace != "" {
		ns = cfg.Namespace + ":"
	}
	return &Redis{rdb: cfg.Client, ns: ns, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.ns+key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, mapErr(err) // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ok, err := p.rdb.SetNX(ctx, p.ns+key, value, expiry(ttl)).Result()
	if err != nil {
		return mapErr(err)
	}
	if !ok {
		return store.ErrKeyExists
	}
	return nil
}

func (p *Redis) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return mapErr(p.rdb.Set(ctx, p.ns+key, value, expiry(ttl)).Err())
}

func (p *Redis) Touch(ctx context.Context, key string, ttl time.Duration) error {
	k := p.ns + key
	if ttl > 0 {
		ok, err := p.rdb.PExpire(ctx, k, ttl).Result()
		if err != nil {
			return mapErr(err)
		}
		if !ok {
			return store.ErrKeyNotFound
		}
		return nil
	}

	// PERSIST returns 0 both for a missing key and for a key without a ttl,
	// so existence is checked in the same transaction.
	var exists *goredis.IntCmd
	_, err := p.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		exists = pipe.Exists(ctx, k)
		pipe.Persist(ctx, k)
		return nil
	})
	if err != nil {
		return mapErr(err)
	}
	if exists.Val() == 0 {
		return store.ErrKeyNotFound
	}
	return nil
}

func (p *Redis) Remove(ctx context.Context, key string) error {
	n, err := p.rdb.Del(ctx, p.ns+key).Result()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return store.ErrKeyNotFound
	}
	return nil
}

// Ping checks connectivity.
func (p *Redis) Ping(ctx context.Context) error {
	return mapErr(p.rdb.Ping(ctx).Err())
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// non-positive TTLs mean "no expiry" for SET/SETNX.
func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.ErrClosed):
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
