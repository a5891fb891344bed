// Package bootstrap resolves the configured store once at startup.
//
// Adapters never look a store up by name; the application calls Open, injects
// the returned handle into distcache.New / outputcache.New and closes it on
// shutdown. Network drivers are pinged with exponential backoff before the
// handle is returned.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/store"
	bcstore "github.com/unkn0wn-root/distcache/store/bigcache"
	boltstore "github.com/unkn0wn-root/distcache/store/bolt"
	"github.com/unkn0wn-root/distcache/store/breaker"
	"github.com/unkn0wn-root/distcache/store/otelstore"
	redisstore "github.com/unkn0wn-root/distcache/store/redis"
	rcstore "github.com/unkn0wn-root/distcache/store/ristretto"
	"github.com/unkn0wn-root/distcache/store/sqlstore"
)

const (
	DriverRedis     = "redis"
	DriverPostgres  = "postgres"
	DriverBolt      = "bolt"
	DriverBigCache  = "bigcache"
	DriverRistretto = "ristretto"
)

type Config struct {
	Driver string `mapstructure:"driver"`

	// Namespace is the bucket/namespace name: the Redis key prefix and the
	// Bolt bucket.
	Namespace string `mapstructure:"namespace"`

	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Bolt      BoltConfig      `mapstructure:"bolt"`
	BigCache  BigCacheConfig  `mapstructure:"bigcache"`
	Ristretto RistrettoConfig `mapstructure:"ristretto"`

	// ConnectRetries bounds the ping attempts after the first one.
	ConnectRetries uint64        `mapstructure:"connect_retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"` // initial backoff; defaults to 100ms

	Breaker   bool `mapstructure:"breaker"`
	Telemetry bool `mapstructure:"telemetry"`
}

type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"` // several => cluster
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
	Migrate bool   `mapstructure:"migrate"`
}

type BoltConfig struct {
	Path          string        `mapstructure:"path"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type BigCacheConfig struct {
	LifeWindow         time.Duration `mapstructure:"life_window"`
	HardMaxCacheSizeMB int           `mapstructure:"hard_max_cache_size_mb"`
}

type RistrettoConfig struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Open builds the store named by cfg.Driver, verifies connectivity and applies
// the optional breaker and telemetry decorators. The caller owns the result and
// must Close it.
func Open(ctx context.Context, cfg Config, log distcache.Logger) (store.Store, error) {
	if log == nil {
		log = distcache.NopLogger{}
	}
	st, err := openDriver(cfg)
	if err != nil {
		return nil, err
	}
	if p, ok := st.(pinger); ok {
		if err := ping(ctx, p, cfg, log); err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
	}
	if pg, ok := st.(*sqlstore.Store); ok && cfg.Postgres.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("bootstrap: migrate: %w", err)
		}
	}

	if cfg.Breaker {
		st = breaker.New(st, breaker.Config{
			Name: "distcache-" + cfg.Driver,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("store circuit breaker changed state", distcache.Fields{
					"breaker": name, "from": from.String(), "to": to.String(),
				})
			},
		})
	}
	if cfg.Telemetry {
		ost, err := otelstore.New(st, otelstore.Config{System: system(cfg.Driver)})
		if err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("bootstrap: telemetry: %w", err)
		}
		st = ost
	}
	log.Info("store ready", distcache.Fields{"driver": cfg.Driver, "namespace": cfg.Namespace})
	return st, nil
}

func openDriver(cfg Config) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverRedis:
		if len(cfg.Redis.Addrs) == 0 {
			return nil, fmt.Errorf("bootstrap: redis.addrs is required")
		}
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redisstore.New(redisstore.Config{Client: rdb, CloseClient: true, Namespace: cfg.Namespace})

	case DriverPostgres:
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("bootstrap: postgres.dsn is required")
		}
		// sqlx.Open does not dial; the ping below does.
		db, err := sqlx.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: postgres: %w", err)
		}
		return sqlstore.New(sqlstore.Config{DB: db, CloseDB: true, Table: cfg.Postgres.Table})

	case DriverBolt:
		if cfg.Bolt.Path == "" {
			return nil, fmt.Errorf("bootstrap: bolt.path is required")
		}
		return boltstore.Open(cfg.Bolt.Path, boltstore.Options{
			Bucket:        cfg.Namespace,
			SweepInterval: cfg.Bolt.SweepInterval,
		})

	case DriverBigCache:
		return bcstore.New(context.Background(), bcstore.Config{
			LifeWindow:         cfg.BigCache.LifeWindow,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB,
		})

	case DriverRistretto:
		rc := cfg.Ristretto
		if rc.NumCounters == 0 {
			rc.NumCounters = 1e6
		}
		if rc.MaxCost == 0 {
			rc.MaxCost = 64 << 20
		}
		if rc.BufferItems == 0 {
			rc.BufferItems = 64
		}
		return rcstore.New(rcstore.Config{NumCounters: rc.NumCounters, MaxCost: rc.MaxCost, BufferItems: rc.BufferItems})
	}
	return nil, fmt.Errorf("bootstrap: unknown store driver %q", cfg.Driver)
}

func ping(ctx context.Context, p pinger, cfg Config, log distcache.Logger) error {
	b := backoff.NewExponentialBackOff()
	if cfg.RetryInterval > 0 {
		b.InitialInterval = cfg.RetryInterval
	} else {
		b.InitialInterval = 100 * time.Millisecond
	}
	attempt := 0
	op := func() error {
		attempt++
		err := p.Ping(ctx)
		if err != nil {
			log.Warn("store ping failed", distcache.Fields{"driver": cfg.Driver, "attempt": attempt, "err": err})
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, cfg.ConnectRetries), ctx)); err != nil {
		return fmt.Errorf("bootstrap: %s unreachable after %d attempts: %w", cfg.Driver, attempt, err)
	}
	return nil
}

func system(driver string) string {
	if driver == DriverPostgres {
		return "postgresql"
	}
	return driver
}
