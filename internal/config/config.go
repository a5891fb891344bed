// Package config loads the demo server configuration from an optional YAML
// file and DISTCACHE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/unkn0wn-root/distcache/bootstrap"
)

// Config holds the complete application configuration
type Config struct {
	Server ServerConfig     `mapstructure:"server"`
	Log    LogConfig        `mapstructure:"log"`
	Cache  CacheConfig      `mapstructure:"cache"`
	Store  bootstrap.Config `mapstructure:"store"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type CacheConfig struct {
	DefaultLifetime   time.Duration `mapstructure:"default_lifetime"`
	ThrowOnStoreError bool          `mapstructure:"throw_on_store_error"`

	// Tenant prefix for cached pages.
	SiteName string        `mapstructure:"site_name"`
	AppPath  string        `mapstructure:"app_path"`
	PageTTL  time.Duration `mapstructure:"page_ttl"`
}

// Load reads path (if non-empty) and overlays DISTCACHE_* environment
// variables, e.g. DISTCACHE_STORE_DRIVER=redis or DISTCACHE_STORE_REDIS_ADDRS=a:6379,b:6379.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DISTCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Cache.DefaultLifetime < 0 || c.Cache.PageTTL < 0 {
		return fmt.Errorf("config: lifetimes must not be negative")
	}
	if c.Store.Driver == "" {
		return fmt.Errorf("config: store.driver is required")
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("cache.default_lifetime", 20*time.Minute)
	v.SetDefault("cache.throw_on_store_error", false)
	v.SetDefault("cache.site_name", "Default Web Site")
	v.SetDefault("cache.app_path", "/")
	v.SetDefault("cache.page_ttl", time.Minute)

	v.SetDefault("store.driver", bootstrap.DriverBolt)
	v.SetDefault("store.namespace", "distcache")
	v.SetDefault("store.connect_retries", 5)
	v.SetDefault("store.retry_interval", 200*time.Millisecond)
	v.SetDefault("store.breaker", true)
	v.SetDefault("store.telemetry", false)

	v.SetDefault("store.redis.addrs", []string{"localhost:6379"})
	v.SetDefault("store.redis.username", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.table", "distcache_entries")
	v.SetDefault("store.postgres.migrate", true)

	v.SetDefault("store.bolt.path", "distcache.bbolt")
	v.SetDefault("store.bolt.sweep_interval", time.Minute)

	v.SetDefault("store.bigcache.life_window", 24*time.Hour)
	v.SetDefault("store.bigcache.hard_max_cache_size_mb", 0)

	v.SetDefault("store.ristretto.num_counters", 1_000_000)
	v.SetDefault("store.ristretto.max_cost", 64<<20)
	v.SetDefault("store.ristretto.buffer_items", 64)
}
