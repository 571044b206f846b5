// Package config loads cache settings from a YAML file and LSCACHE_*
// environment variables, and opens the configured storage backend.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/lscache"
	"github.com/unkn0wn-root/lscache/codec"
	"github.com/unkn0wn-root/lscache/storage"
	"github.com/unkn0wn-root/lscache/storage/bigcache"
	"github.com/unkn0wn-root/lscache/storage/file"
	"github.com/unkn0wn-root/lscache/storage/memory"
	"github.com/unkn0wn-root/lscache/storage/redis"
	"github.com/unkn0wn-root/lscache/storage/ristretto"
	"github.com/unkn0wn-root/lscache/storage/sqlite"
)

const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendBigCache  = "bigcache"
	BackendRistretto = "ristretto"
)

type Config struct {
	Backend        string        `yaml:"backend"         env:"LSCACHE_BACKEND"`
	Slot           string        `yaml:"slot"            env:"LSCACHE_SLOT"`
	FlushDebounce  time.Duration `yaml:"flush_debounce"  env:"LSCACHE_FLUSH_DEBOUNCE"`
	FlushInterval  time.Duration `yaml:"flush_interval"  env:"LSCACHE_FLUSH_INTERVAL"`
	StorageTimeout time.Duration `yaml:"storage_timeout" env:"LSCACHE_STORAGE_TIMEOUT"`
	Disabled       bool          `yaml:"disabled"        env:"LSCACHE_DISABLED"`

	Memory    MemoryConfig    `yaml:"memory"    envPrefix:"LSCACHE_MEMORY_"`
	File      FileConfig      `yaml:"file"      envPrefix:"LSCACHE_FILE_"`
	SQLite    SQLiteConfig    `yaml:"sqlite"    envPrefix:"LSCACHE_SQLITE_"`
	Redis     RedisConfig     `yaml:"redis"     envPrefix:"LSCACHE_REDIS_"`
	BigCache  BigCacheConfig  `yaml:"bigcache"  envPrefix:"LSCACHE_BIGCACHE_"`
	Ristretto RistrettoConfig `yaml:"ristretto" envPrefix:"LSCACHE_RISTRETTO_"`
}

type MemoryConfig struct {
	Quota int `yaml:"quota" env:"QUOTA"`
}

type FileConfig struct {
	Dir      string `yaml:"dir"       env:"DIR"`
	MaxBytes int    `yaml:"max_bytes" env:"MAX_BYTES"`
}

type SQLiteConfig struct {
	Path        string        `yaml:"path"         env:"PATH"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
	MaxBytes    int           `yaml:"max_bytes"    env:"MAX_BYTES"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"     env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db"       env:"DB"`
	Prefix   string        `yaml:"prefix"   env:"PREFIX"`
	TTL      time.Duration `yaml:"ttl"      env:"TTL"`
}

type BigCacheConfig struct {
	LifeWindow         time.Duration `yaml:"life_window"            env:"LIFE_WINDOW"`
	Shards             int           `yaml:"shards"                 env:"SHARDS"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb" env:"HARD_MAX_CACHE_SIZE_MB"`
}

type RistrettoConfig struct {
	NumCounters int64 `yaml:"num_counters" env:"NUM_COUNTERS"`
	MaxCost     int64 `yaml:"max_cost"     env:"MAX_COST"`
	BufferItems int64 `yaml:"buffer_items" env:"BUFFER_ITEMS"`
}

// Default returns a file-backed config on the default slot with background
// flushing off.
func Default() Config {
	return Config{
		Backend: BackendFile,
		Slot:    lscache.DefaultSlot,
		File:    FileConfig{Dir: ".lscache"},
		SQLite:  SQLiteConfig{Path: "lscache.db"},
		Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "lscache:"},
		Ristretto: RistrettoConfig{
			NumCounters: 1000,
			MaxCost:     64 << 20,
			BufferItems: 64,
		},
	}
}

// Load starts from Default, overlays the YAML file at path (skipped when
// path is empty), then applies LSCACHE_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis, BackendBigCache, BackendRistretto:
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	if c.Slot == "" {
		return errors.New("slot is required")
	}
	if c.FlushDebounce < 0 || c.FlushInterval < 0 || c.StorageTimeout < 0 {
		return errors.New("durations must be >= 0")
	}
	switch c.Backend {
	case BackendFile:
		if c.File.Dir == "" {
			return errors.New("file.dir is required")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite.path is required")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required")
		}
	}
	return nil
}

// Open builds the configured storage backend. The caller owns the result;
// for redis that includes the client, which Close releases.
func Open(ctx context.Context, c Config) (storage.Storage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case BackendMemory:
		return memory.New(c.Memory.Quota), nil
	case BackendFile:
		return opened(file.New(file.Config{Dir: c.File.Dir, MaxBytes: c.File.MaxBytes}))
	case BackendSQLite:
		return opened(sqlite.Open(sqlite.Config{
			Path:        c.SQLite.Path,
			BusyTimeout: c.SQLite.BusyTimeout,
			MaxBytes:    c.SQLite.MaxBytes,
		}))
	case BackendRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", c.Redis.Addr, err)
		}
		return opened(redis.New(redis.Config{
			Client:      rdb,
			Prefix:      c.Redis.Prefix,
			TTL:         c.Redis.TTL,
			CloseClient: true,
		}))
	case BackendBigCache:
		return opened(bigcache.New(bigcache.Config{
			LifeWindow:         c.BigCache.LifeWindow,
			Shards:             c.BigCache.Shards,
			HardMaxCacheSizeMB: c.BigCache.HardMaxCacheSizeMB,
		}))
	case BackendRistretto:
		return opened(ristretto.New(ristretto.Config{
			NumCounters: c.Ristretto.NumCounters,
			MaxCost:     c.Ristretto.MaxCost,
			BufferItems: c.Ristretto.BufferItems,
		}))
	}
	return nil, fmt.Errorf("unsupported backend %q", c.Backend)
}

// opened keeps a failed constructor from leaking a typed nil into the interface.
func opened[S storage.Storage](s S, err error) (storage.Storage, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options maps the cache-level settings onto lscache.Options. Storage is
// left for the caller when the cache is disabled.
func Options[V any](c Config, store storage.Storage, cd codec.Codec[V]) lscache.Options[V] {
	return lscache.Options[V]{
		Storage:        store,
		Codec:          cd,
		Slot:           c.Slot,
		FlushDebounce:  c.FlushDebounce,
		FlushInterval:  c.FlushInterval,
		StorageTimeout: c.StorageTimeout,
		Disabled:       c.Disabled,
	}
}
