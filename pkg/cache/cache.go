// Package cache provides the byte-level cache used by the search and
// analytics read paths, with in-memory and Redis-backed implementations.
package cache

import (
	"context"
	"errors"
	"time"

	"reviewhub/pkg/config"
)

// Backend types for cache implementations.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Standard errors returned by cache operations.
var (
	// ErrKeyNotFound is returned when a requested key does not exist or has expired.
	ErrKeyNotFound = errors.New("key not found")
	// ErrCacheClosed is returned when an operation is attempted on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")
)

// Cache is the contract shared by every backend.
type Cache interface {
	// Get returns ErrKeyNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A non-positive ttl falls back to the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// DeleteByPattern removes every key matching a glob with a single "*".
	// It is used to invalidate a whole namespace, e.g. "analytics:*".
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)

	Stats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

// Stats holds counters reported by a backend.
type Stats struct {
	TotalKeys    int64
	Hits         int64
	Misses       int64
	HitRate      float64
	MemoryBytes  int64
	KeysByPrefix map[string]int64 // only populated by the memory backend
	Backend      string
}

// Options configures a Cache instance.
type Options struct {
	Backend    string
	DefaultTTL time.Duration
	// KeyPrefix is prepended to every key by the Redis backend so that
	// several deployments can share one database.
	KeyPrefix string

	// memory backend
	MaxEntries      int
	CleanupInterval time.Duration

	// redis backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
}

// DefaultOptions returns an in-memory configuration suitable for tests and
// single-node deployments.
func DefaultOptions() *Options {
	return &Options{
		Backend:         BackendMemory,
		DefaultTTL:      time.Minute,
		KeyPrefix:       "reviewhub:",
		MaxEntries:      10000,
		CleanupInterval: time.Minute,
		RedisAddr:       "localhost:6379",
		RedisPoolSize:   10,
	}
}

// FromConfig создаёт опции из конфигурации
func FromConfig(cfg *config.CacheConfig) *Options {
	opts := DefaultOptions()
	opts.Backend = cfg.Driver
	if cfg.DefaultTTL > 0 {
		opts.DefaultTTL = cfg.DefaultTTL
	}
	if cfg.MaxEntries > 0 {
		opts.MaxEntries = cfg.MaxEntries
	}
	opts.RedisAddr = cfg.Address()
	opts.RedisPassword = cfg.Password
	opts.RedisDB = cfg.DB
	return opts
}

// New создаёт кэш на основе опций. Неизвестный backend даёт in-memory кэш.
func New(opts *Options) (Cache, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	if opts.Backend == BackendRedis {
		return NewRedisCache(opts)
	}
	return NewMemoryCache(opts), nil
}
