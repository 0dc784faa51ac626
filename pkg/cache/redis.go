package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache Redis реализация кэша. Все ключи хранятся с префиксом из Options.KeyPrefix.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	prefix     string
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(opts *Options) (*RedisCache, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	poolSize := opts.RedisPoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisCacheWithClient(client, opts), nil
}

// NewRedisCacheWithClient оборачивает готовый клиент
func NewRedisCacheWithClient(client *redis.Client, opts *Options) *RedisCache {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &RedisCache{
		client:     client,
		defaultTTL: opts.DefaultTTL,
		prefix:     opts.KeyPrefix,
	}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	return val, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteByPattern обходит ключи через SCAN, чтобы не блокировать сервер
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var (
		deleted int64
		batch   []string
	)

	iter := c.client.Scan(ctx, 0, c.key(pattern), 200).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			n, err := c.client.Del(ctx, batch...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}

	if len(batch) > 0 {
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

func (c *RedisCache) Stats(ctx context.Context) (*Stats, error) {
	info, err := c.client.Info(ctx, "stats", "memory").Result()
	if err != nil {
		return nil, err
	}

	stats := &Stats{Backend: BackendRedis}
	for _, line := range strings.Split(info, "\n") {
		name, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch name {
		case "keyspace_hits":
			stats.Hits = parseInfoInt(value)
		case "keyspace_misses":
			stats.Misses = parseInfoInt(value)
		case "used_memory":
			stats.MemoryBytes = parseInfoInt(value)
		}
	}

	if size, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = size
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats, nil
}

// parseInfoInt разбирает значение из INFO; статистика best-effort, ошибка даёт ноль
func parseInfoInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Clear удаляет только ключи с префиксом этого кэша
func (c *RedisCache) Clear(ctx context.Context) error {
	_, err := c.DeleteByPattern(ctx, "*")
	return err
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
