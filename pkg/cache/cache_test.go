package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewhub/pkg/config"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, BackendMemory, opts.Backend)
	assert.Equal(t, time.Minute, opts.DefaultTTL)
	assert.Equal(t, 10000, opts.MaxEntries)
	assert.Equal(t, "reviewhub:", opts.KeyPrefix)
	assert.Equal(t, "localhost:6379", opts.RedisAddr)
}

func TestFromConfig(t *testing.T) {
	cfg := &config.CacheConfig{
		Enabled:    true,
		Driver:     "redis",
		Host:       "redis.local",
		Port:       6380,
		Password:   "secret",
		DB:         1,
		DefaultTTL: 10 * time.Minute,
		MaxEntries: 50000,
	}

	opts := FromConfig(cfg)

	assert.Equal(t, BackendRedis, opts.Backend)
	assert.Equal(t, 10*time.Minute, opts.DefaultTTL)
	assert.Equal(t, "redis.local:6380", opts.RedisAddr)
	assert.Equal(t, "secret", opts.RedisPassword)
	assert.Equal(t, 1, opts.RedisDB)
	assert.Equal(t, 50000, opts.MaxEntries)
}

func TestFromConfig_KeepsDefaultsForZeroValues(t *testing.T) {
	opts := FromConfig(&config.CacheConfig{Driver: "memory"})

	assert.Equal(t, time.Minute, opts.DefaultTTL)
	assert.Equal(t, 10000, opts.MaxEntries)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		opts *Options
	}{
		{"memory", &Options{Backend: BackendMemory}},
		{"nil options", nil},
		{"unknown backend falls back to memory", &Options{Backend: "unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts)
			require.NoError(t, err)
			defer c.Close()

			_, ok := c.(*MemoryCache)
			assert.True(t, ok)
		})
	}
}
