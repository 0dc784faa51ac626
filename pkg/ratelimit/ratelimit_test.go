package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewhub/pkg/config"
)

func newTestMemoryLimiter(t *testing.T, cfg *Config) (*MemoryLimiter, *time.Time) {
	t.Helper()

	l := NewMemoryLimiter(cfg)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	t.Cleanup(func() { _ = l.Close() })
	return l, &now
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Positive(t, cfg.Requests)
	assert.Positive(t, cfg.Window)
	assert.Equal(t, StrategySlidingWindow, cfg.Strategy)
	assert.Equal(t, "ratelimit:", cfg.KeyPrefix)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(&config.RateLimitConfig{
		Requests:  50,
		Window:    30 * time.Second,
		Strategy:  StrategyTokenBucket,
		Backend:   "redis",
		RedisAddr: "redis:6379",
	})

	assert.Equal(t, 50, cfg.Requests)
	assert.Equal(t, 30*time.Second, cfg.Window)
	assert.Equal(t, StrategyTokenBucket, cfg.Strategy)
	assert.Equal(t, "redis", cfg.Backend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 10, cfg.BurstSize)
}

func TestConfig_WithRequests(t *testing.T) {
	base := DefaultConfig()
	reports := base.WithRequests(5, "ratelimit:reports:")

	assert.Equal(t, 5, reports.Requests)
	assert.Equal(t, "ratelimit:reports:", reports.KeyPrefix)
	assert.Equal(t, 100, base.Requests)
	assert.Equal(t, "ratelimit:", base.KeyPrefix)
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	l, now := newTestMemoryLimiter(t, &Config{Requests: 5, Window: time.Second, Strategy: StrategySlidingWindow})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, allowed)

	// другой ключ не затронут
	allowed, err = l.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, allowed)

	*now = now.Add(time.Second + time.Millisecond)
	allowed, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryLimiter_AllowN(t *testing.T) {
	l, _ := newTestMemoryLimiter(t, &Config{Requests: 10, Window: time.Minute})
	ctx := context.Background()

	allowed, err := l.AllowN(ctx, "k", 7)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.AllowN(ctx, "k", 4)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = l.AllowN(ctx, "k", 3)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryLimiter_TokenBucket(t *testing.T) {
	l, now := newTestMemoryLimiter(t, &Config{
		Requests:  2,
		Window:    time.Second,
		Strategy:  StrategyTokenBucket,
		BurstSize: 1,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)

	// две токена в секунду
	*now = now.Add(500 * time.Millisecond)
	allowed, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	l, _ := newTestMemoryLimiter(t, &Config{Requests: 1, Window: time.Minute})
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k")
	allowed, _ := l.Allow(ctx, "k")
	assert.False(t, allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	allowed, _ = l.Allow(ctx, "k")
	assert.True(t, allowed)
}

func TestMemoryLimiter_GetInfo(t *testing.T) {
	l, now := newTestMemoryLimiter(t, &Config{Requests: 3, Window: time.Minute})
	ctx := context.Background()

	info, err := l.GetInfo(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Limit)
	assert.Equal(t, 3, info.Remaining)

	start := *now
	for i := 0; i < 3; i++ {
		_, _ = l.Allow(ctx, "k")
		*now = now.Add(time.Second)
	}

	info, err = l.GetInfo(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, start.Add(time.Minute), info.ResetAt)
	assert.Equal(t, start.Add(time.Minute).Sub(*now), info.RetryAfter)
}

func TestMemoryLimiter_EvictIdle(t *testing.T) {
	l, now := newTestMemoryLimiter(t, &Config{Requests: 3, Window: time.Second})
	ctx := context.Background()

	_, _ = l.Allow(ctx, "idle")
	*now = now.Add(3 * time.Second)
	_, _ = l.Allow(ctx, "active")

	l.evictIdle()

	l.mu.Lock()
	_, idle := l.buckets["idle"]
	_, active := l.buckets["active"]
	l.mu.Unlock()

	assert.False(t, idle)
	assert.True(t, active)
}

func TestMemoryLimiter_Close(t *testing.T) {
	l := NewMemoryLimiter(nil)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err := l.Allow(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLimiterClosed)
}

func TestNew(t *testing.T) {
	l, err := New(&Config{Backend: "memory", Requests: 10, Window: time.Minute})
	require.NoError(t, err)
	defer l.Close()
	assert.IsType(t, &MemoryLimiter{}, l)

	l2, err := New(nil)
	require.NoError(t, err)
	defer l2.Close()
	assert.IsType(t, &MemoryLimiter{}, l2)
}

func TestIPKeyExtractor(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:1234", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"remote without port", nil, "192.0.2.10", "192.0.2.10"},
		{"nothing", nil, "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/search", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, IPKeyExtractor(r))
		})
	}
}

func TestUserAndCompositeKeyExtractors(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/admin/reports", nil)
	r.RemoteAddr = "192.0.2.1:4000"

	assert.Equal(t, "192.0.2.1", UserKeyExtractor(r))
	assert.Equal(t, "POST /api/admin/reports", RouteKeyExtractor(r))

	r.Header.Set("X-User-ID", "u-42")
	assert.Equal(t, "user:u-42", UserKeyExtractor(r))

	composite := CompositeKeyExtractor(RouteKeyExtractor, UserKeyExtractor)
	assert.Equal(t, "POST /api/admin/reports:user:u-42", composite(r))
}

func TestRouteLimits(t *testing.T) {
	fallback := NewMemoryLimiter(&Config{Requests: 100, Window: time.Minute})
	admin := NewMemoryLimiter(&Config{Requests: 50, Window: time.Minute})
	reports := NewMemoryLimiter(&Config{Requests: 5, Window: time.Minute})

	routes := NewRouteLimits(fallback)
	routes.Set("/api/admin", admin)
	routes.Set("/api/admin/reports", reports)

	l, prefix := routes.Get("/api/admin/reports/123")
	assert.Same(t, reports, l)
	assert.Equal(t, "/api/admin/reports", prefix)

	l, prefix = routes.Get("/api/admin/analytics/dashboard")
	assert.Same(t, admin, l)
	assert.Equal(t, "/api/admin", prefix)

	l, prefix = routes.Get("/api/search")
	assert.Same(t, fallback, l)
	assert.Empty(t, prefix)

	require.NoError(t, routes.Close())
	_, err := reports.Allow(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLimiterClosed)
}
