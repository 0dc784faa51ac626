package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter in-memory реализация rate limiter
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	now     func() time.Time
	stopCh  chan struct{}
	closed  bool
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
	requests  []time.Time // для sliding window
}

// NewMemoryLimiter создаёт in-memory rate limiter
func NewMemoryLimiter(cfg *Config) *MemoryLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *MemoryLimiter) AllowN(_ context.Context, key string, n int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false, ErrLimiterClosed
	}

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:    float64(l.config.Requests + l.config.BurstSize),
			lastCheck: now,
		}
		l.buckets[key] = b
	}

	if l.config.Strategy == StrategyTokenBucket {
		return l.takeTokens(b, n, now), nil
	}
	return l.slideWindow(b, n, now), nil
}

func (l *MemoryLimiter) takeTokens(b *bucket, n int, now time.Time) bool {
	elapsed := now.Sub(b.lastCheck)
	b.lastCheck = now

	rate := float64(l.config.Requests) / l.config.Window.Seconds()
	b.tokens += elapsed.Seconds() * rate

	maxTokens := float64(l.config.Requests + l.config.BurstSize)
	if b.tokens > maxTokens {
		b.tokens = maxTokens
	}

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

func (l *MemoryLimiter) slideWindow(b *bucket, n int, now time.Time) bool {
	b.requests = pruneBefore(b.requests, now.Add(-l.config.Window))
	b.lastCheck = now

	if len(b.requests)+n > l.config.Requests {
		return false
	}
	for i := 0; i < n; i++ {
		b.requests = append(b.requests, now)
	}
	return true
}

// pruneBefore оставляет отметки строго позже cutoff; срез отсортирован по времени
func pruneBefore(requests []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	return requests[i:]
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

func (l *MemoryLimiter) GetInfo(_ context.Context, key string) (*LimitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	info := &LimitInfo{
		Limit:     l.config.Requests,
		Remaining: l.config.Requests,
		ResetAt:   now.Add(l.config.Window),
	}

	b, ok := l.buckets[key]
	if !ok {
		return info, nil
	}

	if l.config.Strategy == StrategyTokenBucket {
		info.Remaining = int(b.tokens)
	} else {
		active := pruneBefore(b.requests, now.Add(-l.config.Window))
		info.Remaining = l.config.Requests - len(active)
		if len(active) > 0 {
			info.ResetAt = active[0].Add(l.config.Window)
		}
	}

	if info.Remaining <= 0 {
		info.Remaining = 0
		info.RetryAfter = info.ResetAt.Sub(now)
	}
	return info, nil
}

func (l *MemoryLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	close(l.stopCh)
	l.buckets = nil
	return nil
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle удаляет ключи без активности дольше двух окон
func (l *MemoryLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-2 * l.config.Window)
	for key, b := range l.buckets {
		b.requests = pruneBefore(b.requests, cutoff)
		if len(b.requests) == 0 && b.lastCheck.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
