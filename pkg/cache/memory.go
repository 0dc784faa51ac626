package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache in-memory кэш с LRU вытеснением.
// Порядок использования хранится в двусвязном списке, голова - самый свежий ключ.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryCache создаёт in-memory кэш и запускает фоновую очистку
func NewMemoryCache(opts *Options) *MemoryCache {
	if opts == nil {
		opts = DefaultOptions()
	}

	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	interval := opts.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	c := &MemoryCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		defaultTTL: opts.DefaultTTL,
		maxEntries: maxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop(interval)

	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, ErrKeyNotFound
	}
	entry := el.Value.(*memoryEntry)
	if entry.expired(c.now()) {
		c.removeElement(el)
		c.misses.Add(1)
		return nil, ErrKeyNotFound
	}

	c.order.MoveToFront(el)
	c.hits.Add(1)
	return cloneBytes(entry.value), nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = cloneBytes(value)
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return nil
	}

	for c.order.Len() >= c.maxEntries {
		c.removeElement(c.order.Back())
	}

	c.entries[key] = c.order.PushFront(&memoryEntry{
		key:       key,
		value:     cloneBytes(value),
		expiresAt: expiresAt,
	})
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	return ok && !el.Value.(*memoryEntry).expired(c.now()), nil
}

func (c *MemoryCache) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	if c.closed.Load() {
		return 0, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var count int64
	for key, el := range c.entries {
		if matchPattern(pattern, key) {
			c.removeElement(el)
			count++
		}
	}
	return count, nil
}

func (c *MemoryCache) Stats(_ context.Context) (*Stats, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		KeysByPrefix: make(map[string]int64),
		Backend:      BackendMemory,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	now := c.now()
	for key, el := range c.entries {
		entry := el.Value.(*memoryEntry)
		if entry.expired(now) {
			continue
		}
		stats.TotalKeys++
		stats.MemoryBytes += int64(len(entry.value))
		stats.KeysByPrefix[extractPrefix(key)]++
	}
	return stats, nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	c.entries = nil
	c.order.Init()
	c.mu.Unlock()
	return nil
}

// removeElement вызывается под c.mu
func (c *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.entries, el.Value.(*memoryEntry).key)
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *MemoryCache) purgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memoryEntry).expired(now) {
			c.removeElement(el)
		}
		el = prev
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// matchPattern сопоставляет ключ с glob-шаблоном, содержащим не более одной "*"
func matchPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}

	prefix, suffix, found := strings.Cut(pattern, "*")
	if !found {
		return pattern == key
	}
	if len(key) < len(prefix)+len(suffix) {
		return false
	}
	return strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix)
}

// extractPrefix возвращает пространство имён ключа (часть до первого ":")
func extractPrefix(key string) string {
	if idx := strings.Index(key, ":"); idx > 0 {
		return key[:idx]
	}
	return "other"
}
