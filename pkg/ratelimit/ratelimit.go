package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"reviewhub/pkg/config"
)

// Стандартные ошибки
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Стратегии
const (
	StrategySlidingWindow = "sliding_window"
	StrategyTokenBucket   = "token_bucket"
)

// Limiter интерфейс ограничителя запросов
type Limiter interface {
	// Allow проверяет, разрешён ли запрос
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN проверяет, разрешены ли n запросов
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Reset сбрасывает лимит для ключа
	Reset(ctx context.Context, key string) error

	// GetInfo возвращает информацию о текущем состоянии
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)

	Close() error
}

// LimitInfo информация о состоянии лимита, отдаётся в заголовках X-RateLimit-*
type LimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Config конфигурация rate limiter
type Config struct {
	Requests        int
	Window          time.Duration
	Strategy        string // sliding_window, token_bucket
	Backend         string // memory, redis
	BurstSize       int    // только для token_bucket
	CleanupInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Requests:        100,
		Window:          time.Minute,
		Strategy:        StrategySlidingWindow,
		Backend:         "memory",
		BurstSize:       10,
		CleanupInterval: 5 * time.Minute,
		KeyPrefix:       "ratelimit:",
	}
}

// FromConfig переносит настройки из общей конфигурации сервиса
func FromConfig(cfg *config.RateLimitConfig) *Config {
	out := DefaultConfig()
	if cfg.Requests > 0 {
		out.Requests = cfg.Requests
	}
	if cfg.Window > 0 {
		out.Window = cfg.Window
	}
	if cfg.Strategy != "" {
		out.Strategy = cfg.Strategy
	}
	if cfg.Backend != "" {
		out.Backend = cfg.Backend
	}
	if cfg.BurstSize > 0 {
		out.BurstSize = cfg.BurstSize
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = cfg.CleanupInterval
	}
	out.RedisAddr = cfg.RedisAddr
	return out
}

// WithRequests возвращает копию конфигурации с другим лимитом и префиксом ключей
func (c *Config) WithRequests(requests int, keyPrefix string) *Config {
	cp := *c
	cp.Requests = requests
	if keyPrefix != "" {
		cp.KeyPrefix = keyPrefix
	}
	return &cp
}

// New создаёт лимитер на основе конфигурации
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Backend == "redis" {
		return NewRedisLimiter(cfg)
	}
	return NewMemoryLimiter(cfg), nil
}

// KeyExtractor извлекает ключ лимита из HTTP запроса
type KeyExtractor func(r *http.Request) string

// IPKeyExtractor использует первый адрес X-Forwarded-For, затем X-Real-IP, затем RemoteAddr
func IPKeyExtractor(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RouteKeyExtractor ключ по методу и пути
func RouteKeyExtractor(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// UserKeyExtractor ключ по X-User-ID, при отсутствии по IP
func UserKeyExtractor(r *http.Request) string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return "user:" + userID
	}
	return IPKeyExtractor(r)
}

// CompositeKeyExtractor объединяет ключи через ":"
func CompositeKeyExtractor(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, ext := range extractors {
			parts = append(parts, ext(r))
		}
		return strings.Join(parts, ":")
	}
}

// RouteLimits сопоставляет префиксы путей с отдельными лимитерами.
// Побеждает самый длинный совпавший префикс, иначе используется лимитер по умолчанию.
type RouteLimits struct {
	mu       sync.RWMutex
	routes   map[string]Limiter
	prefixes []string
	fallback Limiter
}

// NewRouteLimits создаёт таблицу лимитов
func NewRouteLimits(fallback Limiter) *RouteLimits {
	return &RouteLimits{
		routes:   make(map[string]Limiter),
		fallback: fallback,
	}
}

// Set задаёт лимитер для префикса пути
func (r *RouteLimits) Set(prefix string, l Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[prefix]; !exists {
		r.prefixes = append(r.prefixes, prefix)
		sort.Slice(r.prefixes, func(i, j int) bool {
			return len(r.prefixes[i]) > len(r.prefixes[j])
		})
	}
	r.routes[prefix] = l
}

// Get возвращает лимитер для пути и префикс, по которому он найден ("" для fallback)
func (r *RouteLimits) Get(path string) (Limiter, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, prefix := range r.prefixes {
		if strings.HasPrefix(path, prefix) {
			return r.routes[prefix], prefix
		}
	}
	return r.fallback, ""
}

// Close закрывает все лимитеры
func (r *RouteLimits) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, l := range r.routes {
		errs = append(errs, l.Close())
	}
	if r.fallback != nil {
		errs = append(errs, r.fallback.Close())
	}
	return errors.Join(errs...)
}
