package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/metrics"
	"reviewhub/pkg/ratelimit"
)

// RateLimit ограничивает частоту запросов. Лимитер выбирается по префиксу пути,
// ключ строится из префикса и keyFn. При ошибке лимитера запрос пропускается.
func RateLimit(limits *ratelimit.RouteLimits, keyFn ratelimit.KeyExtractor) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ratelimit.IPKeyExtractor
	}
	m := metrics.Get()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter, prefix := limits.Get(r.URL.Path)
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := prefix + ":" + keyFn(r)

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				// лимитер недоступен, пропускаем запрос
				logger.WithContext(ctx).Warn("Rate limit check failed", "error", err, "key", key)
				next.ServeHTTP(w, r)
				return
			}

			info, infoErr := limiter.GetInfo(ctx, key)
			if infoErr != nil {
				logger.WithContext(ctx).Warn("Failed to get rate limit info", "error", infoErr, "key", key)
				info = &ratelimit.LimitInfo{ResetAt: time.Now().Add(time.Minute)}
			}
			setLimitHeaders(w, info)

			if !allowed {
				m.RateLimitHits.Inc()
				logger.WithContext(ctx).Warn("Rate limit exceeded", "key", key, "limit", info.Limit)

				retry := info.RetryAfter
				if retry <= 0 {
					retry = time.Until(info.ResetAt)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(max(retry, time.Second).Seconds()))))

				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, map[string]any{
					"error": map[string]any{
						"code":    apperror.CodeRateLimited,
						"message": "rate limit exceeded, retry later",
					},
				})
				return
			}

			m.RateLimitPassed.Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, info *ratelimit.LimitInfo) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(info.Remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}
