package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"reviewhub/pkg/config"
)

// CORS middleware для админки
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	allowedHeaders := prepareAllowedHeaders(cfg.AllowedHeaders)
	allowedMethods := strings.Join(cfg.AllowedMethods, ", ")
	exposedHeaders := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowedOrigin := ""
			for _, o := range cfg.AllowedOrigins {
				if o == "*" || o == origin {
					allowedOrigin = o
					break
				}
			}

			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				if allowedOrigin != "*" {
					w.Header().Add("Vary", "Origin")
				}
			}

			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

			if exposedHeaders != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposedHeaders)
			}

			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Preflight
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// prepareAllowedHeaders раскрывает wildcard и добавляет обязательные заголовки
func prepareAllowedHeaders(headers []string) string {
	// браузеры не включают Authorization при "*"
	for _, h := range headers {
		if h == "*" {
			return strings.Join([]string{
				"Accept",
				"Accept-Language",
				"Content-Language",
				"Content-Type",
				"Authorization",
				"Origin",
				"X-Requested-With",
				RequestIDHeader,
				"X-User-ID",
			}, ", ")
		}
	}

	out := append([]string(nil), headers...)
	for _, required := range []string{"Authorization", RequestIDHeader} {
		found := false
		for _, h := range out {
			if strings.EqualFold(h, required) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, required)
		}
	}

	return strings.Join(out, ", ")
}
