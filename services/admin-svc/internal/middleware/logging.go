package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"reviewhub/pkg/logger"
)

// Logging логирует каждый запрос с кодом ответа и длительностью
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		logFields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}

		log := logger.WithContext(r.Context())
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Request failed", logFields...)
		case status >= http.StatusBadRequest:
			log.Warn("Request rejected", logFields...)
		default:
			log.Info("Request completed", logFields...)
		}
	})
}
