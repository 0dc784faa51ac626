package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reviewhub/pkg/logger"
	"reviewhub/pkg/metrics"
	"reviewhub/services/admin-svc/internal/repository"
)

// RequestRecorder принимает каждый завершённый запрос (окно запросов монитора)
type RequestRecorder interface {
	RecordRequest(status int, duration time.Duration)
}

// ErrorLogger сохраняет ответы 5xx как записи error_logs
type ErrorLogger interface {
	LogError(ctx context.Context, e repository.ErrorLog) error
}

// Metrics пишет HTTP метрики Prometheus и передаёт запрос монитору.
// recorder и errLog могут быть nil.
func Metrics(recorder RequestRecorder, errLog ErrorLogger) func(http.Handler) http.Handler {
	m := metrics.Get()
	inFlight := metrics.NewRequestTracker(m.HTTPRequestsInFlight)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			inFlight.Start(r.Method)
			next.ServeHTTP(ww, r)
			inFlight.End(r.Method)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.RecordHTTPRequest(r.Method, routePattern(r), status, duration)

			if recorder != nil {
				recorder.RecordRequest(status, duration)
			}

			if errLog != nil && status >= http.StatusInternalServerError {
				err := errLog.LogError(r.Context(), repository.ErrorLog{
					Level:      "error",
					Message:    r.Method + " " + r.URL.Path + " responded " + http.StatusText(status),
					Path:       r.URL.Path,
					StatusCode: status,
				})
				if err != nil {
					logger.WithContext(r.Context()).Warn("Failed to log request error", "error", err)
				}
			}
		})
	}
}

// routePattern шаблон маршрута chi, чтобы не плодить метки на каждый ID
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
