// Package middleware HTTP middleware сервиса: request ID, логирование,
// CORS, метрики и ограничение частоты запросов.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"reviewhub/pkg/logger"
)

// RequestIDHeader заголовок с идентификатором запроса
const RequestIDHeader = "X-Request-ID"

// RequestID кладёт идентификатор запроса в контекст логгера и в ответ.
// Берёт входящий заголовок, иначе генерирует UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}
