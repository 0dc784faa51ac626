package swagger

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.Title)
	assert.Equal(t, "/swagger", cfg.BasePath)
	assert.Equal(t, "/openapi.json", cfg.SpecPath)
}

func TestHandler_ServeHTTP_UI(t *testing.T) {
	handler := NewHandler(nil, []byte(`{"openapi":"3.0.3"}`))

	for _, path := range []string{"/swagger/", "/swagger/index.html"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), `url: "/swagger/openapi.json"`)
		})
	}
}

func TestHandler_ServeHTTP_Spec(t *testing.T) {
	spec := []byte(`{"openapi":"3.0.3","info":{"title":"Test"}}`)
	handler := NewHandler(nil, spec)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/openapi.json", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, spec, w.Body.Bytes())
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestHandler_ETagDependsOnContent(t *testing.T) {
	a := NewHandler(nil, []byte(`{"a":1}`))
	b := NewHandler(nil, []byte(`{"a":1}`))
	c := NewHandler(nil, []byte(`{"a":2}`))

	assert.Equal(t, a.specETag, b.specETag)
	assert.NotEqual(t, a.specETag, c.specETag)
}

func TestHandler_ServeHTTP_NotFound(t *testing.T) {
	handler := NewHandler(nil, []byte(`{}`))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ServeHTTP_ETagCaching(t *testing.T) {
	handler := NewHandler(nil, []byte(`{"openapi":"3.0.3"}`))

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/swagger/openapi.json", nil))
	etag := w1.Header().Get("ETag")

	req := httptest.NewRequest(http.MethodGet, "/swagger/openapi.json", nil)
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)

	assert.Equal(t, http.StatusNotModified, w2.Code)
}

func TestHandler_CustomConfig(t *testing.T) {
	cfg := &Config{
		Title:        "Custom API",
		BasePath:     "/api-docs",
		SpecPath:     "/spec.json",
		DocExpansion: "none",
	}
	handler := NewHandler(cfg, []byte(`{"x":1}`))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api-docs/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Custom API")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api-docs/spec.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"x":1}`, w.Body.String())
}

func TestRegisterRoutes(t *testing.T) {
	r := chi.NewRouter()
	RegisterRoutes(r, nil, []byte(`{"openapi":"3.0.3"}`))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger", nil))
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/swagger/", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"openapi":"3.0.3"}`, w.Body.String())
}

func BenchmarkHandler_ServeSpec(b *testing.B) {
	handler := NewHandler(nil, make([]byte, 100000))
	req := httptest.NewRequest(http.MethodGet, "/swagger/openapi.json", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		_, _ = io.Copy(io.Discard, w.Body)
	}
}
