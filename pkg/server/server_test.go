package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewhub/pkg/config"
	"reviewhub/pkg/logger"
)

func init() {
	logger.Init("error")
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "test-app"},
		HTTP: config.HTTPConfig{
			Port:            8080,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: 2 * time.Second,
		},
	}
}

func startServer(t *testing.T, srv *HTTPServer) (string, context.CancelFunc, <-chan error) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	require.Eventually(t, srv.Ready, time.Second, 10*time.Millisecond)
	return "http://" + lis.Addr().String(), cancel, done
}

func TestNew(t *testing.T) {
	srv := New(testConfig(), http.NotFoundHandler())

	require.NotNil(t, srv)
	assert.Equal(t, ":8080", srv.server.Addr)
	assert.Equal(t, time.Second, srv.server.ReadTimeout)
	assert.False(t, srv.Ready())
}

func TestServe_HandlesRequestsAndShutsDown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	srv := New(testConfig(), handler)

	var order []string
	srv.OnShutdown("db", func(context.Context) error {
		order = append(order, "db")
		return nil
	})
	srv.OnShutdown("monitor", func(context.Context) error {
		order = append(order, "monitor")
		return nil
	})

	base, cancel, done := startServer(t, srv)

	resp, err := http.Get(base + "/anything")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.Equal(t, []string{"monitor", "db"}, order)
	assert.False(t, srv.Ready())
}

func TestServe_HookErrorsAreJoined(t *testing.T) {
	srv := New(testConfig(), http.NotFoundHandler())
	boom := errors.New("flush failed")
	srv.OnShutdown("tracker", func(context.Context) error { return boom })

	_, cancel, done := startServer(t, srv)
	cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "tracker")
}
