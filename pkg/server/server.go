package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"reviewhub/pkg/config"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/metrics"
	"reviewhub/pkg/telemetry"
)

// ShutdownHook освобождает ресурс при остановке сервера
type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// HTTPServer обёртка над http.Server с graceful shutdown
type HTTPServer struct {
	server    *http.Server
	config    *config.Config
	telemetry *telemetry.Provider
	ready     atomic.Bool

	mu    sync.Mutex
	hooks []ShutdownHook
}

// New создаёт HTTP сервер для готового обработчика
func New(cfg *config.Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		config: cfg,
		server: &http.Server{
			Addr:              cfg.HTTP.Address(),
			Handler:           handler,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// OnShutdown регистрирует хук. Хуки выполняются в обратном порядке регистрации.
func (s *HTTPServer) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, ShutdownHook{Name: name, Fn: fn})
}

// Ready сообщает, принимает ли сервер трафик (для /ready)
func (s *HTTPServer) Ready() bool {
	return s.ready.Load()
}

// Run слушает адрес из конфигурации и блокируется до SIGINT/SIGTERM
func (s *HTTPServer) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.config.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.FromConfig(s.config.App, s.config.Tracing))
		if err != nil {
			logger.Log.Warn("Failed to init telemetry", "error", err)
		} else {
			s.telemetry = tp
			logger.Log.Info("Telemetry initialized",
				"endpoint", s.config.Tracing.Endpoint,
				"sample_rate", s.config.Tracing.SampleRate,
			)
		}
	}

	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if s.config.Metrics.Enabled {
		metrics.Get().SetServiceInfo(s.config.App.Version, s.config.App.Environment)
	}

	return s.Serve(ctx, lis)
}

// Serve обслуживает lis до отмены ctx, затем останавливает сервер и вызывает хуки
func (s *HTTPServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Log.Info("Starting HTTP server",
			"service", s.config.App.Name,
			"addr", lis.Addr().String(),
			"environment", s.config.App.Environment,
			"version", s.config.App.Version,
		)
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.ready.Store(true)

	select {
	case err := <-errCh:
		s.ready.Store(false)
		return err
	case <-ctx.Done():
		logger.Log.Info("Shutdown requested", "cause", context.Cause(ctx))
	}

	return s.shutdown()
}

func (s *HTTPServer) shutdown() error {
	s.ready.Store(false)

	timeout := s.config.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Log.Warn("Forcing server stop", "error", err)
		errs = append(errs, err)
		_ = s.server.Close()
	} else {
		logger.Log.Info("Server stopped gracefully")
	}

	s.mu.Lock()
	hooks := append([]ShutdownHook(nil), s.hooks...)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].Fn(ctx); err != nil {
			logger.Log.Warn("Shutdown hook failed", "hook", hooks[i].Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].Name, err))
		}
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			logger.Log.Warn("Failed to shutdown telemetry", "error", err)
		}
	}

	return errors.Join(errs...)
}
