// Package activity учитывает действия пользователей, просмотры страниц,
// сессии и ошибки приложения. Действия, просмотры и ошибки пишутся в БД
// фоновым писателем через буферизованный канал.
package activity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/config"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/metrics"
	"reviewhub/pkg/telemetry"
	"reviewhub/services/admin-svc/internal/repository"
)

const (
	kindActivity = "activity"
	kindPageView = "page_view"
	kindError    = "error"
)

// ErrorSink получает каждую ошибку, например буфер последних ошибок монитора
type ErrorSink interface {
	RecordError(e repository.ErrorLog)
}

type event struct {
	ctx   context.Context
	kind  string
	write func(ctx context.Context) error
}

// Tracker пишет события асинхронно через буферизованный канал.
// При заполненном буфере и после Close событие пишется синхронно.
type Tracker struct {
	repo         repository.ActivityRepository
	sink         ErrorSink
	metrics      *metrics.Metrics
	writeTimeout time.Duration
	now          func() time.Time

	mu     sync.RWMutex // защищает closed от параллельных enqueue
	closed bool
	buffer chan event
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewTracker создаёт трекер и запускает писателя; sink может быть nil
func NewTracker(repo repository.ActivityRepository, cfg config.ActivityConfig, sink ErrorSink) *Tracker {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	t := &Tracker{
		repo:         repo,
		sink:         sink,
		metrics:      metrics.Get(),
		writeTimeout: writeTimeout,
		now:          time.Now,
		buffer:       make(chan event, bufferSize),
		done:         make(chan struct{}),
	}

	t.wg.Add(1)
	go t.processLoop()

	return t
}

// TrackActivity ставит действие в очередь. Возвращаются только ошибки валидации.
func (t *Tracker) TrackActivity(ctx context.Context, a repository.Activity) error {
	a.Action = strings.TrimSpace(a.Action)
	if a.Action == "" {
		return requiredField("action")
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now().UTC()
	}

	t.enqueue(ctx, kindActivity, func(ctx context.Context) error {
		return t.repo.InsertActivity(ctx, &a)
	})
	return nil
}

// TrackPageView ставит просмотр в очередь. Возвращаются только ошибки валидации.
func (t *Tracker) TrackPageView(ctx context.Context, pv repository.PageView) error {
	pv.Path = strings.TrimSpace(pv.Path)
	if pv.Path == "" {
		return requiredField("path")
	}
	if pv.Duration < 0 {
		pv.Duration = 0
	}
	if pv.ID == uuid.Nil {
		pv.ID = uuid.New()
	}
	if pv.CreatedAt.IsZero() {
		pv.CreatedAt = t.now().UTC()
	}

	t.enqueue(ctx, kindPageView, func(ctx context.Context) error {
		return t.repo.InsertPageView(ctx, &pv)
	})
	return nil
}

// LogError сразу передаёт ошибку в sink и ставит её в очередь на запись
func (t *Tracker) LogError(ctx context.Context, e repository.ErrorLog) error {
	e.Message = strings.TrimSpace(e.Message)
	if e.Message == "" {
		return requiredField("message")
	}
	if e.Level == "" {
		e.Level = "error"
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now().UTC()
	}

	if t.sink != nil {
		t.sink.RecordError(e)
	}
	t.enqueue(ctx, kindError, func(ctx context.Context) error {
		return t.repo.InsertErrorLog(ctx, &e)
	})
	return nil
}

// StartSession открывает сессию синхронно и возвращает её с ID
func (t *Tracker) StartSession(ctx context.Context, userID *uuid.UUID, userAgent, ipAddress string) (*repository.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "Tracker.StartSession")
	defer span.End()

	s := &repository.Session{
		ID:        uuid.New(),
		UserID:    userID,
		StartedAt: t.now().UTC(),
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}
	if err := t.repo.CreateSession(ctx, s); err != nil {
		telemetry.SetError(ctx, err)
		t.metrics.RecordActivity("session", "failed")
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to start session")
	}

	t.metrics.RecordActivity("session", "ok")
	return s, nil
}

// EndSession закрывает сессию; длительность в целых секундах от начала
func (t *Tracker) EndSession(ctx context.Context, id uuid.UUID, bounced bool) (*repository.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "Tracker.EndSession",
		trace.WithAttributes(attribute.String("session.id", id.String())))
	defer span.End()

	s, err := t.repo.EndSession(ctx, id, t.now().UTC(), bounced)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperror.New(apperror.CodeNotFound, "session not found").WithDetails("id", id.String())
	case errors.Is(err, repository.ErrSessionEnded):
		return nil, apperror.New(apperror.CodeSessionClosed, "session already ended").WithDetails("id", id.String())
	default:
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to end session")
	}
}

// Close останавливает писателя и дописывает всё, что осталось в буфере
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	t.wg.Wait()

	for {
		select {
		case e := <-t.buffer:
			t.write(e)
		default:
			return nil
		}
	}
}

func (t *Tracker) enqueue(ctx context.Context, kind string, write func(ctx context.Context) error) {
	e := event{ctx: context.WithoutCancel(ctx), kind: kind, write: write}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.write(e)
		return
	}

	select {
	case t.buffer <- e:
	default:
		// буфер заполнен, пишем напрямую
		t.write(e)
	}
}

func (t *Tracker) processLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return
		case e := <-t.buffer:
			t.write(e)
		}
	}
}

func (t *Tracker) write(e event) {
	ctx, cancel := context.WithTimeout(e.ctx, t.writeTimeout)
	defer cancel()

	if err := e.write(ctx); err != nil {
		t.metrics.RecordActivity(e.kind, "failed")
		logger.WithContext(ctx).Warn("failed to write tracking event", "kind", e.kind, "error", err)
		return
	}
	t.metrics.RecordActivity(e.kind, "ok")
}

func requiredField(field string) error {
	verrs := apperror.NewValidationErrors()
	verrs.AddErrorWithField(apperror.CodeValidation, field+" is required", field)
	return verrs.Err()
}
