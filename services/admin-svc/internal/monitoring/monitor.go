// Package monitoring периодически снимает состояние системы, хранит последние
// снимки в кольцевом буфере и оценивает здоровье сервиса.
package monitoring

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/config"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/metrics"
	"reviewhub/pkg/telemetry"
	"reviewhub/services/admin-svc/internal/repository"
)

const (
	// requestWindow сколько хранится история запросов
	requestWindow = time.Hour
	// maxRequests жёсткий предел окна запросов при пиковой нагрузке
	maxRequests = 100_000
	// snapshotWindow окно, за которое считаются запросы снимка
	snapshotWindow = time.Minute

	errorBufferSize   = 100
	defaultBufferSize = 1440
)

// Status состояние системы
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// SystemHealth оценка состояния системы
type SystemHealth struct {
	Status          Status                  `json:"status"`
	Metrics         repository.SystemMetric `json:"metrics"`
	ErrorCount      int                     `json:"errorCount"`
	AvgResponseTime float64                 `json:"avgResponseTime"`
	SuccessRate     float64                 `json:"successRate"`
	RecentErrors    []repository.ErrorLog   `json:"recentErrors"`
	// Collecting идёт ли периодический сбор снимков
	Collecting bool `json:"collecting"`
	// LastSnapshot последний сохранённый периодический снимок
	LastSnapshot *repository.SystemMetric `json:"lastSnapshot,omitempty"`
	Timestamp    time.Time                `json:"timestamp"`
}

// Invalidator сбрасывает кэш, построенный на данных, которые удаляет очистка
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Thresholds пороги деградации
type Thresholds struct {
	CPU       float64 // проценты
	Memory    float64 // доля 0..1
	ErrorRate float64 // проценты
}

type requestSample struct {
	at       time.Time
	status   int
	duration time.Duration
}

type requestStats struct {
	count  int
	ok     int
	errors int
	avgMs  float64
}

// successRate доля ответов 2xx в процентах; без запросов 100
func (s requestStats) successRate() float64 {
	if s.count == 0 {
		return 100
	}
	return float64(s.ok) / float64(s.count) * 100
}

// errorRate доля ответов 5xx в процентах
func (s requestStats) errorRate() float64 {
	if s.count == 0 {
		return 0
	}
	return float64(s.errors) / float64(s.count) * 100
}

// Monitor состояние мониторинга одного процесса
type Monitor struct {
	repo       repository.MonitoringRepository
	sampler    Sampler
	clock      Clock
	thresholds Thresholds
	metrics    *metrics.Metrics

	mu        sync.Mutex
	snapshots *ring[repository.SystemMetric]
	errors    *ring[repository.ErrorLog]
	requests  []requestSample

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	invalidators []Invalidator
}

// InvalidateOnCleanup регистрирует кэши, сбрасываемые после очистки, удалившей строки
func (m *Monitor) InvalidateOnCleanup(inv ...Invalidator) {
	m.invalidators = append(m.invalidators, inv...)
}

// NewMonitor создаёт монитор. sampler и clock по умолчанию ProcSampler и RealClock.
func NewMonitor(repo repository.MonitoringRepository, cfg config.MonitoringConfig, sampler Sampler, clock Clock) *Monitor {
	if sampler == nil {
		sampler = NewProcSampler()
	}
	if clock == nil {
		clock = RealClock{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	t := Thresholds{CPU: cfg.CPUThreshold, Memory: cfg.MemoryThreshold, ErrorRate: cfg.ErrorThreshold}
	if t.CPU <= 0 {
		t.CPU = 80
	}
	if t.Memory <= 0 {
		t.Memory = 0.8
	}
	if t.ErrorRate <= 0 {
		t.ErrorRate = 5
	}

	return &Monitor{
		repo:       repo,
		sampler:    sampler,
		clock:      clock,
		thresholds: t,
		metrics:    metrics.Get(),
		snapshots:  newRing[repository.SystemMetric](size),
		errors:     newRing[repository.ErrorLog](errorBufferSize),
	}
}

// RecordRequest учитывает завершённый HTTP-запрос
func (m *Monitor) RecordRequest(status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.requests = append(m.requests, requestSample{at: now, status: status, duration: duration})
	m.pruneLocked(now)
}

// RecordError добавляет ошибку в буфер последних ошибок
func (m *Monitor) RecordError(e repository.ErrorLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors.push(e)
}

func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-requestWindow)
	i := 0
	for i < len(m.requests) && m.requests[i].at.Before(cutoff) {
		i++
	}
	if over := len(m.requests) - i - maxRequests; over > 0 {
		i += over
	}
	if i > 0 {
		m.requests = slices.Delete(m.requests, 0, i)
	}
}

func (m *Monitor) statsLocked(now time.Time, window time.Duration) requestStats {
	m.pruneLocked(now)

	cutoff := now.Add(-window)
	var st requestStats
	var total time.Duration
	for _, r := range m.requests {
		if r.at.Before(cutoff) {
			continue
		}
		st.count++
		total += r.duration
		switch {
		case r.status >= 200 && r.status < 300:
			st.ok++
		case r.status >= 500:
			st.errors++
		}
	}
	if st.count > 0 {
		st.avgMs = round2(float64(total) / float64(st.count) / float64(time.Millisecond))
	}
	return st
}

// sample снимает текущее состояние без сохранения
func (m *Monitor) sample(ctx context.Context) repository.SystemMetric {
	log := logger.WithContext(ctx)

	cpu, err := m.sampler.CPUPercent()
	if err != nil {
		log.Warn("failed to sample cpu", "error", err)
		cpu = 0
	}
	used, total, err := m.sampler.Memory()
	if err != nil {
		log.Warn("failed to sample memory", "error", err)
		used, total = 0, 0
	}
	sessions, err := m.repo.CountActiveSessions(ctx)
	if err != nil {
		log.Warn("failed to count active sessions", "error", err)
	}

	now := m.clock.Now()
	m.mu.Lock()
	st := m.statsLocked(now, snapshotWindow)
	m.mu.Unlock()

	var ratio float64
	if total > 0 {
		ratio = float64(used) / float64(total)
	}

	return repository.SystemMetric{
		CPUUsage:       round2(cpu),
		MemoryUsed:     used,
		MemoryTotal:    total,
		MemoryUsage:    ratio,
		ActiveSessions: int(sessions),
		RequestCount:   st.count,
		ErrorCount:     st.errors,
		AvgResponseMs:  st.avgMs,
		CollectedAt:    now.UTC(),
	}
}

// Collect снимает состояние, кладёт его в буфер и сохраняет в БД.
// Ошибки сохранения только логируются.
func (m *Monitor) Collect(ctx context.Context) repository.SystemMetric {
	ctx, span := telemetry.StartSpan(ctx, "Monitor.Collect")
	defer span.End()

	snap := m.sample(ctx)

	m.mu.Lock()
	m.snapshots.push(snap)
	hourly := m.statsLocked(snap.CollectedAt, requestWindow)
	m.mu.Unlock()

	if err := m.repo.InsertSystemMetric(ctx, &snap); err != nil {
		telemetry.SetError(ctx, err)
		logger.WithContext(ctx).Error("failed to persist system metric", "error", err)
	}

	m.metrics.RecordSystemSnapshot(snap.CPUUsage, snap.MemoryUsage, m.evaluate(snap, hourly) == StatusHealthy)
	return snap
}

func (m *Monitor) evaluate(snap repository.SystemMetric, st requestStats) Status {
	if snap.CPUUsage < m.thresholds.CPU &&
		snap.MemoryUsage < m.thresholds.Memory &&
		st.errorRate() < m.thresholds.ErrorRate {
		return StatusHealthy
	}
	return StatusDegraded
}

// Start запускает периодический сбор. Повторный вызов останавливает предыдущий тикер.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return apperror.NewWithField(apperror.CodeInvalidArgument, "interval must be positive", "interval")
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()
	m.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := m.clock.NewTicker(interval)
	m.cancel, m.done = cancel, done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				m.Collect(ctx)
			}
		}
	}()

	logger.Info("system monitor started", "interval", interval.String())
	return nil
}

// Stop останавливает сбор и ждёт завершения текущего тика
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
}

// Running запущен ли сбор
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.cancel != nil
}

// GetSystemHealth свежий снимок и оценка здоровья по запросам за последний час
func (m *Monitor) GetSystemHealth(ctx context.Context) (*SystemHealth, error) {
	ctx, span := telemetry.StartSpan(ctx, "Monitor.GetSystemHealth")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeTimeout, "health check cancelled")
	}

	snap := m.sample(ctx)

	m.mu.Lock()
	st := m.statsLocked(snap.CollectedAt, requestWindow)
	recent := m.errors.last(10)
	m.mu.Unlock()

	status := m.evaluate(snap, st)
	m.metrics.RecordSystemSnapshot(snap.CPUUsage, snap.MemoryUsage, status == StatusHealthy)

	var last *repository.SystemMetric
	if latest, ok := m.Latest(); ok {
		last = &latest
	}

	return &SystemHealth{
		Status:          status,
		Metrics:         snap,
		ErrorCount:      st.errors,
		AvgResponseTime: st.avgMs,
		SuccessRate:     round2(st.successRate()),
		RecentErrors:    recent,
		Collecting:      m.Running(),
		LastSnapshot:    last,
		Timestamp:       snap.CollectedAt,
	}, nil
}

// Recent последние n снимков от старых к новым; n <= 0 возвращает весь буфер
func (m *Monitor) Recent(n int) []repository.SystemMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots.last(n)
}

// Latest последний снимок буфера
func (m *Monitor) Latest() (repository.SystemMetric, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots.newest()
}

// Cleanup удаляет строки мониторинга и активности старше retentionDays суток
func (m *Monitor) Cleanup(ctx context.Context, retentionDays int) (*repository.CleanupResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Monitor.Cleanup",
		trace.WithAttributes(telemetry.CleanupAttributes("all", 0, retentionDays)...))
	defer span.End()

	if retentionDays <= 0 {
		verrs := apperror.NewValidationErrors()
		verrs.AddErrorWithField(apperror.CodeInvalidRetention, "retention_days must be greater than zero", "retention_days")
		return nil, verrs.Err()
	}

	cutoff := m.clock.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := m.repo.Cleanup(ctx, cutoff)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeInternal, "retention cleanup failed")
	}

	for table, rows := range map[string]int64{
		"system_metrics":  result.SystemMetrics,
		"error_logs":      result.ErrorLogs,
		"user_sessions":   result.UserSessions,
		"user_activities": result.UserActivities,
		"page_views":      result.PageViews,
	} {
		m.metrics.RecordCleanup(table, rows)
	}
	telemetry.SetAttributes(ctx, telemetry.CleanupAttributes("all", result.Total(), retentionDays)...)

	if result.Total() > 0 {
		for _, inv := range m.invalidators {
			if _, err := inv.Invalidate(ctx); err != nil {
				logger.WithContext(ctx).Warn("failed to invalidate cache after cleanup", "error", err)
			}
		}
	}

	logger.WithContext(ctx).Info("retention cleanup finished",
		"cutoff", cutoff,
		"retention_days", retentionDays,
		"deleted", result.Total(),
	)
	return &result, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
