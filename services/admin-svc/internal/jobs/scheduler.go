// Package jobs периодические задачи админки: очистка старых данных
// мониторинга и watchdog зависших отчётов.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"reviewhub/pkg/logger"
	"reviewhub/services/admin-svc/internal/repository"
)

// defaultJobTimeout ограничение на один запуск задачи
const defaultJobTimeout = 10 * time.Minute

// Cleaner удаляет данные старше retentionDays
type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (*repository.CleanupResult, error)
}

// Reaper переводит в failed отчёты, зависшие в processing
type Reaper interface {
	ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Scheduler обёртка над cron с логированием через slog
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	jobs    []string
}

// NewScheduler создаёт планировщик. Запуски одной задачи не пересекаются,
// паника в задаче логируется и не роняет процесс.
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	l := cronLogger{log: logger.Log.With("component", "cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		timeout: timeout,
	}
}

// AddCleanup регистрирует очистку по cron выражению. Пустое выражение выключает задачу.
func (s *Scheduler) AddCleanup(schedule string, c Cleaner, retentionDays int) error {
	if schedule == "" {
		logger.Info("Retention cleanup disabled")
		return nil
	}
	if retentionDays <= 0 {
		return fmt.Errorf("cleanup job: retention days must be positive, got %d", retentionDays)
	}
	return s.add("retention-cleanup", schedule, CleanupJob(c, retentionDays, s.timeout))
}

// AddWatchdog регистрирует поиск зависших отчётов
func (s *Scheduler) AddWatchdog(schedule string, r Reaper, olderThan time.Duration) error {
	if schedule == "" {
		logger.Info("Report watchdog disabled")
		return nil
	}
	if olderThan <= 0 {
		return fmt.Errorf("report watchdog: stuck timeout must be positive, got %s", olderThan)
	}
	return s.add("report-watchdog", schedule, WatchdogJob(r, olderThan, s.timeout))
}

func (s *Scheduler) add(name, schedule string, job func()) error {
	if _, err := s.cron.AddFunc(schedule, job); err != nil {
		return fmt.Errorf("%s: invalid schedule %q: %w", name, schedule, err)
	}
	s.jobs = append(s.jobs, name)
	logger.Info("Scheduled job registered", "job", name, "schedule", schedule)
	return nil
}

// Jobs имена зарегистрированных задач
func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.jobs...)
}

// Start запускает планировщик в фоне
func (s *Scheduler) Start() {
	if len(s.jobs) == 0 {
		return
	}
	logger.Info("Starting scheduler", "jobs", s.jobs)
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи, но не дольше ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// CleanupJob один запуск очистки
func CleanupJob(c Cleaner, retentionDays int, timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		res, err := c.Cleanup(ctx, retentionDays)
		if err != nil {
			logger.Error("Retention cleanup failed", "retention_days", retentionDays, "error", err)
			return
		}
		logger.Info("Retention cleanup finished",
			"deleted", res.Total(),
			"cutoff", res.Cutoff,
			"duration", time.Since(start))
	}
}

// WatchdogJob один запуск watchdog
func WatchdogJob(r Reaper, olderThan, timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := r.ReapStuck(ctx, olderThan); err != nil {
			logger.Error("Report watchdog failed", "error", err)
		}
	}
}

// cronLogger адаптер cron.Logger поверх slog
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
