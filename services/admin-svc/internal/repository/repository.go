package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidColumn = errors.New("invalid column")
	ErrUnknownType   = errors.New("unknown report type")
	ErrSessionEnded  = errors.New("session already ended")
)

// ReportRepository хранилище метаданных отчётов
type ReportRepository interface {
	// CreateProcessing вставляет отчёт сразу в статусе processing
	CreateProcessing(ctx context.Context, report *Report) error
	MarkCompleted(ctx context.Context, id uuid.UUID, url, fileName string, sizeBytes int64, rowCount int) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Get(ctx context.Context, id uuid.UUID) (*Report, error)
	List(ctx context.Context, params ReportListParams) ([]*Report, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ReapStuck переводит в failed отчёты, висящие в processing дольше cutoff
	ReapStuck(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

// ExportRepository выгрузка строк источников отчётов
type ExportRepository interface {
	Export(ctx context.Context, q ExportQuery) ([]Record, error)
}

// AnalyticsRepository агрегаты для дашборда и графиков
type AnalyticsRepository interface {
	CountNewUsers(ctx context.Context, start, end time.Time) (int64, error)
	OrderTotals(ctx context.Context, start, end time.Time) (OrderTotals, error)
	CountActiveUsers(ctx context.Context, start, end time.Time) (int64, error)
	RevenueByDay(ctx context.Context, start, end time.Time) ([]DailyValue, error)
	ActivityByDay(ctx context.Context, start, end time.Time) ([]DailyValue, error)
	PopularPages(ctx context.Context, start, end time.Time, limit int) ([]PageStat, error)
	SessionStats(ctx context.Context, start, end time.Time) (SessionStats, error)
}

// ActivityRepository запись событий активности
type ActivityRepository interface {
	InsertActivity(ctx context.Context, a *Activity) error
	InsertPageView(ctx context.Context, pv *PageView) error
	CreateSession(ctx context.Context, s *Session) error
	EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time, bounced bool) (*Session, error)
	InsertErrorLog(ctx context.Context, e *ErrorLog) error
}

// MonitoringRepository снимки системы и очистка по сроку хранения
type MonitoringRepository interface {
	InsertSystemMetric(ctx context.Context, m *SystemMetric) error
	CountActiveSessions(ctx context.Context) (int64, error)
	Cleanup(ctx context.Context, cutoff time.Time) (CleanupResult, error)
}
