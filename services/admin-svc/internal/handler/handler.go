// Package handler REST API админки: поиск, аналитика, отчёты, трекинг
// активности и мониторинг.
package handler

import (
	"context"
	"io"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"reviewhub/services/admin-svc/internal/analytics"
	"reviewhub/services/admin-svc/internal/monitoring"
	"reviewhub/services/admin-svc/internal/report"
	"reviewhub/services/admin-svc/internal/repository"
	"reviewhub/services/admin-svc/internal/search"
)

// SearchService поиск по моделям
type SearchService interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
	Suggest(ctx context.Context, query string, model search.SearchableModel) ([]string, error)
	SearchAll(ctx context.Context, query string) (map[search.SearchableModel]*search.Result, error)
}

// AnalyticsService метрики дашборда и графики
type AnalyticsService interface {
	GetDashboardMetrics(ctx context.Context, r analytics.TimeRange) (*analytics.DashboardMetrics, error)
	GetRevenueChart(ctx context.Context, r analytics.TimeRange, opts analytics.ChartOptions) ([]analytics.ChartPoint, error)
	GetUserActivityChart(ctx context.Context, r analytics.TimeRange, opts analytics.ChartOptions) ([]analytics.ChartPoint, error)
	GetPopularPages(ctx context.Context, r analytics.TimeRange) ([]repository.PageStat, error)
	GetUserBehavior(ctx context.Context, r analytics.TimeRange) (*analytics.UserBehavior, error)
}

// ReportService генерация и хранение отчётов
type ReportService interface {
	GenerateReport(ctx context.Context, reportType repository.ReportType, opts report.Options) (*repository.Report, error)
	ListReports(ctx context.Context, params report.ListParams) (*report.ListResult, error)
	GetReport(ctx context.Context, id uuid.UUID) (*repository.Report, error)
	DeleteReport(ctx context.Context, id uuid.UUID) error
	Download(ctx context.Context, fileName string) (io.ReadCloser, string, error)
}

// ActivityTracker трекинг активности и сессий
type ActivityTracker interface {
	TrackActivity(ctx context.Context, a repository.Activity) error
	TrackPageView(ctx context.Context, pv repository.PageView) error
	StartSession(ctx context.Context, userID *uuid.UUID, userAgent, ipAddress string) (*repository.Session, error)
	EndSession(ctx context.Context, id uuid.UUID, bounced bool) (*repository.Session, error)
}

// SystemMonitor состояние системы
type SystemMonitor interface {
	GetSystemHealth(ctx context.Context) (*monitoring.SystemHealth, error)
	Recent(n int) []repository.SystemMetric
	Cleanup(ctx context.Context, retentionDays int) (*repository.CleanupResult, error)
}

// ReadinessFunc проверка готовности зависимостей (БД, кэш)
type ReadinessFunc func(ctx context.Context) error

// Deps зависимости обработчиков
type Deps struct {
	Search    SearchService
	Analytics AnalyticsService
	Reports   ReportService
	Tracker   ActivityTracker
	Monitor   SystemMonitor
	Ready     ReadinessFunc
	Version   string
}

// Handler REST обработчики
type Handler struct {
	search    SearchService
	analytics AnalyticsService
	reports   ReportService
	tracker   ActivityTracker
	monitor   SystemMonitor
	ready     ReadinessFunc
	version   string
	validate  *validator.Validate
	now       func() time.Time
}

// New создаёт обработчики
func New(deps Deps) *Handler {
	return &Handler{
		search:    deps.Search,
		analytics: deps.Analytics,
		reports:   deps.Reports,
		tracker:   deps.Tracker,
		monitor:   deps.Monitor,
		ready:     deps.Ready,
		version:   deps.Version,
		validate:  newValidator(),
		now:       time.Now,
	}
}

// Mount регистрирует маршруты API на роутере
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Route("/search", func(r chi.Router) {
			r.Get("/", h.Search)
			r.Post("/", h.SearchJSON)
			r.Get("/suggest", h.Suggest)
			r.Get("/all", h.SearchAll)
		})

		r.Route("/admin/analytics", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.Get("/revenue", h.RevenueChart)
			r.Get("/activity", h.ActivityChart)
			r.Get("/pages", h.PopularPages)
			r.Get("/behavior", h.UserBehavior)
		})

		r.Route("/admin/reports", func(r chi.Router) {
			r.Post("/", h.GenerateReport)
			r.Get("/", h.ListReports)
			r.Get("/{id}", h.GetReport)
			r.Delete("/{id}", h.DeleteReport)
		})
		r.Get("/reports/download/{filename}", h.DownloadReport)

		r.Post("/activity", h.TrackActivity)
		r.Post("/activity/pageview", h.TrackPageView)
		r.Post("/sessions", h.StartSession)
		r.Post("/sessions/{id}/end", h.EndSession)

		r.Route("/monitoring", func(r chi.Router) {
			r.Get("/health", h.SystemHealth)
			r.Get("/metrics", h.RecentMetrics)
			r.Post("/cleanup", h.Cleanup)
		})
	})
}
