package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// HTTP метрики
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitHits        prometheus.Counter
	RateLimitPassed      prometheus.Counter

	// Поиск
	SearchRequestsTotal *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec

	// Отчёты
	ReportsGeneratedTotal    *prometheus.CounterVec
	ReportGenerationDuration *prometheus.HistogramVec
	ReportSizeBytes          *prometheus.HistogramVec
	ReportsReapedTotal       prometheus.Counter

	// Аналитика
	AnalyticsQueriesTotal *prometheus.CounterVec
	CacheRequestsTotal    *prometheus.CounterVec

	// Активность и мониторинг
	ActivityEventsTotal *prometheus.CounterVec
	SystemCPUUsage      prometheus.Gauge
	SystemMemoryUsage   prometheus.Gauge
	SystemHealthy       prometheus.Gauge
	CleanupRowsDeleted  *prometheus.CounterVec

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

var (
	defaultMetrics *Metrics
	defaultMu      sync.Mutex
)

// InitMetrics инициализирует метрики в глобальном реестре Prometheus
func InitMetrics(namespace, subsystem string) *Metrics {
	m := NewMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, namespace, subsystem)

	defaultMu.Lock()
	defaultMetrics = m
	defaultMu.Unlock()

	return m
}

// NewMetrics регистрирует метрики в переданном реестре
func NewMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer, namespace, subsystem string) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		RateLimitHits: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by rate limiter",
			},
		),

		RateLimitPassed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_passed_total",
				Help:      "Requests allowed by rate limiter",
			},
		),

		SearchRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "search_requests_total",
				Help:      "Total number of search requests",
			},
			[]string{"model", "status"},
		),

		SearchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "search_duration_seconds",
				Help:      "Duration of search queries",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"model"},
		),

		ReportsGeneratedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reports_generated_total",
				Help:      "Total number of generated reports",
			},
			[]string{"type", "format", "status"},
		),

		ReportGenerationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "report_generation_duration_seconds",
				Help:      "Duration of report generation",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"format"},
		),

		ReportSizeBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "report_size_bytes",
				Help:      "Size of generated report files",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"format"},
		),

		ReportsReapedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reports_reaped_total",
				Help:      "Reports stuck in processing that were marked failed",
			},
		),

		AnalyticsQueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "analytics_queries_total",
				Help:      "Total number of analytics queries",
			},
			[]string{"query", "status"},
		),

		CacheRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by result",
			},
			[]string{"cache", "result"},
		),

		ActivityEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "activity_events_total",
				Help:      "Tracked activity events by kind and outcome",
			},
			[]string{"kind", "status"},
		),

		SystemCPUUsage: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "system_cpu_usage_percent",
				Help:      "Last sampled host CPU usage",
			},
		),

		SystemMemoryUsage: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "system_memory_usage_ratio",
				Help:      "Last sampled host memory usage ratio",
			},
		),

		SystemHealthy: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "system_healthy",
				Help:      "1 when last health evaluation was healthy",
			},
		),

		CleanupRowsDeleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cleanup_rows_deleted_total",
				Help:      "Rows removed by retention cleanup",
			},
			[]string{"table"},
		),

		ServiceInfo: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),

		gatherer: gatherer,
	}

	return m
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	defaultMu.Lock()
	m := defaultMetrics
	defaultMu.Unlock()

	if m == nil {
		return InitMetrics("reviewhub", "")
	}
	return m
}

// RecordHTTPRequest записывает метрики HTTP запроса
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSearch записывает метрики поискового запроса
func (m *Metrics) RecordSearch(model string, success bool, duration time.Duration) {
	m.SearchRequestsTotal.WithLabelValues(model, statusLabel(success)).Inc()
	m.SearchDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordReport записывает метрики генерации отчёта
func (m *Metrics) RecordReport(reportType, format string, success bool, duration time.Duration, size int) {
	m.ReportsGeneratedTotal.WithLabelValues(reportType, format, statusLabel(success)).Inc()
	m.ReportGenerationDuration.WithLabelValues(format).Observe(duration.Seconds())
	if success {
		m.ReportSizeBytes.WithLabelValues(format).Observe(float64(size))
	}
}

// RecordAnalyticsQuery записывает метрики аналитического запроса
func (m *Metrics) RecordAnalyticsQuery(query string, success bool) {
	m.AnalyticsQueriesTotal.WithLabelValues(query, statusLabel(success)).Inc()
}

// RecordCache записывает попадание или промах кэша
func (m *Metrics) RecordCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

// RecordActivity записывает событие трекинга активности
func (m *Metrics) RecordActivity(kind, status string) {
	m.ActivityEventsTotal.WithLabelValues(kind, status).Inc()
}

// RecordSystemSnapshot обновляет gauge последнего снимка системы
func (m *Metrics) RecordSystemSnapshot(cpuPercent, memoryRatio float64, healthy bool) {
	m.SystemCPUUsage.Set(cpuPercent)
	m.SystemMemoryUsage.Set(memoryRatio)
	if healthy {
		m.SystemHealthy.Set(1)
	} else {
		m.SystemHealthy.Set(0)
	}
}

// RecordCleanup записывает количество удалённых строк по таблице
func (m *Metrics) RecordCleanup(table string, rows int64) {
	m.CleanupRowsDeleted.WithLabelValues(table).Add(float64(rows))
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Handler возвращает HTTP handler глобального реестра
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
