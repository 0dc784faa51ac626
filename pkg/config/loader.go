package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "REVIEWHUB_"
	configEnvVar = "CONFIG_PATH"
)

// Loader загружает конфигурацию из разных источников
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader создаёт новый загрузчик конфигурации
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/reviewhub/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption - опция для конфигурации загрузчика
type LoaderOption func(*Loader)

// WithConfigPaths устанавливает пути поиска конфигурации
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix устанавливает префикс переменных окружения
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load загружает конфигурацию с приоритетом:
// 1. Defaults (самый низкий)
// 2. Config file (yaml)
// 3. Environment variables (самый высокий)
func (l *Loader) Load() (*Config, error) {
	// 1. Загружаем значения по умолчанию
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Загружаем из файла конфигурации
	if err := l.loadConfigFile(); err != nil {
		// Файл не обязателен, логируем warning
		fmt.Printf("Warning: %v\n", err)
	}

	// 3. Загружаем из переменных окружения (перезаписывают файл)
	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	// 4. Распаковываем в структуру
	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Валидируем
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults загружает значения по умолчанию
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "reviewhub-service",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// HTTP
		"http.port":             8080,
		"http.read_timeout":     30 * time.Second,
		"http.write_timeout":    60 * time.Second,
		"http.shutdown_timeout": 10 * time.Second,
		// CORS
		"http.cors.enabled":           true,
		"http.cors.allowed_origins":   []string{"*"},
		"http.cors.allowed_methods":   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		"http.cors.allowed_headers":   []string{"Content-Type", "Authorization", "Accept", "Origin", "X-Requested-With", "X-Request-ID"},
		"http.cors.exposed_headers":   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Content-Disposition"},
		"http.cors.allow_credentials": false,
		"http.cors.max_age":           86400,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.path":      "/metrics",
		"metrics.namespace": "reviewhub",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "reviewhub-service",
		"tracing.sample_rate":  0.1,

		// Database
		"database.driver":             "postgres",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "reviewhub",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.auto_migrate":       true,

		// Cache
		"cache.enabled":     false,
		"cache.driver":      "memory",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.db":          0,
		"cache.default_ttl": 5 * time.Minute,
		"cache.max_entries": 10000,

		// Rate Limit
		"rate_limit.enabled":          true,
		"rate_limit.requests":         100,
		"rate_limit.window":           time.Minute,
		"rate_limit.strategy":         "sliding_window",
		"rate_limit.backend":          "memory",
		"rate_limit.burst_size":       10,
		"rate_limit.cleanup_interval": 5 * time.Minute,
		"rate_limit.report_requests":  10,

		// Search
		"search.default_limit":    10,
		"search.max_limit":        100,
		"search.suggest_limit":    5,
		"search.search_all_limit": 3,
		"search.cache_ttl":        30 * time.Second,

		// Analytics
		"analytics.cache_ttl":         time.Minute,
		"analytics.popular_pages_top": 10,
		"analytics.fill_gaps":         false,

		// Report
		"report.default_locale":    "ar",
		"report.timezone":          "UTC",
		"report.max_rows":          50000,
		"report.company_name":      "ReviewHub",
		"report.stuck_timeout":     15 * time.Minute,
		"report.watchdog_schedule": "@every 5m",

		// Report - Storage
		"report.storage.driver":          "local",
		"report.storage.local_dir":       "./data/reports",
		"report.storage.public_base_url": "/api/reports/download",
		"report.storage.s3_region":       "us-east-1",
		"report.storage.s3_prefix":       "reports/",

		// Report - PDF
		"report.pdf.page_size":           "A4",
		"report.pdf.orientation":         "portrait",
		"report.pdf.margin_top":          10.0,
		"report.pdf.margin_left":         10.0,
		"report.pdf.margin_right":        10.0,
		"report.pdf.font_size":           8.0,
		"report.pdf.header_font_size":    14.0,
		"report.pdf.enable_page_numbers": true,

		// Monitoring
		"monitoring.enabled":          true,
		"monitoring.interval":         time.Minute,
		"monitoring.buffer_size":      1440,
		"monitoring.retention_days":   30,
		"monitoring.cleanup_schedule": "0 3 * * *",
		"monitoring.cpu_threshold":    80.0,
		"monitoring.memory_threshold": 0.8,
		"monitoring.error_threshold":  5.0,

		// Activity
		"activity.buffer_size":   1000,
		"activity.write_timeout": 5 * time.Second,
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile загружает конфигурацию из файла
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv загружает конфигурацию из переменных окружения
// Использует умную трансформацию ключей для полей с подчёркиванием
func (l *Loader) loadEnv() error {
	return l.k.Load(env.ProviderWithValue(l.envPrefix, ".", func(envKey string, value string) (string, interface{}) {
		// Убираем префикс и приводим к нижнему регистру
		key := strings.ToLower(strings.TrimPrefix(envKey, l.envPrefix))

		// Маппинг для полей с подчёркиванием в именах
		if mappedKey, ok := envKeyMappings[key]; ok {
			key = mappedKey
		} else {
			// По умолчанию заменяем все подчёркивания на точки
			key = strings.ReplaceAll(key, "_", ".")
		}

		// Для slice-полей разбиваем по запятой
		if isSliceField(key) {
			return key, splitAndTrim(value)
		}

		return key, value
	}), nil)
}

// envKeyMappings - маппинг переменных окружения на ключи конфига
// Необходим для полей, содержащих подчёркивания в именах
var envKeyMappings = map[string]string{
	// HTTP CORS
	"http_cors_enabled":           "http.cors.enabled",
	"http_cors_allowed_origins":   "http.cors.allowed_origins",
	"http_cors_allowed_methods":   "http.cors.allowed_methods",
	"http_cors_allowed_headers":   "http.cors.allowed_headers",
	"http_cors_exposed_headers":   "http.cors.exposed_headers",
	"http_cors_allow_credentials": "http.cors.allow_credentials",
	"http_cors_max_age":           "http.cors.max_age",

	// HTTP
	"http_port":             "http.port",
	"http_read_timeout":     "http.read_timeout",
	"http_write_timeout":    "http.write_timeout",
	"http_shutdown_timeout": "http.shutdown_timeout",

	// Database
	"database_driver":             "database.driver",
	"database_host":               "database.host",
	"database_port":               "database.port",
	"database_database":           "database.database",
	"database_username":           "database.username",
	"database_password":           "database.password",
	"database_ssl_mode":           "database.ssl_mode",
	"database_max_open_conns":     "database.max_open_conns",
	"database_max_idle_conns":     "database.max_idle_conns",
	"database_conn_max_lifetime":  "database.conn_max_lifetime",
	"database_conn_max_idle_time": "database.conn_max_idle_time",
	"database_auto_migrate":       "database.auto_migrate",

	// Cache
	"cache_enabled":     "cache.enabled",
	"cache_driver":      "cache.driver",
	"cache_host":        "cache.host",
	"cache_port":        "cache.port",
	"cache_password":    "cache.password",
	"cache_db":          "cache.db",
	"cache_default_ttl": "cache.default_ttl",
	"cache_max_entries": "cache.max_entries",

	// Rate limit
	"rate_limit_enabled":          "rate_limit.enabled",
	"rate_limit_requests":         "rate_limit.requests",
	"rate_limit_window":           "rate_limit.window",
	"rate_limit_strategy":         "rate_limit.strategy",
	"rate_limit_backend":          "rate_limit.backend",
	"rate_limit_burst_size":       "rate_limit.burst_size",
	"rate_limit_cleanup_interval": "rate_limit.cleanup_interval",
	"rate_limit_redis_addr":       "rate_limit.redis_addr",
	"rate_limit_report_requests":  "rate_limit.report_requests",

	// Log
	"log_level":       "log.level",
	"log_format":      "log.format",
	"log_output":      "log.output",
	"log_file_path":   "log.file_path",
	"log_max_size":    "log.max_size",
	"log_max_backups": "log.max_backups",
	"log_max_age":     "log.max_age",
	"log_compress":    "log.compress",

	// Search
	"search_default_limit":    "search.default_limit",
	"search_max_limit":        "search.max_limit",
	"search_suggest_limit":    "search.suggest_limit",
	"search_search_all_limit": "search.search_all_limit",
	"search_cache_ttl":        "search.cache_ttl",

	// Analytics
	"analytics_cache_ttl":         "analytics.cache_ttl",
	"analytics_popular_pages_top": "analytics.popular_pages_top",
	"analytics_fill_gaps":         "analytics.fill_gaps",

	// Report
	"report_default_locale":    "report.default_locale",
	"report_timezone":          "report.timezone",
	"report_max_rows":          "report.max_rows",
	"report_company_name":      "report.company_name",
	"report_stuck_timeout":     "report.stuck_timeout",
	"report_watchdog_schedule": "report.watchdog_schedule",

	// Report storage
	"report_storage_driver":               "report.storage.driver",
	"report_storage_local_dir":            "report.storage.local_dir",
	"report_storage_public_base_url":      "report.storage.public_base_url",
	"report_storage_s3_bucket":            "report.storage.s3_bucket",
	"report_storage_s3_region":            "report.storage.s3_region",
	"report_storage_s3_prefix":            "report.storage.s3_prefix",
	"report_storage_s3_endpoint":          "report.storage.s3_endpoint",
	"report_storage_s3_access_key_id":     "report.storage.s3_access_key_id",
	"report_storage_s3_secret_access_key": "report.storage.s3_secret_access_key",

	// Monitoring
	"monitoring_enabled":          "monitoring.enabled",
	"monitoring_interval":         "monitoring.interval",
	"monitoring_buffer_size":      "monitoring.buffer_size",
	"monitoring_retention_days":   "monitoring.retention_days",
	"monitoring_cleanup_schedule": "monitoring.cleanup_schedule",
	"monitoring_cpu_threshold":    "monitoring.cpu_threshold",
	"monitoring_memory_threshold": "monitoring.memory_threshold",
	"monitoring_error_threshold":  "monitoring.error_threshold",

	// Activity
	"activity_buffer_size":   "activity.buffer_size",
	"activity_write_timeout": "activity.write_timeout",
}

// sliceFields - поля, которые должны парситься как слайсы
var sliceFields = map[string]bool{
	"http.cors.allowed_origins": true,
	"http.cors.allowed_methods": true,
	"http.cors.allowed_headers": true,
	"http.cors.exposed_headers": true,
}

func isSliceField(key string) bool {
	return sliceFields[key]
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Load - удобная функция для загрузки с дефолтными настройками
func Load() (*Config, error) {
	return NewLoader().Load()
}

// LoadWithServiceDefaults загружает конфигурацию с переопределением для конкретного сервиса
func LoadWithServiceDefaults(serviceName string, defaultPort int) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 8080 && defaultPort != 0 {
		cfg.HTTP.Port = defaultPort
	}

	if cfg.App.Name == "reviewhub-service" {
		cfg.App.Name = serviceName
	}
	if cfg.Tracing.ServiceName == "reviewhub-service" {
		cfg.Tracing.ServiceName = serviceName
	}

	return cfg, nil
}
