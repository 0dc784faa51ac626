// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config - главная структура конфигурации
type Config struct {
	App        AppConfig        `koanf:"app"`
	HTTP       HTTPConfig       `koanf:"http"`
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Search     SearchConfig     `koanf:"search"`
	Analytics  AnalyticsConfig  `koanf:"analytics"`
	Report     ReportConfig     `koanf:"report"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Activity   ActivityConfig   `koanf:"activity"`
}

// AppConfig - общие настройки приложения
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig - настройки HTTP сервера
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
}

// Address возвращает адрес для net.Listen
func (h HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", h.Port)
}

// CORSConfig - настройки CORS
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // путь к файлу логов
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // количество бэкапов
	MaxAge     int    `koanf:"max_age"`     // дней
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig - настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig - настройки OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig - настройки базы данных
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN возвращает строку подключения
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	default:
		return ""
	}
}

// CacheConfig - настройки кэширования
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // для in-memory
}

// Address возвращает адрес кэша
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
	ReportRequests  int           `koanf:"report_requests"` // отдельный лимит на генерацию отчётов
}

// SearchConfig конфигурация модуля поиска
type SearchConfig struct {
	DefaultLimit   int           `koanf:"default_limit"`
	MaxLimit       int           `koanf:"max_limit"`
	SuggestLimit   int           `koanf:"suggest_limit"`
	SearchAllLimit int           `koanf:"search_all_limit"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
}

// AnalyticsConfig конфигурация аналитики
type AnalyticsConfig struct {
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	PopularPagesTop int           `koanf:"popular_pages_top"`
	FillGaps        bool          `koanf:"fill_gaps"` // заполнять пустые дни нулями по умолчанию
}

// ReportConfig конфигурация сервиса отчётов
type ReportConfig struct {
	// Генерация
	DefaultLocale string `koanf:"default_locale"` // BCP 47, например "ar", "en-US"
	Timezone      string `koanf:"timezone"`
	MaxRows       int    `koanf:"max_rows"`
	CompanyName   string `koanf:"company_name"`

	// Watchdog для зависших отчётов
	StuckTimeout     time.Duration `koanf:"stuck_timeout"`
	WatchdogSchedule string        `koanf:"watchdog_schedule"` // cron выражение

	// Хранилище файлов
	Storage StorageConfig `koanf:"storage"`

	// PDF генерация
	PDF PDFConfig `koanf:"pdf"`
}

// StorageConfig конфигурация хранилища файлов отчётов
type StorageConfig struct {
	Driver        string `koanf:"driver"` // local, s3
	LocalDir      string `koanf:"local_dir"`
	PublicBaseURL string `koanf:"public_base_url"`

	S3Bucket          string `koanf:"s3_bucket"`
	S3Region          string `koanf:"s3_region"`
	S3Prefix          string `koanf:"s3_prefix"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
}

// PDFConfig конфигурация PDF генератора
type PDFConfig struct {
	PageSize          string  `koanf:"page_size"`   // A4, Letter, Legal
	Orientation       string  `koanf:"orientation"` // portrait, landscape
	MarginTop         float64 `koanf:"margin_top"`  // mm
	MarginLeft        float64 `koanf:"margin_left"` // mm
	MarginRight       float64 `koanf:"margin_right"`
	FontSize          float64 `koanf:"font_size"`        // pt
	HeaderFontSize    float64 `koanf:"header_font_size"` // pt
	EnablePageNumbers bool    `koanf:"enable_page_numbers"`
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Interval        time.Duration `koanf:"interval"`
	BufferSize      int           `koanf:"buffer_size"` // 1440 = сутки при интервале в минуту
	RetentionDays   int           `koanf:"retention_days"`
	CleanupSchedule string        `koanf:"cleanup_schedule"` // cron выражение, пусто = выключено
	CPUThreshold    float64       `koanf:"cpu_threshold"`
	MemoryThreshold float64       `koanf:"memory_threshold"`
	ErrorThreshold  float64       `koanf:"error_threshold"`
}

// ActivityConfig конфигурация трекинга активности
type ActivityConfig struct {
	BufferSize   int           `koanf:"buffer_size"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		errs = append(errs, "search.default_limit must be positive and not exceed search.max_limit")
	}

	validDrivers := map[string]bool{"local": true, "s3": true}
	if !validDrivers[c.Report.Storage.Driver] {
		errs = append(errs, fmt.Sprintf("report.storage.driver must be one of: local, s3, got %s", c.Report.Storage.Driver))
	}
	if c.Report.Storage.Driver == "s3" && c.Report.Storage.S3Bucket == "" {
		errs = append(errs, "report.storage.s3_bucket is required for s3 driver")
	}

	validPageSizes := map[string]bool{"A4": true, "Letter": true, "Legal": true, "A3": true}
	if c.Report.PDF.PageSize != "" && !validPageSizes[c.Report.PDF.PageSize] {
		errs = append(errs, fmt.Sprintf("report.pdf.page_size must be one of: A4, Letter, Legal, A3, got %s", c.Report.PDF.PageSize))
	}

	validOrientations := map[string]bool{"portrait": true, "landscape": true}
	if c.Report.PDF.Orientation != "" && !validOrientations[c.Report.PDF.Orientation] {
		errs = append(errs, fmt.Sprintf("report.pdf.orientation must be one of: portrait, landscape, got %s", c.Report.PDF.Orientation))
	}

	if c.Monitoring.Enabled && c.Monitoring.Interval <= 0 {
		errs = append(errs, "monitoring.interval must be positive")
	}
	if c.Monitoring.BufferSize <= 0 {
		errs = append(errs, "monitoring.buffer_size must be positive")
	}
	if c.Monitoring.RetentionDays <= 0 {
		errs = append(errs, "monitoring.retention_days must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment проверяет режим разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction проверяет продакшн режим
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
