package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"reviewhub/gen/openapi"
	"reviewhub/migrations"
	"reviewhub/pkg/cache"
	"reviewhub/pkg/config"
	"reviewhub/pkg/database"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/metrics"
	"reviewhub/pkg/ratelimit"
	"reviewhub/pkg/server"
	"reviewhub/pkg/swagger"
	"reviewhub/pkg/telemetry"
	"reviewhub/services/admin-svc/internal/activity"
	"reviewhub/services/admin-svc/internal/analytics"
	"reviewhub/services/admin-svc/internal/handler"
	"reviewhub/services/admin-svc/internal/jobs"
	"reviewhub/services/admin-svc/internal/middleware"
	"reviewhub/services/admin-svc/internal/monitoring"
	"reviewhub/services/admin-svc/internal/report"
	"reviewhub/services/admin-svc/internal/report/generator"
	"reviewhub/services/admin-svc/internal/report/storage"
	"reviewhub/services/admin-svc/internal/repository"
	"reviewhub/services/admin-svc/internal/search"
)

var errShuttingDown = errors.New("server is shutting down")

func main() {
	cfg, err := config.LoadWithServiceDefaults("admin-svc", 8080)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx := context.Background()

	m := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	prometheus.MustRegister(metrics.NewRuntimeCollector(cfg.Metrics.Namespace, cfg.Metrics.Subsystem))

	// База данных
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database,
			migrations.PostgresMigrations, migrations.PostgresDir); err != nil {
			logger.Fatal("failed to run migrations", "error", err)
		}
	}

	// Кэш запросов поиска и аналитики
	var backend cache.Cache
	if cfg.Cache.Enabled {
		backend, err = cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			logger.Fatal("failed to init cache", "error", err)
		}
		logger.Info("Cache initialized", "driver", cfg.Cache.Driver)
	}
	var searchCache, analyticsCache *cache.QueryCache
	if backend != nil {
		searchCache = cache.NewQueryCache(backend, "search", cfg.Search.CacheTTL, m.RecordCache)
		analyticsCache = cache.NewQueryCache(backend, "analytics", cfg.Analytics.CacheTTL, m.RecordCache)
	}

	// Хранилище отчётов
	store, err := storage.New(ctx, cfg.Report.Storage)
	if err != nil {
		logger.Fatal("failed to init report storage", "error", err)
	}

	reportRepo := repository.NewPostgresReportRepository(db)
	reports := report.NewService(
		report.ServiceConfig{
			DefaultLocale: cfg.Report.DefaultLocale,
			Timezone:      cfg.Report.Timezone,
			MaxRows:       cfg.Report.MaxRows,
			CompanyName:   cfg.Report.CompanyName,
		},
		reportRepo,
		repository.NewPostgresExportRepository(db),
		store,
		generator.NewFactory(cfg.Report.PDF),
	)

	searchSvc := search.NewService(db, cfg.Search, searchCache)
	analyticsSvc := analytics.NewService(repository.NewPostgresAnalyticsRepository(db), cfg.Analytics, analyticsCache)

	// Мониторинг и трекинг
	monitor := monitoring.NewMonitor(repository.NewPostgresMonitoringRepository(db), cfg.Monitoring, monitoring.NewProcSampler(), nil)
	if analyticsCache != nil {
		monitor.InvalidateOnCleanup(analyticsCache)
	}
	if cfg.Monitoring.Enabled {
		if err := monitor.Start(ctx, cfg.Monitoring.Interval); err != nil {
			logger.Fatal("failed to start monitoring", "error", err)
		}
	}
	tracker := activity.NewTracker(repository.NewPostgresActivityRepository(db), cfg.Activity, monitor)

	// Периодические задачи
	scheduler := jobs.NewScheduler(0)
	if err := scheduler.AddCleanup(cfg.Monitoring.CleanupSchedule, monitor, cfg.Monitoring.RetentionDays); err != nil {
		logger.Fatal("failed to schedule cleanup", "error", err)
	}
	if err := scheduler.AddWatchdog(cfg.Report.WatchdogSchedule, reports, cfg.Report.StuckTimeout); err != nil {
		logger.Fatal("failed to schedule report watchdog", "error", err)
	}
	scheduler.Start()

	// Rate limit: общий лимит и отдельный для генерации отчётов
	var limits *ratelimit.RouteLimits
	if cfg.RateLimit.Enabled {
		rlCfg := ratelimit.FromConfig(&cfg.RateLimit)
		fallback, err := ratelimit.New(rlCfg)
		if err != nil {
			logger.Fatal("failed to init rate limiter", "error", err)
		}
		limits = ratelimit.NewRouteLimits(fallback)
		if cfg.RateLimit.ReportRequests > 0 {
			reportLimiter, err := ratelimit.New(rlCfg.WithRequests(cfg.RateLimit.ReportRequests, "ratelimit:reports:"))
			if err != nil {
				logger.Fatal("failed to init report rate limiter", "error", err)
			}
			limits.Set("/api/admin/reports", reportLimiter)
		}
	}

	var srv *server.HTTPServer

	h := handler.New(handler.Deps{
		Search:    searchSvc,
		Analytics: analyticsSvc,
		Reports:   reports,
		Tracker:   tracker,
		Monitor:   monitor,
		Version:   cfg.App.Version,
		Ready: func(ctx context.Context) error {
			if err := db.HealthCheck(ctx); err != nil {
				return err
			}
			if srv != nil && !srv.Ready() {
				return errShuttingDown
			}
			return nil
		},
	})

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(telemetry.HTTPMiddleware)
	r.Use(middleware.Logging)
	if cfg.HTTP.CORS.Enabled {
		r.Use(middleware.CORS(cfg.HTTP.CORS))
	}
	r.Use(middleware.Metrics(monitor, tracker))
	if limits != nil {
		r.Use(middleware.RateLimit(limits, ratelimit.IPKeyExtractor))
	}

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metrics.Handler())
	}
	swagger.RegisterRoutes(r, nil, openapi.MustGetSpec())
	h.Mount(r)

	srv = server.New(cfg, r)

	// Хуки выполняются в обратном порядке: сначала задачи и мониторинг, БД последней
	srv.OnShutdown("database", func(context.Context) error {
		db.Close()
		return nil
	})
	if backend != nil {
		srv.OnShutdown("cache", func(context.Context) error { return backend.Close() })
	}
	if limits != nil {
		srv.OnShutdown("rate limiter", func(context.Context) error { return limits.Close() })
	}
	srv.OnShutdown("activity tracker", func(context.Context) error { return tracker.Close() })
	srv.OnShutdown("monitoring", func(context.Context) error {
		monitor.Stop()
		return nil
	})
	srv.OnShutdown("scheduler", scheduler.Stop)

	logger.Info("Starting admin service",
		"port", cfg.HTTP.Port,
		"storage", cfg.Report.Storage.Driver,
		"cache_enabled", backend != nil,
		"rate_limit_enabled", limits != nil,
		"monitoring_enabled", cfg.Monitoring.Enabled,
		"started_at", time.Now().UTC(),
	)

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}
