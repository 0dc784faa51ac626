// Package analytics считает метрики дашборда, графики и поведение
// пользователей за произвольное окно времени.
package analytics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/cache"
	"reviewhub/pkg/config"
	"reviewhub/pkg/metrics"
	"reviewhub/pkg/telemetry"
	"reviewhub/services/admin-svc/internal/repository"
)

// Metric значение за текущее окно и сравнение с предыдущим
type Metric struct {
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Previous float64 `json:"previous"`
	Change   float64 `json:"change"`
	Trend    Trend   `json:"trend"`
}

// DashboardMetrics сводка дашборда
type DashboardMetrics struct {
	Users       Metric    `json:"users"`
	Orders      Metric    `json:"orders"`
	Revenue     Metric    `json:"revenue"`
	ActiveUsers Metric    `json:"activeUsers"`
	Period      TimeRange `json:"period"`
	Previous    TimeRange `json:"previousPeriod"`
}

// ChartPoint точка графика за UTC-сутки
type ChartPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// ChartOptions параметры графиков
type ChartOptions struct {
	FillGaps bool `json:"fillGaps"`
}

// UserBehavior поведение пользователей за окно
type UserBehavior struct {
	AvgSessionDuration float64 `json:"avgSessionDuration"`
	BounceRate         float64 `json:"bounceRate"`
	ReturningUsers     int64   `json:"returningUsers"`
	UniqueUsers        int64   `json:"uniqueUsers"`
	TotalSessions      int64   `json:"totalSessions"`
}

// Service сервис аналитики
type Service struct {
	repo     repository.AnalyticsRepository
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	topPages int
}

// NewService создаёт сервис. qc может быть nil.
func NewService(repo repository.AnalyticsRepository, cfg config.AnalyticsConfig, qc *cache.QueryCache) *Service {
	top := cfg.PopularPagesTop
	if top <= 0 {
		top = 10
	}
	return &Service{
		repo:     repo,
		cache:    qc,
		metrics:  metrics.Get(),
		topPages: top,
	}
}

type cacheParams struct {
	Query    string    `json:"q"`
	Start    time.Time `json:"s"`
	End      time.Time `json:"e"`
	FillGaps bool      `json:"f,omitempty"`
}

func (s *Service) start(ctx context.Context, name string, r TimeRange) (context.Context, trace.Span, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnalyticsService."+name)
	if err := r.Validate(); err != nil {
		return ctx, span, err
	}
	telemetry.SetAttributes(ctx, telemetry.AnalyticsAttributes(name, r.Days())...)
	return ctx, span, nil
}

func (s *Service) finish(ctx context.Context, query string, err error) error {
	s.metrics.RecordAnalyticsQuery(query, err == nil)
	if err == nil {
		return nil
	}
	telemetry.SetError(ctx, err)
	return apperror.Wrap(err, apperror.CodeInternal, "analytics query "+query+" failed")
}

// GetDashboardMetrics метрики текущего окна в сравнении с предыдущим окном той же длительности
func (s *Service) GetDashboardMetrics(ctx context.Context, r TimeRange) (*DashboardMetrics, error) {
	ctx, span, err := s.start(ctx, "GetDashboardMetrics", r)
	defer span.End()
	if err != nil {
		return nil, err
	}

	params := cacheParams{Query: "dashboard", Start: r.Start, End: r.End}
	result, err := cache.Load(ctx, s.cache, params, func(ctx context.Context) (*DashboardMetrics, error) {
		return s.dashboard(ctx, r)
	})
	if err = s.finish(ctx, "dashboard", err); err != nil {
		return nil, err
	}
	return result, nil
}

type windowTotals struct {
	users  int64
	orders repository.OrderTotals
	active int64
}

func (s *Service) totals(ctx context.Context, g *errgroup.Group, r TimeRange, out *windowTotals) {
	g.Go(func() error {
		n, err := s.repo.CountNewUsers(ctx, r.Start, r.End)
		out.users = n
		return err
	})
	g.Go(func() error {
		t, err := s.repo.OrderTotals(ctx, r.Start, r.End)
		out.orders = t
		return err
	})
	g.Go(func() error {
		n, err := s.repo.CountActiveUsers(ctx, r.Start, r.End)
		out.active = n
		return err
	})
}

func (s *Service) dashboard(ctx context.Context, r TimeRange) (*DashboardMetrics, error) {
	prev := r.Previous()

	var cur, old windowTotals
	g, gctx := errgroup.WithContext(ctx)
	s.totals(gctx, g, r, &cur)
	s.totals(gctx, g, prev, &old)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &DashboardMetrics{
		Users:       newMetric("New users", float64(cur.users), float64(old.users)),
		Orders:      newMetric("Orders", float64(cur.orders.Count), float64(old.orders.Count)),
		Revenue:     newMetric("Revenue", round2(cur.orders.Revenue), round2(old.orders.Revenue)),
		ActiveUsers: newMetric("Active users", float64(cur.active), float64(old.active)),
		Period:      r,
		Previous:    prev,
	}, nil
}

// GetRevenueChart сумма заказов по UTC-суткам
func (s *Service) GetRevenueChart(ctx context.Context, r TimeRange, opts ChartOptions) ([]ChartPoint, error) {
	return s.chart(ctx, "revenue", r, opts, s.repo.RevenueByDay)
}

// GetUserActivityChart количество событий активности по UTC-суткам
func (s *Service) GetUserActivityChart(ctx context.Context, r TimeRange, opts ChartOptions) ([]ChartPoint, error) {
	return s.chart(ctx, "activity", r, opts, s.repo.ActivityByDay)
}

func (s *Service) chart(
	ctx context.Context,
	query string,
	r TimeRange,
	opts ChartOptions,
	load func(ctx context.Context, start, end time.Time) ([]repository.DailyValue, error),
) ([]ChartPoint, error) {
	ctx, span, err := s.start(ctx, "chart."+query, r)
	defer span.End()
	if err != nil {
		return nil, err
	}

	params := cacheParams{Query: query, Start: r.Start, End: r.End, FillGaps: opts.FillGaps}
	points, err := cache.Load(ctx, s.cache, params, func(ctx context.Context) ([]ChartPoint, error) {
		values, err := load(ctx, r.Start, r.End)
		if err != nil {
			return nil, err
		}
		return toPoints(values, r, opts.FillGaps), nil
	})
	if err = s.finish(ctx, query, err); err != nil {
		return nil, err
	}
	return points, nil
}

// GetPopularPages самые просматриваемые страницы окна
func (s *Service) GetPopularPages(ctx context.Context, r TimeRange) ([]repository.PageStat, error) {
	ctx, span, err := s.start(ctx, "GetPopularPages", r)
	defer span.End()
	if err != nil {
		return nil, err
	}

	params := cacheParams{Query: "pages", Start: r.Start, End: r.End}
	pages, err := cache.Load(ctx, s.cache, params, func(ctx context.Context) ([]repository.PageStat, error) {
		pages, err := s.repo.PopularPages(ctx, r.Start, r.End, s.topPages)
		if pages == nil && err == nil {
			pages = []repository.PageStat{}
		}
		return pages, err
	})
	if err = s.finish(ctx, "pages", err); err != nil {
		return nil, err
	}
	return pages, nil
}

// GetUserBehavior средняя длительность, отказы и возвраты пользователей
func (s *Service) GetUserBehavior(ctx context.Context, r TimeRange) (*UserBehavior, error) {
	ctx, span, err := s.start(ctx, "GetUserBehavior", r)
	defer span.End()
	if err != nil {
		return nil, err
	}

	params := cacheParams{Query: "behavior", Start: r.Start, End: r.End}
	behavior, err := cache.Load(ctx, s.cache, params, func(ctx context.Context) (*UserBehavior, error) {
		stats, err := s.repo.SessionStats(ctx, r.Start, r.End)
		if err != nil {
			return nil, err
		}
		return &UserBehavior{
			AvgSessionDuration: round2(stats.AvgDuration),
			BounceRate:         bounceRate(stats.Bounced, stats.TotalSessions),
			ReturningUsers:     stats.ReturningUsers,
			UniqueUsers:        stats.UniqueUsers,
			TotalSessions:      stats.TotalSessions,
		}, nil
	})
	if err = s.finish(ctx, "behavior", err); err != nil {
		return nil, err
	}
	return behavior, nil
}
