package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/cache"
	"reviewhub/pkg/config"
	"reviewhub/services/admin-svc/internal/repository"
)

// MockAnalyticsRepository мок репозитория аналитики
type MockAnalyticsRepository struct {
	mock.Mock
}

func (m *MockAnalyticsRepository) CountNewUsers(ctx context.Context, start, end time.Time) (int64, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAnalyticsRepository) OrderTotals(ctx context.Context, start, end time.Time) (repository.OrderTotals, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).(repository.OrderTotals), args.Error(1)
}

func (m *MockAnalyticsRepository) CountActiveUsers(ctx context.Context, start, end time.Time) (int64, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAnalyticsRepository) RevenueByDay(ctx context.Context, start, end time.Time) ([]repository.DailyValue, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.DailyValue), args.Error(1)
}

func (m *MockAnalyticsRepository) ActivityByDay(ctx context.Context, start, end time.Time) ([]repository.DailyValue, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.DailyValue), args.Error(1)
}

func (m *MockAnalyticsRepository) PopularPages(ctx context.Context, start, end time.Time, limit int) ([]repository.PageStat, error) {
	args := m.Called(ctx, start, end, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.PageStat), args.Error(1)
}

func (m *MockAnalyticsRepository) SessionStats(ctx context.Context, start, end time.Time) (repository.SessionStats, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).(repository.SessionStats), args.Error(1)
}

var (
	week = TimeRange{
		Start: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	prevWeek = TimeRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   week.Start,
	}
	testAnalyticsConfig = config.AnalyticsConfig{PopularPagesTop: 10}
)

func newRepo(t *testing.T) *MockAnalyticsRepository {
	repo := new(MockAnalyticsRepository)
	t.Cleanup(func() { repo.AssertExpectations(t) })
	return repo
}

func expectDashboard(repo *MockAnalyticsRepository) {
	repo.On("CountNewUsers", mock.Anything, week.Start, week.End).Return(int64(5), nil).Once()
	repo.On("CountNewUsers", mock.Anything, prevWeek.Start, prevWeek.End).Return(int64(0), nil).Once()
	repo.On("OrderTotals", mock.Anything, week.Start, week.End).
		Return(repository.OrderTotals{Count: 20, Revenue: 1500.456}, nil).Once()
	repo.On("OrderTotals", mock.Anything, prevWeek.Start, prevWeek.End).
		Return(repository.OrderTotals{Count: 10, Revenue: 1500.456}, nil).Once()
	repo.On("CountActiveUsers", mock.Anything, week.Start, week.End).Return(int64(0), nil).Once()
	repo.On("CountActiveUsers", mock.Anything, prevWeek.Start, prevWeek.End).Return(int64(5), nil).Once()
}

func TestGetDashboardMetrics(t *testing.T) {
	repo := newRepo(t)
	expectDashboard(repo)
	svc := NewService(repo, testAnalyticsConfig, nil)

	m, err := svc.GetDashboardMetrics(context.Background(), week)
	require.NoError(t, err)

	assert.Equal(t, 20.0, m.Orders.Value)
	assert.Equal(t, 100.0, m.Orders.Change)
	assert.Equal(t, TrendUp, m.Orders.Trend)

	assert.Equal(t, 100.0, m.Users.Change)
	assert.Equal(t, TrendUp, m.Users.Trend)

	assert.Equal(t, 1500.46, m.Revenue.Value)
	assert.Equal(t, 0.0, m.Revenue.Change)
	assert.Equal(t, TrendStable, m.Revenue.Trend)

	assert.Equal(t, -100.0, m.ActiveUsers.Change)
	assert.Equal(t, TrendDown, m.ActiveUsers.Trend)

	assert.Equal(t, prevWeek, m.Previous)
}

func TestGetDashboardMetrics_RepositoryError(t *testing.T) {
	repo := new(MockAnalyticsRepository)
	repo.On("CountNewUsers", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), errors.New("timeout")).Maybe()
	repo.On("OrderTotals", mock.Anything, mock.Anything, mock.Anything).Return(repository.OrderTotals{}, nil).Maybe()
	repo.On("CountActiveUsers", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()
	svc := NewService(repo, testAnalyticsConfig, nil)

	_, err := svc.GetDashboardMetrics(context.Background(), week)
	assert.True(t, apperror.Is(err, apperror.CodeInternal))
}

func TestGetDashboardMetrics_InvalidRange(t *testing.T) {
	svc := NewService(newRepo(t), testAnalyticsConfig, nil)

	_, err := svc.GetDashboardMetrics(context.Background(), TimeRange{Start: week.End, End: week.Start})

	var verrs *apperror.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, apperror.CodeInvalidTimeRange, verrs.Errors[0].Code)
}

func TestGetDashboardMetrics_Cached(t *testing.T) {
	repo := newRepo(t)
	expectDashboard(repo)

	backend := cache.NewMemoryCache(cache.DefaultOptions())
	t.Cleanup(func() { _ = backend.Close() })
	svc := NewService(repo, testAnalyticsConfig, cache.NewQueryCache(backend, "analytics", time.Minute, nil))

	first, err := svc.GetDashboardMetrics(context.Background(), week)
	require.NoError(t, err)
	second, err := svc.GetDashboardMetrics(context.Background(), week)
	require.NoError(t, err)

	assert.Equal(t, first.Orders, second.Orders)
	assert.True(t, first.Period.Start.Equal(second.Period.Start))
}

func TestGetRevenueChart(t *testing.T) {
	repo := newRepo(t)
	repo.On("RevenueByDay", mock.Anything, week.Start, week.End).Return([]repository.DailyValue{
		{Day: week.Start, Value: 120.5},
		{Day: week.Start.AddDate(0, 0, 2), Value: 80},
	}, nil).Twice()
	svc := NewService(repo, testAnalyticsConfig, nil)

	sparse, err := svc.GetRevenueChart(context.Background(), week, ChartOptions{})
	require.NoError(t, err)
	assert.Equal(t, []ChartPoint{{Date: "2024-01-08", Value: 120.5}, {Date: "2024-01-10", Value: 80}}, sparse)

	filled, err := svc.GetRevenueChart(context.Background(), week, ChartOptions{FillGaps: true})
	require.NoError(t, err)
	require.Len(t, filled, 7)
	assert.Equal(t, ChartPoint{Date: "2024-01-09", Value: 0}, filled[1])
	assert.Equal(t, "2024-01-14", filled[6].Date)
}

func TestGetUserActivityChart_Empty(t *testing.T) {
	repo := newRepo(t)
	repo.On("ActivityByDay", mock.Anything, week.Start, week.End).Return([]repository.DailyValue{}, nil).Once()
	svc := NewService(repo, testAnalyticsConfig, nil)

	points, err := svc.GetUserActivityChart(context.Background(), week, ChartOptions{})
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestGetPopularPages(t *testing.T) {
	repo := newRepo(t)
	repo.On("PopularPages", mock.Anything, week.Start, week.End, 10).Return([]repository.PageStat{
		{Path: "/", Views: 40},
		{Path: "/companies", Views: 12},
	}, nil).Once()
	svc := NewService(repo, config.AnalyticsConfig{}, nil)

	pages, err := svc.GetPopularPages(context.Background(), week)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "/", pages[0].Path)
}

func TestGetPopularPages_NilBecomesEmpty(t *testing.T) {
	repo := newRepo(t)
	repo.On("PopularPages", mock.Anything, week.Start, week.End, 10).Return(nil, nil).Once()
	svc := NewService(repo, testAnalyticsConfig, nil)

	pages, err := svc.GetPopularPages(context.Background(), week)
	require.NoError(t, err)
	assert.NotNil(t, pages)
}

func TestGetUserBehavior(t *testing.T) {
	repo := newRepo(t)
	repo.On("SessionStats", mock.Anything, week.Start, week.End).Return(repository.SessionStats{
		TotalSessions:  8,
		Bounced:        2,
		AvgDuration:    95.333,
		UniqueUsers:    5,
		ReturningUsers: 3,
	}, nil).Once()
	svc := NewService(repo, testAnalyticsConfig, nil)

	b, err := svc.GetUserBehavior(context.Background(), week)
	require.NoError(t, err)

	assert.Equal(t, &UserBehavior{
		AvgSessionDuration: 95.33,
		BounceRate:         25,
		ReturningUsers:     3,
		UniqueUsers:        5,
		TotalSessions:      8,
	}, b)
}

func TestGetUserBehavior_NoSessions(t *testing.T) {
	repo := newRepo(t)
	repo.On("SessionStats", mock.Anything, week.Start, week.End).Return(repository.SessionStats{}, nil).Once()
	svc := NewService(repo, testAnalyticsConfig, nil)

	b, err := svc.GetUserBehavior(context.Background(), week)
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.BounceRate)
}
