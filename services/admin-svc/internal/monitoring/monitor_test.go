package monitoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/config"
	"reviewhub/services/admin-svc/internal/repository"
)

// MockMonitoringRepository мок репозитория мониторинга
type MockMonitoringRepository struct {
	mock.Mock
}

func (m *MockMonitoringRepository) InsertSystemMetric(ctx context.Context, metric *repository.SystemMetric) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

func (m *MockMonitoringRepository) CountActiveSessions(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMonitoringRepository) Cleanup(ctx context.Context, cutoff time.Time) (repository.CleanupResult, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(repository.CleanupResult), args.Error(1)
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) ticker(i int) *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[i]
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() { t.stopped.Store(true) }

type fakeSampler struct {
	cpu         float64
	used, total uint64
	err         error
	memErr      error
}

func (s *fakeSampler) CPUPercent() (float64, error) { return s.cpu, s.err }

func (s *fakeSampler) Memory() (uint64, uint64, error) { return s.used, s.total, s.memErr }

type fakeInvalidator struct {
	calls int
	err   error
}

func (i *fakeInvalidator) Invalidate(context.Context) (int64, error) {
	i.calls++
	return 3, i.err
}

var testNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo    *MockMonitoringRepository
	clock   *fakeClock
	sampler *fakeSampler
	monitor *Monitor
}

func newFixture(t *testing.T, cfg config.MonitoringConfig) *fixture {
	f := &fixture{
		repo:    new(MockMonitoringRepository),
		clock:   &fakeClock{now: testNow},
		sampler: &fakeSampler{cpu: 12.5, used: 2 << 30, total: 8 << 30},
	}
	f.monitor = NewMonitor(f.repo, cfg, f.sampler, f.clock)
	t.Cleanup(func() {
		f.monitor.Stop()
		f.repo.AssertExpectations(t)
	})
	return f
}

func (f *fixture) expectSnapshot(sessions int64, insertErr error) *mock.Call {
	f.repo.On("CountActiveSessions", mock.Anything).Return(sessions, nil)
	return f.repo.On("InsertSystemMetric", mock.Anything, mock.AnythingOfType("*repository.SystemMetric")).Return(insertErr)
}

func TestCollect(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.expectSnapshot(3, nil)

	f.monitor.RecordRequest(200, 50*time.Millisecond)
	f.clock.Advance(2 * time.Minute)
	f.monitor.RecordRequest(200, 10*time.Millisecond)
	f.monitor.RecordRequest(201, 20*time.Millisecond)
	f.monitor.RecordRequest(503, 30*time.Millisecond)

	snap := f.monitor.Collect(context.Background())

	assert.Equal(t, 12.5, snap.CPUUsage)
	assert.Equal(t, 0.25, snap.MemoryUsage)
	assert.Equal(t, uint64(8<<30), snap.MemoryTotal)
	assert.Equal(t, 3, snap.ActiveSessions)
	assert.Equal(t, 3, snap.RequestCount)
	assert.Equal(t, 1, snap.ErrorCount)
	assert.Equal(t, 20.0, snap.AvgResponseMs)
	assert.Equal(t, testNow.Add(2*time.Minute), snap.CollectedAt)

	assert.Equal(t, []repository.SystemMetric{snap}, f.monitor.Recent(5))
}

func TestCollect_PersistFailureStillBuffers(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.expectSnapshot(0, errors.New("connection refused"))

	f.monitor.Collect(context.Background())

	latest, ok := f.monitor.Latest()
	require.True(t, ok)
	assert.Equal(t, testNow, latest.CollectedAt)
}

func TestCollect_SamplerFailure(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.expectSnapshot(0, nil)
	f.sampler.err = errors.New("no procfs")

	snap := f.monitor.Collect(context.Background())
	assert.Equal(t, 0.0, snap.CPUUsage)
	assert.Equal(t, 0.25, snap.MemoryUsage)
}

func TestCollect_MemoryFailure(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.expectSnapshot(0, nil)
	f.sampler.memErr = errors.New("meminfo unreadable")

	snap := f.monitor.Collect(context.Background())
	assert.Equal(t, 12.5, snap.CPUUsage)
	assert.Zero(t, snap.MemoryUsed)
	assert.Zero(t, snap.MemoryTotal)
	assert.Equal(t, 0.0, snap.MemoryUsage)
}

func TestRecent_BufferIsBounded(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{BufferSize: 3})
	f.expectSnapshot(0, nil)

	for range 5 {
		f.monitor.Collect(context.Background())
		f.clock.Advance(time.Minute)
	}

	all := f.monitor.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, testNow.Add(2*time.Minute), all[0].CollectedAt)
	assert.Equal(t, testNow.Add(4*time.Minute), all[2].CollectedAt)

	last := f.monitor.Recent(2)
	require.Len(t, last, 2)
	assert.Equal(t, all[1:], last)
}

func TestGetSystemHealth(t *testing.T) {
	tests := []struct {
		name         string
		cpu          float64
		used         uint64
		failures     int
		clientErrors int
		status       Status
		success      float64
	}{
		{name: "healthy", cpu: 10, used: 1, status: StatusHealthy, success: 100},
		{name: "cpu at threshold", cpu: 80, used: 1, status: StatusDegraded, success: 100},
		{name: "memory at threshold", cpu: 10, used: 8, status: StatusDegraded, success: 100},
		{name: "error rate at threshold", cpu: 10, used: 1, failures: 1, status: StatusDegraded, success: 95},
		{name: "client errors are not successes", cpu: 10, used: 1, clientErrors: 10, status: StatusHealthy, success: 50},
		{name: "mixed failures", cpu: 10, used: 1, failures: 2, clientErrors: 3, status: StatusDegraded, success: 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.MonitoringConfig{})
			f.repo.On("CountActiveSessions", mock.Anything).Return(int64(2), nil)
			f.sampler.cpu, f.sampler.used, f.sampler.total = tt.cpu, tt.used, 10

			for i := range 20 {
				status := 200
				switch {
				case i < tt.failures:
					status = 500
				case i < tt.failures+tt.clientErrors:
					status = 404
				}
				f.monitor.RecordRequest(status, 100*time.Millisecond)
			}

			health, err := f.monitor.GetSystemHealth(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.status, health.Status)
			assert.Equal(t, tt.success, health.SuccessRate)
			assert.Equal(t, tt.failures, health.ErrorCount)
			assert.Equal(t, 100.0, health.AvgResponseTime)
			assert.Equal(t, 2, health.Metrics.ActiveSessions)
			assert.Equal(t, testNow, health.Timestamp)
		})
	}
}

func TestGetSystemHealth_RequestWindowExpires(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.repo.On("CountActiveSessions", mock.Anything).Return(int64(0), nil)

	f.monitor.RecordRequest(500, time.Second)
	f.clock.Advance(61 * time.Minute)
	f.monitor.RecordRequest(200, 10*time.Millisecond)

	health, err := f.monitor.GetSystemHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, 0, health.ErrorCount)
	assert.Equal(t, 10.0, health.AvgResponseTime)
}

func TestGetSystemHealth_RecentErrors(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.repo.On("CountActiveSessions", mock.Anything).Return(int64(0), nil)

	f.monitor.RecordError(repository.ErrorLog{Level: "error", Message: "boom"})

	health, err := f.monitor.GetSystemHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, health.RecentErrors, 1)
	assert.Equal(t, "boom", health.RecentErrors[0].Message)
}

func TestGetSystemHealth_NoRequests(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.repo.On("CountActiveSessions", mock.Anything).Return(int64(0), nil)

	health, err := f.monitor.GetSystemHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, health.SuccessRate)
	assert.False(t, health.Collecting)
	assert.Nil(t, health.LastSnapshot)
}

func TestGetSystemHealth_ReportsLastSnapshot(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.expectSnapshot(1, nil)

	collected := f.monitor.Collect(context.Background())
	f.clock.Advance(30 * time.Second)

	health, err := f.monitor.GetSystemHealth(context.Background())
	require.NoError(t, err)
	require.NotNil(t, health.LastSnapshot)
	assert.Equal(t, collected, *health.LastSnapshot)
	assert.Equal(t, testNow.Add(30*time.Second), health.Timestamp)
	assert.Len(t, f.monitor.Recent(0), 1)
}

func TestStart_RestartStopsPreviousTicker(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	inserted := make(chan struct{}, 1)
	f.expectSnapshot(0, nil).Run(func(mock.Arguments) { inserted <- struct{}{} })

	require.NoError(t, f.monitor.Start(context.Background(), time.Minute))
	require.NoError(t, f.monitor.Start(context.Background(), time.Minute))
	assert.True(t, f.monitor.Running())

	first, second := f.clock.ticker(0), f.clock.ticker(1)
	assert.True(t, first.stopped.Load())
	assert.False(t, second.stopped.Load())

	second.ch <- testNow
	select {
	case <-inserted:
	case <-time.After(time.Second):
		t.Fatal("tick did not collect a snapshot")
	}

	f.monitor.Stop()
	assert.False(t, f.monitor.Running())
	assert.True(t, second.stopped.Load())
	assert.Len(t, f.monitor.Recent(0), 1)
}

func TestStart_InvalidInterval(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})

	err := f.monitor.Start(context.Background(), 0)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
	assert.False(t, f.monitor.Running())
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	cutoff := testNow.AddDate(0, 0, -30)
	f.repo.On("Cleanup", mock.Anything, cutoff).Return(repository.CleanupResult{
		Cutoff:        cutoff,
		SystemMetrics: 10,
		ErrorLogs:     2,
		PageViews:     5,
	}, nil).Once()

	result, err := f.monitor.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(17), result.Total())
	assert.Equal(t, cutoff, result.Cutoff)
}

func TestCleanup_InvalidatesCaches(t *testing.T) {
	tests := []struct {
		name    string
		deleted int64
		calls   int
	}{
		{name: "rows deleted", deleted: 4, calls: 1},
		{name: "nothing deleted", deleted: 0, calls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.MonitoringConfig{})
			inv := &fakeInvalidator{}
			failing := &fakeInvalidator{err: errors.New("redis down")}
			f.monitor.InvalidateOnCleanup(failing, inv)
			f.repo.On("Cleanup", mock.Anything, mock.Anything).
				Return(repository.CleanupResult{PageViews: tt.deleted}, nil).Once()

			_, err := f.monitor.Cleanup(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, tt.calls, inv.calls)
			assert.Equal(t, tt.calls, failing.calls)
		})
	}
}

func TestCleanup_InvalidRetention(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})

	for _, days := range []int{0, -1} {
		_, err := f.monitor.Cleanup(context.Background(), days)

		var verrs *apperror.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, apperror.CodeInvalidRetention, verrs.Errors[0].Code)
	}
}

func TestCleanup_RepositoryError(t *testing.T) {
	f := newFixture(t, config.MonitoringConfig{})
	f.repo.On("Cleanup", mock.Anything, mock.Anything).Return(repository.CleanupResult{}, errors.New("lock timeout")).Once()

	_, err := f.monitor.Cleanup(context.Background(), 7)
	assert.True(t, apperror.Is(err, apperror.CodeInternal))
}

func TestRing(t *testing.T) {
	r := newRing[int](3)
	assert.Empty(t, r.last(0))
	_, ok := r.newest()
	assert.False(t, ok)

	for i := 1; i <= 4; i++ {
		r.push(i)
	}
	assert.Equal(t, 3, r.count())
	assert.Equal(t, []int{2, 3, 4}, r.last(0))
	assert.Equal(t, []int{3, 4}, r.last(2))
	assert.Equal(t, []int{2, 3, 4}, r.last(10))

	newest, ok := r.newest()
	assert.True(t, ok)
	assert.Equal(t, 4, newest)
}

func writeProcStat(t *testing.T, dir string, user, system, idle int) {
	t.Helper()
	line := fmt.Sprintf("cpu  %d 0 %d %d 0 0 0 0 0 0\n", user, system, idle)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(line), 0o644))
}

func TestProcSampler_FirstCallUsesBaseline(t *testing.T) {
	dir := t.TempDir()
	writeProcStat(t, dir, 100, 100, 800)

	fs, err := procfs.NewFS(dir)
	require.NoError(t, err)
	s := newProcSampler(fs)

	writeProcStat(t, dir, 150, 150, 900)
	cpu, err := s.CPUPercent()
	require.NoError(t, err)
	assert.InDelta(t, 50.0, cpu, 0.001)

	cpu, err = s.CPUPercent()
	require.NoError(t, err)
	assert.Equal(t, 0.0, cpu)
}

func TestProcSampler_Unavailable(t *testing.T) {
	s := &ProcSampler{}
	_, err := s.CPUPercent()
	assert.Error(t, err)

	used, total, err := s.Memory()
	require.NoError(t, err)
	assert.Positive(t, total)
	assert.LessOrEqual(t, used, total)
}

func TestCPUPercent(t *testing.T) {
	assert.Equal(t, 0.0, cpuPercent(5, 0))
	assert.Equal(t, 25.0, cpuPercent(25, 100))
	assert.Equal(t, 100.0, cpuPercent(150, 100))
	assert.Equal(t, 0.0, cpuPercent(-1, 100))
}
