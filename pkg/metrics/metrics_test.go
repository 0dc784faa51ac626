package metrics

import (
	"io"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg, reg, "test", "svc"), reg
}

func TestNewMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	if m.HTTPRequestsTotal == nil || m.HTTPRequestDuration == nil {
		t.Error("HTTP metrics should not be nil")
	}
	if m.ReportsGeneratedTotal == nil || m.SearchRequestsTotal == nil {
		t.Error("domain metrics should not be nil")
	}
}

func TestGet(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	defaultMetrics = nil

	m := Get()
	if m == nil {
		t.Fatal("Get() should not return nil")
	}
	if m2 := Get(); m2 != m {
		t.Error("Get() should return same instance")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/api/search", 200, 100*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/search", 200, 50*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/search", 500, 50*time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/search", "200")); got != 2 {
		t.Errorf("http_requests_total{200} = %v, want 2", got)
	}
}

func TestRecordReport(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordReport("users", "csv", true, time.Second, 2048)
	m.RecordReport("users", "csv", false, time.Second, 0)

	if got := testutil.ToFloat64(m.ReportsGeneratedTotal.WithLabelValues("users", "csv", "success")); got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReportsGeneratedTotal.WithLabelValues("users", "csv", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestRecordSearchAndCache(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordSearch("user", true, 5*time.Millisecond)
	m.RecordCache("search", true)
	m.RecordCache("search", false)
	m.RecordCache("search", false)

	if got := testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("user", "success")); got != 1 {
		t.Errorf("search success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("search", "miss")); got != 2 {
		t.Errorf("cache miss = %v, want 2", got)
	}
}

func TestRecordSystemSnapshot(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordSystemSnapshot(42.5, 0.5, true)
	if got := testutil.ToFloat64(m.SystemHealthy); got != 1 {
		t.Errorf("system_healthy = %v, want 1", got)
	}

	m.RecordSystemSnapshot(95, 0.9, false)
	if got := testutil.ToFloat64(m.SystemHealthy); got != 0 {
		t.Errorf("system_healthy = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SystemCPUUsage); got != 95 {
		t.Errorf("system_cpu_usage_percent = %v, want 95", got)
	}
}

func TestRecordCleanup(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCleanup("system_metrics", 10)
	m.RecordCleanup("system_metrics", 5)

	if got := testutil.ToFloat64(m.CleanupRowsDeleted.WithLabelValues("system_metrics")); got != 15 {
		t.Errorf("cleanup rows = %v, want 15", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.SetServiceInfo("1.0.0", "test")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "test_svc_service_info") {
		t.Errorf("expected service_info in metrics output")
	}
}

func TestRuntimeCollector(t *testing.T) {
	collector := NewRuntimeCollector("test", "runtime")

	// Test Describe
	descCh := make(chan *prometheus.Desc, 10)
	collector.Describe(descCh)
	close(descCh)

	count := 0
	for range descCh {
		count++
	}
	if count < 5 {
		t.Errorf("expected at least 5 descriptors, got %d", count)
	}

	// Test Collect
	metricCh := make(chan prometheus.Metric, 10)
	collector.Collect(metricCh)
	close(metricCh)

	count = 0
	for range metricCh {
		count++
	}
	if count < 5 {
		t.Errorf("expected at least 5 metrics, got %d", count)
	}
}

func TestRequestTracker(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_in_flight",
	})

	tracker := NewRequestTracker(gauge)

	tracker.Start("/method1")
	tracker.Start("/method1")
	tracker.Start("/method2")

	if tracker.Active("/method1") != 2 {
		t.Errorf("active[method1] = %d, want 2", tracker.Active("/method1"))
	}
	if tracker.Total() != 3 {
		t.Errorf("total = %d, want 3", tracker.Total())
	}

	tracker.End("/method1")
	if tracker.active["/method1"] != 1 {
		t.Errorf("active[method1] = %d, want 1", tracker.active["/method1"])
	}

	// End more than started should not go negative
	tracker.End("/method1")
	tracker.End("/method1")
	if tracker.active["/method1"] < 0 {
		t.Error("active count should not go negative")
	}
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler() should not return nil")
	}
}

func TestRuntimeCollector_GCPause(t *testing.T) {
	// Force a GC to ensure we have GC data
	runtime.GC()

	collector := NewRuntimeCollector("test", "gc")
	metricCh := make(chan prometheus.Metric, 10)
	collector.Collect(metricCh)
	close(metricCh)

	// Should have collected GC pause metric
	found := false
	for range metricCh {
		found = true
	}
	if !found {
		t.Error("should have collected at least one metric")
	}
}
