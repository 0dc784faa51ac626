package report

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/config"
	"reviewhub/services/admin-svc/internal/report/generator"
	"reviewhub/services/admin-svc/internal/report/storage"
	"reviewhub/services/admin-svc/internal/repository"
)

// MockReportRepository мок репозитория отчётов
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) CreateProcessing(ctx context.Context, report *repository.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) MarkCompleted(ctx context.Context, id uuid.UUID, url, fileName string, sizeBytes int64, rowCount int) error {
	args := m.Called(ctx, id, url, fileName, sizeBytes, rowCount)
	return args.Error(0)
}

func (m *MockReportRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockReportRepository) Get(ctx context.Context, id uuid.UUID) (*repository.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Report), args.Error(1)
}

func (m *MockReportRepository) List(ctx context.Context, params repository.ReportListParams) ([]*repository.Report, int64, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*repository.Report), args.Get(1).(int64), args.Error(2)
}

func (m *MockReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockReportRepository) ReapStuck(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	args := m.Called(ctx, cutoff, reason)
	return args.Get(0).(int64), args.Error(1)
}

// MockExportRepository мок выгрузки
type MockExportRepository struct {
	mock.Mock
}

func (m *MockExportRepository) Export(ctx context.Context, q repository.ExportQuery) ([]repository.Record, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.Record), args.Error(1)
}

// failingStorage хранилище, которое всегда отказывает
type failingStorage struct{}

func (failingStorage) Save(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func (failingStorage) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}

func (failingStorage) Delete(context.Context, string) error { return nil }

var (
	testReportID = uuid.MustParse("7b0c6c1e-5a43-4c1b-9a55-3f1e2f0f9d10")
	testNow      = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	testJoined   = time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)
)

type fixture struct {
	svc     *Service
	reports *MockReportRepository
	export  *MockExportRepository
	dir     string
}

func newFixture(t *testing.T, cfg ServiceConfig) *fixture {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir, "")
	require.NoError(t, err)

	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}

	f := &fixture{
		reports: new(MockReportRepository),
		export:  new(MockExportRepository),
		dir:     dir,
	}
	f.svc = NewService(cfg, f.reports, f.export, store, generator.NewFactory(config.PDFConfig{}))
	f.svc.now = func() time.Time { return testNow }

	t.Cleanup(func() {
		f.reports.AssertExpectations(t)
		f.export.AssertExpectations(t)
	})
	return f
}

func (f *fixture) expectCreate() {
	f.reports.On("CreateProcessing", mock.Anything, mock.AnythingOfType("*repository.Report")).
		Run(func(args mock.Arguments) {
			r := args.Get(1).(*repository.Report)
			r.ID = testReportID
			r.Status = repository.StatusProcessing
			r.CreatedAt = testNow
			r.UpdatedAt = testNow
		}).
		Return(nil).Once()
}

func threeUsers() []repository.Record {
	return []repository.Record{
		{"id": "1", "name": "Ahmed", "email": "ahmed@example.com", "created_at": testJoined},
		{"id": "2", "name": `Sara "The Admin"`, "email": "sara@example.com", "created_at": testJoined},
		{"id": "3", "name": "Omar", "email": "omar@example.com", "created_at": testJoined},
	}
}

// ============================================================
// GenerateReport
// ============================================================

func TestGenerateReport_UsersCSV(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectCreate()

	fileName := "users-" + testReportID.String() + ".csv"
	f.export.On("Export", mock.Anything, mock.MatchedBy(func(q repository.ExportQuery) bool {
		return q.Type == repository.ReportUsers && q.SortBy == "name" && q.SortOrder == "asc"
	})).Return(threeUsers(), nil).Once()
	f.reports.On("MarkCompleted", mock.Anything, testReportID,
		"/api/reports/download/"+fileName, fileName, mock.AnythingOfType("int64"), 3,
	).Return(nil).Once()

	report, err := f.svc.GenerateReport(context.Background(), repository.ReportUsers, Options{
		Name:      "Users",
		Format:    repository.FormatCSV,
		Columns:   []string{"id", "name"},
		SortBy:    "name",
		SortOrder: "ASC",
	})
	require.NoError(t, err)

	assert.Equal(t, repository.StatusCompleted, report.Status)
	require.NotNil(t, report.URL)
	assert.Equal(t, "/api/reports/download/"+fileName, *report.URL)
	assert.Equal(t, 3, report.RowCount)
	assert.NotNil(t, report.CompletedAt)

	data, err := os.ReadFile(filepath.Join(f.dir, fileName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `"Id","Name"`, lines[0])
	assert.Equal(t, `"2","Sara ""The Admin"""`, lines[2])
	assert.Equal(t, int64(len(data)), report.SizeBytes)
}

func TestGenerateReport_DefaultColumnsForEmptyResult(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectCreate()

	fileName := "orders-" + testReportID.String() + ".csv"
	f.export.On("Export", mock.Anything, mock.Anything).Return([]repository.Record{}, nil).Once()
	f.reports.On("MarkCompleted", mock.Anything, testReportID, mock.Anything, fileName, mock.AnythingOfType("int64"), 0).
		Return(nil).Once()

	report, err := f.svc.GenerateReport(context.Background(), repository.ReportOrders, Options{Format: repository.FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, "orders report 2024-02-01", report.Name)

	data, err := os.ReadFile(filepath.Join(f.dir, fileName))
	require.NoError(t, err)
	assert.Equal(t, "\"Id\",\"User Id\",\"Status\",\"Total\",\"Created At\"\n", string(data))
}

func TestGenerateReport_PassesDateRangeAndRowLimit(t *testing.T) {
	f := newFixture(t, ServiceConfig{MaxRows: 100})
	f.expectCreate()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	f.export.On("Export", mock.Anything, mock.MatchedBy(func(q repository.ExportQuery) bool {
		return q.DateFrom.Equal(from) && q.DateTo.Equal(to) && q.Limit == 101 && q.Filters["status"] == "active"
	})).Return(threeUsers(), nil).Once()
	f.reports.On("MarkCompleted", mock.Anything, testReportID, mock.Anything, mock.Anything, mock.AnythingOfType("int64"), 3).
		Return(nil).Once()

	_, err := f.svc.GenerateReport(context.Background(), repository.ReportUsers, Options{
		Format:    repository.FormatExcel,
		Filters:   map[string]any{"status": "active"},
		DateRange: DateRange{From: &from, To: &to},
	})
	require.NoError(t, err)
}

func TestGenerateReport_UnknownTypeMarksFailed(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectCreate()
	f.reports.On("MarkFailed", mock.Anything, testReportID, mock.MatchedBy(func(reason string) bool {
		return strings.Contains(reason, "unknown report type")
	})).Return(nil).Once()

	report, err := f.svc.GenerateReport(context.Background(), "invoices", Options{Format: repository.FormatCSV})
	require.Error(t, err)

	assert.True(t, apperror.Is(err, apperror.CodeUnknownReportType))
	assert.Equal(t, 400, apperror.HTTPStatus(err))
	assert.Equal(t, repository.StatusFailed, report.Status)
	assert.Nil(t, report.URL)
	require.NotNil(t, report.Error)
	f.export.AssertNotCalled(t, "Export", mock.Anything, mock.Anything)
}

func TestGenerateReport_InvalidColumnMarksFailed(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectCreate()
	f.reports.On("MarkFailed", mock.Anything, testReportID, mock.Anything).Return(nil).Once()

	_, err := f.svc.GenerateReport(context.Background(), repository.ReportUsers, Options{
		Format:  repository.FormatCSV,
		Columns: []string{"id", "password_hash"},
	})
	require.Error(t, err)

	var verrs *apperror.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs.Errors, 1)
	assert.Equal(t, apperror.CodeInvalidColumn, verrs.Errors[0].Code)
}

func TestGenerateReport_ValidationBeforeInsert(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.GenerateReport(context.Background(), repository.ReportUsers, Options{
		Format:    "docx",
		SortOrder: "sideways",
		Locale:    "not a locale!",
		DateRange: DateRange{From: &from, To: &to},
	})
	require.Error(t, err)

	var verrs *apperror.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs.Errors, 4)
	f.reports.AssertNotCalled(t, "CreateProcessing", mock.Anything, mock.Anything)
}

func TestGenerateReport_ExportFailureMarksFailed(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectCreate()
	f.export.On("Export", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	f.reports.On("MarkFailed", mock.Anything, testReportID, mock.Anything).Return(nil).Once()

	_, err := f.svc.GenerateReport(context.Background(), repository.ReportProducts, Options{Format: repository.FormatPDF})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInternal))
}

func TestGenerateReport_InvalidFilterFromExport(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectCreate()
	f.export.On("Export", mock.Anything, mock.Anything).
		Return(nil, errors.Join(repository.ErrInvalidColumn, errors.New(`filter "password"`))).Once()
	f.reports.On("MarkFailed", mock.Anything, testReportID, mock.Anything).Return(nil).Once()

	_, err := f.svc.GenerateReport(context.Background(), repository.ReportUsers, Options{
		Format:  repository.FormatCSV,
		Filters: map[string]any{"password": "x"},
	})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidFilter))
}

func TestGenerateReport_TooManyRows(t *testing.T) {
	f := newFixture(t, ServiceConfig{MaxRows: 2})
	f.expectCreate()
	f.export.On("Export", mock.Anything, mock.Anything).Return(threeUsers(), nil).Once()
	f.reports.On("MarkFailed", mock.Anything, testReportID, mock.Anything).Return(nil).Once()

	_, err := f.svc.GenerateReport(context.Background(), repository.ReportUsers, Options{Format: repository.FormatCSV})
	assert.True(t, apperror.Is(err, apperror.CodeReportSizeExceeded))
}

func TestGenerateReport_StorageFailureMarksFailed(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.svc.storage = failingStorage{}
	f.expectCreate()
	f.export.On("Export", mock.Anything, mock.Anything).Return(threeUsers(), nil).Once()
	f.reports.On("MarkFailed", mock.Anything, testReportID, mock.MatchedBy(func(reason string) bool {
		return strings.Contains(reason, "failed to store report file")
	})).Return(nil).Once()

	_, err := f.svc.GenerateReport(context.Background(), repository.ReportUsers, Options{Format: repository.FormatCSV})
	assert.True(t, apperror.Is(err, apperror.CodeStorageFailed))
}

func TestGenerateReport_CompleteFailureRemovesFile(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectCreate()
	f.export.On("Export", mock.Anything, mock.Anything).Return(threeUsers(), nil).Once()
	f.reports.On("MarkCompleted", mock.Anything, testReportID, mock.Anything, mock.Anything, mock.Anything, 3).
		Return(errors.New("deadlock detected")).Once()
	f.reports.On("MarkFailed", mock.Anything, testReportID, mock.Anything).Return(nil).Once()

	report, err := f.svc.GenerateReport(context.Background(), repository.ReportUsers, Options{Format: repository.FormatCSV})
	require.Error(t, err)
	assert.Equal(t, repository.StatusFailed, report.Status)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerateReport_CancelledContextStillMarksFailed(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectCreate()

	ctx, cancel := context.WithCancel(context.Background())
	f.export.On("Export", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()
	f.reports.On("MarkFailed", mock.MatchedBy(func(c context.Context) bool {
		return c.Err() == nil
	}), testReportID, mock.Anything).Return(nil).Once()

	_, err := f.svc.GenerateReport(ctx, repository.ReportUsers, Options{Format: repository.FormatCSV})
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================
// ListReports / GetReport / DeleteReport
// ============================================================

func TestListReports_DefaultsAndPagination(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	page := []*repository.Report{{ID: testReportID, Status: repository.StatusCompleted}}
	f.reports.On("List", mock.Anything, repository.ReportListParams{Page: 1, Limit: 10}).
		Return(page, int64(25), nil).Twice()

	first, err := f.svc.ListReports(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, repository.Pagination{Page: 1, Limit: 10, Total: 25, TotalPages: 3}, first.Pagination)

	second, err := f.svc.ListReports(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListReports_EmptyPageIsNotNil(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.reports.On("List", mock.Anything, mock.Anything).Return(nil, int64(0), nil).Once()

	res, err := f.svc.ListReports(context.Background(), ListParams{Page: 3, Limit: 20, Status: repository.StatusFailed})
	require.NoError(t, err)
	assert.NotNil(t, res.Reports)
	assert.Equal(t, 0, res.Pagination.TotalPages)
}

func TestListReports_Validation(t *testing.T) {
	f := newFixture(t, ServiceConfig{})

	_, err := f.svc.ListReports(context.Background(), ListParams{
		Page:       -1,
		Limit:      500,
		Status:     "lost",
		Format:     "docx",
		ReportType: "invoices",
	})
	var verrs *apperror.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs.Errors, 5)
}

func TestGetReport_NotFound(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.reports.On("Get", mock.Anything, testReportID).Return(nil, repository.ErrNotFound).Once()

	_, err := f.svc.GetReport(context.Background(), testReportID)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
	assert.Equal(t, 404, apperror.HTTPStatus(err))
}

func TestDeleteReport_RemovesFile(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	fileName := "users-" + testReportID.String() + ".csv"
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, fileName), []byte("x"), 0o644))

	f.reports.On("Get", mock.Anything, testReportID).
		Return(&repository.Report{ID: testReportID, FileName: &fileName}, nil).Once()
	f.reports.On("Delete", mock.Anything, testReportID).Return(nil).Once()

	require.NoError(t, f.svc.DeleteReport(context.Background(), testReportID))

	_, err := os.Stat(filepath.Join(f.dir, fileName))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteReport_NotFound(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.reports.On("Get", mock.Anything, testReportID).Return(nil, repository.ErrNotFound).Once()

	err := f.svc.DeleteReport(context.Background(), testReportID)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

// ============================================================
// Download / ReapStuck
// ============================================================

func TestDownload(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "r.pdf"), []byte("%PDF-"), 0o644))

	rc, contentType, err := f.svc.Download(context.Background(), "r.pdf")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "application/pdf", contentType)

	_, _, err = f.svc.Download(context.Background(), "missing.csv")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	_, _, err = f.svc.Download(context.Background(), "../secret")
	assert.Equal(t, 400, apperror.HTTPStatus(err))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv; charset=utf-8", ContentType("a.csv"))
	assert.Equal(t, repository.FormatExcel.ContentType(), ContentType("a.xlsx"))
	assert.Equal(t, "application/octet-stream", ContentType("a.bin"))
}

func TestReapStuck(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.reports.On("ReapStuck", mock.Anything, testNow.Add(-30*time.Minute), mock.Anything).
		Return(int64(2), nil).Once()

	n, err := f.svc.ReapStuck(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.svc.ReapStuck(context.Background(), 0)
	assert.Error(t, err)
}
