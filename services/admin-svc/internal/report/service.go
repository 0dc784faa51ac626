// Package report управляет жизненным циклом отчётов: выгрузка данных,
// сериализация в файл, сохранение и учёт метаданных.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/metrics"
	"reviewhub/pkg/telemetry"
	"reviewhub/services/admin-svc/internal/report/generator"
	"reviewhub/services/admin-svc/internal/report/storage"
	"reviewhub/services/admin-svc/internal/repository"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100

	// failTimeout время на запись статуса failed после отмены запроса
	failTimeout = 5 * time.Second
)

// DateRange включительный диапазон по created_at
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Options параметры генерации отчёта
type Options struct {
	Name        string
	Description string
	Format      repository.ReportFormat
	Filters     map[string]any
	SortBy      string
	SortOrder   string
	DateRange   DateRange
	Columns     []string
	Locale      string
}

// ListParams параметры списка отчётов
type ListParams struct {
	Page       int
	Limit      int
	Status     repository.ReportStatus
	Format     repository.ReportFormat
	ReportType repository.ReportType
}

// ListResult страница отчётов
type ListResult struct {
	Reports    []*repository.Report  `json:"reports"`
	Pagination repository.Pagination `json:"pagination"`
}

// ServiceConfig конфигурация сервиса
type ServiceConfig struct {
	DefaultLocale string
	Timezone      string
	MaxRows       int
	CompanyName   string
}

// Service сервис отчётов
type Service struct {
	reports    repository.ReportRepository
	export     repository.ExportRepository
	storage    storage.Storage
	generators *generator.Factory
	metrics    *metrics.Metrics
	cfg        ServiceConfig
	now        func() time.Time
}

// NewService создаёт сервис отчётов
func NewService(
	cfg ServiceConfig,
	reports repository.ReportRepository,
	export repository.ExportRepository,
	store storage.Storage,
	generators *generator.Factory,
) *Service {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "ar"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	return &Service{
		reports:    reports,
		export:     export,
		storage:    store,
		generators: generators,
		metrics:    metrics.Get(),
		cfg:        cfg,
		now:        time.Now,
	}
}

// GenerateReport создаёт отчёт синхронно и возвращает его метаданные.
// После вставки строки любая ошибка переводит отчёт в failed.
func (s *Service) GenerateReport(ctx context.Context, reportType repository.ReportType, opts Options) (*repository.Report, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.GenerateReport",
		trace.WithAttributes(telemetry.ReportAttributes("", string(reportType), string(opts.Format))...),
	)
	defer span.End()

	start := time.Now()

	formatter, err := s.validateOptions(&opts)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	report := &repository.Report{
		Name:        opts.Name,
		Description: opts.Description,
		Type:        reportType,
		Format:      opts.Format,
	}
	if report.Name == "" {
		report.Name = defaultName(reportType, s.now())
	}

	if err := s.reports.CreateProcessing(ctx, report); err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to create report")
	}
	telemetry.SetAttributes(ctx, telemetry.ReportAttributes(report.ID.String(), string(reportType), string(opts.Format))...)

	result, err := s.build(ctx, report, opts, formatter)
	if err == nil {
		err = s.complete(ctx, report, result)
	}
	if err != nil {
		s.fail(ctx, report, err)
		s.metrics.RecordReport(string(reportType), string(opts.Format), false, time.Since(start), 0)
		telemetry.SetError(ctx, err)
		return report, err
	}

	s.metrics.RecordReport(string(reportType), string(opts.Format), true, time.Since(start), len(result.data))
	telemetry.SetAttributes(ctx, telemetry.ReportResultAttributes(result.rows, int64(len(result.data)))...)

	logger.WithContext(ctx).Info("report generated",
		"id", report.ID,
		"type", reportType,
		"format", opts.Format,
		"rows", result.rows,
		"bytes", len(result.data),
		"duration", time.Since(start),
	)

	return report, nil
}

type buildResult struct {
	data     []byte
	rows     int
	fileName string
	url      string
}

// build выполняет шаги после вставки: выгрузка, сериализация, сохранение
func (s *Service) build(ctx context.Context, report *repository.Report, opts Options, formatter *generator.Formatter) (*buildResult, error) {
	allowed, ok := repository.ExportColumns(report.Type)
	if !ok {
		return nil, apperror.NewWithField(apperror.CodeUnknownReportType,
			fmt.Sprintf("unknown report type %q", report.Type), "type")
	}

	columns := opts.Columns
	if len(columns) == 0 {
		columns, _ = generator.DefaultColumns(report.Type)
	}
	if err := checkColumns(columns, allowed); err != nil {
		return nil, err
	}

	query := repository.ExportQuery{
		Type:      report.Type,
		Filters:   opts.Filters,
		SortBy:    opts.SortBy,
		SortOrder: opts.SortOrder,
		DateFrom:  opts.DateRange.From,
		DateTo:    opts.DateRange.To,
	}
	if s.cfg.MaxRows > 0 {
		query.Limit = s.cfg.MaxRows + 1
	}

	rows, err := s.export.Export(ctx, query)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidColumn) {
			return nil, apperror.Wrap(err, apperror.CodeInvalidFilter, err.Error())
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to export report data")
	}
	if s.cfg.MaxRows > 0 && len(rows) > s.cfg.MaxRows {
		return nil, apperror.New(apperror.CodeReportSizeExceeded,
			fmt.Sprintf("report exceeds %d rows, narrow the filters", s.cfg.MaxRows))
	}

	gen, err := s.generators.Get(report.Format)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeUnsupportedFormat, err.Error())
	}

	table := &generator.Table{
		Title:       report.Name,
		Description: s.description(report),
		Columns:     generator.Columns(columns),
		Rows:        rows,
		GeneratedAt: s.now(),
		Formatter:   formatter,
	}

	data, err := gen.Generate(ctx, table)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGenerationFailed, "failed to generate report file")
	}

	fileName := FileName(report)
	url, err := s.storage.Save(ctx, fileName, report.Format.ContentType(), data)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeStorageFailed, "failed to store report file")
	}

	return &buildResult{data: data, rows: len(rows), fileName: fileName, url: url}, nil
}

func (s *Service) complete(ctx context.Context, report *repository.Report, result *buildResult) error {
	size := int64(len(result.data))
	if err := s.reports.MarkCompleted(ctx, report.ID, result.url, result.fileName, size, result.rows); err != nil {
		if delErr := s.storage.Delete(ctx, result.fileName); delErr != nil {
			logger.WithContext(ctx).Warn("failed to remove orphan report file", "file", result.fileName, "error", delErr)
		}
		return apperror.Wrap(err, apperror.CodeInternal, "failed to complete report")
	}

	completedAt := s.now()
	report.Status = repository.StatusCompleted
	report.URL = &result.url
	report.FileName = &result.fileName
	report.SizeBytes = size
	report.RowCount = result.rows
	report.CompletedAt = &completedAt
	return nil
}

// fail записывает ошибку в строку отчёта даже если контекст запроса уже отменён
func (s *Service) fail(ctx context.Context, report *repository.Report, cause error) {
	reason := cause.Error()

	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()

	if err := s.reports.MarkFailed(failCtx, report.ID, reason); err != nil {
		logger.WithContext(ctx).Error("failed to mark report as failed",
			"id", report.ID,
			"cause", reason,
			"error", err,
		)
	}

	report.Status = repository.StatusFailed
	report.URL = nil
	report.Error = &reason

	logger.WithContext(ctx).Warn("report generation failed",
		"id", report.ID,
		"type", report.Type,
		"format", report.Format,
		"error", reason,
	)
}

// validateOptions проверяет то, что можно проверить до вставки строки
func (s *Service) validateOptions(opts *Options) (*generator.Formatter, error) {
	verrs := apperror.NewValidationErrors()

	if !opts.Format.Valid() {
		verrs.AddErrorWithField(apperror.CodeUnsupportedFormat,
			fmt.Sprintf("format must be one of excel, pdf, csv, got %q", opts.Format), "format")
	}

	from, to := opts.DateRange.From, opts.DateRange.To
	if from != nil && to != nil && from.After(*to) {
		verrs.AddErrorWithField(apperror.CodeInvalidTimeRange, "dateRange.from must not be after dateRange.to", "dateRange")
	}

	if opts.SortOrder != "" {
		switch strings.ToLower(opts.SortOrder) {
		case "asc", "desc":
			opts.SortOrder = strings.ToLower(opts.SortOrder)
		default:
			verrs.AddErrorWithField(apperror.CodeInvalidSort,
				fmt.Sprintf("sortOrder must be asc or desc, got %q", opts.SortOrder), "sortOrder")
		}
	}

	locale := opts.Locale
	if locale == "" {
		locale = s.cfg.DefaultLocale
	}
	formatter, err := generator.NewFormatter(locale, s.cfg.Timezone)
	if err != nil {
		verrs.AddErrorWithField(apperror.CodeValidation, err.Error(), "locale")
	}

	if err := verrs.Err(); err != nil {
		return nil, err
	}
	return formatter, nil
}

func (s *Service) description(report *repository.Report) string {
	if report.Description != "" {
		return report.Description
	}
	return s.cfg.CompanyName
}

func checkColumns(columns, allowed []string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, c := range allowed {
		set[c] = struct{}{}
	}

	verrs := apperror.NewValidationErrors()
	for _, c := range columns {
		if _, ok := set[c]; !ok {
			verrs.AddErrorWithField(apperror.CodeInvalidColumn,
				fmt.Sprintf("column %q is not exportable", c), "columns")
		}
	}
	return verrs.Err()
}

// FileName имя файла отчёта в хранилище
func FileName(report *repository.Report) string {
	return fmt.Sprintf("%s-%s.%s", report.Type, report.ID, report.Format.Extension())
}

func defaultName(reportType repository.ReportType, now time.Time) string {
	return fmt.Sprintf("%s report %s", reportType, now.UTC().Format("2006-01-02"))
}

// ListReports возвращает страницу отчётов, новые первыми
func (s *Service) ListReports(ctx context.Context, params ListParams) (*ListResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.ListReports")
	defer span.End()

	verrs := apperror.NewValidationErrors()
	if params.Page == 0 {
		params.Page = defaultPage
	}
	if params.Limit == 0 {
		params.Limit = defaultLimit
	}
	if params.Page < 1 {
		verrs.AddErrorWithField(apperror.CodeInvalidPagination, "page must be >= 1", "page")
	}
	if params.Limit < 1 || params.Limit > maxLimit {
		verrs.AddErrorWithField(apperror.CodeInvalidPagination,
			fmt.Sprintf("limit must be between 1 and %d", maxLimit), "limit")
	}
	if params.Status != "" && !params.Status.Valid() {
		verrs.AddErrorWithField(apperror.CodeValidation, fmt.Sprintf("unknown status %q", params.Status), "status")
	}
	if params.Format != "" && !params.Format.Valid() {
		verrs.AddErrorWithField(apperror.CodeUnsupportedFormat, fmt.Sprintf("unknown format %q", params.Format), "format")
	}
	if params.ReportType != "" {
		if _, ok := repository.ExportColumns(params.ReportType); !ok {
			verrs.AddErrorWithField(apperror.CodeUnknownReportType, fmt.Sprintf("unknown report type %q", params.ReportType), "type")
		}
	}
	if err := verrs.Err(); err != nil {
		return nil, err
	}

	reports, total, err := s.reports.List(ctx, repository.ReportListParams{
		Page:       params.Page,
		Limit:      params.Limit,
		Status:     params.Status,
		Format:     params.Format,
		ReportType: params.ReportType,
	})
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to list reports")
	}
	if reports == nil {
		reports = []*repository.Report{}
	}

	return &ListResult{
		Reports:    reports,
		Pagination: repository.NewPagination(params.Page, params.Limit, total),
	}, nil
}

// GetReport возвращает отчёт по ID
func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*repository.Report, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.GetReport")
	defer span.End()

	report, err := s.reports.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(ctx, err, "report")
	}
	return report, nil
}

// DeleteReport удаляет строку и файл отчёта
func (s *Service) DeleteReport(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.DeleteReport")
	defer span.End()

	report, err := s.reports.Get(ctx, id)
	if err != nil {
		return mapRepoError(ctx, err, "report")
	}

	if err := s.reports.Delete(ctx, id); err != nil {
		return mapRepoError(ctx, err, "report")
	}

	if report.FileName != nil {
		if err := s.storage.Delete(ctx, *report.FileName); err != nil {
			logger.WithContext(ctx).Warn("failed to delete report file",
				"id", id,
				"file", *report.FileName,
				"error", err,
			)
		}
	}

	logger.WithContext(ctx).Info("report deleted", "id", id)
	return nil
}

// Download открывает файл отчёта. Вызывающий закрывает reader.
func (s *Service) Download(ctx context.Context, fileName string) (io.ReadCloser, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.Download")
	defer span.End()

	rc, err := s.storage.Open(ctx, fileName)
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		return nil, "", apperror.NewWithField(apperror.CodeInvalidArgument, err.Error(), "filename")
	case errors.Is(err, storage.ErrNotFound):
		return nil, "", apperror.New(apperror.CodeNotFound, "report file not found")
	case err != nil:
		telemetry.SetError(ctx, err)
		return nil, "", apperror.Wrap(err, apperror.CodeStorageFailed, "failed to open report file")
	}

	return rc, ContentType(fileName), nil
}

// ContentType определяет MIME тип по расширению файла отчёта
func ContentType(fileName string) string {
	switch strings.TrimPrefix(path.Ext(fileName), ".") {
	case repository.FormatExcel.Extension():
		return repository.FormatExcel.ContentType()
	case repository.FormatPDF.Extension():
		return repository.FormatPDF.ContentType()
	case repository.FormatCSV.Extension():
		return repository.FormatCSV.ContentType()
	default:
		return "application/octet-stream"
	}
}

// ReapStuck переводит в failed отчёты, которые висят в processing дольше olderThan
func (s *Service) ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.ReapStuck")
	defer span.End()

	if olderThan <= 0 {
		return 0, apperror.NewWithField(apperror.CodeInvalidArgument, "stuck timeout must be positive", "olderThan")
	}

	cutoff := s.now().Add(-olderThan)
	reason := fmt.Sprintf("report generation did not finish within %s", olderThan)

	n, err := s.reports.ReapStuck(ctx, cutoff, reason)
	if err != nil {
		telemetry.SetError(ctx, err)
		return 0, apperror.Wrap(err, apperror.CodeInternal, "failed to reap stuck reports")
	}
	if n > 0 {
		logger.WithContext(ctx).Warn("stuck reports marked as failed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func mapRepoError(ctx context.Context, err error, entity string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.New(apperror.CodeNotFound, entity+" not found")
	}
	telemetry.SetError(ctx, err)
	return apperror.Wrap(err, apperror.CodeInternal, "failed to load "+entity)
}
