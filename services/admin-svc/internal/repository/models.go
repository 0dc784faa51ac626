package repository

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ReportStatus статус генерации отчёта
type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusProcessing ReportStatus = "processing"
	StatusCompleted  ReportStatus = "completed"
	StatusFailed     ReportStatus = "failed"
)

// Valid проверяет, что статус известен
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ReportFormat формат файла отчёта
type ReportFormat string

const (
	FormatExcel ReportFormat = "excel"
	FormatPDF   ReportFormat = "pdf"
	FormatCSV   ReportFormat = "csv"
)

// Valid проверяет, что формат поддерживается
func (f ReportFormat) Valid() bool {
	switch f {
	case FormatExcel, FormatPDF, FormatCSV:
		return true
	}
	return false
}

// Extension возвращает расширение файла
func (f ReportFormat) Extension() string {
	switch f {
	case FormatExcel:
		return "xlsx"
	case FormatPDF:
		return "pdf"
	default:
		return "csv"
	}
}

// ContentType возвращает MIME тип
func (f ReportFormat) ContentType() string {
	switch f {
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// ReportType источник данных отчёта
type ReportType string

const (
	ReportUsers    ReportType = "users"
	ReportOrders   ReportType = "orders"
	ReportProducts ReportType = "products"
)

// Report метаданные отчёта.
// URL заполнен тогда и только тогда, когда Status == StatusCompleted.
type Report struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Type        ReportType   `json:"type"`
	Format      ReportFormat `json:"format"`
	Status      ReportStatus `json:"status"`
	URL         *string      `json:"url,omitempty"`
	FileName    *string      `json:"fileName,omitempty"`
	Error       *string      `json:"error,omitempty"`
	SizeBytes   int64        `json:"sizeBytes"`
	RowCount    int          `json:"rowCount"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// ReportListParams параметры выборки отчётов
type ReportListParams struct {
	Page       int
	Limit      int
	Status     ReportStatus
	Format     ReportFormat
	ReportType ReportType
}

// Pagination описание страницы результата
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination считает totalPages = ceil(total/limit)
func NewPagination(page, limit int, total int64) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return p
}

// Offset возвращает количество пропускаемых строк для 1-индексированной страницы
func Offset(page, limit int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * limit
}

// ExportQuery параметры выгрузки строк для отчёта
type ExportQuery struct {
	Type      ReportType
	Filters   map[string]any
	SortBy    string
	SortOrder string
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
}

// Record одна строка выгрузки: колонка → значение
type Record map[string]any

// DailyValue агрегат за UTC-сутки
type DailyValue struct {
	Day   time.Time
	Value float64
}

// PageStat количество просмотров страницы
type PageStat struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

// OrderTotals количество и сумма заказов за окно
type OrderTotals struct {
	Count   int64
	Revenue float64
}

// SessionStats агрегаты по сессиям за окно
type SessionStats struct {
	TotalSessions  int64
	Bounced        int64
	AvgDuration    float64
	UniqueUsers    int64
	ReturningUsers int64
}

// Activity событие действия пользователя
type Activity struct {
	ID         uuid.UUID      `json:"id"`
	UserID     *uuid.UUID     `json:"userId,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resourceId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// PageView просмотр страницы
type PageView struct {
	ID        uuid.UUID  `json:"id"`
	SessionID *uuid.UUID `json:"sessionId,omitempty"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	Path      string     `json:"path"`
	Referrer  string     `json:"referrer,omitempty"`
	Duration  int        `json:"duration"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Session пользовательская сессия
type Session struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Duration  *int       `json:"duration,omitempty"`
	PageViews int        `json:"pageViews"`
	Bounced   bool       `json:"bounced"`
	UserAgent string     `json:"userAgent,omitempty"`
	IPAddress string     `json:"ipAddress,omitempty"`
}

// ErrorLog запись об ошибке
type ErrorLog struct {
	ID         uuid.UUID `json:"id"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	Stack      string    `json:"stack,omitempty"`
	Path       string    `json:"path,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SystemMetric снимок состояния системы
type SystemMetric struct {
	ID             uuid.UUID `json:"id"`
	CPUUsage       float64   `json:"cpuUsage"`
	MemoryUsed     uint64    `json:"memoryUsed"`
	MemoryTotal    uint64    `json:"memoryTotal"`
	MemoryUsage    float64   `json:"memoryUsage"`
	ActiveSessions int       `json:"activeSessions"`
	RequestCount   int       `json:"requestCount"`
	ErrorCount     int       `json:"errorCount"`
	AvgResponseMs  float64   `json:"avgResponseMs"`
	CollectedAt    time.Time `json:"collectedAt"`
}

// CleanupResult количество удалённых строк по таблицам
type CleanupResult struct {
	Cutoff         time.Time `json:"cutoff"`
	SystemMetrics  int64     `json:"systemMetrics"`
	ErrorLogs      int64     `json:"errorLogs"`
	UserSessions   int64     `json:"userSessions"`
	UserActivities int64     `json:"userActivities"`
	PageViews      int64     `json:"pageViews"`
}

// Total суммарное количество удалённых строк
func (c CleanupResult) Total() int64 {
	return c.SystemMetrics + c.ErrorLogs + c.UserSessions + c.UserActivities + c.PageViews
}
