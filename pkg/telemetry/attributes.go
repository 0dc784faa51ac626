package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Поиск
	AttrSearchModel   = "search.model"
	AttrSearchQuery   = "search.query_length"
	AttrSearchPage    = "search.page"
	AttrSearchLimit   = "search.limit"
	AttrSearchTotal   = "search.total"
	AttrSearchFilters = "search.filters"

	// Отчёты
	AttrReportID     = "report.id"
	AttrReportType   = "report.type"
	AttrReportFormat = "report.format"
	AttrReportRows   = "report.rows"
	AttrReportBytes  = "report.size_bytes"

	// Аналитика
	AttrAnalyticsQuery = "analytics.query"
	AttrRangeDays      = "analytics.range_days"

	// Мониторинг
	AttrCleanupTable   = "monitoring.cleanup_table"
	AttrCleanupDeleted = "monitoring.cleanup_deleted"
	AttrRetentionDays  = "monitoring.retention_days"
)

// SearchAttributes возвращает атрибуты поискового запроса.
// Сам текст запроса не пишется, только его длина.
func SearchAttributes(model, query string, page, limit, filters int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSearchModel, model),
		attribute.Int(AttrSearchQuery, len(query)),
		attribute.Int(AttrSearchPage, page),
		attribute.Int(AttrSearchLimit, limit),
		attribute.Int(AttrSearchFilters, filters),
	}
}

// ReportAttributes возвращает атрибуты генерации отчёта
func ReportAttributes(id, reportType, format string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrReportID, id),
		attribute.String(AttrReportType, reportType),
		attribute.String(AttrReportFormat, format),
	}
}

// ReportResultAttributes возвращает атрибуты готового файла
func ReportResultAttributes(rows int, sizeBytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrReportRows, rows),
		attribute.Int64(AttrReportBytes, sizeBytes),
	}
}

// AnalyticsAttributes возвращает атрибуты аналитического запроса
func AnalyticsAttributes(query string, rangeDays int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAnalyticsQuery, query),
		attribute.Int(AttrRangeDays, rangeDays),
	}
}

// CleanupAttributes возвращает атрибуты очистки таблицы
func CleanupAttributes(table string, deleted int64, retentionDays int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCleanupTable, table),
		attribute.Int64(AttrCleanupDeleted, deleted),
		attribute.Int(AttrRetentionDays, retentionDays),
	}
}
