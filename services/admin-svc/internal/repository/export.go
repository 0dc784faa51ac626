package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"reviewhub/pkg/database"
	"reviewhub/pkg/telemetry"
)

type exportColumn struct {
	name string
	expr string
}

type exportSource struct {
	table   string
	columns []exportColumn
}

// Числовые колонки приводятся к float8, чтобы генераторы получали float64 вместо pgtype.Numeric
var exportSources = map[ReportType]exportSource{
	ReportUsers: {
		table: "users",
		columns: []exportColumn{
			{"id", "id::text"},
			{"name", "name"},
			{"email", "email"},
			{"role", "role"},
			{"status", "status"},
			{"created_at", "created_at"},
		},
	},
	ReportOrders: {
		table: "orders",
		columns: []exportColumn{
			{"id", "id::text"},
			{"user_id", "COALESCE(user_id::text, '')"},
			{"status", "status"},
			{"total", "total::float8"},
			{"created_at", "created_at"},
		},
	},
	ReportProducts: {
		table: "products",
		columns: []exportColumn{
			{"id", "id::text"},
			{"name", "name"},
			{"description", "description"},
			{"sku", "sku"},
			{"price", "price::float8"},
			{"stock", "stock"},
			{"created_at", "created_at"},
		},
	},
}

// ExportColumns возвращает колонки, доступные для выгрузки данного типа
func ExportColumns(t ReportType) ([]string, bool) {
	src, ok := exportSources[t]
	if !ok {
		return nil, false
	}
	names := make([]string, len(src.columns))
	for i, c := range src.columns {
		names[i] = c.name
	}
	return names, true
}

// PostgresExportRepository PostgreSQL реализация ExportRepository
type PostgresExportRepository struct {
	db database.DB
}

// NewPostgresExportRepository создаёт репозиторий выгрузки
func NewPostgresExportRepository(db database.DB) *PostgresExportRepository {
	return &PostgresExportRepository{db: db}
}

// Export выбирает строки источника. Фильтры и сортировка принимаются только по известным колонкам,
// диапазон дат включает обе границы.
func (r *PostgresExportRepository) Export(ctx context.Context, q ExportQuery) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresExportRepository.Export")
	defer span.End()

	query, args, err := buildExportQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", q.Type, err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", q.Type, err)
	}

	records := make([]Record, len(maps))
	for i, m := range maps {
		records[i] = Record(m)
	}
	return records, nil
}

func buildExportQuery(q ExportQuery) (string, []any, error) {
	src, ok := exportSources[q.Type]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownType, q.Type)
	}

	selects := make([]string, len(src.columns))
	known := make([]string, len(src.columns))
	for i, c := range src.columns {
		selects[i] = fmt.Sprintf("%s AS %s", c.expr, c.name)
		known[i] = c.name
	}

	var (
		conditions []string
		args       []any
	)

	// Детерминированный порядок аргументов для одинаковых фильтров
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if !slices.Contains(known, key) {
			return "", nil, fmt.Errorf("%w: filter %q", ErrInvalidColumn, key)
		}
		args = append(args, q.Filters[key])
		conditions = append(conditions, fmt.Sprintf("%s = $%d", key, len(args)))
	}

	if q.DateFrom != nil {
		args = append(args, *q.DateFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if q.DateTo != nil {
		args = append(args, *q.DateTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(src.table)
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	if !slices.Contains(known, sortBy) {
		return "", nil, fmt.Errorf("%w: sort %q", ErrInvalidColumn, sortBy)
	}
	order := "DESC"
	switch strings.ToLower(q.SortOrder) {
	case "asc":
		order = "ASC"
	case "", "desc":
	default:
		return "", nil, fmt.Errorf("%w: sort order %q", ErrInvalidColumn, q.SortOrder)
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s", sortBy, order)

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args, nil
}
