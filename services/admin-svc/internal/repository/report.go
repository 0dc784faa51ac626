package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"reviewhub/pkg/database"
	"reviewhub/pkg/telemetry"
)

const reportColumns = `id, name, description, report_type, format, status,
		url, file_name, error, size_bytes, row_count,
		created_at, updated_at, completed_at`

// PostgresReportRepository PostgreSQL реализация ReportRepository
type PostgresReportRepository struct {
	db database.DB
}

// NewPostgresReportRepository создаёт репозиторий отчётов
func NewPostgresReportRepository(db database.DB) *PostgresReportRepository {
	return &PostgresReportRepository{db: db}
}

func (r *PostgresReportRepository) CreateProcessing(ctx context.Context, report *Report) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresReportRepository.CreateProcessing")
	defer span.End()

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	report.Status = StatusProcessing
	report.URL = nil

	query := `
		INSERT INTO reports (id, name, description, report_type, format, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		report.ID,
		report.Name,
		report.Description,
		string(report.Type),
		string(report.Format),
		string(report.Status),
	).Scan(&report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *PostgresReportRepository) MarkCompleted(ctx context.Context, id uuid.UUID, url, fileName string, sizeBytes int64, rowCount int) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresReportRepository.MarkCompleted")
	defer span.End()

	query := `
		UPDATE reports
		SET status = 'completed', url = $2, file_name = $3, size_bytes = $4, row_count = $5,
			error = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, id, url, fileName, sizeBytes, rowCount)
	if err != nil {
		return fmt.Errorf("failed to complete report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresReportRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresReportRepository.MarkFailed")
	defer span.End()

	query := `
		UPDATE reports
		SET status = 'failed', url = NULL, error = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark report failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresReportRepository) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresReportRepository.Get")
	defer span.End()

	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	report, err := scanReport(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func (r *PostgresReportRepository) List(ctx context.Context, params ReportListParams) ([]*Report, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresReportRepository.List")
	defer span.End()

	conditions, args := buildReportConditions(params)
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM reports"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	argIdx := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM reports%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		reportColumns, where, argIdx, argIdx+1)
	args = append(args, params.Limit, Offset(params.Page, params.Limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*Report, 0, params.Limit)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate reports: %w", err)
	}

	return reports, total, nil
}

func (r *PostgresReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresReportRepository.Delete")
	defer span.End()

	result, err := r.db.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresReportRepository) ReapStuck(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresReportRepository.ReapStuck")
	defer span.End()

	query := `
		UPDATE reports
		SET status = 'failed', url = NULL, error = $2, updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`
	result, err := r.db.Exec(ctx, query, cutoff, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stuck reports: %w", err)
	}
	return result.RowsAffected(), nil
}

func buildReportConditions(params ReportListParams) ([]string, []any) {
	var (
		conditions []string
		args       []any
	)

	if params.Status != "" {
		args = append(args, string(params.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Format != "" {
		args = append(args, string(params.Format))
		conditions = append(conditions, fmt.Sprintf("format = $%d", len(args)))
	}
	if params.ReportType != "" {
		args = append(args, string(params.ReportType))
		conditions = append(conditions, fmt.Sprintf("report_type = $%d", len(args)))
	}

	return conditions, args
}

func scanReport(row pgx.Row) (*Report, error) {
	var (
		report              Report
		reportType, format  string
		status              string
		url, fileName, fail pgtype.Text
		completedAt         pgtype.Timestamptz
	)

	err := row.Scan(
		&report.ID, &report.Name, &report.Description, &reportType, &format, &status,
		&url, &fileName, &fail, &report.SizeBytes, &report.RowCount,
		&report.CreatedAt, &report.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	report.Type = ReportType(reportType)
	report.Format = ReportFormat(format)
	report.Status = ReportStatus(status)
	if url.Valid {
		report.URL = &url.String
	}
	if fileName.Valid {
		report.FileName = &fileName.String
	}
	if fail.Valid {
		report.Error = &fail.String
	}
	if completedAt.Valid {
		report.CompletedAt = &completedAt.Time
	}

	return &report, nil
}
