package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"reviewhub/pkg/database"
	"reviewhub/pkg/telemetry"
)

// retentionTables таблицы, очищаемые по сроку хранения, и их колонка времени
var retentionTables = []struct {
	table  string
	column string
	set    func(*CleanupResult, int64)
}{
	{"system_metrics", "collected_at", func(r *CleanupResult, n int64) { r.SystemMetrics = n }},
	{"error_logs", "created_at", func(r *CleanupResult, n int64) { r.ErrorLogs = n }},
	{"page_views", "created_at", func(r *CleanupResult, n int64) { r.PageViews = n }},
	{"user_activities", "created_at", func(r *CleanupResult, n int64) { r.UserActivities = n }},
	{"user_sessions", "started_at", func(r *CleanupResult, n int64) { r.UserSessions = n }},
}

// PostgresMonitoringRepository PostgreSQL реализация MonitoringRepository
type PostgresMonitoringRepository struct {
	db database.DB
}

// NewPostgresMonitoringRepository создаёт репозиторий мониторинга
func NewPostgresMonitoringRepository(db database.DB) *PostgresMonitoringRepository {
	return &PostgresMonitoringRepository{db: db}
}

func (r *PostgresMonitoringRepository) InsertSystemMetric(ctx context.Context, m *SystemMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	query := `
		INSERT INTO system_metrics (
			id, cpu_usage, memory_used, memory_total, memory_usage,
			active_sessions, request_count, error_count, avg_response_ms, collected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		m.ID,
		m.CPUUsage,
		int64(m.MemoryUsed),
		int64(m.MemoryTotal),
		m.MemoryUsage,
		m.ActiveSessions,
		m.RequestCount,
		m.ErrorCount,
		m.AvgResponseMs,
		m.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert system metric: %w", err)
	}
	return nil
}

func (r *PostgresMonitoringRepository) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_sessions WHERE ended_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// Cleanup удаляет строки строго старше cutoff во всех таблицах в одной транзакции.
// Строка с временем, равным cutoff, сохраняется. Срок хранения проверяет вызывающий.
func (r *PostgresMonitoringRepository) Cleanup(ctx context.Context, cutoff time.Time) (CleanupResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresMonitoringRepository.Cleanup")
	defer span.End()

	return database.WithTransactionResult(ctx, r.db, func(tx pgx.Tx) (CleanupResult, error) {
		result := CleanupResult{Cutoff: cutoff}
		for _, t := range retentionTables {
			query := fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, t.table, t.column)
			tag, err := tx.Exec(ctx, query, cutoff)
			if err != nil {
				return CleanupResult{}, fmt.Errorf("failed to clean %s: %w", t.table, err)
			}
			t.set(&result, tag.RowsAffected())
		}
		return result, nil
	})
}
