package repository

import (
	"context"
	"fmt"
	"time"

	"reviewhub/pkg/database"
	"reviewhub/pkg/telemetry"
)

// PostgresAnalyticsRepository PostgreSQL реализация AnalyticsRepository.
// Все окна полуоткрытые: [start, end).
type PostgresAnalyticsRepository struct {
	db database.DB
}

// NewPostgresAnalyticsRepository создаёт репозиторий аналитики
func NewPostgresAnalyticsRepository(db database.DB) *PostgresAnalyticsRepository {
	return &PostgresAnalyticsRepository{db: db}
}

func (r *PostgresAnalyticsRepository) CountNewUsers(ctx context.Context, start, end time.Time) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.CountNewUsers")
	defer span.End()

	var count int64
	query := `SELECT COUNT(*) FROM users WHERE created_at >= $1 AND created_at < $2`
	if err := r.db.QueryRow(ctx, query, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *PostgresAnalyticsRepository) OrderTotals(ctx context.Context, start, end time.Time) (OrderTotals, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.OrderTotals")
	defer span.End()

	var totals OrderTotals
	query := `
		SELECT COUNT(*), COALESCE(SUM(total), 0)::float8
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
	`
	if err := r.db.QueryRow(ctx, query, start, end).Scan(&totals.Count, &totals.Revenue); err != nil {
		return OrderTotals{}, fmt.Errorf("failed to aggregate orders: %w", err)
	}
	return totals, nil
}

func (r *PostgresAnalyticsRepository) CountActiveUsers(ctx context.Context, start, end time.Time) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.CountActiveUsers")
	defer span.End()

	var count int64
	query := `
		SELECT COUNT(DISTINCT user_id)
		FROM user_sessions
		WHERE started_at >= $1 AND started_at < $2 AND user_id IS NOT NULL
	`
	if err := r.db.QueryRow(ctx, query, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

func (r *PostgresAnalyticsRepository) RevenueByDay(ctx context.Context, start, end time.Time) ([]DailyValue, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.RevenueByDay")
	defer span.End()

	query := `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COALESCE(SUM(total), 0)::float8
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day
		ORDER BY day
	`
	return r.daily(ctx, query, start, end)
}

func (r *PostgresAnalyticsRepository) ActivityByDay(ctx context.Context, start, end time.Time) ([]DailyValue, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.ActivityByDay")
	defer span.End()

	query := `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COUNT(*)::float8
		FROM user_activities
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day
		ORDER BY day
	`
	return r.daily(ctx, query, start, end)
}

func (r *PostgresAnalyticsRepository) daily(ctx context.Context, query string, start, end time.Time) ([]DailyValue, error) {
	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily series: %w", err)
	}
	defer rows.Close()

	var points []DailyValue
	for rows.Next() {
		var p DailyValue
		if err := rows.Scan(&p.Day, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan daily value: %w", err)
		}
		// timestamp without time zone приходит как UTC
		p.Day = time.Date(p.Day.Year(), p.Day.Month(), p.Day.Day(), 0, 0, 0, 0, time.UTC)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily series: %w", err)
	}
	return points, nil
}

func (r *PostgresAnalyticsRepository) PopularPages(ctx context.Context, start, end time.Time, limit int) ([]PageStat, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.PopularPages")
	defer span.End()

	query := `
		SELECT path, COUNT(*) AS views
		FROM page_views
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY path
		ORDER BY views DESC, path
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular pages: %w", err)
	}
	defer rows.Close()

	pages := make([]PageStat, 0, limit)
	for rows.Next() {
		var p PageStat
		if err := rows.Scan(&p.Path, &p.Views); err != nil {
			return nil, fmt.Errorf("failed to scan page stat: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate page stats: %w", err)
	}
	return pages, nil
}

// SessionStats считает сессии окна. Вернувшийся пользователь - тот, у кого есть сессия в окне
// и хотя бы одна сессия, начатая до start.
func (r *PostgresAnalyticsRepository) SessionStats(ctx context.Context, start, end time.Time) (SessionStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.SessionStats")
	defer span.End()

	query := `
		WITH window_sessions AS (
			SELECT user_id, duration, bounced
			FROM user_sessions
			WHERE started_at >= $1 AND started_at < $2
		)
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE bounced),
			COALESCE(AVG(duration), 0)::float8,
			COUNT(DISTINCT user_id),
			(
				SELECT COUNT(DISTINCT w.user_id)
				FROM window_sessions w
				WHERE w.user_id IS NOT NULL AND EXISTS (
					SELECT 1 FROM user_sessions p
					WHERE p.user_id = w.user_id AND p.started_at < $1
				)
			)
		FROM window_sessions
	`

	var stats SessionStats
	err := r.db.QueryRow(ctx, query, start, end).Scan(
		&stats.TotalSessions,
		&stats.Bounced,
		&stats.AvgDuration,
		&stats.UniqueUsers,
		&stats.ReturningUsers,
	)
	if err != nil {
		return SessionStats{}, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	return stats, nil
}
