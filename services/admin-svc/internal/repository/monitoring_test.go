package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMonitoringRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresMonitoringRepository) {
	mock, db := newMock(t)
	return mock, NewPostgresMonitoringRepository(db)
}

func TestMonitoringRepository_Cleanup_StrictlyOlder(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -30)
	mock, repo := newMonitoringRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM system_metrics WHERE collected_at < \$1`).
		WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectExec(`DELETE FROM error_logs WHERE created_at < \$1`).
		WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM page_views WHERE created_at < \$1`).
		WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(`DELETE FROM user_activities WHERE created_at < \$1`).
		WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM user_sessions WHERE started_at < \$1`).
		WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	result, err := repo.Cleanup(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, CleanupResult{
		Cutoff:         cutoff,
		SystemMetrics:  5,
		ErrorLogs:      1,
		UserSessions:   2,
		UserActivities: 3,
		PageViews:      4,
	}, result)
	assert.Equal(t, int64(15), result.Total())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonitoringRepository_Cleanup_RollsBack(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -7)
	mock, repo := newMonitoringRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM system_metrics`).
		WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectExec(`DELETE FROM error_logs`).
		WithArgs(cutoff).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := repo.Cleanup(context.Background(), cutoff)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error_logs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Отсечка считается вызывающим по его часам, репозиторий её не сверяет с time.Now
func TestMonitoringRepository_Cleanup_CutoffFromCallerClock(t *testing.T) {
	cutoff := time.Now().Add(48 * time.Hour).UTC()
	mock, repo := newMonitoringRepo(t)

	mock.ExpectBegin()
	for _, table := range []string{"system_metrics", "error_logs", "page_views", "user_activities", "user_sessions"} {
		mock.ExpectExec(`DELETE FROM ` + table).
			WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	}
	mock.ExpectCommit()

	result, err := repo.Cleanup(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Total())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonitoringRepository_InsertAndCount(t *testing.T) {
	now := time.Now()
	mock, repo := newMonitoringRepo(t)

	m := &SystemMetric{CPUUsage: 12.5, MemoryUsed: 512, MemoryTotal: 1024, MemoryUsage: 0.5, CollectedAt: now}
	mock.ExpectExec(`INSERT INTO system_metrics`).
		WithArgs(pgxmock.AnyArg(), 12.5, int64(512), int64(1024), 0.5, 0, 0, 0, 0.0, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM user_sessions WHERE ended_at IS NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	require.NoError(t, repo.InsertSystemMetric(context.Background(), m))
	n, err := repo.CountActiveSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
