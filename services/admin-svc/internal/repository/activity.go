package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"reviewhub/pkg/database"
	"reviewhub/pkg/telemetry"
)

// PostgresActivityRepository PostgreSQL реализация ActivityRepository
type PostgresActivityRepository struct {
	db database.DB
}

// NewPostgresActivityRepository создаёт репозиторий активности
func NewPostgresActivityRepository(db database.DB) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db}
}

func (r *PostgresActivityRepository) InsertActivity(ctx context.Context, a *Activity) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	query := `
		INSERT INTO user_activities (id, user_id, action, resource, resource_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.UserID, a.Action, a.Resource, a.ResourceID, metadata, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func (r *PostgresActivityRepository) InsertPageView(ctx context.Context, pv *PageView) error {
	if pv.ID == uuid.Nil {
		pv.ID = uuid.New()
	}
	if pv.CreatedAt.IsZero() {
		pv.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO page_views (id, session_id, user_id, path, referrer, duration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	args := []any{pv.ID, pv.SessionID, pv.UserID, pv.Path, pv.Referrer, pv.Duration, pv.CreatedAt}

	if pv.SessionID == nil {
		if _, err := r.db.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert page view: %w", err)
		}
		return nil
	}

	// Просмотр и счётчик сессии меняются вместе
	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert page view: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE user_sessions SET page_views = page_views + 1 WHERE id = $1`, *pv.SessionID); err != nil {
			return fmt.Errorf("failed to bump session page views: %w", err)
		}
		return nil
	})
}

func (r *PostgresActivityRepository) CreateSession(ctx context.Context, s *Session) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresActivityRepository.CreateSession")
	defer span.End()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO user_sessions (id, user_id, started_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query, s.ID, s.UserID, s.StartedAt, s.UserAgent, s.IPAddress); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// EndSession закрывает сессию; длительность - целые секунды между началом и концом
func (r *PostgresActivityRepository) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time, bounced bool) (*Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresActivityRepository.EndSession")
	defer span.End()

	query := `
		UPDATE user_sessions
		SET ended_at = $2,
			duration = GREATEST(FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - started_at))), 0)::int,
			bounced = $3
		WHERE id = $1 AND ended_at IS NULL
		RETURNING id, user_id, started_at, ended_at, duration, page_views, bounced, user_agent, ip_address
	`

	s, err := scanSession(r.db.QueryRow(ctx, query, id, endedAt, bounced))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	var ended bool
	err = r.db.QueryRow(ctx, `SELECT ended_at IS NOT NULL FROM user_sessions WHERE id = $1`, id).Scan(&ended)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	return nil, ErrSessionEnded
}

func (r *PostgresActivityRepository) InsertErrorLog(ctx context.Context, e *ErrorLog) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = "error"
	}

	query := `
		INSERT INTO error_logs (id, level, message, stack, path, status_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, e.ID, e.Level, e.Message, e.Stack, e.Path, e.StatusCode, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s        Session
		userID   pgtype.UUID
		endedAt  pgtype.Timestamptz
		duration pgtype.Int4
	)

	err := row.Scan(
		&s.ID, &userID, &s.StartedAt, &endedAt, &duration,
		&s.PageViews, &s.Bounced, &s.UserAgent, &s.IPAddress,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		uid := uuid.UUID(userID.Bytes)
		s.UserID = &uid
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	if duration.Valid {
		d := int(duration.Int32)
		s.Duration = &d
	}
	return &s, nil
}
