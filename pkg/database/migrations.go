package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"reviewhub/pkg/config"
	"reviewhub/pkg/logger"
)

// Migrator управляет миграциями схемы через goose Provider
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
}

// NewMigrator создаёт мигратор поверх пула. dir - поддиректория с .sql файлами внутри fsys.
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, dir string) (*Migrator, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations dir %q: %w", dir, err)
	}

	db := stdlib.OpenDBFromPool(pool)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return &Migrator{db: db, provider: provider}, nil
}

// Up применяет все миграции
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, r := range results {
		logger.Log.Info("Migration applied",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"duration_ms", r.Duration.Milliseconds(),
		)
	}

	logger.Log.Info("Migrations applied successfully", "count", len(results))
	return nil
}

// Down откатывает последнюю миграцию
func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	logger.Log.Info("Migration rolled back", "version", result.Source.Version)
	return nil
}

// Version возвращает текущую версию схемы
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

// Close освобождает *sql.DB обёртку (сам пул не закрывается)
func (m *Migrator) Close() error {
	return m.db.Close()
}

// RunMigrations запускает миграции если включено в конфигурации
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, cfg *config.DatabaseConfig, fsys fs.FS, dir string) error {
	if !cfg.AutoMigrate {
		logger.Log.Info("Auto-migration is disabled")
		return nil
	}

	migrator, err := NewMigrator(pool, fsys, dir)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Up(ctx)
}
