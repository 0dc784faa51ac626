// Package migrations содержит SQL миграции схемы, встроенные в бинарник.
package migrations

import "embed"

// PostgresMigrations миграции для PostgreSQL, директория "postgres"
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS

// PostgresDir имя директории с миграциями внутри PostgresMigrations
const PostgresDir = "postgres"
