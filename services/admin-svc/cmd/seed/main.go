package main

import (
	"context"
	"flag"
	"log"
	"time"

	"reviewhub/migrations"
	"reviewhub/pkg/config"
	"reviewhub/pkg/database"
	"reviewhub/pkg/logger"
	"reviewhub/services/admin-svc/internal/seed"
)

// Заполняет БД демонстрационными данными платформы отзывов.
// Объёмы задаются флагами, конфигурация подключения как у admin-svc.
func main() {
	def := seed.DefaultConfig()
	cfgSeed := def

	flag.IntVar(&cfgSeed.Users, "users", def.Users, "number of users")
	flag.IntVar(&cfgSeed.Companies, "companies", def.Companies, "number of companies")
	flag.IntVar(&cfgSeed.ReviewsPerCompany, "reviews", def.ReviewsPerCompany, "reviews per company")
	flag.IntVar(&cfgSeed.Products, "products", def.Products, "number of products")
	flag.IntVar(&cfgSeed.Orders, "orders", def.Orders, "number of orders")
	flag.IntVar(&cfgSeed.Sessions, "sessions", def.Sessions, "number of sessions")
	flag.IntVar(&cfgSeed.Days, "days", def.Days, "spread data over the last N days")
	flag.Int64Var(&cfgSeed.Seed, "seed", def.Seed, "random seed")
	flag.Parse()

	// Конфигурация и логгер
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// База данных и миграции
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database,
		migrations.PostgresMigrations, migrations.PostgresDir); err != nil {
		logger.Fatal("failed to run migrations", "error", err)
	}

	// Генерация и загрузка через COPY в одной транзакции
	inserted, err := seed.Load(ctx, db, seed.Generate(cfgSeed, time.Now()))
	if err != nil {
		logger.Fatal("seeding failed", "error", err)
	}
	logger.Info("Seeding finished", "rows", inserted)
}
