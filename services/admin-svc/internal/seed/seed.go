// Package seed генерирует демонстрационные данные платформы отзывов
// для локальной разработки админки.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"reviewhub/pkg/database"
	"reviewhub/pkg/logger"
)

// Config объём генерируемых данных
type Config struct {
	Users             int
	Companies         int
	ReviewsPerCompany int
	Products          int
	Orders            int
	Posts             int
	Pages             int
	Sessions          int
	Days              int // данные распределяются по последним Days дням
	Seed              int64
}

// DefaultConfig небольшой набор для локального запуска
func DefaultConfig() Config {
	return Config{
		Users:             200,
		Companies:         50,
		ReviewsPerCompany: 8,
		Products:          80,
		Orders:            400,
		Posts:             30,
		Pages:             10,
		Sessions:          600,
		Days:              60,
		Seed:              42,
	}
}

// Table строки одной таблицы в порядке колонок
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

var (
	roles          = []string{"user", "user", "user", "moderator", "admin"}
	userStatuses   = []string{"active", "active", "active", "blocked", "pending"}
	categories     = []string{"restaurants", "clinics", "hotels", "retail", "education", "services"}
	orderStatuses  = []string{"pending", "paid", "paid", "completed", "completed", "cancelled"}
	postStatuses   = []string{"draft", "published", "published"}
	actions        = []string{"review.create", "review.update", "company.view", "search.run", "profile.update"}
	sitePaths      = []string{"/", "/companies", "/companies/top", "/reviews/latest", "/search", "/about", "/contact"}
	referrers      = []string{"", "", "https://google.com", "https://facebook.com", "https://t.me"}
	iraqiCities    = []string{"Baghdad", "Basra", "Erbil", "Mosul", "Najaf", "Karbala", "Sulaymaniyah"}
	activityTarget = []string{"review", "company", "user"}
)

// Generate строит детерминированный набор данных относительно now.
// Таблицы упорядочены так, чтобы внешние ключи ссылались на уже вставленные строки.
func Generate(cfg Config, now time.Time) []Table {
	f := gofakeit.New(cfg.Seed)
	days := cfg.Days
	if days <= 0 {
		days = 30
	}
	from := now.AddDate(0, 0, -days)
	at := func() time.Time { return f.DateRange(from, now).UTC() }
	id := func() uuid.UUID { return uuid.MustParse(f.UUID()) }

	users := Table{Name: "users", Columns: []string{"id", "name", "email", "role", "status", "created_at"}}
	userIDs := make([]uuid.UUID, cfg.Users)
	for i := range userIDs {
		userIDs[i] = id()
		users.Rows = append(users.Rows, []any{
			userIDs[i],
			f.Name(),
			fmt.Sprintf("%d.%s", i, strings.ToLower(f.Email())),
			f.RandomString(roles),
			f.RandomString(userStatuses),
			at(),
		})
	}

	companies := Table{Name: "companies", Columns: []string{"id", "name", "description", "city", "category", "rating", "created_at"}}
	reviews := Table{Name: "reviews", Columns: []string{"id", "company_id", "user_id", "title", "content", "rating", "created_at"}}
	for i := 0; i < cfg.Companies; i++ {
		companyID := id()
		total := 0
		for j := 0; j < cfg.ReviewsPerCompany; j++ {
			rating := f.Number(1, 5)
			total += rating
			var author any
			if len(userIDs) > 0 {
				author = userIDs[f.Number(0, len(userIDs)-1)]
			}
			reviews.Rows = append(reviews.Rows, []any{
				id(), companyID, author, f.Sentence(5), f.Paragraph(1, 3, 12, " "), rating, at(),
			})
		}
		var avg float64
		if cfg.ReviewsPerCompany > 0 {
			avg = float64(total) / float64(cfg.ReviewsPerCompany)
		}
		companies.Rows = append(companies.Rows, []any{
			companyID,
			f.Company(),
			f.Sentence(10),
			f.RandomString(iraqiCities),
			f.RandomString(categories),
			avg,
			at(),
		})
	}

	products := Table{Name: "products", Columns: []string{"id", "name", "description", "sku", "price", "stock", "created_at"}}
	for i := 0; i < cfg.Products; i++ {
		products.Rows = append(products.Rows, []any{
			id(), f.ProductName(), f.Sentence(8), fmt.Sprintf("SKU-%06d", i+1),
			f.Price(5, 500), f.Number(0, 250), at(),
		})
	}

	orders := Table{Name: "orders", Columns: []string{"id", "user_id", "status", "total", "created_at"}}
	for i := 0; i < cfg.Orders; i++ {
		var buyer any
		if len(userIDs) > 0 {
			buyer = userIDs[f.Number(0, len(userIDs)-1)]
		}
		orders.Rows = append(orders.Rows, []any{id(), buyer, f.RandomString(orderStatuses), f.Price(10, 1500), at()})
	}

	posts := Table{Name: "posts", Columns: []string{"id", "title", "slug", "content", "status", "created_at"}}
	for i := 0; i < cfg.Posts; i++ {
		posts.Rows = append(posts.Rows, []any{
			id(), f.Sentence(6), fmt.Sprintf("post-%d-%s", i+1, strings.ToLower(f.Word())),
			f.Paragraph(2, 4, 15, "\n"), f.RandomString(postStatuses), at(),
		})
	}

	pages := Table{Name: "pages", Columns: []string{"id", "title", "slug", "content", "created_at"}}
	for i := 0; i < cfg.Pages; i++ {
		pages.Rows = append(pages.Rows, []any{
			id(), f.Sentence(3), fmt.Sprintf("page-%d-%s", i+1, strings.ToLower(f.Word())),
			f.Paragraph(2, 4, 15, "\n"), at(),
		})
	}

	sessions := Table{Name: "user_sessions", Columns: []string{
		"id", "user_id", "started_at", "ended_at", "duration", "page_views", "bounced", "user_agent", "ip_address",
	}}
	views := Table{Name: "page_views", Columns: []string{"id", "session_id", "user_id", "path", "referrer", "duration", "created_at"}}
	for i := 0; i < cfg.Sessions; i++ {
		sessionID := id()
		var user *uuid.UUID
		if len(userIDs) > 0 && f.Bool() {
			u := userIDs[f.Number(0, len(userIDs)-1)]
			user = &u
		}

		started := at()
		count := f.Number(1, 6)
		elapsed := 0
		for j := 0; j < count; j++ {
			d := f.Number(5, 180)
			views.Rows = append(views.Rows, []any{
				id(), sessionID, user, f.RandomString(sitePaths), f.RandomString(referrers), d,
				started.Add(time.Duration(elapsed) * time.Second),
			})
			elapsed += d
		}
		ended := started.Add(time.Duration(elapsed) * time.Second)
		sessions.Rows = append(sessions.Rows, []any{
			sessionID, user, started, ended, elapsed, count, count == 1, f.UserAgent(), f.IPv4Address(),
		})
	}

	activities := Table{Name: "user_activities", Columns: []string{"id", "user_id", "action", "resource", "resource_id", "metadata", "created_at"}}
	for i := 0; i < cfg.Sessions; i++ {
		var user any
		if len(userIDs) > 0 {
			user = userIDs[f.Number(0, len(userIDs)-1)]
		}
		activities.Rows = append(activities.Rows, []any{
			id(), user, f.RandomString(actions), f.RandomString(activityTarget), f.UUID(),
			map[string]any{"source": "seed"}, at(),
		})
	}

	return []Table{users, companies, reviews, products, orders, posts, pages, sessions, views, activities}
}

// Load вставляет таблицы через COPY в одной транзакции и возвращает число строк по таблицам
func Load(ctx context.Context, db database.DB, tables []Table) (map[string]int64, error) {
	return database.WithTransactionResult(ctx, db, func(tx pgx.Tx) (map[string]int64, error) {
		inserted := make(map[string]int64, len(tables))
		for _, t := range tables {
			if len(t.Rows) == 0 {
				continue
			}
			n, err := tx.CopyFrom(ctx, pgx.Identifier{t.Name}, t.Columns, pgx.CopyFromRows(t.Rows))
			if err != nil {
				return nil, fmt.Errorf("copy into %s: %w", t.Name, err)
			}
			inserted[t.Name] = n
			logger.Info("Seeded table", "table", t.Name, "rows", n)
		}
		return inserted, nil
	})
}
