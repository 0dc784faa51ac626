// Package search реализует фильтрованный поиск по моделям платформы,
// подсказки автодополнения и поиск сразу по всем моделям.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/cache"
	"reviewhub/pkg/config"
	"reviewhub/pkg/database"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/metrics"
	"reviewhub/pkg/telemetry"
	"reviewhub/services/admin-svc/internal/repository"
)

// Service поисковый сервис
type Service struct {
	db      database.DB
	cache   *cache.QueryCache
	metrics *metrics.Metrics

	limits         Limits
	suggestLimit   int
	searchAllLimit int
}

// NewService создаёт сервис. qc может быть nil: тогда запросы не кэшируются.
func NewService(db database.DB, cfg config.SearchConfig, qc *cache.QueryCache) *Service {
	s := &Service{
		db:      db,
		cache:   qc,
		metrics: metrics.Get(),
		limits: Limits{
			DefaultLimit: cfg.DefaultLimit,
			MaxLimit:     cfg.MaxLimit,
		},
		suggestLimit:   cfg.SuggestLimit,
		searchAllLimit: cfg.SearchAllLimit,
	}
	if s.limits.DefaultLimit <= 0 {
		s.limits.DefaultLimit = 10
	}
	if s.limits.MaxLimit <= 0 {
		s.limits.MaxLimit = 100
	}
	if s.suggestLimit <= 0 {
		s.suggestLimit = 5
	}
	if s.searchAllLimit <= 0 {
		s.searchAllLimit = 3
	}
	return s
}

// cacheKey канонический вид запроса для ключа кэша
type cacheKey struct {
	SQL   string `json:"sql"`
	Args  []any  `json:"args"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// Search выполняет поиск по одной модели
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search",
		trace.WithAttributes(telemetry.SearchAttributes(string(req.Model), req.Query, req.Page, req.Limit, len(req.Filters))...),
	)
	defer span.End()

	start := time.Now()

	stmt, err := buildStatement(req, s.limits)
	if err != nil {
		return nil, err
	}

	key := cacheKey{SQL: stmt.selectSQL, Args: stmt.args, Page: stmt.page, Limit: stmt.limit}
	result, err := cache.Load(ctx, s.cache, key, func(ctx context.Context) (*Result, error) {
		return s.run(ctx, stmt)
	})

	s.metrics.RecordSearch(string(req.Model), err == nil, time.Since(start))
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeInternal, fmt.Sprintf("search in %s failed", req.Model))
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, stmt *statement) (*Result, error) {
	var total int64
	if err := s.db.QueryRow(ctx, stmt.countSQL, stmt.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}

	rows, err := s.db.Query(ctx, stmt.selectSQL, stmt.selectArgs()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	if items == nil {
		items = []map[string]any{}
	}

	return &Result{
		Items:      items,
		Pagination: repository.NewPagination(stmt.page, stmt.limit, total),
	}, nil
}

// Suggest возвращает до suggestLimit совпадений на каждое текстовое поле модели.
// Значения без повторов, в порядке полей модели.
func (s *Service) Suggest(ctx context.Context, query string, model SearchableModel) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Suggest",
		trace.WithAttributes(telemetry.SearchAttributes(string(model), query, 1, s.suggestLimit, 0)...),
	)
	defer span.End()

	def, ok := Lookup(model)
	if !ok {
		verrs := apperror.NewValidationErrors()
		verrs.AddErrorWithField(apperror.CodeUnknownModel, fmt.Sprintf("unknown model %q", model), "model")
		return nil, verrs
	}

	suggestions := []string{}
	if query == "" {
		return suggestions, nil
	}

	pattern := containsPattern(query)
	seen := make(map[string]struct{})

	for _, field := range def.TextFields {
		sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ILIKE $1 LIMIT $2", field, def.Table, field)
		rows, err := s.db.Query(ctx, sql, pattern, s.suggestLimit)
		if err != nil {
			telemetry.SetError(ctx, err)
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load suggestions")
		}
		values, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			telemetry.SetError(ctx, err)
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to read suggestions")
		}

		for _, v := range values {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			suggestions = append(suggestions, v)
		}
	}

	return suggestions, nil
}

// SearchAll ищет по всем моделям параллельно с лимитом searchAllLimit.
// Ошибка одной модели логируется и не влияет на остальные: такая модель
// просто отсутствует в ответе.
func (s *Service) SearchAll(ctx context.Context, query string) (map[SearchableModel]*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.SearchAll")
	defer span.End()

	models := Models()
	results := make(map[SearchableModel]*Result, len(models))
	var mu sync.Mutex

	var g errgroup.Group
	for _, model := range models {
		g.Go(func() error {
			res, err := s.Search(ctx, Request{Model: model, Query: query, Page: 1, Limit: s.searchAllLimit})
			if err != nil {
				logger.WithContext(ctx).Warn("search all: model failed", "model", model, "error", err)
				return nil
			}
			mu.Lock()
			results[model] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeTimeout, "search all cancelled")
	}
	return results, nil
}
