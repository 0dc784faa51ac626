package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"reviewhub/pkg/logger"
)

// Recorder получает результат каждого обращения к кэшу (для метрик)
type Recorder func(namespace string, hit bool)

// QueryCache кэширует результаты read-only запросов в JSON.
// Нулевой *QueryCache допустим и просто выполняет загрузку.
type QueryCache struct {
	backend   Cache
	namespace string
	ttl       time.Duration
	record    Recorder
}

// NewQueryCache создаёт кэш запросов в пространстве имён namespace
func NewQueryCache(backend Cache, namespace string, ttl time.Duration, record Recorder) *QueryCache {
	return &QueryCache{
		backend:   backend,
		namespace: namespace,
		ttl:       ttl,
		record:    record,
	}
}

func (q *QueryCache) enabled() bool {
	return q != nil && q.backend != nil && q.ttl > 0
}

func (q *QueryCache) observe(hit bool) {
	if q.record != nil {
		q.record(q.namespace, hit)
	}
}

// Invalidate удаляет все записи пространства имён
func (q *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	if !q.enabled() {
		return 0, nil
	}
	return q.backend.DeleteByPattern(ctx, q.namespace+":*")
}

// Load возвращает закэшированный результат для params или вызывает load и
// сохраняет его. Ошибки кэша не прерывают запрос, ошибки load не кэшируются.
func Load[T any](ctx context.Context, q *QueryCache, params any, load func(context.Context) (T, error)) (T, error) {
	if !q.enabled() {
		return load(ctx)
	}

	key, err := BuildKey(q.namespace, params)
	if err != nil {
		return load(ctx)
	}

	data, err := q.backend.Get(ctx, key)
	switch {
	case err == nil:
		var cached T
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			q.observe(true)
			return cached, nil
		}
		logger.Log.Debug("cache entry is not decodable", "key", key)
	case !errors.Is(err, ErrKeyNotFound):
		logger.Log.Debug("cache get failed", "key", key, "error", err)
	}
	q.observe(false)

	result, err := load(ctx)
	if err != nil {
		return result, err
	}

	if encoded, err := json.Marshal(result); err == nil {
		if err := q.backend.Set(ctx, key, encoded, q.ttl); err != nil {
			logger.Log.Warn("cache set failed", "key", key, "error", err)
		}
	}
	return result, nil
}
