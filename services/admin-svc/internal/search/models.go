package search

import "sort"

// SearchableModel модель, доступная для поиска
type SearchableModel string

const (
	ModelUser    SearchableModel = "user"
	ModelPost    SearchableModel = "post"
	ModelPage    SearchableModel = "page"
	ModelProduct SearchableModel = "product"
	ModelCompany SearchableModel = "company"
	ModelReview  SearchableModel = "review"
)

// FieldKind тип значения колонки, определяет приведение значения фильтра
type FieldKind int

const (
	KindText FieldKind = iota
	KindNumber
	KindTime
	KindUUID
)

// ModelDefinition описание модели: таблица, поля поиска и белые списки колонок
type ModelDefinition struct {
	Model      SearchableModel
	Table      string
	TextFields []string // поля полнотекстового поиска (ILIKE)
	Columns    []string // порядок колонок в результатах
	Filterable map[string]FieldKind
	Sortable   map[string]struct{}
}

// CanFilter проверяет, что по полю можно фильтровать
func (d *ModelDefinition) CanFilter(field string) (FieldKind, bool) {
	kind, ok := d.Filterable[field]
	return kind, ok
}

// CanSort проверяет, что по полю можно сортировать
func (d *ModelDefinition) CanSort(field string) bool {
	_, ok := d.Sortable[field]
	return ok
}

func sortable(fields ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}

var registry = map[SearchableModel]*ModelDefinition{
	ModelUser: {
		Model:      ModelUser,
		Table:      "users",
		TextFields: []string{"name", "email"},
		Columns:    []string{"id", "name", "email", "role", "status", "created_at"},
		Filterable: map[string]FieldKind{
			"id":         KindUUID,
			"name":       KindText,
			"email":      KindText,
			"role":       KindText,
			"status":     KindText,
			"created_at": KindTime,
		},
		Sortable: sortable("name", "email", "role", "status", "created_at"),
	},
	ModelPost: {
		Model:      ModelPost,
		Table:      "posts",
		TextFields: []string{"title", "content"},
		Columns:    []string{"id", "title", "slug", "content", "status", "created_at"},
		Filterable: map[string]FieldKind{
			"id":         KindUUID,
			"title":      KindText,
			"slug":       KindText,
			"status":     KindText,
			"created_at": KindTime,
		},
		Sortable: sortable("title", "slug", "status", "created_at"),
	},
	ModelPage: {
		Model:      ModelPage,
		Table:      "pages",
		TextFields: []string{"title", "content"},
		Columns:    []string{"id", "title", "slug", "content", "created_at"},
		Filterable: map[string]FieldKind{
			"id":         KindUUID,
			"title":      KindText,
			"slug":       KindText,
			"created_at": KindTime,
		},
		Sortable: sortable("title", "slug", "created_at"),
	},
	ModelProduct: {
		Model:      ModelProduct,
		Table:      "products",
		TextFields: []string{"name", "description", "sku"},
		Columns:    []string{"id", "name", "description", "sku", "price", "stock", "created_at"},
		Filterable: map[string]FieldKind{
			"id":         KindUUID,
			"name":       KindText,
			"sku":        KindText,
			"price":      KindNumber,
			"stock":      KindNumber,
			"created_at": KindTime,
		},
		Sortable: sortable("name", "sku", "price", "stock", "created_at"),
	},
	ModelCompany: {
		Model:      ModelCompany,
		Table:      "companies",
		TextFields: []string{"name", "description", "city"},
		Columns:    []string{"id", "name", "description", "city", "category", "rating", "created_at"},
		Filterable: map[string]FieldKind{
			"id":         KindUUID,
			"name":       KindText,
			"city":       KindText,
			"category":   KindText,
			"rating":     KindNumber,
			"created_at": KindTime,
		},
		Sortable: sortable("name", "city", "category", "rating", "created_at"),
	},
	ModelReview: {
		Model:      ModelReview,
		Table:      "reviews",
		TextFields: []string{"title", "content"},
		Columns:    []string{"id", "company_id", "user_id", "title", "content", "rating", "created_at"},
		Filterable: map[string]FieldKind{
			"id":         KindUUID,
			"company_id": KindUUID,
			"user_id":    KindUUID,
			"title":      KindText,
			"rating":     KindNumber,
			"created_at": KindTime,
		},
		Sortable: sortable("title", "rating", "created_at"),
	},
}

// Lookup возвращает описание модели
func Lookup(model SearchableModel) (*ModelDefinition, bool) {
	def, ok := registry[model]
	return def, ok
}

// Models возвращает все зарегистрированные модели в стабильном порядке
func Models() []SearchableModel {
	models := make([]SearchableModel, 0, len(registry))
	for m := range registry {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i] < models[j] })
	return models
}
