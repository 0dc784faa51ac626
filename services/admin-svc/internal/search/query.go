package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewhub/pkg/apperror"
	"reviewhub/services/admin-svc/internal/repository"
)

// Operator оператор фильтра
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpGreater  Operator = "gt"
	OpLess     Operator = "lt"
	OpBetween  Operator = "between"
)

// Filter условие по полю. Пустой оператор означает equals.
type Filter struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator,omitempty" validate:"omitempty,oneof=equals contains gt lt between"`
	Value    any      `json:"value"`
}

// Sort ключ сортировки
type Sort struct {
	Field     string `json:"field" validate:"required"`
	Direction string `json:"direction,omitempty" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// Request поисковый запрос
type Request struct {
	Model   SearchableModel `json:"model" validate:"required"`
	Query   string          `json:"query,omitempty" validate:"max=200"`
	Filters []Filter        `json:"filters,omitempty" validate:"dive"`
	Sort    []Sort          `json:"sort,omitempty" validate:"dive"`
	Page    int             `json:"page,omitempty" validate:"gte=0"`
	Limit   int             `json:"limit,omitempty" validate:"gte=0"`
}

// Result страница результатов поиска
type Result struct {
	Items      []map[string]any      `json:"items"`
	Pagination repository.Pagination `json:"pagination"`
}

// Limits ограничения пагинации
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// statement готовый SQL поиска
type statement struct {
	countSQL  string
	selectSQL string
	args      []any
	page      int
	limit     int
}

// selectArgs аргументы запроса страницы: условия + LIMIT + OFFSET
func (s *statement) selectArgs() []any {
	args := make([]any, 0, len(s.args)+2)
	args = append(args, s.args...)
	return append(args, s.limit, repository.Offset(s.page, s.limit))
}

// normalize подставляет значения по умолчанию и проверяет пагинацию
func normalize(req *Request, limits Limits, verrs *apperror.ValidationErrors) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = limits.DefaultLimit
	}
	req.Query = strings.TrimSpace(req.Query)

	if req.Page < 1 {
		verrs.AddErrorWithField(apperror.CodeInvalidPagination, "page must be >= 1", "page")
	}
	if req.Limit < 1 || req.Limit > limits.MaxLimit {
		verrs.AddErrorWithField(apperror.CodeInvalidPagination,
			fmt.Sprintf("limit must be between 1 and %d", limits.MaxLimit), "limit")
	}
	for i := range req.Filters {
		if req.Filters[i].Operator == "" {
			req.Filters[i].Operator = OpEquals
		}
	}
	for i := range req.Sort {
		req.Sort[i].Direction = strings.ToLower(req.Sort[i].Direction)
		if req.Sort[i].Direction == "" {
			req.Sort[i].Direction = "asc"
		}
	}
}

// buildStatement проверяет запрос по описанию модели и строит SQL.
// Все ошибки ввода собираются в ValidationErrors.
func buildStatement(req Request, limits Limits) (*statement, error) {
	verrs := apperror.NewValidationErrors()

	def, ok := Lookup(req.Model)
	if !ok {
		verrs.AddErrorWithField(apperror.CodeUnknownModel, fmt.Sprintf("unknown model %q", req.Model), "model")
		return nil, verrs
	}

	normalize(&req, limits, verrs)

	var (
		conditions []string
		args       []any
	)

	if req.Query != "" {
		args = append(args, containsPattern(req.Query))
		conditions = append(conditions, textCondition(def.TextFields, len(args)))
	}

	for i, f := range req.Filters {
		cond, values, err := filterCondition(def, f, len(args))
		if err != nil {
			err.Field = fmt.Sprintf("filters[%d].%s", i, err.Field)
			verrs.Add(err)
			continue
		}
		args = append(args, values...)
		conditions = append(conditions, cond)
	}

	orderBy := make([]string, 0, len(req.Sort))
	for i, s := range req.Sort {
		if !def.CanSort(s.Field) {
			verrs.AddErrorWithField(apperror.CodeInvalidSort,
				fmt.Sprintf("field %q is not sortable", s.Field), fmt.Sprintf("sort[%d].field", i))
			continue
		}
		if s.Direction != "asc" && s.Direction != "desc" {
			verrs.AddErrorWithField(apperror.CodeInvalidSort,
				fmt.Sprintf("direction must be asc or desc, got %q", s.Direction), fmt.Sprintf("sort[%d].direction", i))
			continue
		}
		orderBy = append(orderBy, s.Field+" "+strings.ToUpper(s.Direction))
	}

	if err := verrs.Err(); err != nil {
		return nil, err
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	order := " ORDER BY created_at DESC"
	if len(orderBy) > 0 {
		order = " ORDER BY " + strings.Join(orderBy, ", ")
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", def.Table, where)
	selectSQL := fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT $%d OFFSET $%d",
		selectList(def), def.Table, where, order, len(args)+1, len(args)+2)

	return &statement{
		countSQL:  countSQL,
		selectSQL: selectSQL,
		args:      args,
		page:      req.Page,
		limit:     req.Limit,
	}, nil
}

// selectList приводит uuid и numeric к типам, которые сериализуются в JSON
func selectList(def *ModelDefinition) string {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		kind, _ := def.CanFilter(c)
		switch {
		case kind == KindUUID || strings.HasSuffix(c, "_id") || c == "id":
			cols[i] = fmt.Sprintf("%s::text AS %s", c, c)
		case kind == KindNumber:
			cols[i] = fmt.Sprintf("%s::float8 AS %s", c, c)
		default:
			cols[i] = c
		}
	}
	return strings.Join(cols, ", ")
}

func textCondition(fields []string, argN int) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", f, argN)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// columnExpr левая часть сравнения: приведение к типу значения фильтра
func columnExpr(field string, kind FieldKind) string {
	switch kind {
	case KindUUID:
		return field + "::text"
	case KindNumber:
		return field + "::float8"
	default:
		return field
	}
}

func filterCondition(def *ModelDefinition, f Filter, argN int) (string, []any, *apperror.Error) {
	kind, ok := def.CanFilter(f.Field)
	if !ok {
		return "", nil, apperror.NewWithField(apperror.CodeInvalidFilter,
			fmt.Sprintf("field %q is not filterable", f.Field), "field")
	}

	lhs := columnExpr(f.Field, kind)

	switch f.Operator {
	case OpEquals, OpGreater, OpLess:
		v, err := coerce(kind, f.Value)
		if err != nil {
			return "", nil, apperror.NewWithField(apperror.CodeInvalidFilter, err.Error(), "value")
		}
		op := map[Operator]string{OpEquals: "=", OpGreater: ">", OpLess: "<"}[f.Operator]
		return fmt.Sprintf("%s %s $%d", lhs, op, argN+1), []any{v}, nil

	case OpContains:
		s, ok := scalarString(f.Value)
		if !ok {
			return "", nil, apperror.NewWithField(apperror.CodeInvalidFilter, "contains expects a scalar value", "value")
		}
		return fmt.Sprintf("%s::text ILIKE $%d", f.Field, argN+1), []any{containsPattern(s)}, nil

	case OpBetween:
		pair, ok := asPair(f.Value)
		if !ok {
			return "", nil, apperror.NewWithField(apperror.CodeInvalidFilter, "between expects a [low, high] pair", "value")
		}
		low, err := coerce(kind, pair[0])
		if err != nil {
			return "", nil, apperror.NewWithField(apperror.CodeInvalidFilter, err.Error(), "value")
		}
		high, err := coerce(kind, pair[1])
		if err != nil {
			return "", nil, apperror.NewWithField(apperror.CodeInvalidFilter, err.Error(), "value")
		}
		return fmt.Sprintf("%s BETWEEN $%d AND $%d", lhs, argN+1, argN+2), []any{low, high}, nil

	default:
		return "", nil, apperror.NewWithField(apperror.CodeInvalidOperator,
			fmt.Sprintf("unknown operator %q", f.Operator), "operator")
	}
}

// containsPattern экранирует спецсимволы LIKE и оборачивает в %
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func asPair(v any) ([2]any, bool) {
	switch vv := v.(type) {
	case []any:
		if len(vv) == 2 {
			return [2]any{vv[0], vv[1]}, true
		}
	case []string:
		if len(vv) == 2 {
			return [2]any{vv[0], vv[1]}, true
		}
	case []float64:
		if len(vv) == 2 {
			return [2]any{vv[0], vv[1]}, true
		}
	}
	return [2]any{}, false
}

func scalarString(v any) (string, bool) {
	switch vv := v.(type) {
	case string:
		return vv, true
	case json.Number:
		return vv.String(), true
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64), true
	case int:
		return strconv.Itoa(vv), true
	case bool:
		return strconv.FormatBool(vv), true
	}
	return "", false
}

// coerce приводит значение фильтра к типу колонки
func coerce(kind FieldKind, v any) (any, error) {
	switch kind {
	case KindNumber:
		switch vv := v.(type) {
		case float64:
			return vv, nil
		case int:
			return float64(vv), nil
		case json.Number:
			return vv.Float64()
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", vv)
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected a number, got %T", v)

	case KindTime:
		switch vv := v.(type) {
		case time.Time:
			return vv, nil
		case string:
			for _, layout := range []string{time.RFC3339, "2006-01-02"} {
				if t, err := time.Parse(layout, vv); err == nil {
					return t, nil
				}
			}
			return nil, fmt.Errorf("%q is not a date (RFC 3339 or YYYY-MM-DD)", vv)
		}
		return nil, fmt.Errorf("expected a date, got %T", v)

	case KindUUID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a uuid string, got %T", v)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a uuid", s)
		}
		return id.String(), nil

	default:
		s, ok := scalarString(v)
		if !ok {
			return nil, fmt.Errorf("expected a scalar value, got %T", v)
		}
		return s, nil
	}
}
