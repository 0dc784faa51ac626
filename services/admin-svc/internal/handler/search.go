package handler

import (
	"net/http"
	"strconv"
	"strings"

	"reviewhub/pkg/apperror"
	"reviewhub/services/admin-svc/internal/search"
)

// Search GET /api/search?model=&q=&page=&limit=&filter=field:op:value&sort=field:dir
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.search.Search(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, result)
}

// SearchJSON POST /api/search с телом search.Request
func (h *Handler) SearchJSON(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.search.Search(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, result)
}

// Suggest GET /api/search/suggest?model=&q=
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestions, err := h.search.Suggest(r.Context(), q.Get("q"), search.SearchableModel(q.Get("model")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// SearchAll GET /api/search/all?q=
func (h *Handler) SearchAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.SearchAll(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"results": results})
}

// parseSearchQuery собирает search.Request из query string.
// filter: field:op:value, для between значение "from,to"; sort: field или field:dir.
func parseSearchQuery(r *http.Request) (search.Request, error) {
	q := r.URL.Query()
	verrs := apperror.NewValidationErrors()

	req := search.Request{
		Model: search.SearchableModel(q.Get("model")),
		Query: q.Get("q"),
		Page:  intParam(q.Get("page"), "page", verrs),
		Limit: intParam(q.Get("limit"), "limit", verrs),
	}

	for i, raw := range q["filter"] {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) != 3 || parts[0] == "" {
			verrs.AddErrorWithField(apperror.CodeInvalidFilter,
				"filter must look like field:operator:value", "filter["+strconv.Itoa(i)+"]")
			continue
		}

		f := search.Filter{Field: parts[0], Operator: search.Operator(parts[1]), Value: parts[2]}
		if f.Operator == search.OpBetween {
			from, to, ok := strings.Cut(parts[2], ",")
			if !ok {
				verrs.AddErrorWithField(apperror.CodeInvalidFilter,
					"between expects two comma separated values", "filter["+strconv.Itoa(i)+"]")
				continue
			}
			f.Value = []any{from, to}
		}
		req.Filters = append(req.Filters, f)
	}

	for _, raw := range q["sort"] {
		field, dir, _ := strings.Cut(raw, ":")
		req.Sort = append(req.Sort, search.Sort{Field: field, Direction: dir})
	}

	return req, verrs.Err()
}

func intParam(raw, field string, verrs *apperror.ValidationErrors) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		verrs.AddErrorWithField(apperror.CodeInvalidPagination, field+" must be an integer", field)
		return 0
	}
	return n
}
