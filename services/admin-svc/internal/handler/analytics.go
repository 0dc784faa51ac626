package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"reviewhub/pkg/apperror"
	"reviewhub/services/admin-svc/internal/analytics"
)

// defaultWindow окно аналитики, если start и end не переданы
const defaultWindow = 30 * 24 * time.Hour

// Dashboard GET /api/admin/analytics/dashboard?start=&end=
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	tr, err := h.timeRange(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	m, err := h.analytics.GetDashboardMetrics(r.Context(), tr)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, m)
}

// RevenueChart GET /api/admin/analytics/revenue?start=&end=&fill=
func (h *Handler) RevenueChart(w http.ResponseWriter, r *http.Request) {
	h.chart(w, r, h.analytics.GetRevenueChart)
}

// ActivityChart GET /api/admin/analytics/activity?start=&end=&fill=
func (h *Handler) ActivityChart(w http.ResponseWriter, r *http.Request) {
	h.chart(w, r, h.analytics.GetUserActivityChart)
}

type chartFunc func(ctx context.Context, r analytics.TimeRange, opts analytics.ChartOptions) ([]analytics.ChartPoint, error)

func (h *Handler) chart(w http.ResponseWriter, r *http.Request, load chartFunc) {
	tr, err := h.timeRange(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var opts analytics.ChartOptions
	if raw := r.URL.Query().Get("fill"); raw != "" {
		opts.FillGaps, err = strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, apperror.NewWithField(apperror.CodeInvalidArgument, "fill must be a boolean", "fill"))
			return
		}
	}

	points, err := load(r.Context(), tr, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"points": points})
}

// PopularPages GET /api/admin/analytics/pages?start=&end=
func (h *Handler) PopularPages(w http.ResponseWriter, r *http.Request) {
	tr, err := h.timeRange(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	pages, err := h.analytics.GetPopularPages(r.Context(), tr)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"pages": pages})
}

// UserBehavior GET /api/admin/analytics/behavior?start=&end=
func (h *Handler) UserBehavior(w http.ResponseWriter, r *http.Request) {
	tr, err := h.timeRange(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	b, err := h.analytics.GetUserBehavior(r.Context(), tr)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, b)
}

// timeRange читает start и end (RFC3339 или YYYY-MM-DD).
// Без end берётся текущий момент, без start окно в 30 дней до end.
func (h *Handler) timeRange(r *http.Request) (analytics.TimeRange, error) {
	q := r.URL.Query()
	verrs := apperror.NewValidationErrors()

	end := h.now().UTC()
	if raw := q.Get("end"); raw != "" {
		if t, ok := parseTime(raw); ok {
			end = t
		} else {
			verrs.AddErrorWithField(apperror.CodeInvalidTimeRange, "end must be RFC3339 or YYYY-MM-DD", "end")
		}
	}

	start := end.Add(-defaultWindow)
	if raw := q.Get("start"); raw != "" {
		if t, ok := parseTime(raw); ok {
			start = t
		} else {
			verrs.AddErrorWithField(apperror.CodeInvalidTimeRange, "start must be RFC3339 or YYYY-MM-DD", "start")
		}
	}

	if err := verrs.Err(); err != nil {
		return analytics.TimeRange{}, err
	}
	return analytics.TimeRange{Start: start, End: end}, nil
}

func parseTime(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(analytics.DateLayout, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
