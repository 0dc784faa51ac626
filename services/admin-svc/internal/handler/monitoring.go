package handler

import (
	"net/http"

	"reviewhub/pkg/apperror"
)

type cleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

// Health GET /health, процесс жив
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"time":    h.now().UTC(),
	})
}

// Ready GET /ready, зависимости доступны
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			respondError(w, r, apperror.Wrap(err, apperror.CodeUnavailable, "dependencies are not ready"))
			return
		}
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// SystemHealth GET /api/monitoring/health
func (h *Handler) SystemHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.monitor.GetSystemHealth(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, health)
}

// RecentMetrics GET /api/monitoring/metrics?limit=n
func (h *Handler) RecentMetrics(w http.ResponseWriter, r *http.Request) {
	verrs := apperror.NewValidationErrors()
	limit := intParam(r.URL.Query().Get("limit"), "limit", verrs)
	if limit < 0 {
		verrs.AddErrorWithField(apperror.CodeInvalidPagination, "limit must not be negative", "limit")
	}
	if err := verrs.Err(); err != nil {
		respondError(w, r, err)
		return
	}
	if limit == 0 {
		limit = 60
	}

	respondJSON(w, r, http.StatusOK, map[string]any{"metrics": h.monitor.Recent(limit)})
}

// Cleanup POST /api/monitoring/cleanup {retention_days}
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.monitor.Cleanup(r.Context(), req.RetentionDays)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, result)
}
