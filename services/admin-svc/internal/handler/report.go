package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/logger"
	"reviewhub/services/admin-svc/internal/report"
	"reviewhub/services/admin-svc/internal/repository"
)

type generateReportRequest struct {
	Type        string           `json:"type" validate:"required"`
	Format      string           `json:"format" validate:"required"`
	Name        string           `json:"name,omitempty" validate:"max=200"`
	Description string           `json:"description,omitempty" validate:"max=1000"`
	Filters     map[string]any   `json:"filters,omitempty"`
	SortBy      string           `json:"sortBy,omitempty"`
	SortOrder   string           `json:"sortOrder,omitempty"`
	DateRange   report.DateRange `json:"dateRange"`
	Columns     []string         `json:"columns,omitempty" validate:"omitempty,dive,required"`
	Locale      string           `json:"locale,omitempty"`
}

// GenerateReport POST /api/admin/reports
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generateReportRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	rep, err := h.reports.GenerateReport(r.Context(), repository.ReportType(req.Type), report.Options{
		Name:        req.Name,
		Description: req.Description,
		Format:      repository.ReportFormat(req.Format),
		Filters:     req.Filters,
		SortBy:      req.SortBy,
		SortOrder:   req.SortOrder,
		DateRange:   req.DateRange,
		Columns:     req.Columns,
		Locale:      req.Locale,
	})
	if err != nil {
		if rep != nil {
			err = withReportID(err, rep.ID)
		}
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, rep)
}

// withReportID добавляет ID отчёта, помеченного failed, в детали ошибки
func withReportID(err error, id uuid.UUID) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return err
	}
	cp := *appErr
	cp.Details = map[string]any{"reportId": id.String()}
	for k, v := range appErr.Details {
		cp.Details[k] = v
	}
	return &cp
}

// ListReports GET /api/admin/reports?page=&limit=&status=&format=&type=
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	verrs := apperror.NewValidationErrors()
	params := report.ListParams{
		Page:       intParam(q.Get("page"), "page", verrs),
		Limit:      intParam(q.Get("limit"), "limit", verrs),
		Status:     repository.ReportStatus(q.Get("status")),
		Format:     repository.ReportFormat(q.Get("format")),
		ReportType: repository.ReportType(q.Get("type")),
	}
	if err := verrs.Err(); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.reports.ListReports(r.Context(), params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, result)
}

// GetReport GET /api/admin/reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	rep, err := h.reports.GetReport(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, rep)
}

// DeleteReport DELETE /api/admin/reports/{id}
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.reports.DeleteReport(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadReport GET /api/reports/download/{filename}
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	rc, contentType, err := h.reports.Download(r.Context(), name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)

	if n, err := io.Copy(w, rc); err != nil {
		logger.WithContext(r.Context()).Warn("Report download interrupted",
			"file", name, "written", n, "error", err)
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, apperror.NewWithField(apperror.CodeInvalidArgument, param+" must be a UUID", param)
	}
	return id, nil
}
