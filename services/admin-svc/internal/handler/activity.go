package handler

import (
	"net/http"

	"github.com/google/uuid"

	"reviewhub/pkg/ratelimit"
	"reviewhub/services/admin-svc/internal/repository"
)

type trackActivityRequest struct {
	UserID     *uuid.UUID     `json:"userId,omitempty"`
	Action     string         `json:"action" validate:"required,max=100"`
	Resource   string         `json:"resource,omitempty" validate:"max=100"`
	ResourceID string         `json:"resourceId,omitempty" validate:"max=100"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type trackPageViewRequest struct {
	SessionID *uuid.UUID `json:"sessionId,omitempty"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	Path      string     `json:"path" validate:"required,max=2048"`
	Referrer  string     `json:"referrer,omitempty" validate:"max=2048"`
	Duration  int        `json:"duration" validate:"gte=0"`
}

type startSessionRequest struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
}

type endSessionRequest struct {
	Bounced bool `json:"bounced"`
}

// TrackActivity POST /api/activity, запись действия пользователя
func (h *Handler) TrackActivity(w http.ResponseWriter, r *http.Request) {
	var req trackActivityRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	err := h.tracker.TrackActivity(r.Context(), repository.Activity{
		UserID:     req.UserID,
		Action:     req.Action,
		Resource:   req.Resource,
		ResourceID: req.ResourceID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// TrackPageView POST /api/activity/pageview, просмотр страницы
func (h *Handler) TrackPageView(w http.ResponseWriter, r *http.Request) {
	var req trackPageViewRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	err := h.tracker.TrackPageView(r.Context(), repository.PageView{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Path:      req.Path,
		Referrer:  req.Referrer,
		Duration:  req.Duration,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StartSession POST /api/sessions, тело запроса необязательно
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := h.decodeAndValidate(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}

	s, err := h.tracker.StartSession(r.Context(), req.UserID, r.UserAgent(), ratelimit.IPKeyExtractor(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, s)
}

// EndSession POST /api/sessions/{id}/end, повторное закрытие даёт 409
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req endSessionRequest
	if r.ContentLength != 0 {
		if err := h.decodeAndValidate(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}

	s, err := h.tracker.EndSession(r.Context(), id, req.Bounced)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, s)
}
