package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/logger"
)

// errorBody тело ошибки {"error": {...}}
type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    apperror.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Field   string             `json:"field,omitempty"`
	Details map[string]any     `json:"details,omitempty"`
}

type fieldError struct {
	Code    apperror.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Field   string             `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// respondError переводит ошибку сервиса в HTTP статус и JSON тело
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)
	payload := errorPayload{Code: apperror.CodeInternal, Message: "internal server error"}

	var verrs *apperror.ValidationErrors
	var appErr *apperror.Error
	switch {
	case errors.As(err, &verrs):
		payload.Code = apperror.CodeValidation
		payload.Message = "request validation failed"
		list := make([]fieldError, 0, len(verrs.Errors))
		for _, e := range verrs.Errors {
			list = append(list, fieldError{Code: e.Code, Message: e.Message, Field: e.Field})
		}
		payload.Details = map[string]any{"errors": list}
	case errors.As(err, &appErr):
		payload.Code = appErr.Code
		payload.Field = appErr.Field
		payload.Details = appErr.Details
		if status < http.StatusInternalServerError {
			payload.Message = appErr.Message
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		payload.Code = apperror.CodeTimeout
		payload.Message = "request timed out"
	}

	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error("Request error", "path", r.URL.Path, "error", err)
	}

	respondJSON(w, r, status, errorBody{Error: payload})
}

// newValidator валидатор с именами полей из json тегов
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate читает JSON тело и проверяет теги validate
func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidArgument, "invalid JSON body")
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.Wrap(err, apperror.CodeInvalidArgument, "invalid request")
	}

	verrs := apperror.NewValidationErrors()
	for _, fe := range fieldErrs {
		field := fieldPath(fe.Namespace())
		verrs.AddErrorWithField(apperror.CodeValidation, field+" failed "+fe.Tag()+" validation", field)
	}
	return verrs.Err()
}

// fieldPath отрезает имя корневой структуры: "generateReportRequest.format" -> "format"
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
