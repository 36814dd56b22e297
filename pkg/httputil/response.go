package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/VideoTube/pkg/errors"
	"github.com/utafrali/VideoTube/pkg/logger"
	"github.com/utafrali/VideoTube/pkg/validator"
)

// Response is the success envelope returned by every endpoint.
type Response[T any] struct {
	Status  int    `json:"status"`
	Data    T      `json:"data"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ErrorResponse is the failure envelope. Errors is always an array, empty
// when there are no field level details.
type ErrorResponse struct {
	StatusCode int                    `json:"statusCode"`
	Code       string                 `json:"code,omitempty"`
	Message    string                 `json:"message"`
	Success    bool                   `json:"success"`
	Errors     []apperrors.FieldError `json:"errors"`
	RequestID  string                 `json:"requestId,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// If encoding fails, the error is logged but headers are already sent so nothing can be done.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess wraps data in the success envelope.
func WriteSuccess[T any](w http.ResponseWriter, status int, data T, message string) {
	WriteJSON(w, status, Response[T]{
		Status:  status,
		Data:    data,
		Message: message,
		Success: status < http.StatusBadRequest,
	})
}

// WriteError writes the error envelope for err. AppErrors keep their status
// and message, validator errors become 400 with field details, and anything
// else is logged and rendered as an opaque 500. It prefers the request-scoped
// logger from context (set by the RequestLogger middleware) over the fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		err = valErr.AppError()
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			logInternal(l, r, err)
		}
		writeErrorEnvelope(w, appErr.Status, appErr.Code, appErr.Message, appErr.Fields, requestID)
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "internal server error"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrConflict):
		code, message = "CONFLICT", "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code, message = "INVALID_INPUT", "invalid input"
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrInvalidToken):
		code, message = "UNAUTHORIZED", "unauthorized request"
	case errors.Is(err, apperrors.ErrUpload):
		code, message = "UPLOAD_FAILED", "file upload failed"
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		logInternal(l, r, err)
	}

	writeErrorEnvelope(w, status, code, message, nil, requestID)
}

// WriteValidationError writes a 400 envelope for a request that could not be
// decoded or failed struct validation.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		appErr := valErr.AppError()
		writeErrorEnvelope(w, appErr.Status, appErr.Code, appErr.Message, appErr.Fields, requestID)
		return
	}

	writeErrorEnvelope(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil, requestID)
}

func writeErrorEnvelope(w http.ResponseWriter, status int, code, message string, fields []apperrors.FieldError, requestID string) {
	if fields == nil {
		fields = []apperrors.FieldError{}
	}
	WriteJSON(w, status, ErrorResponse{
		StatusCode: status,
		Code:       code,
		Message:    message,
		Success:    false,
		Errors:     fields,
		RequestID:  requestID,
	})
}

func logInternal(l *slog.Logger, r *http.Request, err error) {
	l.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}
