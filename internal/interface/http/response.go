package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeDomainError maps domain error kinds onto HTTP statuses. Unexpected
// errors are logged and hidden behind a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeJSONError(w, r, status, code, "an unexpected error occurred")
		return
	}
	writeJSONError(w, r, status, code, publicMessage(err))
}

func classify(err error) (int, string) {
	switch {
	case shared.IsConflict(err):
		return http.StatusConflict, "conflict"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, shared.ErrEmptyValue),
		errors.Is(err, shared.ErrInvalidID),
		errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case shared.IsValidation(err):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, shared.ErrLockNotAcquired):
		return http.StatusLocked, "locked"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// publicMessage prefers the outermost domain message.
func publicMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		if de.Err != nil && de.Kind == shared.ErrValidation {
			return de.Message + ": " + de.Err.Error()
		}
		return de.Message
	}
	return err.Error()
}
