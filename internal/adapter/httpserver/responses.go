// Package httpserver contains the HTTP handlers and middleware of the
// interview coach API. It keeps HTTP concerns out of the use cases: handlers
// decode, call a service, and encode, nothing more.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/observability"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details"`
	RequestID string      `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		code = http.StatusTooManyRequests
		codeStr = "RATE_LIMITED"
	case errors.Is(err, domain.ErrSchemaInvalid):
		code = http.StatusServiceUnavailable
		codeStr = "SCHEMA_INVALID"
	}

	if details == nil {
		details = conflictDetails(err)
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{
		Code:      codeStr,
		Message:   err.Error(),
		Details:   details,
		RequestID: observability.RequestIDFromContext(r.Context()),
	}})
}

// conflictDetails enriches the structured conflicts so clients can act on the
// existing session instead of just seeing a 409.
func conflictDetails(err error) interface{} {
	var open *domain.OpenSessionError
	if errors.As(err, &open) {
		return map[string]interface{}{
			"existing_session_id": open.SessionID,
			"actions":             open.SuggestedActions(),
		}
	}
	var done *domain.AlreadyCompletedError
	if errors.As(err, &done) {
		return map[string]interface{}{
			"session_id": done.SessionID,
			"evaluation": done.Evaluation,
		}
	}
	return nil
}
