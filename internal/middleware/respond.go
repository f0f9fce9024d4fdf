package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
)

type successBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message"`
	Error             apperr.Kind        `json:"error"`
	RetryAfter        *int               `json:"retryAfter,omitempty"`
	RemainingAttempts *int               `json:"remainingAttempts,omitempty"`
	TrialStatus       *model.TrialStatus `json:"trialStatus,omitempty"`
}

// WriteJSON sends v as a JSON response
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess sends the {"success": true, "data": ...} envelope
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, successBody{Success: true, Data: data})
}

// WriteMessage sends a success envelope carrying only a message
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, successBody{Success: true, Message: message})
}

// WriteError maps err onto its status code and a localized error envelope.
// Errors outside the apperr taxonomy are logged and reported as 500.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	e, known := apperr.From(err)
	if !known && logger != nil {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	body := errorBody{
		Success: false,
		Message: apperr.Message(e, LangFromContext(r.Context())),
		Error:   e.Kind,
	}
	switch e.Kind {
	case apperr.KindLocked, apperr.KindRateLimited:
		if e.RetryAfter > 0 {
			retry := e.RetryAfter
			body.RetryAfter = &retry
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
	case apperr.KindWrongCode:
		remaining := e.RemainingAttempts
		body.RemainingAttempts = &remaining
	case apperr.KindTrialExpired:
		body.TrialStatus = e.Trial
	}

	WriteJSON(w, apperr.HTTPStatus(e.Kind), body)
}
