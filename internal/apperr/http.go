package apperr

import (
	"errors"
	"net/http"
)

var statusByKind = map[Kind]int{
	KindValidation:         http.StatusBadRequest,
	KindConflict:           http.StatusConflict,
	KindInvalidCredentials: http.StatusBadRequest,
	KindAccountLocked:      http.StatusForbidden,
	KindTrialExpired:       http.StatusForbidden,
	KindNotFound:           http.StatusNotFound,
	KindLocked:             http.StatusTooManyRequests,
	KindExpired:            http.StatusBadRequest,
	KindWrongCode:          http.StatusBadRequest,
	KindInvalidToken:       http.StatusUnauthorized,
	KindUnauthorized:       http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindInvalidState:       http.StatusConflict,
	KindRateLimited:        http.StatusTooManyRequests,
	KindEmailNotConfigured: http.StatusServiceUnavailable,
	KindEmailFailed:        http.StatusBadGateway,
	KindInternal:           http.StatusInternalServerError,
}

// HTTPStatus returns the response status for kind
func HTTPStatus(kind Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// From unwraps err into an *Error. Errors outside the taxonomy become
// KindInternal and report false.
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return &Error{Kind: KindInternal}, false
}
