// Package apperr defines the business error taxonomy shared by the auth,
// trial, and HTTP layers.
package apperr

import (
	"fmt"

	"github.com/kidlearn/server/internal/model"
)

// Kind identifies a class of business failure
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindConflict           Kind = "conflict"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountLocked      Kind = "account_locked"
	KindTrialExpired       Kind = "trial_expired"
	KindNotFound           Kind = "not_found"
	KindLocked             Kind = "locked"
	KindExpired            Kind = "expired"
	KindWrongCode          Kind = "wrong_code"
	KindInvalidToken       Kind = "invalid_token"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindInvalidState       Kind = "invalid_state"
	KindRateLimited        Kind = "rate_limited"
	KindEmailNotConfigured Kind = "email_not_configured"
	KindEmailFailed        Kind = "email_failed"
	KindInternal           Kind = "internal_error"
)

// Error is a tagged business failure. Detail is a developer-facing note;
// user-facing text comes from Message.
type Error struct {
	Kind              Kind
	Detail            string
	RetryAfter        int
	RemainingAttempts int
	Trial             *model.TrialStatus
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns an error of the given kind
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Validation returns a KindValidation error describing the bad field
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

// Locked returns an OTP lockout error with the remaining lock in seconds
func Locked(retryAfter int) *Error {
	return &Error{Kind: KindLocked, RetryAfter: retryAfter}
}

// WrongCode returns an OTP mismatch error
func WrongCode(remaining int) *Error {
	return &Error{Kind: KindWrongCode, RemainingAttempts: remaining}
}

// TrialExpired carries the trial status that caused the rejection
func TrialExpired(status model.TrialStatus) *Error {
	return &Error{Kind: KindTrialExpired, Trial: &status}
}

var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrAccountLocked      = &Error{Kind: KindAccountLocked}
	ErrTrialExpired       = &Error{Kind: KindTrialExpired}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrLocked             = &Error{Kind: KindLocked}
	ErrExpired            = &Error{Kind: KindExpired}
	ErrWrongCode          = &Error{Kind: KindWrongCode}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrEmailNotConfigured = &Error{Kind: KindEmailNotConfigured}
	ErrEmailFailed        = &Error{Kind: KindEmailFailed}
)
