// Package apperr defines the operational error type returned by services and
// rendered by the HTTP boundary.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an operational error.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindExternal       Kind = "external"
	KindRateLimited    Kind = "rate_limited"
)

// Error is an expected failure carrying the status and the client-facing
// message. Errors that are not *Error are treated as bugs.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithCause attaches the underlying error without changing the client message.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// New builds an operational error.
func New(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

func Validation(message string) *Error {
	return New(KindValidation, http.StatusBadRequest, message)
}

func Authentication(message string) *Error {
	return New(KindAuthentication, http.StatusUnauthorized, message)
}

func Authorization(message string) *Error {
	return New(KindAuthorization, http.StatusForbidden, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, http.StatusNotFound, message)
}

// Conflict uses 400 so duplicate detection looks like any other bad input.
func Conflict(message string) *Error {
	return New(KindConflict, http.StatusBadRequest, message)
}

// External reports a failed call to a collaborator such as the mailer.
func External(message string, err error) *Error {
	return &Error{Kind: KindExternal, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an operational error of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// TooManyRequests reports a throttled client.
func TooManyRequests(message string) *Error {
	return New(KindRateLimited, http.StatusTooManyRequests, message)
}
