// Package errors provides the structured error taxonomy shared by the
// identity client and the session manager.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error. The session manager keys its
// clear-vs-keep decision on the authentication class (KindUnauthenticated);
// everything network- or server-shaped is KindExternal and never clears an
// existing session.
type Kind string

const (
	// KindValidation indicates malformed input (HTTP 400).
	KindValidation Kind = "validation"
	// KindConflict indicates the email is already registered (HTTP 409).
	KindConflict Kind = "conflict"
	// KindUnauthenticated indicates invalid credentials or an
	// invalid/expired/revoked token (HTTP 401). Terminal for a session.
	KindUnauthenticated Kind = "unauthenticated"
	// KindUnverified indicates a login against an unverified account.
	KindUnverified Kind = "unverified"
	// KindExternal indicates a transient network or server failure.
	KindExternal Kind = "external"
)

// Error is a structured error with a kind, a human-readable message, and an
// optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ValidationError creates a new validation error.
func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// ConflictError creates a new conflict error.
func ConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// UnauthenticatedError creates a new authentication-class error.
func UnauthenticatedError(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// UnverifiedError creates a new unverified-account error.
func UnverifiedError(message string) *Error {
	return &Error{Kind: KindUnverified, Message: message}
}

// ExternalError creates a new transient external error.
func ExternalError(message string, cause error) *Error {
	return &Error{Kind: KindExternal, Message: message, Cause: cause}
}

// FromStatus maps an identity-service HTTP status and error message to a
// structured error. The service reports unverified accounts as 401 with a
// verification-worded message, so at this level 401 is simply the auth class.
func FromStatus(status int, message string) *Error {
	switch status {
	case http.StatusBadRequest:
		return ValidationError(message)
	case http.StatusConflict:
		return ConflictError(message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return UnauthenticatedError(message)
	default:
		return ExternalError(message, fmt.Errorf("unexpected status %d", status))
	}
}

// IsAuthFailure reports whether err is authentication-class, i.e. terminal
// for the session it belongs to.
func IsAuthFailure(err error) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Kind == KindUnauthenticated || structured.Kind == KindUnverified
	}
	return false
}

// IsTransient reports whether err is a recoverable network/server failure.
// Unclassified errors (raw transport errors, timeouts) count as transient:
// only a definite server verdict may invalidate a session.
func IsTransient(err error) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Kind == KindExternal
	}
	return err != nil
}
