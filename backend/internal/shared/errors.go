// ============================================================================
// backend/internal/shared/errors.go
// Domain error taxonomy shared by services and the gateway
// ============================================================================

package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error. The gateway maps kinds to HTTP statuses.
type Kind string

const (
	KindValidation           Kind = "VALIDATION"
	KindNotFound             Kind = "NOT_FOUND"
	KindConflict             Kind = "CONFLICT"
	KindUnauthorized         Kind = "UNAUTHORIZED"
	KindForbidden            Kind = "FORBIDDEN"
	KindDeadlinePassed       Kind = "DEADLINE_PASSED"
	KindAttemptLimitExceeded Kind = "ATTEMPT_LIMIT_EXCEEDED"
	KindInternal             Kind = "INTERNAL"
)

// FieldError is a single field-level validation message
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the domain error type returned by every service
type Error struct {
	Kind    Kind
	Message string       // user-facing message
	Fields  []FieldError // populated for KindValidation
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// NewError creates a domain error with a kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a domain error with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Internal wraps an unexpected failure. The message is never shown to clients.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// ValidationFailed builds a validation error from field messages.
func ValidationFailed(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Sentinels usable with errors.Is.
var (
	ErrNotFound             = NewError(KindNotFound, "not found")
	ErrConflict             = NewError(KindConflict, "conflict")
	ErrValidation           = NewError(KindValidation, "validation failed")
	ErrUnauthorized         = NewError(KindUnauthorized, "unauthorized")
	ErrForbidden            = NewError(KindForbidden, "forbidden")
	ErrDeadlinePassed       = NewError(KindDeadlinePassed, "deadline passed")
	ErrAttemptLimitExceeded = NewError(KindAttemptLimitExceeded, "attempt limit exceeded")
)
