package auth

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindConflict:
		return "CONFLICT"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindTransient:
		return "TRANSIENT"
	case KindFatal:
		return "FATAL"
	default:
		return "INTERNAL"
	}
}

// Error is a classified error. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and message so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// WithCause returns a copy of e carrying err as its cause
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: err}
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation creates a ValidationFailure error
func Validation(message string) *Error {
	return newError(KindValidation, message, nil)
}

// Conflict creates a Conflict error
func Conflict(message string, err error) *Error {
	return newError(KindConflict, message, err)
}

// Unauthorized creates an Unauthorized error
func Unauthorized(message string) *Error {
	return newError(KindUnauthorized, message, nil)
}

// Forbidden creates a Forbidden error
func Forbidden(message string) *Error {
	return newError(KindForbidden, message, nil)
}

// NotFound creates a NotFound error
func NotFound(message string) *Error {
	return newError(KindNotFound, message, nil)
}

// Transient wraps a retryable store or network failure
func Transient(message string, err error) *Error {
	return newError(KindTransient, message, err)
}

// Fatal wraps a startup failure that must abort the process
func Fatal(message string, err error) *Error {
	return newError(KindFatal, message, err)
}

// Internal wraps an unexpected failure. The message is never shown to clients.
func Internal(message string, err error) *Error {
	return newError(KindInternal, message, err)
}

// KindOf returns the kind of the first *Error in err's chain.
// Deadline and cancellation errors without a classification are Transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the client-safe message for err
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	if KindOf(err) == KindTransient {
		return "service temporarily unavailable"
	}
	return "internal server error"
}

var (
	// ErrCredentialTooLong is returned for plaintexts bcrypt would silently truncate
	ErrCredentialTooLong = Validation("password exceeds 72 bytes")
	// ErrInvalidCredentials is the single message for unknown email and wrong password
	ErrInvalidCredentials = Unauthorized("invalid email or password")
	// ErrTokenExpired means the token was well formed and signed but past expiry
	ErrTokenExpired = Unauthorized("token expired")
	// ErrTokenInvalid covers malformed tokens and bad signatures
	ErrTokenInvalid = Unauthorized("invalid token")
	// ErrRefreshTokenRevoked means the token verified but no longer matches storage
	ErrRefreshTokenRevoked = Unauthorized("refresh token revoked")
	// ErrIdentityNotFound is returned by identity stores
	ErrIdentityNotFound = NotFound("identity not found")
	// ErrSessionNotFound is returned for absent or expired sessions
	ErrSessionNotFound = NotFound("session not found")
	// ErrEmailTaken is returned when registering a duplicate email
	ErrEmailTaken = Conflict("email already registered", nil)
	// ErrDuplicateIdentity is returned by stores on unique constraint violations
	ErrDuplicateIdentity = Conflict("identity already exists", nil)
	// ErrNoIdentity signals an authorization check ran without authentication
	ErrNoIdentity = Internal("no authenticated identity on request", nil)
)
