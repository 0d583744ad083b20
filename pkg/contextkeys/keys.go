// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that the
// packages setting a value and the packages reading it agree on one key.
//
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, ok := contextkeys.Identity(ctx).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.Authenticator (pkg/middleware/authn.go)
	// Required by: protected handlers, middleware.RequireRole
	IdentityKey Key = "identity"

	// RequestIDKey contains the request id string
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail, error responses
	RequestIDKey Key = "request_id"

	// IdentityIDKey contains the authenticated identity id string
	// Set by: middleware.Authenticator
	// Used by: logger
	IdentityIDKey Key = "identity_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: handlers that log with request context
	LoggerKey Key = "logger"
)

// WithIdentity adds the resolved identity to the context. The value is kept
// untyped so this package has no dependencies.
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// Identity returns the value stored by WithIdentity, or nil
func Identity(ctx context.Context) interface{} {
	return ctx.Value(IdentityKey)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithIdentityID adds the authenticated identity id to the context
func WithIdentityID(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, IdentityIDKey, identityID)
}

// GetIdentityID retrieves the authenticated identity id from context
func GetIdentityID(ctx context.Context) string {
	if id, ok := ctx.Value(IdentityIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// Logger returns the value stored by WithLogger, or nil
func Logger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}
