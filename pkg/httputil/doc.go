// Package httputil provides the response envelope, error mapping, request
// parsing and the ambient HTTP middleware.
//
// # Responses
//
// Every response body is an Envelope:
//
//	{"success": true, "message": "Login successful", "data": {...}}
//	{"success": false, "message": "email already registered", "error": "CONFLICT"}
//
// WriteError maps the auth.Kind of an error onto a status code:
//
//	VALIDATION_ERROR 400, UNAUTHORIZED 401, FORBIDDEN 403, NOT_FOUND 404,
//	CONFLICT 409, TRANSIENT 503, INTERNAL 500
//
// # Request Parsing
//
//	var req loginRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		httputil.WriteError(w, r, err)
//		return
//	}
//
// Request structs declare their rules with validate tags.
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(httputil.MaxBodyBytes),
//	)
package httputil
