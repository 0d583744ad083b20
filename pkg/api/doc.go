// Package api provides the HTTP surface of the gatehouse authentication engine.
//
// # Overview
//
// The server exposes registration, password login, token refresh and logout,
// the self-service account routes and the administrator routes. Which proof
// of identity a client receives depends on the engine's strategy: a signed
// sid cookie, a bearer token pair in the response body, or httpOnly token
// cookies. Handlers never branch on the strategy themselves; they ask the
// strategy to establish, resolve or clear proof.
//
// # Routes
//
//	POST   /auth/register       rate limited, 201 with the new user
//	POST   /auth/login          rate limited, 200 with the user and role
//	POST   /auth/refresh        token strategies only, 404 otherwise
//	POST   /auth/logout         always 200, clears whatever proof is present
//	GET    /auth/{provider}/... federated strategies only, see package sso
//	GET    /users/me            authenticated
//	DELETE /users/me            authenticated
//	PATCH  /users/me/name       authenticated
//	PATCH  /users/me/password   authenticated, revokes every session
//	GET    /users               ADMIN
//	PATCH  /users/{id}/role     ADMIN
//
// Every response uses the httputil.Envelope shape:
//
//	{"success": true, "message": "logged in", "data": {...}}
//	{"success": false, "message": "invalid email or password", "error": "UNAUTHORIZED"}
//
// # Usage
//
//	server := api.NewServer(engine, api.Options{
//		Logger:     logger,
//		Metrics:    metrics,
//		Limiter:    middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
//		Federation: ssoHandlers,
//	})
//	http.ListenAndServe(":8080", server)
//
// Health probes and Prometheus metrics are served separately by
// NewOpsHandler so they can be bound to an internal port.
package api
