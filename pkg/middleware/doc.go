// Package middleware provides the authentication gate, the authorization
// gate and rate limiting.
//
// # Authentication
//
// Authenticator delegates to the deployment's auth.Strategy and attaches the
// resolved identity to the request context:
//
//	authn := middleware.NewAuthenticator(engine.Strategy, metrics)
//	router.Handle("/users/me", authn.Handler(meHandler))
//	router.Handle("/auth/logout", authn.Optional(logoutHandler))
//
// Rejected credentials answer 401. Store failures answer 503 when transient
// and 500 otherwise.
//
// # Authorization
//
// RequireRole runs behind the Authenticator:
//
//	admin := httputil.Chain(authn.Handler, middleware.RequireRole(auth.RoleAdmin))
//
// # Rate Limiting
//
// RateLimit keys clients by address. RateLimiter keeps a token bucket per
// client in process; DistributedRateLimiter keeps a fixed window counter in
// Redis so that limits hold across instances.
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	router.Handle("/auth/login", middleware.RateLimit(limiter, "login", metrics)(loginHandler))
package middleware
