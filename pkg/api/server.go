package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Options configures a Server. Every field is optional.
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	// Limiter throttles register and login per client; nil disables it
	Limiter middleware.Limiter
	// Federation serves the identity provider routes of a federated strategy
	Federation RouteRegistrar
	// CORSOrigins are allowed to send credentialed cross-origin requests
	CORSOrigins []string
}

// Server is the HTTP surface of the authentication engine
type Server struct {
	engine  *auth.Engine
	router  *mux.Router
	authn   *middleware.Authenticator
	logger  *observability.Logger
	metrics *observability.Metrics
	handler http.Handler
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// NewServer creates the API server over engine
func NewServer(engine *auth.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		engine:  engine,
		router:  mux.NewRouter(),
		authn:   middleware.NewAuthenticator(engine.Strategy, opts.Metrics),
		logger:  logger,
		metrics: opts.Metrics,
	}
	s.setupRoutes(opts)

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(opts.CORSOrigins),
		httputil.MaxBytesMiddleware(httputil.MaxBodyBytes),
	)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, auth.NotFound("route not found"))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorCode(w, http.StatusMethodNotAllowed, httputil.CodeMethodNotAllowed, "method not allowed")
	})

	// Credential routes
	s.router.Handle("/auth/register", s.limited("register", opts.Limiter, s.register)).Methods(http.MethodPost)
	s.router.Handle("/auth/login", s.limited("login", opts.Limiter, s.login)).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/refresh", s.refresh).Methods(http.MethodPost)
	s.router.Handle("/auth/logout", s.authn.Optional(http.HandlerFunc(s.logout))).Methods(http.MethodPost)

	// Federation routes
	if opts.Federation != nil && s.engine.Strategy.Federated() {
		opts.Federation.RegisterRoutes(s.router)
	}

	// Self-service routes
	s.router.Handle("/users/me", s.authn.Handler(http.HandlerFunc(s.me))).Methods(http.MethodGet)
	s.router.Handle("/users/me", s.authn.Handler(http.HandlerFunc(s.deleteMe))).Methods(http.MethodDelete)
	s.router.Handle("/users/me/name", s.authn.Handler(http.HandlerFunc(s.updateName))).Methods(http.MethodPatch)
	s.router.Handle("/users/me/password", s.authn.Handler(http.HandlerFunc(s.updatePassword))).Methods(http.MethodPatch)

	// Admin routes
	admin := httputil.Chain(s.authn.Handler, middleware.RequireRole(auth.RoleAdmin))
	s.router.Handle("/users", admin(http.HandlerFunc(s.listUsers))).Methods(http.MethodGet)
	s.router.Handle("/users/{id}/role", admin(http.HandlerFunc(s.updateRole))).Methods(http.MethodPatch)
}

func (s *Server) limited(route string, limiter middleware.Limiter, h http.HandlerFunc) http.Handler {
	if limiter == nil {
		return h
	}
	return middleware.RateLimit(limiter, route, s.metrics)(h)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// NewOpsHandler serves the health probes and, when registry is set, the
// Prometheus metrics. It runs on its own port next to the API.
func NewOpsHandler(checker *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, checker)
	if registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	return router
}

// audit records a security event. Audit failures never fail the request.
func (s *Server) audit(r *http.Request, action, identityID string, err error) {
	status := auth.StatusSuccess
	if err != nil {
		status = auth.StatusFailure
	}
	_ = s.engine.Audit.LogFromRequest(r, action, identityID, status, err)
}

func (s *Server) countAttempt(action string, err error) {
	outcome := auth.StatusSuccess
	if err != nil {
		outcome = auth.KindOf(err).String()
	}
	s.metrics.AuthAttempt(string(s.engine.Strategy.Name()), action, outcome)
}

// clearProof expires whatever proof the request carries. Failures are logged;
// the caller has already committed the account change.
func (s *Server) clearProof(w http.ResponseWriter, r *http.Request, identity *auth.Identity) {
	proof, err := s.engine.Strategy.Clear(r.Context(), r, identity)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to clear credentials")
		return
	}
	httputil.SetCookies(w, proof.Cookies)
}
