package sso

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

const (
	stateCookieName = "oauth_state"
	stateTTL        = 10 * time.Minute
)

// Handlers serves the federated login flow for a set of providers
type Handlers struct {
	providers   map[string]Provider
	federator   *auth.Federator
	strategy    auth.Strategy
	production  bool
	successPath string
	audit       *auth.AuditLogger
	metrics     *observability.Metrics
}

// HandlersConfig configures the federated login routes
type HandlersConfig struct {
	// SuccessPath is where the callback redirects after login. Empty means
	// /auth/{provider}/success.
	SuccessPath string
	Production  bool
}

// NewHandlers creates the SSO handlers. The strategy must deliver its proof
// in cookies, since the callback is a browser redirect.
func NewHandlers(engine *auth.Engine, providers []Provider, cfg HandlersConfig, metrics *observability.Metrics) (*Handlers, error) {
	if !engine.Strategy.Federated() {
		return nil, auth.Fatal(fmt.Sprintf("strategy %s cannot complete a federated login", engine.Strategy.Name()), nil)
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if _, dup := byName[p.Name()]; dup {
			return nil, auth.Fatal("duplicate identity provider "+p.Name(), nil)
		}
		byName[p.Name()] = p
	}
	return &Handlers{
		providers:   byName,
		federator:   engine.Federator,
		strategy:    engine.Strategy,
		production:  cfg.Production,
		successPath: cfg.SuccessPath,
		audit:       engine.Audit,
		metrics:     metrics,
	}, nil
}

// RegisterRoutes registers the login, callback and success routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/{provider}/login", h.initiateLogin).Methods(http.MethodGet)
	router.HandleFunc("/auth/{provider}/callback", h.handleCallback).Methods(http.MethodGet)
	router.HandleFunc("/auth/{provider}/success", h.success).Methods(http.MethodGet)
}

func (h *Handlers) provider(r *http.Request) (Provider, error) {
	p, ok := h.providers[mux.Vars(r)["provider"]]
	if !ok {
		return nil, auth.NotFound("unknown identity provider")
	}
	return p, nil
}

func (h *Handlers) stateCookie(provider, value string, maxAge int) *http.Cookie {
	// Lax in every environment: the provider redirect is a top-level GET
	return &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/auth/" + provider,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

// initiateLogin handles GET /auth/{provider}/login
func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := h.provider(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		httputil.WriteError(w, r, auth.Internal("failed to generate state", err))
		return
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	http.SetCookie(w, h.stateCookie(provider.Name(), state, int(stateTTL.Seconds())))
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// handleCallback handles GET /auth/{provider}/callback. Tokens and session
// ids only ever travel in cookies from here, never in the redirect URL.
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := h.provider(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	identity, err := h.completeLogin(w, r, provider)
	if err != nil {
		h.metrics.FederatedLogin(provider.Name(), auth.KindOf(err).String())
		h.auditLogin(r, provider.Name(), "", auth.StatusFailure, err)
		httputil.WriteError(w, r, err)
		return
	}

	h.metrics.FederatedLogin(provider.Name(), auth.StatusSuccess)
	h.auditLogin(r, provider.Name(), identity.ID, auth.StatusSuccess, nil)

	target := h.successPath
	if target == "" {
		target = "/auth/" + provider.Name() + "/success"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handlers) completeLogin(w http.ResponseWriter, r *http.Request, provider Provider) (*auth.Identity, error) {
	query := r.URL.Query()

	// The state cookie is single use whatever the outcome
	cookie, cookieErr := r.Cookie(stateCookieName)
	http.SetCookie(w, h.stateCookie(provider.Name(), "", -1))

	if query.Get("error") != "" {
		return nil, auth.Unauthorized("login was denied at the identity provider")
	}
	state := query.Get("state")
	if cookieErr != nil || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(cookie.Value)) != 1 {
		return nil, auth.Unauthorized("invalid login state")
	}

	ctx := r.Context()
	profile, err := provider.Exchange(ctx, query.Get("code"))
	if err != nil {
		return nil, err
	}

	identity, err := h.federator.ResolveOrCreate(ctx, provider.Name(), profile.Subject, *profile)
	if err != nil {
		return nil, err
	}

	proof, err := h.strategy.Establish(ctx, identity)
	if err != nil {
		return nil, err
	}
	httputil.SetCookies(w, proof.Cookies)
	return identity, nil
}

func (h *Handlers) auditLogin(r *http.Request, provider, identityID, status string, err error) {
	event := &auth.AuditEvent{
		Action:     auth.ActionFederatedLogin,
		IdentityID: identityID,
		Provider:   provider,
		IPAddress:  auth.ClientIP(r),
		UserAgent:  r.UserAgent(),
		Status:     status,
	}
	if err != nil {
		event.Reason = auth.MessageOf(err)
	}
	_ = h.audit.Log(r.Context(), event)
}

// success handles GET /auth/{provider}/success
func (h *Handlers) success(w http.ResponseWriter, r *http.Request) {
	if _, err := h.provider(r); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "Login successful", nil)
}
