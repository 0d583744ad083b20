package sso

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/storage/sqlstore"
)

// stubProvider accepts the code "ok" and returns profile
type stubProvider struct {
	name    string
	profile auth.ExternalProfile
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*auth.ExternalProfile, error) {
	if code != "ok" {
		return nil, auth.Unauthorized("identity provider rejected the login")
	}
	profile := p.profile
	return &profile, nil
}

type ssoFixture struct {
	router *mux.Router
	engine *auth.Engine
}

func newSSOFixture(t *testing.T, strategy auth.StrategyName) *ssoFixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlstore.Migrate(context.Background(), db))

	engine, err := auth.NewEngine(auth.EngineConfig{
		Strategy:   strategy,
		HashCost:   bcrypt.MinCost,
		SessionTTL: time.Hour,
		Tokens: auth.TokenConfig{
			AccessSecret:  "access-secret-for-tests",
			RefreshSecret: "refresh-secret-for-tests",
		},
	},
		sqlstore.NewIdentityStore(db, sqlstore.SQLite, time.Second, nil),
		sqlstore.NewSessionStore(db, sqlstore.SQLite, time.Second, nil),
		nil,
	)
	require.NoError(t, err)

	provider := &stubProvider{name: "acme", profile: auth.ExternalProfile{
		Provider:      "acme",
		Subject:       "acme-42",
		Email:         "fed@example.com",
		EmailVerified: true,
		Name:          "Fed",
	}}
	handlers, err := NewHandlers(engine, []Provider{provider}, HandlersConfig{}, nil)
	require.NoError(t, err)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return &ssoFixture{router: router, engine: engine}
}

func (f *ssoFixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// startLogin runs the login route and returns the state cookie
func (f *ssoFixture) startLogin(t *testing.T) *http.Cookie {
	t.Helper()
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/acme/login", nil))
	require.Equal(t, http.StatusFound, w.Code)

	state := cookieNamed(w.Result().Cookies(), stateCookieName)
	require.NotNil(t, state)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, location.Query().Get("state"))
	assert.True(t, state.HttpOnly)
	assert.Equal(t, "/auth/acme", state.Path)
	return state
}

func callbackRequest(state *http.Cookie, query string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/auth/acme/callback?"+query, nil)
	if state != nil {
		r.AddCookie(state)
	}
	return r
}

func TestCallback_FederatedSession(t *testing.T) {
	f := newSSOFixture(t, auth.StrategyFederatedSession)
	state := f.startLogin(t)

	w := f.do(callbackRequest(state, "code=ok&state="+url.QueryEscape(state.Value)))
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/auth/acme/success", w.Header().Get("Location"))
	assert.NotContains(t, w.Header().Get("Location"), "token")

	sid := cookieNamed(w.Result().Cookies(), auth.SessionCookieName)
	require.NotNil(t, sid)
	assert.NotEmpty(t, sid.Value)

	identity, err := f.engine.Identities.FindByProvider(context.Background(), "acme", "acme-42")
	require.NoError(t, err)
	assert.Equal(t, "fed@example.com", identity.Email)
	assert.False(t, identity.HasCredential())

	// the session cookie authenticates
	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r.AddCookie(sid)
	result := f.engine.Strategy.Resolve(r)
	authenticated, ok := result.(auth.Authenticated)
	require.True(t, ok, "got %#v", result)
	assert.Equal(t, identity.ID, authenticated.Identity.ID)
}

func TestCallback_FederatedJWTSetsCookiesOnly(t *testing.T) {
	f := newSSOFixture(t, auth.StrategyFederatedJWT)
	state := f.startLogin(t)

	w := f.do(callbackRequest(state, "code=ok&state="+url.QueryEscape(state.Value)))
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	access := cookieNamed(cookies, auth.AccessTokenCookieName)
	refresh := cookieNamed(cookies, auth.RefreshTokenCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.Equal(t, auth.RefreshCookiePath, refresh.Path)
	assert.NotContains(t, w.Body.String(), access.Value)
}

func TestCallback_RepeatLoginReusesIdentity(t *testing.T) {
	f := newSSOFixture(t, auth.StrategyFederatedSession)
	for i := 0; i < 2; i++ {
		state := f.startLogin(t)
		w := f.do(callbackRequest(state, "code=ok&state="+url.QueryEscape(state.Value)))
		require.Equal(t, http.StatusFound, w.Code)
	}
	list, err := f.engine.Identities.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCallback_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		withState bool
		query     func(state string) string
		status    int
	}{
		{"missing state cookie", false, func(s string) string { return "code=ok&state=" + s }, http.StatusUnauthorized},
		{"state mismatch", true, func(string) string { return "code=ok&state=forged" }, http.StatusUnauthorized},
		{"provider error", true, func(s string) string { return "error=access_denied&state=" + s }, http.StatusUnauthorized},
		{"bad code", true, func(s string) string { return "code=bad&state=" + s }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSSOFixture(t, auth.StrategyFederatedSession)
			state := f.startLogin(t)

			var cookie *http.Cookie
			if tt.withState {
				cookie = state
			}
			w := f.do(callbackRequest(cookie, tt.query(url.QueryEscape(state.Value))))
			assert.Equal(t, tt.status, w.Code)
			assert.Nil(t, cookieNamed(w.Result().Cookies(), auth.SessionCookieName))

			var env httputil.Envelope
			require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
			assert.False(t, env.Success)
			assert.Equal(t, "UNAUTHORIZED", env.Error)
		})
	}
}

func TestUnknownProvider(t *testing.T) {
	f := newSSOFixture(t, auth.StrategyFederatedSession)
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/nobody/login", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuccessRoute(t *testing.T) {
	f := newSSOFixture(t, auth.StrategyFederatedSession)
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/acme/success", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestNewHandlers_RequiresFederatedStrategy(t *testing.T) {
	f := newSSOFixture(t, auth.StrategyFederatedSession)
	engine := *f.engine
	engine.Strategy = auth.NewSessionStrategy(engine.Sessions, engine.Identities, auth.CookiePolicy{})

	_, err := NewHandlers(&engine, nil, HandlersConfig{}, nil)
	assert.True(t, auth.IsKind(err, auth.KindFatal))
}
