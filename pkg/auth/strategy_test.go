package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestParseStrategyName(t *testing.T) {
	name, err := ParseStrategyName("")
	require.NoError(t, err)
	assert.Equal(t, StrategySession, name)

	name, err = ParseStrategyName(" Federated-JWT ")
	require.NoError(t, err)
	assert.Equal(t, StrategyFederatedJWT, name)
	assert.True(t, name.IsFederated())
	assert.False(t, StrategyJWT.IsFederated())

	_, err = ParseStrategyName("kerberos")
	assert.True(t, IsKind(err, KindFatal))
}

func TestSessionStrategy(t *testing.T) {
	store := newMemIdentityStore()
	sessions := newMemSessionStore()
	policy := CookiePolicy{Secret: []byte("cookie-secret")}
	strategy := NewSessionStrategy(NewSessionManager(sessions, time.Hour), store, policy)
	ctx := context.Background()

	identity := &Identity{Email: "alice@example.com", Name: "alice", Role: RoleUser}
	require.NoError(t, store.Create(ctx, identity))

	proof, err := strategy.Establish(ctx, identity)
	require.NoError(t, err)
	require.Len(t, proof.Cookies, 1)
	sid := proof.Cookies[0]
	assert.Equal(t, SessionCookieName, sid.Name)
	assert.Nil(t, proof.Tokens)

	t.Run("resolves valid cookie", func(t *testing.T) {
		res := strategy.Resolve(requestWithCookies(sid))
		authenticated, ok := res.(Authenticated)
		require.True(t, ok, "got %#v", res)
		assert.Equal(t, identity.ID, authenticated.Identity.ID)
	})

	t.Run("no cookie", func(t *testing.T) {
		assert.Equal(t, Rejected{Reason: RejectNoCredential}, strategy.Resolve(requestWithCookies()))
	})

	t.Run("forged signature", func(t *testing.T) {
		forged := &http.Cookie{Name: SessionCookieName, Value: proof.SessionID + ".bogus"}
		assert.Equal(t, Rejected{Reason: RejectMalformed}, strategy.Resolve(requestWithCookies(forged)))
	})

	t.Run("unknown session", func(t *testing.T) {
		id, err := NewSessionID()
		require.NoError(t, err)
		unknown := &http.Cookie{Name: SessionCookieName, Value: policy.SignSessionID(id)}
		assert.Equal(t, Rejected{Reason: RejectUnknownSession}, strategy.Resolve(requestWithCookies(unknown)))
	})

	t.Run("store failure is a system error", func(t *testing.T) {
		sessions.failWith = Transient("store unavailable", nil)
		defer func() { sessions.failWith = nil }()
		res := strategy.Resolve(requestWithCookies(sid))
		sysErr, ok := res.(SystemError)
		require.True(t, ok, "got %#v", res)
		assert.True(t, IsKind(sysErr.Err, KindTransient))
	})

	t.Run("clear destroys the session", func(t *testing.T) {
		cleared, err := strategy.Clear(ctx, requestWithCookies(sid), nil)
		require.NoError(t, err)
		expired := findCookie(cleared.Cookies, SessionCookieName)
		require.NotNil(t, expired)
		assert.Equal(t, -1, expired.MaxAge)

		assert.Equal(t, Rejected{Reason: RejectUnknownSession}, strategy.Resolve(requestWithCookies(sid)))

		_, err = strategy.Clear(ctx, requestWithCookies(), nil)
		assert.NoError(t, err)
	})
}

func TestSessionStrategy_DeletedIdentity(t *testing.T) {
	store := newMemIdentityStore()
	strategy := NewFederatedSessionStrategy(NewSessionManager(newMemSessionStore(), time.Hour), store, CookiePolicy{})
	ctx := context.Background()
	assert.True(t, strategy.Federated())
	assert.Equal(t, StrategyFederatedSession, strategy.Name())

	identity := &Identity{Email: "alice@example.com", Role: RoleUser}
	require.NoError(t, store.Create(ctx, identity))
	proof, err := strategy.Establish(ctx, identity)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, identity.ID))
	assert.Equal(t, Rejected{Reason: RejectUnknownIdentity}, strategy.Resolve(requestWithCookies(proof.Cookies...)))
}

func newJWTFixture(t *testing.T, policy RotationPolicy) (*TokenIssuer, *Ledger, *memIdentityStore, *Identity) {
	t.Helper()
	store := newMemIdentityStore()
	identity := &Identity{Email: "alice@example.com", Name: "alice", Role: RoleAdmin}
	require.NoError(t, store.Create(context.Background(), identity))
	issuer := newTestIssuer(t)
	return issuer, NewLedger(issuer, store, policy), store, identity
}

func TestAccessRefreshJwtStrategy(t *testing.T) {
	issuer, ledger, store, identity := newJWTFixture(t, RotationAccessOnly)
	strategy := NewAccessRefreshJwtStrategy(issuer, ledger, CookiePolicy{})
	ctx := context.Background()

	proof, err := strategy.Establish(ctx, identity)
	require.NoError(t, err)
	require.NotNil(t, proof.Tokens)
	assert.Empty(t, proof.Cookies)

	bearer := func(value string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		if value != "" {
			r.Header.Set("Authorization", value)
		}
		return r
	}

	res := strategy.Resolve(bearer("Bearer " + proof.Tokens.AccessToken))
	authenticated, ok := res.(Authenticated)
	require.True(t, ok, "got %#v", res)
	assert.Equal(t, identity.ID, authenticated.Identity.ID)
	assert.Equal(t, RoleAdmin, authenticated.Identity.Role)

	assert.Equal(t, Rejected{Reason: RejectNoCredential}, strategy.Resolve(bearer("")))
	assert.Equal(t, Rejected{Reason: RejectMalformed}, strategy.Resolve(bearer("Basic abc")))
	assert.Equal(t, Rejected{Reason: RejectMalformed}, strategy.Resolve(bearer("Bearer not-a-jwt")))
	assert.Equal(t, Rejected{Reason: RejectInvalid}, strategy.Resolve(bearer("Bearer "+proof.Tokens.RefreshToken)))

	t.Run("refresh from body", func(t *testing.T) {
		refreshed, err := strategy.Refresh(ctx, bearer(""), proof.Tokens.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, refreshed.Tokens)
		assert.NotEmpty(t, refreshed.Tokens.AccessToken)
		assert.Empty(t, refreshed.Tokens.RefreshToken)
	})

	t.Run("refresh without token", func(t *testing.T) {
		_, err := strategy.Refresh(ctx, bearer(""), "")
		assert.True(t, IsKind(err, KindUnauthorized))
	})

	t.Run("clear revokes", func(t *testing.T) {
		_, err := strategy.Clear(ctx, bearer(""), identity)
		require.NoError(t, err)
		assert.Empty(t, store.refreshTokenOf(identity.ID))

		_, err = strategy.Refresh(ctx, bearer(""), proof.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrRefreshTokenRevoked)

		// Access tokens stay valid until they expire.
		_, ok := strategy.Resolve(bearer("Bearer " + proof.Tokens.AccessToken)).(Authenticated)
		assert.True(t, ok)
	})
}

func TestJwtStrategies_Revoke(t *testing.T) {
	strategies := map[string]func(*TokenIssuer, *Ledger) Refresher{
		"jwt": func(i *TokenIssuer, l *Ledger) Refresher { return NewAccessRefreshJwtStrategy(i, l, CookiePolicy{}) },
		"federated-jwt": func(i *TokenIssuer, l *Ledger) Refresher {
			return NewFederatedJwtStrategy(i, l, CookiePolicy{})
		},
	}
	for name, build := range strategies {
		t.Run(name, func(t *testing.T) {
			issuer, ledger, store, identity := newJWTFixture(t, RotationAccessOnly)
			strategy := build(issuer, ledger)
			ctx := context.Background()

			pair, err := ledger.Login(ctx, identity)
			require.NoError(t, err)

			require.NoError(t, strategy.Revoke(ctx, ""))
			require.NoError(t, strategy.Revoke(ctx, "garbage"))
			assert.Equal(t, pair.RefreshToken, store.refreshTokenOf(identity.ID))

			require.NoError(t, strategy.Revoke(ctx, pair.RefreshToken))
			assert.Empty(t, store.refreshTokenOf(identity.ID))
			_, err = strategy.Refresh(ctx, requestWithCookies(), pair.RefreshToken)
			assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
		})
	}
}

func TestAccessRefreshJwtStrategy_ExpiredToken(t *testing.T) {
	now := time.Now()
	issuer, err := NewTokenIssuer(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     time.Minute,
	}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	strategy := NewAccessRefreshJwtStrategy(issuer, nil, CookiePolicy{})

	token, err := issuer.IssueAccessToken(testIdentity())
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)

	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, Rejected{Reason: RejectExpired}, strategy.Resolve(r))
}

func TestFederatedJwtStrategy(t *testing.T) {
	issuer, ledger, store, identity := newJWTFixture(t, RotationFull)
	strategy := NewFederatedJwtStrategy(issuer, ledger, CookiePolicy{})
	ctx := context.Background()
	assert.True(t, strategy.Federated())

	proof, err := strategy.Establish(ctx, identity)
	require.NoError(t, err)
	assert.Nil(t, proof.Tokens, "tokens never travel in the body")
	access := findCookie(proof.Cookies, AccessTokenCookieName)
	refresh := findCookie(proof.Cookies, RefreshTokenCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.Equal(t, RefreshCookiePath, refresh.Path)
	assert.True(t, access.HttpOnly)

	res := strategy.Resolve(requestWithCookies(access))
	_, ok := res.(Authenticated)
	require.True(t, ok, "got %#v", res)
	assert.Equal(t, Rejected{Reason: RejectNoCredential}, strategy.Resolve(requestWithCookies()))

	refreshed, err := strategy.Refresh(ctx, requestWithCookies(refresh), "")
	require.NoError(t, err)
	assert.NotNil(t, findCookie(refreshed.Cookies, AccessTokenCookieName))
	rotated := findCookie(refreshed.Cookies, RefreshTokenCookieName)
	require.NotNil(t, rotated, "full rotation resets the refresh cookie")

	_, err = strategy.Refresh(ctx, requestWithCookies(refresh), "")
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)

	// Logout without a resolved identity falls back to the refresh cookie.
	cleared, err := strategy.Clear(ctx, requestWithCookies(rotated), nil)
	require.NoError(t, err)
	assert.Len(t, cleared.Cookies, 2)
	assert.Empty(t, store.refreshTokenOf(identity.ID))
}
