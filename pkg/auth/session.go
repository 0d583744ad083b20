package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultSessionTTL is the session lifetime when none is configured
	DefaultSessionTTL = 7 * 24 * time.Hour
	// SessionIDBytes is the amount of randomness in a session id
	SessionIDBytes = 32

	SessionCookieName      = "sid"
	AccessTokenCookieName  = "access-token"
	RefreshTokenCookieName = "refresh-token"
	// RefreshCookiePath limits the refresh cookie to the auth routes so it
	// reaches both /auth/refresh and /auth/logout
	RefreshCookiePath = "/auth"
)

// SessionManager owns the server-side session lifecycle. The store is the
// only source of truth; a cookie alone never proves anything.
type SessionManager struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// SessionOption customizes a SessionManager
type SessionOption func(*SessionManager)

// WithSessionClock overrides the session manager's time source
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// NewSessionManager creates a session manager
func NewSessionManager(store SessionStore, ttl time.Duration, opts ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	m := &SessionManager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the session lifetime
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// CreateSession stores a new session for identityID
func (m *SessionManager) CreateSession(ctx context.Context, identityID string) (*SessionRecord, error) {
	id, err := NewSessionID()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	session := &SessionRecord{
		ID:         id,
		IdentityID: identityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ResolveSession returns the owning identity id, or ErrSessionNotFound for
// absent and expired sessions
func (m *SessionManager) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrSessionNotFound
	}
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Expired(m.now()) {
		return "", ErrSessionNotFound
	}
	return session.IdentityID, nil
}

// DestroySession removes a session. Unknown ids are not an error.
func (m *SessionManager) DestroySession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// DestroyAll removes every session owned by identityID
func (m *SessionManager) DestroyAll(ctx context.Context, identityID string) error {
	if err := m.store.DeleteByIdentity(ctx, identityID); err != nil {
		return fmt.Errorf("failed to destroy sessions: %w", err)
	}
	return nil
}

// NewSessionID returns a hex encoded id with SessionIDBytes of randomness
func NewSessionID() (string, error) {
	b := make([]byte, SessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CookiePolicy builds the cookies that carry sessions and tokens
type CookiePolicy struct {
	// Production enables Secure and relaxes SameSite to None for cross-site use
	Production bool
	Domain     string
	// Secret signs session cookie values when set
	Secret []byte
}

// SignSessionID returns the cookie value for a session id
func (p CookiePolicy) SignSessionID(id string) string {
	if len(p.Secret) == 0 {
		return id
	}
	return id + "." + p.signature(id)
}

// UnsignSessionID returns the session id in a cookie value, or false when the
// value is malformed or its signature does not match
func (p CookiePolicy) UnsignSessionID(value string) (string, bool) {
	if len(p.Secret) == 0 {
		return value, isSessionID(value)
	}
	id, sig, ok := strings.Cut(value, ".")
	if !ok || !isSessionID(id) {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(p.signature(id))) {
		return "", false
	}
	return id, true
}

func (p CookiePolicy) signature(id string) string {
	mac := hmac.New(sha256.New, p.Secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func isSessionID(s string) bool {
	if len(s) != SessionIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func (p CookiePolicy) base(name, value, path string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   p.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   p.Production,
		SameSite: http.SameSiteLaxMode,
	}
	if p.Production {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// SessionCookie returns the sid cookie for a session
func (p CookiePolicy) SessionCookie(sessionID string, ttl time.Duration) *http.Cookie {
	return p.base(SessionCookieName, p.SignSessionID(sessionID), "/", ttl)
}

// AccessCookie returns the access-token cookie
func (p CookiePolicy) AccessCookie(token string, ttl time.Duration) *http.Cookie {
	return p.base(AccessTokenCookieName, token, "/", ttl)
}

// RefreshCookie returns the refresh-token cookie, scoped to RefreshCookiePath
func (p CookiePolicy) RefreshCookie(token string, ttl time.Duration) *http.Cookie {
	return p.base(RefreshTokenCookieName, token, RefreshCookiePath, ttl)
}

// Expire returns a deletion cookie matching name and path
func (p CookiePolicy) Expire(name, path string) *http.Cookie {
	c := p.base(name, "", path, 0)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}
