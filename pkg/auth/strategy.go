package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Result is the outcome of resolving a request: Authenticated, Rejected or SystemError
type Result interface {
	isResult()
}

// Authenticated carries the resolved identity
type Authenticated struct {
	Identity *Identity
}

// Rejected means the request carried no usable credential
type Rejected struct {
	Reason RejectReason
}

// SystemError means resolution failed for reasons unrelated to the credential
type SystemError struct {
	Err error
}

func (Authenticated) isResult() {}
func (Rejected) isResult()      {}
func (SystemError) isResult()   {}

// RejectReason says why a credential was rejected
type RejectReason string

const (
	RejectNoCredential    RejectReason = "no_credential"
	RejectMalformed       RejectReason = "malformed"
	RejectExpired         RejectReason = "expired"
	RejectInvalid         RejectReason = "invalid"
	RejectUnknownSession  RejectReason = "unknown_session"
	RejectUnknownIdentity RejectReason = "unknown_identity"
)

// Message returns the client-facing message for the reason
func (r RejectReason) Message() string {
	switch r {
	case RejectNoCredential:
		return "authentication required"
	case RejectMalformed:
		return "malformed credential"
	case RejectExpired:
		return "credential expired"
	case RejectUnknownSession:
		return "session not found or expired"
	case RejectUnknownIdentity:
		return "account no longer exists"
	default:
		return "invalid credential"
	}
}

// Proof is what a strategy hands back to the client after establishing or
// refreshing identity: cookies to set and, for the bearer strategy, tokens for
// the response body.
type Proof struct {
	SessionID string
	Cookies   []*http.Cookie
	Tokens    *TokenPair
}

// Strategy establishes proof of identity and resolves it on later requests.
// Each deployment runs exactly one strategy.
type Strategy interface {
	Name() StrategyName
	// Federated reports whether the identity-provider login routes are enabled
	Federated() bool
	Establish(ctx context.Context, identity *Identity) (*Proof, error)
	Resolve(r *http.Request) Result
	// Clear revokes whatever the request proves. identity may be nil.
	Clear(ctx context.Context, r *http.Request, identity *Identity) (*Proof, error)
}

// Refresher is implemented by strategies that can renew access tokens
type Refresher interface {
	Refresh(ctx context.Context, r *http.Request, bodyToken string) (*Proof, error)
	// Revoke logs out the owner of a refresh token. Tokens that fail
	// verification are ignored.
	Revoke(ctx context.Context, refreshToken string) error
}

// StrategyName identifies a strategy in configuration
type StrategyName string

const (
	StrategySession          StrategyName = "session"
	StrategyJWT              StrategyName = "jwt"
	StrategyFederatedSession StrategyName = "federated-session"
	StrategyFederatedJWT     StrategyName = "federated-jwt"
)

// ParseStrategyName validates a configured strategy name
func ParseStrategyName(s string) (StrategyName, error) {
	name := StrategyName(strings.ToLower(strings.TrimSpace(s)))
	switch name {
	case StrategySession, StrategyJWT, StrategyFederatedSession, StrategyFederatedJWT:
		return name, nil
	case "":
		return StrategySession, nil
	default:
		return "", Fatal(fmt.Sprintf("unknown authentication strategy %q", s), nil)
	}
}

// IsFederated reports whether the named strategy enables federation
func (n StrategyName) IsFederated() bool {
	return n == StrategyFederatedSession || n == StrategyFederatedJWT
}

// SessionStrategy proves identity with a server-side session in the sid cookie
type SessionStrategy struct {
	sessions *SessionManager
	store    IdentityStore
	cookies  CookiePolicy
}

var _ Strategy = (*SessionStrategy)(nil)

// NewSessionStrategy creates the session cookie strategy
func NewSessionStrategy(sessions *SessionManager, store IdentityStore, cookies CookiePolicy) *SessionStrategy {
	return &SessionStrategy{
		sessions: sessions,
		store:    store,
		cookies:  cookies,
	}
}

func (s *SessionStrategy) Name() StrategyName { return StrategySession }
func (s *SessionStrategy) Federated() bool    { return false }

// Establish creates a session and returns its cookie
func (s *SessionStrategy) Establish(ctx context.Context, identity *Identity) (*Proof, error) {
	session, err := s.sessions.CreateSession(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	return &Proof{
		SessionID: session.ID,
		Cookies:   []*http.Cookie{s.cookies.SessionCookie(session.ID, s.sessions.TTL())},
	}, nil
}

// Resolve reads the sid cookie and looks the session up in the store
func (s *SessionStrategy) Resolve(r *http.Request) Result {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return Rejected{Reason: RejectNoCredential}
	}
	sessionID, ok := s.cookies.UnsignSessionID(c.Value)
	if !ok {
		return Rejected{Reason: RejectMalformed}
	}

	ctx := r.Context()
	identityID, err := s.sessions.ResolveSession(ctx, sessionID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return Rejected{Reason: RejectUnknownSession}
		}
		return SystemError{Err: err}
	}
	return lookupIdentity(ctx, s.store, identityID)
}

// Clear destroys the session named by the cookie and expires the cookie
func (s *SessionStrategy) Clear(ctx context.Context, r *http.Request, _ *Identity) (*Proof, error) {
	proof := &Proof{Cookies: []*http.Cookie{s.cookies.Expire(SessionCookieName, "/")}}
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return proof, nil
	}
	if sessionID, ok := s.cookies.UnsignSessionID(c.Value); ok {
		if err := s.sessions.DestroySession(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	return proof, nil
}

// FederatedSessionStrategy is the session strategy with provider login enabled
type FederatedSessionStrategy struct {
	*SessionStrategy
}

var _ Strategy = (*FederatedSessionStrategy)(nil)

// NewFederatedSessionStrategy creates the federated session strategy
func NewFederatedSessionStrategy(sessions *SessionManager, store IdentityStore, cookies CookiePolicy) *FederatedSessionStrategy {
	return &FederatedSessionStrategy{SessionStrategy: NewSessionStrategy(sessions, store, cookies)}
}

func (s *FederatedSessionStrategy) Name() StrategyName { return StrategyFederatedSession }
func (s *FederatedSessionStrategy) Federated() bool    { return true }

// AccessRefreshJwtStrategy returns a token pair in the response body and
// resolves requests from the Authorization bearer header
type AccessRefreshJwtStrategy struct {
	issuer  *TokenIssuer
	ledger  *Ledger
	cookies CookiePolicy
}

var (
	_ Strategy  = (*AccessRefreshJwtStrategy)(nil)
	_ Refresher = (*AccessRefreshJwtStrategy)(nil)
)

// NewAccessRefreshJwtStrategy creates the bearer token strategy
func NewAccessRefreshJwtStrategy(issuer *TokenIssuer, ledger *Ledger, cookies CookiePolicy) *AccessRefreshJwtStrategy {
	return &AccessRefreshJwtStrategy{
		issuer:  issuer,
		ledger:  ledger,
		cookies: cookies,
	}
}

func (s *AccessRefreshJwtStrategy) Name() StrategyName { return StrategyJWT }
func (s *AccessRefreshJwtStrategy) Federated() bool    { return false }

// Establish logs the identity in and returns the pair for the response body
func (s *AccessRefreshJwtStrategy) Establish(ctx context.Context, identity *Identity) (*Proof, error) {
	pair, err := s.ledger.Login(ctx, identity)
	if err != nil {
		return nil, err
	}
	return &Proof{Tokens: pair}, nil
}

// Resolve verifies the bearer access token without touching storage
func (s *AccessRefreshJwtStrategy) Resolve(r *http.Request) Result {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Rejected{Reason: RejectNoCredential}
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Rejected{Reason: RejectMalformed}
	}
	return resolveAccessToken(s.issuer, strings.TrimSpace(token))
}

// Refresh exchanges the refresh token from the body, or the refresh-token
// cookie when the body has none
func (s *AccessRefreshJwtStrategy) Refresh(ctx context.Context, r *http.Request, bodyToken string) (*Proof, error) {
	token := bodyToken
	if token == "" {
		token = cookieValue(r, RefreshTokenCookieName)
	}
	if token == "" {
		return nil, Unauthorized("refresh token required")
	}
	rotation, err := s.ledger.Rotate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Proof{Tokens: &TokenPair{
		AccessToken:  rotation.AccessToken,
		RefreshToken: rotation.RefreshToken,
	}}, nil
}

// Revoke logs out the owner of refreshToken
func (s *AccessRefreshJwtStrategy) Revoke(ctx context.Context, refreshToken string) error {
	return revokeRefreshToken(ctx, s.issuer, s.ledger, refreshToken)
}

// Clear revokes the stored refresh token for the identity
func (s *AccessRefreshJwtStrategy) Clear(ctx context.Context, r *http.Request, identity *Identity) (*Proof, error) {
	if err := logoutFromRequest(ctx, s.issuer, s.ledger, r, identity); err != nil {
		return nil, err
	}
	return &Proof{Cookies: []*http.Cookie{s.cookies.Expire(RefreshTokenCookieName, RefreshCookiePath)}}, nil
}

// FederatedJwtStrategy carries the token pair in httpOnly cookies so tokens
// never appear in a URL or response body
type FederatedJwtStrategy struct {
	issuer  *TokenIssuer
	ledger  *Ledger
	cookies CookiePolicy
}

var (
	_ Strategy  = (*FederatedJwtStrategy)(nil)
	_ Refresher = (*FederatedJwtStrategy)(nil)
)

// NewFederatedJwtStrategy creates the token cookie strategy
func NewFederatedJwtStrategy(issuer *TokenIssuer, ledger *Ledger, cookies CookiePolicy) *FederatedJwtStrategy {
	return &FederatedJwtStrategy{
		issuer:  issuer,
		ledger:  ledger,
		cookies: cookies,
	}
}

func (s *FederatedJwtStrategy) Name() StrategyName { return StrategyFederatedJWT }
func (s *FederatedJwtStrategy) Federated() bool    { return true }

// Establish logs the identity in and sets both token cookies
func (s *FederatedJwtStrategy) Establish(ctx context.Context, identity *Identity) (*Proof, error) {
	pair, err := s.ledger.Login(ctx, identity)
	if err != nil {
		return nil, err
	}
	return &Proof{Cookies: []*http.Cookie{
		s.cookies.AccessCookie(pair.AccessToken, s.issuer.AccessTTL()),
		s.cookies.RefreshCookie(pair.RefreshToken, s.issuer.RefreshTTL()),
	}}, nil
}

// Resolve verifies the access-token cookie
func (s *FederatedJwtStrategy) Resolve(r *http.Request) Result {
	token := cookieValue(r, AccessTokenCookieName)
	if token == "" {
		return Rejected{Reason: RejectNoCredential}
	}
	return resolveAccessToken(s.issuer, token)
}

// Refresh exchanges the refresh-token cookie and resets the access cookie
func (s *FederatedJwtStrategy) Refresh(ctx context.Context, r *http.Request, bodyToken string) (*Proof, error) {
	token := cookieValue(r, RefreshTokenCookieName)
	if token == "" {
		token = bodyToken
	}
	if token == "" {
		return nil, Unauthorized("refresh token required")
	}
	rotation, err := s.ledger.Rotate(ctx, token)
	if err != nil {
		return nil, err
	}
	proof := &Proof{Cookies: []*http.Cookie{s.cookies.AccessCookie(rotation.AccessToken, s.issuer.AccessTTL())}}
	if rotation.RefreshToken != "" {
		proof.Cookies = append(proof.Cookies, s.cookies.RefreshCookie(rotation.RefreshToken, s.issuer.RefreshTTL()))
	}
	return proof, nil
}

// Revoke logs out the owner of refreshToken
func (s *FederatedJwtStrategy) Revoke(ctx context.Context, refreshToken string) error {
	return revokeRefreshToken(ctx, s.issuer, s.ledger, refreshToken)
}

// Clear revokes the stored refresh token and expires both cookies
func (s *FederatedJwtStrategy) Clear(ctx context.Context, r *http.Request, identity *Identity) (*Proof, error) {
	if err := logoutFromRequest(ctx, s.issuer, s.ledger, r, identity); err != nil {
		return nil, err
	}
	return &Proof{Cookies: []*http.Cookie{
		s.cookies.Expire(AccessTokenCookieName, "/"),
		s.cookies.Expire(RefreshTokenCookieName, RefreshCookiePath),
	}}, nil
}

func resolveAccessToken(issuer *TokenIssuer, token string) Result {
	claims, err := issuer.VerifyAccessToken(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Rejected{Reason: RejectExpired}
		}
		if strings.Count(token, ".") != 2 {
			return Rejected{Reason: RejectMalformed}
		}
		return Rejected{Reason: RejectInvalid}
	}
	return Authenticated{Identity: &Identity{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	}}
}

func lookupIdentity(ctx context.Context, store IdentityStore, id string) Result {
	identity, err := store.FindByID(ctx, id)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return Rejected{Reason: RejectUnknownIdentity}
		}
		return SystemError{Err: err}
	}
	return Authenticated{Identity: identity}
}

// logoutFromRequest clears the stored refresh token of identity, or of the
// owner of the refresh-token cookie when no identity was resolved
func logoutFromRequest(ctx context.Context, issuer *TokenIssuer, ledger *Ledger, r *http.Request, identity *Identity) error {
	if identity != nil {
		return ledger.Logout(ctx, identity.ID)
	}
	return revokeRefreshToken(ctx, issuer, ledger, cookieValue(r, RefreshTokenCookieName))
}

func revokeRefreshToken(ctx context.Context, issuer *TokenIssuer, ledger *Ledger, token string) error {
	if token == "" {
		return nil
	}
	claims, err := issuer.VerifyRefreshToken(token)
	if err != nil {
		return nil
	}
	return ledger.Logout(ctx, claims.UserID)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
