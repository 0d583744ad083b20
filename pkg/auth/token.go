package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTokenTTL is the access token lifetime when none is configured
	DefaultAccessTokenTTL = time.Hour
	// DefaultRefreshTokenTTL is the refresh token lifetime when none is configured
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims is the payload of an access token
type AccessClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token
type RefreshClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenConfig configures a TokenIssuer
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenIssuer signs and verifies access and refresh tokens. Each kind has its
// own HMAC key so one can never be presented as the other.
type TokenIssuer struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// TokenOption customizes a TokenIssuer
type TokenOption func(*TokenIssuer)

// WithClock overrides the issuer's time source
func WithClock(now func() time.Time) TokenOption {
	return func(ti *TokenIssuer) {
		ti.now = now
	}
}

// NewTokenIssuer creates a token issuer. Missing or identical secrets are fatal.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenOption) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" {
		return nil, Fatal("access token secret is required", nil)
	}
	if cfg.RefreshSecret == "" {
		return nil, Fatal("refresh token secret is required", nil)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, Fatal("access and refresh token secrets must differ", nil)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}

	ti := &TokenIssuer{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, nil
}

// AccessTTL returns the access token lifetime
func (ti *TokenIssuer) AccessTTL() time.Duration {
	return ti.accessTTL
}

// RefreshTTL returns the refresh token lifetime
func (ti *TokenIssuer) RefreshTTL() time.Duration {
	return ti.refreshTTL
}

func (ti *TokenIssuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := ti.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    ti.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// IssueAccessToken signs an access token carrying id, email and role
func (ti *TokenIssuer) IssueAccessToken(identity *Identity) (string, error) {
	claims := AccessClaims{
		UserID:           identity.ID,
		Email:            identity.Email,
		Role:             identity.Role,
		Type:             tokenTypeAccess,
		RegisteredClaims: ti.registered(identity.ID, ti.accessTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.accessKey)
	if err != nil {
		return "", Internal("failed to sign access token", err)
	}
	return signed, nil
}

// IssueRefreshToken signs a refresh token carrying id and email. Every call
// yields a distinct token because of the random jti.
func (ti *TokenIssuer) IssueRefreshToken(identity *Identity) (string, error) {
	claims := RefreshClaims{
		UserID:           identity.ID,
		Email:            identity.Email,
		Type:             tokenTypeRefresh,
		RegisteredClaims: ti.registered(identity.ID, ti.refreshTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.refreshKey)
	if err != nil {
		return "", Internal("failed to sign refresh token", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature and expiry only. It never reads storage.
func (ti *TokenIssuer) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ti.parse(token, claims, ti.accessKey); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefreshToken checks signature and expiry. Callers must still compare
// the token with the stored value before honoring it.
func (ti *TokenIssuer) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ti.parse(token, claims, ti.refreshKey); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeRefresh || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (ti *TokenIssuer) parse(token string, claims jwt.Claims, key []byte) error {
	if token == "" {
		return ErrTokenInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired.WithCause(err)
	default:
		return ErrTokenInvalid.WithCause(err)
	}
}
