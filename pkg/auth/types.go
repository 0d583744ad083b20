package auth

import (
	"strings"
	"time"
)

// Role controls authorization. It is a closed set.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole parses a role name case-insensitively
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", Validation("role must be USER or ADMIN")
	}
	return r, nil
}

// Identity is one user account
type Identity struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	CredentialHash  string    `json:"-"`
	Role            Role      `json:"role"`
	Provider        string    `json:"provider,omitempty"`
	ProviderSubject string    `json:"-"`
	RefreshToken    string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasCredential reports whether the identity can log in with a password
func (i *Identity) HasCredential() bool {
	return i.CredentialHash != ""
}

// IsFederated reports whether the identity is linked to an external provider
func (i *Identity) IsFederated() bool {
	return i.Provider != "" && i.ProviderSubject != ""
}

// PublicIdentity is the response view of an Identity
type PublicIdentity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public returns the fields that may leave the process
func (i *Identity) Public() PublicIdentity {
	return PublicIdentity{
		ID:        i.ID,
		Email:     i.Email,
		Name:      i.Name,
		Role:      i.Role,
		Provider:  i.Provider,
		CreatedAt: i.CreatedAt,
	}
}

// SessionRecord is one server-side session
type SessionRecord struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now
func (s *SessionRecord) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TokenPair is an access token with its refresh token
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ExternalProfile is what an identity provider asserts about a user
type ExternalProfile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
