package auth

import "context"

// IdentityStore persists identities. Implementations return ErrIdentityNotFound
// for missing rows, ErrDuplicateIdentity on unique violations and Transient
// errors for timeouts.
type IdentityStore interface {
	// Create inserts an identity, assigning ID and timestamps when empty
	Create(ctx context.Context, identity *Identity) error
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByProvider(ctx context.Context, provider, subject string) (*Identity, error)
	List(ctx context.Context) ([]*Identity, error)

	UpdateName(ctx context.Context, id, name string) error
	UpdateCredentialHash(ctx context.Context, id, hash string) error
	UpdateRole(ctx context.Context, id string, role Role) error

	// LinkProvider attaches a provider identity to an identity that has none.
	// It returns false when the identity is already linked.
	LinkProvider(ctx context.Context, id, provider, subject string) (bool, error)

	// SetRefreshToken overwrites the stored refresh token unconditionally
	SetRefreshToken(ctx context.Context, id, token string) error

	// CompareAndSwapRefreshToken replaces the stored token with next only when
	// it currently equals expected. It reports whether the swap happened.
	CompareAndSwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error)

	// ClearRefreshToken removes the stored token. Clearing twice is not an error.
	ClearRefreshToken(ctx context.Context, id string) error

	Delete(ctx context.Context, id string) error
}

// SessionStore persists sessions. Get returns ErrSessionNotFound for absent or
// expired sessions. Delete of an unknown session is not an error.
type SessionStore interface {
	Create(ctx context.Context, session *SessionRecord) error
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteByIdentity(ctx context.Context, identityID string) error
}
