package auth

import (
	"context"
	"fmt"
	"strings"
)

// MinPasswordLength is the shortest password accepted on registration
const MinPasswordLength = 8

// AccountService implements the account operations around the engine:
// registration, password login and self-service profile changes, plus the
// administrative role operations.
type AccountService struct {
	store    IdentityStore
	hasher   *Hasher
	ledger   *Ledger
	sessions *SessionManager
}

// NewAccountService creates an account service. sessions may be nil when no
// session store is configured.
func NewAccountService(store IdentityStore, hasher *Hasher, ledger *Ledger, sessions *SessionManager) *AccountService {
	return &AccountService{
		store:    store,
		hasher:   hasher,
		ledger:   ledger,
		sessions: sessions,
	}
}

// RegisterInput is the data needed to create a password account
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a password account with role USER
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*Identity, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, Validation("a valid email is required")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, Validation(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !IsKind(err, KindNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultName(email)
	}

	identity := &Identity{
		Email:          email,
		Name:           name,
		CredentialHash: hash,
		Role:           RoleUser,
	}
	if err := s.store.Create(ctx, identity); err != nil {
		if IsKind(err, KindConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return identity, nil
}

// Authenticate checks an email and password. Every failure returns
// ErrInvalidCredentials so callers cannot tell which part was wrong.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	identity, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if IsKind(err, KindNotFound) {
			s.hasher.VerifyDummy(ctx, password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !identity.HasCredential() {
		s.hasher.VerifyDummy(ctx, password)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(ctx, password, identity.CredentialHash) {
		return nil, ErrInvalidCredentials
	}
	return identity, nil
}

// Me returns the identity for id, or NotFound if it was deleted
func (s *AccountService) Me(ctx context.Context, id string) (*Identity, error) {
	return s.store.FindByID(ctx, id)
}

// ChangeName updates the display name
func (s *AccountService) ChangeName(ctx context.Context, id, name string) (*Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Validation("name is required")
	}
	if err := s.store.UpdateName(ctx, id, name); err != nil {
		return nil, err
	}
	return s.store.FindByID(ctx, id)
}

// ChangePassword replaces the password after checking the current one. All
// sessions and the stored refresh token are revoked afterwards.
func (s *AccountService) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !identity.HasCredential() {
		return Validation("account has no password; sign in with its identity provider")
	}
	if !s.hasher.Verify(ctx, oldPassword, identity.CredentialHash) {
		return Unauthorized("current password is incorrect")
	}
	if len(newPassword) < MinPasswordLength {
		return Validation(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if oldPassword == newPassword {
		return Validation("new password must differ from the current password")
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateCredentialHash(ctx, id, hash); err != nil {
		return err
	}
	return s.revokeAll(ctx, id)
}

// DeleteAccount removes the identity together with its sessions and tokens
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.sessions != nil {
		if err := s.sessions.DestroyAll(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ListUsers returns every identity
func (s *AccountService) ListUsers(ctx context.Context) ([]*Identity, error) {
	return s.store.List(ctx)
}

// ChangeRole sets the role of targetID. An administrator may not demote themself.
func (s *AccountService) ChangeRole(ctx context.Context, actorID, targetID string, role Role) (*Identity, error) {
	if !role.Valid() {
		return nil, Validation("role must be USER or ADMIN")
	}
	if actorID == targetID && role != RoleAdmin {
		return nil, Validation("administrators cannot demote themselves")
	}
	if err := s.store.UpdateRole(ctx, targetID, role); err != nil {
		return nil, err
	}
	return s.store.FindByID(ctx, targetID)
}

func (s *AccountService) revokeAll(ctx context.Context, id string) error {
	if s.sessions != nil {
		if err := s.sessions.DestroyAll(ctx, id); err != nil {
			return err
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Logout(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
