package auth

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ledgerTracer = otel.Tracer("gatehouse/auth/ledger")

// RotationPolicy controls whether refreshing also replaces the refresh token
type RotationPolicy string

const (
	// RotationAccessOnly returns a new access token and keeps the refresh token
	RotationAccessOnly RotationPolicy = "access-only"
	// RotationFull also issues and persists a new refresh token on every use
	RotationFull RotationPolicy = "full"
)

// ParseRotationPolicy parses a configured rotation policy. Empty means access-only.
func ParseRotationPolicy(s string) (RotationPolicy, error) {
	switch RotationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RotationAccessOnly:
		return RotationAccessOnly, nil
	case RotationFull:
		return RotationFull, nil
	default:
		return "", Fatal(fmt.Sprintf("unknown refresh rotation policy %q", s), nil)
	}
}

// Rotation is the result of a successful refresh. RefreshToken is set only
// under RotationFull.
type Rotation struct {
	Identity     *Identity
	AccessToken  string
	RefreshToken string
}

// Ledger tracks the single valid refresh token per identity. Logging in
// replaces it and logging out clears it, which revokes every earlier token.
type Ledger struct {
	issuer *TokenIssuer
	store  IdentityStore
	policy RotationPolicy
}

// NewLedger creates a refresh token ledger
func NewLedger(issuer *TokenIssuer, store IdentityStore, policy RotationPolicy) *Ledger {
	if policy == "" {
		policy = RotationAccessOnly
	}
	return &Ledger{
		issuer: issuer,
		store:  store,
		policy: policy,
	}
}

// Policy returns the rotation policy in effect
func (l *Ledger) Policy() RotationPolicy {
	return l.policy
}

// Login issues a fresh token pair and makes its refresh token the only one honored
func (l *Ledger) Login(ctx context.Context, identity *Identity) (*TokenPair, error) {
	access, err := l.issuer.IssueAccessToken(identity)
	if err != nil {
		return nil, err
	}
	refresh, err := l.issuer.IssueRefreshToken(identity)
	if err != nil {
		return nil, err
	}

	if err := l.store.SetRefreshToken(ctx, identity.ID, refresh); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}
	identity.RefreshToken = refresh

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Rotate exchanges a refresh token for a new access token. The presented token
// must verify and must still be the one stored on its identity; the check is a
// conditional update so a concurrent logout cannot be lost.
func (l *Ledger) Rotate(ctx context.Context, refreshToken string) (*Rotation, error) {
	ctx, span := ledgerTracer.Start(ctx, "Rotate",
		trace.WithAttributes(attribute.String("rotation.policy", string(l.policy))),
	)
	defer span.End()

	rotation, err := l.rotate(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, MessageOf(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("identity.id", rotation.Identity.ID))
	span.SetStatus(codes.Ok, "rotated")
	return rotation, nil
}

func (l *Ledger) rotate(ctx context.Context, refreshToken string) (*Rotation, error) {
	claims, err := l.issuer.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	identity, err := l.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return nil, ErrRefreshTokenRevoked
		}
		return nil, err
	}

	next := refreshToken
	if l.policy == RotationFull {
		next, err = l.issuer.IssueRefreshToken(identity)
		if err != nil {
			return nil, err
		}
	}

	swapped, err := l.store.CompareAndSwapRefreshToken(ctx, identity.ID, refreshToken, next)
	if err != nil {
		return nil, fmt.Errorf("failed to check refresh token: %w", err)
	}
	if !swapped {
		return nil, ErrRefreshTokenRevoked
	}
	identity.RefreshToken = next

	access, err := l.issuer.IssueAccessToken(identity)
	if err != nil {
		return nil, err
	}

	rotation := &Rotation{Identity: identity, AccessToken: access}
	if l.policy == RotationFull {
		rotation.RefreshToken = next
	}
	return rotation, nil
}

// Logout clears the stored refresh token. Repeating it is harmless.
func (l *Ledger) Logout(ctx context.Context, identityID string) error {
	if identityID == "" {
		return nil
	}
	if err := l.store.ClearRefreshToken(ctx, identityID); err != nil && !IsKind(err, KindNotFound) {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return nil
}
