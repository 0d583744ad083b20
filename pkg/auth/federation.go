package auth

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var federationTracer = otel.Tracer("gatehouse/auth/federation")

// Federator maps external provider identities onto local identities
type Federator struct {
	store IdentityStore
	group singleflight.Group
}

// NewFederator creates a federation adapter
func NewFederator(store IdentityStore) *Federator {
	return &Federator{store: store}
}

// ResolveOrCreate returns the identity linked to (provider, subject), creating
// a federation-only identity on first sight. Existing profiles are returned
// untouched. Concurrent first logins converge on one identity: callers in this
// process share a single lookup, and a unique violation from another process
// is answered by re-reading the winner.
func (f *Federator) ResolveOrCreate(ctx context.Context, provider, subject string, hints ExternalProfile) (*Identity, error) {
	provider = strings.TrimSpace(provider)
	subject = strings.TrimSpace(subject)
	if provider == "" || subject == "" {
		return nil, Validation("provider and subject are required")
	}

	ctx, span := federationTracer.Start(ctx, "ResolveOrCreate",
		trace.WithAttributes(attribute.String("provider", provider)),
	)
	defer span.End()

	v, err, shared := f.group.Do(provider+":"+subject, func() (interface{}, error) {
		return f.resolveOrCreate(ctx, provider, subject, hints)
	})
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, MessageOf(err))
		return nil, err
	}
	span.SetStatus(codes.Ok, "resolved")
	// Each caller gets its own copy.
	identity := *v.(*Identity)
	return &identity, nil
}

func (f *Federator) resolveOrCreate(ctx context.Context, provider, subject string, hints ExternalProfile) (*Identity, error) {
	existing, err := f.store.FindByProvider(ctx, provider, subject)
	if err == nil {
		return existing, nil
	}
	if !IsKind(err, KindNotFound) {
		return nil, fmt.Errorf("failed to look up federated identity: %w", err)
	}

	email := NormalizeEmail(hints.Email)
	if email == "" {
		return nil, Validation("identity provider did not supply an email address")
	}
	name := strings.TrimSpace(hints.Name)
	if name == "" {
		name = defaultName(email)
	}

	identity := &Identity{
		Email:           email,
		Name:            name,
		Role:            RoleUser,
		Provider:        provider,
		ProviderSubject: subject,
	}
	err = f.store.Create(ctx, identity)
	if err == nil {
		return identity, nil
	}
	if !IsKind(err, KindConflict) {
		return nil, fmt.Errorf("failed to create federated identity: %w", err)
	}

	// Lost a race against another first login for the same subject.
	if existing, err := f.store.FindByProvider(ctx, provider, subject); err == nil {
		return existing, nil
	} else if !IsKind(err, KindNotFound) {
		return nil, fmt.Errorf("failed to re-read federated identity: %w", err)
	}

	// The conflict was on email: an account already exists for that address.
	return f.link(ctx, provider, subject, email, hints.EmailVerified)
}

// link attaches the provider identity to an existing account with the same
// email. Only a provider-verified address may claim a local account.
func (f *Federator) link(ctx context.Context, provider, subject, email string, verified bool) (*Identity, error) {
	if !verified {
		return nil, ErrEmailTaken
	}
	existing, err := f.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account for linking: %w", err)
	}
	if existing.IsFederated() {
		return nil, ErrEmailTaken
	}
	linked, err := f.store.LinkProvider(ctx, existing.ID, provider, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to link provider: %w", err)
	}
	if !linked {
		return nil, ErrEmailTaken
	}
	return f.store.FindByID(ctx, existing.ID)
}

func defaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return email
	}
	return local
}
