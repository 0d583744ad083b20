package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Authenticator resolves the caller through the configured strategy and
// attaches the identity to the request context
type Authenticator struct {
	strategy auth.Strategy
	metrics  *observability.Metrics
}

// NewAuthenticator creates the authentication gate for a strategy
func NewAuthenticator(strategy auth.Strategy, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{
		strategy: strategy,
		metrics:  metrics,
	}
}

// Handler rejects requests that do not resolve to an identity
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return a.wrap(next, false)
}

// Optional lets anonymous and rejected requests through without an identity.
// System errors still fail the request.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return a.wrap(next, true)
}

func (a *Authenticator) wrap(next http.Handler, optional bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch result := a.strategy.Resolve(r).(type) {
		case auth.Authenticated:
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), result.Identity)))
		case auth.Rejected:
			if optional {
				next.ServeHTTP(w, r)
				return
			}
			a.metrics.Rejection(string(result.Reason))
			httputil.WriteError(w, r, auth.Unauthorized(result.Reason.Message()))
		case auth.SystemError:
			// WriteError maps Transient to 503 and anything else to 500
			httputil.WriteError(w, r, result.Err)
		default:
			httputil.WriteError(w, r, auth.Internal("unexpected authentication result", nil))
		}
	})
}

// WithIdentity attaches an authenticated identity to ctx
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	ctx = contextkeys.WithIdentity(ctx, identity)
	return contextkeys.WithIdentityID(ctx, identity.ID)
}

// IdentityFrom returns the identity attached by the Authenticator
func IdentityFrom(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := contextkeys.Identity(ctx).(*auth.Identity)
	return identity, ok && identity != nil
}

// MustIdentity returns the attached identity and panics when there is none.
// Handlers behind Handler can rely on it.
func MustIdentity(ctx context.Context) *auth.Identity {
	identity, ok := IdentityFrom(ctx)
	if !ok {
		panic(auth.ErrNoIdentity)
	}
	return identity
}
