package middleware

import (
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
)

// RequireRole allows the request only when the identity holds one of the
// allowed roles. It must run behind Authenticator.Handler; a request with no
// identity panics with auth.ErrNoIdentity.
func RequireRole(allowed ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := MustIdentity(r.Context())
			for _, role := range allowed {
				if identity.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteError(w, r, auth.Forbidden("insufficient role"))
		})
	}
}
