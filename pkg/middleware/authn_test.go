package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// fixedStrategy resolves every request to result
type fixedStrategy struct {
	result auth.Result
}

func (s *fixedStrategy) Name() auth.StrategyName { return "fixed" }
func (s *fixedStrategy) Federated() bool { return false }

func (s *fixedStrategy) Establish(ctx context.Context, identity *auth.Identity) (*auth.Proof, error) {
	return &auth.Proof{}, nil
}

func (s *fixedStrategy) Resolve(r *http.Request) auth.Result { return s.result }

func (s *fixedStrategy) Clear(ctx context.Context, r *http.Request, identity *auth.Identity) (*auth.Proof, error) {
	return &auth.Proof{}, nil
}

var alice = &auth.Identity{ID: "id-alice", Email: "alice@example.com", Name: "Alice", Role: auth.RoleUser}

// echoIdentity reports the identity it finds in the context
func echoIdentity(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			httputil.WriteSuccess(w, http.StatusOK, "anonymous", nil)
			return
		}
		assert.Equal(t, identity.ID, contextkeys.GetIdentityID(r.Context()))
		httputil.WriteSuccess(w, http.StatusOK, identity.ID, nil)
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) httputil.Envelope {
	t.Helper()
	var env httputil.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env
}

func TestAuthenticator_Handler(t *testing.T) {
	tests := []struct {
		name    string
		result  auth.Result
		status  int
		code    string
		message string
	}{
		{
			name:    "authenticated",
			result:  auth.Authenticated{Identity: alice},
			status:  http.StatusOK,
			message: "id-alice",
		},
		{
			name:    "no credential",
			result:  auth.Rejected{Reason: auth.RejectNoCredential},
			status:  http.StatusUnauthorized,
			code:    "UNAUTHORIZED",
			message: "authentication required",
		},
		{
			name:    "expired",
			result:  auth.Rejected{Reason: auth.RejectExpired},
			status:  http.StatusUnauthorized,
			code:    "UNAUTHORIZED",
			message: "credential expired",
		},
		{
			name:    "malformed",
			result:  auth.Rejected{Reason: auth.RejectMalformed},
			status:  http.StatusUnauthorized,
			code:    "UNAUTHORIZED",
			message: "malformed credential",
		},
		{
			name:   "transient store failure",
			result: auth.SystemError{Err: auth.Transient("database timeout", context.DeadlineExceeded)},
			status: http.StatusServiceUnavailable,
			code:   "TRANSIENT",
		},
		{
			name:   "internal failure",
			result: auth.SystemError{Err: errors.New("boom")},
			status: http.StatusInternalServerError,
			code:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn := NewAuthenticator(&fixedStrategy{result: tt.result}, nil)
			w := httptest.NewRecorder()
			authn.Handler(echoIdentity(t)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me", nil))

			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			assert.Equal(t, tt.code, env.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Message)
			}
			assert.NotContains(t, env.Message, "boom")
		})
	}
}

func TestAuthenticator_CountsRejections(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	authn := NewAuthenticator(&fixedStrategy{result: auth.Rejected{Reason: auth.RejectExpired}}, metrics)

	for i := 0; i < 3; i++ {
		authn.Handler(echoIdentity(t)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.AuthRejectionsTotal.WithLabelValues("expired")))
}

func TestAuthenticator_Optional(t *testing.T) {
	t.Run("rejected passes through anonymously", func(t *testing.T) {
		authn := NewAuthenticator(&fixedStrategy{result: auth.Rejected{Reason: auth.RejectInvalid}}, nil)
		w := httptest.NewRecorder()
		authn.Optional(echoIdentity(t)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "anonymous", decode(t, w).Message)
	})

	t.Run("authenticated attaches identity", func(t *testing.T) {
		authn := NewAuthenticator(&fixedStrategy{result: auth.Authenticated{Identity: alice}}, nil)
		w := httptest.NewRecorder()
		authn.Optional(echoIdentity(t)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		assert.Equal(t, "id-alice", decode(t, w).Message)
	})

	t.Run("system error still fails", func(t *testing.T) {
		authn := NewAuthenticator(&fixedStrategy{result: auth.SystemError{Err: auth.Transient("redis down", nil)}}, nil)
		w := httptest.NewRecorder()
		authn.Optional(echoIdentity(t)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestMustIdentity(t *testing.T) {
	assert.PanicsWithValue(t, auth.ErrNoIdentity, func() {
		MustIdentity(context.Background())
	})

	ctx := WithIdentity(context.Background(), alice)
	assert.Same(t, alice, MustIdentity(ctx))
}
