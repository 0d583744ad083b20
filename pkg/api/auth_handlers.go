package api

import (
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
)

// register handles POST /auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	identity, err := s.engine.Accounts.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		s.countAttempt(auth.ActionRegister, err)
		s.audit(r, auth.ActionRegister, "", err)
		httputil.WriteError(w, r, err)
		return
	}

	proof, err := s.engine.Strategy.Establish(r.Context(), identity)
	s.countAttempt(auth.ActionRegister, err)
	s.audit(r, auth.ActionRegister, identity.ID, err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.SetCookies(w, proof.Cookies)
	httputil.WriteSuccess(w, http.StatusCreated, "registered", newAuthResponse(identity, proof, false))
}

// login handles POST /auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	identity, err := s.engine.Accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.countAttempt(auth.ActionLogin, err)
		s.audit(r, auth.ActionLogin, "", err)
		httputil.WriteError(w, r, err)
		return
	}

	proof, err := s.engine.Strategy.Establish(r.Context(), identity)
	s.countAttempt(auth.ActionLogin, err)
	s.audit(r, auth.ActionLogin, identity.ID, err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.SetCookies(w, proof.Cookies)
	httputil.WriteSuccess(w, http.StatusOK, "logged in", newAuthResponse(identity, proof, true))
}

// refresh handles POST /auth/refresh. Only token strategies refresh; the
// session strategies answer as if the route did not exist.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	refresher, ok := s.engine.Strategy.(auth.Refresher)
	if !ok {
		httputil.WriteError(w, r, auth.NotFound("route not found"))
		return
	}

	var req refreshRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	proof, err := refresher.Refresh(r.Context(), r, req.RefreshToken)
	policy := ""
	if s.engine.Ledger != nil {
		policy = string(s.engine.Ledger.Policy())
	}
	if err != nil {
		s.metrics.Refresh(policy, auth.KindOf(err).String())
		s.audit(r, auth.ActionRefresh, "", err)
		httputil.WriteError(w, r, err)
		return
	}
	s.metrics.Refresh(policy, auth.StatusSuccess)
	s.audit(r, auth.ActionRefresh, "", nil)

	httputil.SetCookies(w, proof.Cookies)
	var data interface{}
	if proof.Tokens != nil {
		data = proof.Tokens
	}
	httputil.WriteSuccess(w, http.StatusOK, "token refreshed", data)
}

// logout handles POST /auth/logout. It succeeds for anonymous requests so a
// client can always clear its local state. Token strategies also accept a
// body {refreshToken} for clients whose access token already expired.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	if refresher, ok := s.engine.Strategy.(auth.Refresher); ok && identity == nil {
		var req refreshRequest
		if err := httputil.ParseJSON(r, &req); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if err := refresher.Revoke(r.Context(), req.RefreshToken); err != nil {
			s.countAttempt(auth.ActionLogout, err)
			s.audit(r, auth.ActionLogout, "", err)
			httputil.WriteError(w, r, err)
			return
		}
	}

	proof, err := s.engine.Strategy.Clear(r.Context(), r, identity)
	identityID := ""
	if identity != nil {
		identityID = identity.ID
	}
	s.countAttempt(auth.ActionLogout, err)
	s.audit(r, auth.ActionLogout, identityID, err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.SetCookies(w, proof.Cookies)
	httputil.WriteSuccess(w, http.StatusOK, "logged out", nil)
}
