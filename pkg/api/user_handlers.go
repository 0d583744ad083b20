package api

import (
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
)

// me handles GET /users/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustIdentity(r.Context())

	current, err := s.engine.Accounts.Me(r.Context(), identity.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "", current.Public())
}

// updateName handles PATCH /users/me/name
func (s *Server) updateName(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustIdentity(r.Context())

	var req nameRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	updated, err := s.engine.Accounts.ChangeName(r.Context(), identity.ID, req.Name)
	s.audit(r, auth.ActionNameChange, identity.ID, err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "name updated", updated.Public())
}

// updatePassword handles PATCH /users/me/password. Every session and refresh
// token of the account is revoked, including the caller's.
func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustIdentity(r.Context())

	var req passwordRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	err := s.engine.Accounts.ChangePassword(r.Context(), identity.ID, req.OldPassword, req.NewPassword)
	s.audit(r, auth.ActionPasswordChange, identity.ID, err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	s.clearProof(w, r, identity)
	httputil.WriteSuccess(w, http.StatusOK, "password updated, sign in again", nil)
}

// deleteMe handles DELETE /users/me
func (s *Server) deleteMe(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustIdentity(r.Context())

	err := s.engine.Accounts.DeleteAccount(r.Context(), identity.ID)
	s.audit(r, auth.ActionUserDelete, identity.ID, err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	s.clearProof(w, r, identity)
	httputil.WriteSuccess(w, http.StatusOK, "account deleted", nil)
}

// listUsers handles GET /users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	identities, err := s.engine.Accounts.ListUsers(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	users := make([]auth.PublicIdentity, 0, len(identities))
	for _, identity := range identities {
		users = append(users, identity.Public())
	}
	httputil.WriteSuccess(w, http.StatusOK, "", users)
}

// updateRole handles PATCH /users/{id}/role
func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustIdentity(r.Context())

	targetID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req roleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	updated, err := s.engine.Accounts.ChangeRole(r.Context(), actor.ID, targetID, role)
	status, reason := auth.StatusSuccess, ""
	if err != nil {
		status, reason = auth.StatusFailure, auth.MessageOf(err)
		if auth.IsKind(err, auth.KindValidation) {
			status = auth.StatusDenied
		}
	}
	_ = s.engine.Audit.Log(r.Context(), &auth.AuditEvent{
		Action:     auth.ActionRoleChange,
		IdentityID: actor.ID,
		TargetID:   targetID,
		IPAddress:  auth.ClientIP(r),
		UserAgent:  r.UserAgent(),
		Status:     status,
		Reason:     reason,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "role updated", roleResponse{ID: updated.ID, Role: updated.Role})
}
