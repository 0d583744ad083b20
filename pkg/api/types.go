package api

import "github.com/platinummonkey/gatehouse/pkg/auth"

// registerRequest is the body of POST /auth/register
type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=64"`
	Name     string `json:"name" validate:"omitempty,max=30"`
}

// loginRequest is the body of POST /auth/login
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// refreshRequest is the optional body of POST /auth/refresh and /auth/logout
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// nameRequest is the body of PATCH /users/me/name
type nameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=30"`
}

// passwordRequest is the body of PATCH /users/me/password
type passwordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=64"`
}

// roleRequest is the body of PATCH /users/{id}/role
type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=USER ADMIN"`
}

// authResponse is the data of a register or login response. The tokens are
// set only for the bearer strategy; cookie strategies carry proof in cookies.
type authResponse struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         auth.Role `json:"role,omitempty"`
	AccessToken  string    `json:"accessToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
}

// roleResponse is the data of a role change response
type roleResponse struct {
	ID   string    `json:"id"`
	Role auth.Role `json:"role"`
}

func newAuthResponse(identity *auth.Identity, proof *auth.Proof, withRole bool) authResponse {
	resp := authResponse{
		UserID: identity.ID,
		Email:  identity.Email,
		Name:   identity.Name,
	}
	if withRole {
		resp.Role = identity.Role
	}
	if proof != nil && proof.Tokens != nil {
		resp.AccessToken = proof.Tokens.AccessToken
		resp.RefreshToken = proof.Tokens.RefreshToken
	}
	return resp
}
