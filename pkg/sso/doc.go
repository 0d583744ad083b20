// Package sso connects external identity providers to the federation
// adapter.
//
// Two provider types are supported:
//
//   - OIDCProvider: discovery and id_token verification with coreos/go-oidc
//   - OAuth2Provider: the authorization code flow with golang.org/x/oauth2
//     and a userinfo JSON document
//
// Presets fill endpoints, scopes and claim names for google, okta, azuread
// and github:
//
//	provider, err := sso.NewProvider(ctx, sso.ProviderConfig{
//		Preset:       sso.ProviderGoogle,
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		RedirectURL:  "https://auth.example.com/auth/google/callback",
//	})
//
// # Login Flow
//
//	GET /auth/{provider}/login     state cookie, 302 to the provider
//	GET /auth/{provider}/callback  state check, code exchange, resolve or
//	                               create the identity, proof cookies, 302
//	GET /auth/{provider}/success   {"success": true, ...}
//
// The callback establishes the login with the engine strategy, which must be
// one of the federated strategies so that the proof travels in cookies.
package sso
