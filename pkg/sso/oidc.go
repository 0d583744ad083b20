package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

// OIDCProvider implements OpenID Connect SSO
type OIDCProvider struct {
	config       ProviderConfig
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider runs discovery against the issuer and creates the provider
func NewOIDCProvider(ctx context.Context, config ProviderConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCProvider{
		config:   config,
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       config.Scopes,
		},
	}, nil
}

func (p *OIDCProvider) Name() string {
	return p.config.Name
}

func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange redeems code, verifies the id_token and maps its claims. Claims
// missing from the id_token are filled from the userinfo endpoint.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*auth.ExternalProfile, error) {
	if code == "" {
		return nil, auth.Validation("missing authorization code")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, auth.Unauthorized("identity provider did not return an id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, auth.Unauthorized("invalid id_token").WithCause(err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, auth.Internal("failed to parse claims", err)
	}
	if _, ok := claims["sub"]; !ok {
		claims["sub"] = idToken.Subject
	}

	if getStringValue(claims, orDefault(p.config.AttributeMapping.Email, "email")) == "" {
		if userInfo, err := p.fetchUserInfo(ctx, oauth2Token); err == nil {
			for k, v := range userInfo {
				if _, exists := claims[k]; !exists {
					claims[k] = v
				}
			}
		}
	}

	return mapProfile(p.config.Name, claims, p.config.AttributeMapping)
}

func (p *OIDCProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]interface{}, error) {
	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, err
	}

	var claims map[string]interface{}
	if err := userInfo.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}
