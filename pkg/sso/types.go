package sso

import "fmt"

// ProviderType represents the SSO protocol a provider speaks
type ProviderType string

const (
	ProviderTypeOAuth2 ProviderType = "oauth2"
	ProviderTypeOIDC   ProviderType = "oidc"
)

// ProviderName names a well-known provider with a preset configuration
type ProviderName string

const (
	ProviderAzureAD ProviderName = "azuread"
	ProviderOkta    ProviderName = "okta"
	ProviderGoogle  ProviderName = "google"
	ProviderGitHub  ProviderName = "github"
)

// ProviderConfig configures one identity provider
type ProviderConfig struct {
	// Name is the path segment in /auth/{provider}/... and the provider
	// recorded on linked identities
	Name   string       `yaml:"name"`
	Type   ProviderType `yaml:"type"`
	Preset ProviderName `yaml:"preset"`

	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`

	// OIDC discovery
	IssuerURL string `yaml:"issuer_url"`

	// Plain OAuth2 endpoints
	AuthURL     string `yaml:"auth_url"`
	TokenURL    string `yaml:"token_url"`
	UserInfoURL string `yaml:"userinfo_url"`

	AttributeMapping AttributeMap `yaml:"attribute_mapping"`
}

// AttributeMap names the claims that carry each profile field
type AttributeMap struct {
	Subject       string `yaml:"subject"`
	Email         string `yaml:"email"`
	EmailVerified string `yaml:"email_verified"`
	Name          string `yaml:"name"`
}

// Validate checks the fields the provider type needs
func (c *ProviderConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}

	switch c.Type {
	case ProviderTypeOIDC:
		if c.IssuerURL == "" {
			return fmt.Errorf("issuer_url is required")
		}
		hasOpenID := false
		for _, scope := range c.Scopes {
			if scope == "openid" {
				hasOpenID = true
				break
			}
		}
		if !hasOpenID {
			return fmt.Errorf("'openid' scope is required for OIDC")
		}
	case ProviderTypeOAuth2:
		if c.AuthURL == "" {
			return fmt.Errorf("auth_url is required")
		}
		if c.TokenURL == "" {
			return fmt.Errorf("token_url is required")
		}
		if c.UserInfoURL == "" {
			return fmt.Errorf("userinfo_url is required")
		}
	default:
		return fmt.Errorf("unsupported provider type: %q", c.Type)
	}
	return nil
}
