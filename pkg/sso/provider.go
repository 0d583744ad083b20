package sso

import (
	"context"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

// Provider is an identity provider reached through the authorization code flow
type Provider interface {
	// Name returns the configured provider name
	Name() string

	// AuthCodeURL returns the provider's consent URL carrying state
	AuthCodeURL(state string) string

	// Exchange redeems an authorization code and returns what the provider
	// asserts about the user
	Exchange(ctx context.Context, code string) (*auth.ExternalProfile, error)
}

// NewProvider applies any preset, validates the result and builds the
// provider. OIDC providers run discovery against the issuer.
func NewProvider(ctx context.Context, config ProviderConfig) (Provider, error) {
	if config.Preset != "" {
		merged, err := applyPreset(config)
		if err != nil {
			return nil, err
		}
		config = merged
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s provider: %w", config.Name, err)
	}

	switch config.Type {
	case ProviderTypeOAuth2:
		return NewOAuth2Provider(config)
	case ProviderTypeOIDC:
		return NewOIDCProvider(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

// GetPresetConfig returns preset configuration for well-known providers
func GetPresetConfig(providerName ProviderName) (*ProviderConfig, error) {
	switch providerName {
	case ProviderAzureAD:
		return &ProviderConfig{
			Type:   ProviderTypeOIDC,
			Scopes: []string{"openid", "profile", "email"},
			AttributeMapping: AttributeMap{
				Subject: "oid",
				Email:   "email",
				Name:    "name",
			},
		}, nil

	case ProviderOkta:
		return &ProviderConfig{
			Type:   ProviderTypeOIDC,
			Scopes: []string{"openid", "profile", "email"},
			AttributeMapping: AttributeMap{
				Subject:       "sub",
				Email:         "email",
				EmailVerified: "email_verified",
				Name:          "name",
			},
		}, nil

	case ProviderGoogle:
		return &ProviderConfig{
			Type:      ProviderTypeOIDC,
			IssuerURL: "https://accounts.google.com",
			Scopes:    []string{"openid", "profile", "email"},
			AttributeMapping: AttributeMap{
				Subject:       "sub",
				Email:         "email",
				EmailVerified: "email_verified",
				Name:          "name",
			},
		}, nil

	case ProviderGitHub:
		return &ProviderConfig{
			Type:        ProviderTypeOAuth2,
			AuthURL:     "https://github.com/login/oauth/authorize",
			TokenURL:    "https://github.com/login/oauth/access_token",
			UserInfoURL: "https://api.github.com/user",
			Scopes:      []string{"read:user", "user:email"},
			AttributeMapping: AttributeMap{
				Subject: "id",
				Email:   "email",
				Name:    "name",
			},
		}, nil

	default:
		return nil, fmt.Errorf("no preset configuration for provider: %s", providerName)
	}
}

// applyPreset fills every field config leaves empty from its preset
func applyPreset(config ProviderConfig) (ProviderConfig, error) {
	preset, err := GetPresetConfig(config.Preset)
	if err != nil {
		return config, err
	}
	if config.Name == "" {
		config.Name = string(config.Preset)
	}
	if config.Type == "" {
		config.Type = preset.Type
	}
	if config.IssuerURL == "" {
		config.IssuerURL = preset.IssuerURL
	}
	if config.AuthURL == "" {
		config.AuthURL = preset.AuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = preset.TokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = preset.UserInfoURL
	}
	if len(config.Scopes) == 0 {
		config.Scopes = preset.Scopes
	}
	if config.AttributeMapping == (AttributeMap{}) {
		config.AttributeMapping = preset.AttributeMapping
	}
	return config, nil
}
