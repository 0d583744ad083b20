package sso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOAuth2Config() ProviderConfig {
	return ProviderConfig{
		Name:         "acme",
		Type:         ProviderTypeOAuth2,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://auth.example.com/auth/acme/callback",
		Scopes:       []string{"profile", "email"},
		AuthURL:      "https://idp.example.com/authorize",
		TokenURL:     "https://idp.example.com/token",
		UserInfoURL:  "https://idp.example.com/userinfo",
	}
}

func TestProviderConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ProviderConfig)
		errorMsg string
	}{
		{"valid", func(c *ProviderConfig) {}, ""},
		{"missing name", func(c *ProviderConfig) { c.Name = "" }, "provider name is required"},
		{"missing client_id", func(c *ProviderConfig) { c.ClientID = "" }, "client_id is required"},
		{"missing client_secret", func(c *ProviderConfig) { c.ClientSecret = "" }, "client_secret is required"},
		{"missing redirect_url", func(c *ProviderConfig) { c.RedirectURL = "" }, "redirect_url is required"},
		{"missing scopes", func(c *ProviderConfig) { c.Scopes = nil }, "scopes are required"},
		{"missing auth_url", func(c *ProviderConfig) { c.AuthURL = "" }, "auth_url is required"},
		{"missing token_url", func(c *ProviderConfig) { c.TokenURL = "" }, "token_url is required"},
		{"missing userinfo_url", func(c *ProviderConfig) { c.UserInfoURL = "" }, "userinfo_url is required"},
		{"oidc without issuer", func(c *ProviderConfig) { c.Type = ProviderTypeOIDC }, "issuer_url is required"},
		{"oidc without openid scope", func(c *ProviderConfig) {
			c.Type = ProviderTypeOIDC
			c.IssuerURL = "https://idp.example.com"
		}, "'openid' scope is required"},
		{"saml", func(c *ProviderConfig) { c.Type = "saml" }, "unsupported provider type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validOAuth2Config()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestGetPresetConfig(t *testing.T) {
	for _, name := range []ProviderName{ProviderGoogle, ProviderOkta, ProviderAzureAD, ProviderGitHub} {
		t.Run(string(name), func(t *testing.T) {
			preset, err := GetPresetConfig(name)
			require.NoError(t, err)
			assert.NotEmpty(t, preset.Scopes)
			assert.NotEmpty(t, preset.AttributeMapping.Subject)
		})
	}

	_, err := GetPresetConfig("myspace")
	assert.Error(t, err)
}

func TestApplyPreset(t *testing.T) {
	cfg, err := applyPreset(ProviderConfig{
		Preset:       ProviderGitHub,
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "https://auth.example.com/auth/github/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "github", cfg.Name)
	assert.Equal(t, ProviderTypeOAuth2, cfg.Type)
	assert.Equal(t, "https://api.github.com/user", cfg.UserInfoURL)
	assert.Equal(t, "id", cfg.AttributeMapping.Subject)
	assert.NoError(t, cfg.Validate())

	custom, err := applyPreset(ProviderConfig{
		Preset: ProviderGoogle,
		Name:   "corp-google",
		Scopes: []string{"openid", "email"},
	})
	require.NoError(t, err)
	assert.Equal(t, "corp-google", custom.Name)
	assert.Equal(t, []string{"openid", "email"}, custom.Scopes)
	assert.Equal(t, "https://accounts.google.com", custom.IssuerURL)
}

func TestMapProfile(t *testing.T) {
	profile, err := mapProfile("github", map[string]interface{}{
		"id":    float64(583231),
		"email": " octocat@example.com ",
		"name":  "The Octocat",
	}, AttributeMap{Subject: "id", Email: "email", Name: "name"})
	require.NoError(t, err)
	assert.Equal(t, "583231", profile.Subject)
	assert.Equal(t, "octocat@example.com", profile.Email)
	assert.False(t, profile.EmailVerified)

	profile, err = mapProfile("okta", map[string]interface{}{
		"sub":            "00u1",
		"email":          "a@example.com",
		"email_verified": "true",
	}, AttributeMap{})
	require.NoError(t, err)
	assert.True(t, profile.EmailVerified)

	_, err = mapProfile("okta", map[string]interface{}{"email": "a@example.com"}, AttributeMap{})
	assert.Error(t, err)
	_, err = mapProfile("okta", map[string]interface{}{"sub": "00u1"}, AttributeMap{})
	assert.Error(t, err)
}
