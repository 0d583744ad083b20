package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

// OAuth2Provider implements a plain OAuth2 provider that exposes a userinfo
// JSON document
type OAuth2Provider struct {
	config       ProviderConfig
	oauth2Config *oauth2.Config
}

// NewOAuth2Provider creates a new OAuth2 provider
func NewOAuth2Provider(config ProviderConfig) (*OAuth2Provider, error) {
	if config.UserInfoURL == "" {
		return nil, fmt.Errorf("userinfo_url is required")
	}

	return &OAuth2Provider{
		config: config,
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.AuthURL,
				TokenURL: config.TokenURL,
			},
			RedirectURL: config.RedirectURL,
			Scopes:      config.Scopes,
		},
	}, nil
}

func (p *OAuth2Provider) Name() string {
	return p.config.Name
}

func (p *OAuth2Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange redeems code and reads the userinfo endpoint with the token
func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (*auth.ExternalProfile, error) {
	if code == "" {
		return nil, auth.Validation("missing authorization code")
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(err)
	}

	client := p.oauth2Config.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, auth.Internal("failed to build userinfo request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, auth.Transient("identity provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, auth.Unauthorized("identity provider rejected the login").
			WithCause(fmt.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var userInfo map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, auth.Internal("failed to decode user info", err)
	}
	return mapProfile(p.config.Name, userInfo, p.config.AttributeMapping)
}

// exchangeError classifies a failed code exchange. A provider that answered
// with an error rejected the code; anything else is a transport failure.
func exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return auth.Unauthorized("identity provider rejected the login").WithCause(err)
	}
	return auth.Transient("identity provider unavailable", err)
}

// mapProfile extracts the mapped attributes from provider claims
func mapProfile(provider string, claims map[string]interface{}, mapping AttributeMap) (*auth.ExternalProfile, error) {
	profile := &auth.ExternalProfile{
		Provider:      provider,
		Subject:       getStringValue(claims, orDefault(mapping.Subject, "sub")),
		Email:         getStringValue(claims, orDefault(mapping.Email, "email")),
		EmailVerified: getBoolValue(claims, orDefault(mapping.EmailVerified, "email_verified")),
		Name:          getStringValue(claims, orDefault(mapping.Name, "name")),
	}

	if profile.Subject == "" {
		return nil, auth.Unauthorized("identity provider did not return a subject")
	}
	if profile.Email == "" {
		return nil, auth.Unauthorized("identity provider did not return an email")
	}
	return profile, nil
}

func orDefault(key, fallback string) string {
	if key == "" {
		return fallback
	}
	return key
}

func getStringValue(data map[string]interface{}, key string) string {
	switch val := data[key].(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		// numeric ids, as GitHub returns
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func getBoolValue(data map[string]interface{}, key string) bool {
	switch val := data[key].(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	default:
		return false
	}
}
