package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/sso"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// validConfig returns a configuration that passes Validate
func validConfig() *Config {
	cfg := Default()
	cfg.Auth.AccessSecret = "access-secret"
	cfg.Auth.RefreshSecret = "refresh-secret"
	cfg.Auth.SessionSecret = "session-secret"
	return cfg
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "custom")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_LIST", " a, b ,,c ")

	assert.Equal(t, "custom", getEnv("TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("TEST_UNSET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_UNSET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("TEST_UNSET", []string{"x"}))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, string(auth.StrategySession), cfg.Auth.Strategy)
	assert.Equal(t, string(auth.RotationAccessOnly), cfg.Auth.Rotation)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, auth.DefaultHashCost, cfg.Auth.HashCost)
	assert.Equal(t, storage.BackendSQLite, cfg.Storage.Backend)
	assert.Empty(t, cfg.Auth.AccessSecret)

	// no secrets by default
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, auth.IsKind(err, auth.KindFatal))
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("GATEHOUSE_ENV", "production")
	t.Setenv("GATEHOUSE_PORT", "8443")
	t.Setenv("GATEHOUSE_AUTH_STRATEGY", "jwt")
	t.Setenv("GATEHOUSE_ACCESS_TOKEN_SECRET", "a-secret")
	t.Setenv("GATEHOUSE_REFRESH_TOKEN_SECRET", "r-secret")
	t.Setenv("GATEHOUSE_SESSION_SECRET", "s-secret")
	t.Setenv("GATEHOUSE_ACCESS_TOKEN_TTL", "15m")
	t.Setenv("GATEHOUSE_REFRESH_ROTATION", "full")
	t.Setenv("GATEHOUSE_BCRYPT_COST", "12")
	t.Setenv("GATEHOUSE_STORAGE_BACKEND", "postgres")
	t.Setenv("GATEHOUSE_DATABASE_URL", "postgres://localhost/gatehouse")
	t.Setenv("GATEHOUSE_SESSION_BACKEND", "redis")
	t.Setenv("GATEHOUSE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("GATEHOUSE_CORS_ORIGINS", "https://app.example.com,https://admin.example.com")
	t.Setenv("GATEHOUSE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "8443", cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 12, cfg.Auth.HashCost)
	assert.Equal(t, storage.BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, storage.SessionBackendRedis, cfg.Storage.SessionBackend)
	assert.Equal(t, observability.DebugLevel, cfg.LogLevel())

	engine := cfg.EngineConfig()
	assert.Equal(t, auth.StrategyJWT, engine.Strategy)
	assert.Equal(t, auth.RotationFull, engine.Rotation)
	assert.Equal(t, "a-secret", engine.Tokens.AccessSecret)
	assert.True(t, engine.Cookies.Production)
	assert.Equal(t, []byte("s-secret"), engine.Cookies.Secret)
}

func TestLoadConfig_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: development
server:
  port: "7000"
  health_port: "7001"
auth:
  strategy: federated-session
  access_secret: file-access
  refresh_secret: file-refresh
  session_secret: file-session
  session_ttl: 48h
storage:
  backend: sqlite
  url: "file::memory:"
  query_timeout: 2s
  cache_size: 1000
federation:
  provider:
    preset: google
    client_id: file-client
    redirect_url: https://auth.example.com/auth/google/callback
  success_path: /welcome
rate_limit:
  requests: 3
  window: 30s
`), 0o600))

	t.Setenv("GATEHOUSE_CONFIG_FILE", path)
	t.Setenv("GATEHOUSE_PORT", "7100")
	t.Setenv("GATEHOUSE_OAUTH_CLIENT_SECRET", "env-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, "7001", cfg.Server.HealthPort)
	assert.Equal(t, 48*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 2*time.Second, cfg.Storage.QueryTimeout)
	assert.Equal(t, 1000, cfg.Storage.CacheSize)
	assert.Equal(t, time.Minute, cfg.Storage.CacheTTL, "keys missing from the file keep defaults")
	assert.Equal(t, sso.ProviderGoogle, cfg.Federation.Provider.Preset)
	assert.Equal(t, "file-client", cfg.Federation.Provider.ClientID)
	assert.Equal(t, "env-secret", cfg.Federation.Provider.ClientSecret)
	assert.Equal(t, "/welcome", cfg.Federation.SuccessPath)
	assert.Equal(t, 3, cfg.RateLimit.Requests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadConfig_FileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("GATEHOUSE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := LoadConfig()
		require.Error(t, err)
		assert.True(t, auth.IsKind(err, auth.KindFatal))
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
		t.Setenv("GATEHOUSE_CONFIG_FILE", path)
		_, err := LoadConfig()
		require.Error(t, err)
		assert.True(t, auth.IsKind(err, auth.KindFatal))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"unknown strategy", func(c *Config) { c.Auth.Strategy = "magic" }, "unknown authentication strategy"},
		{"unknown rotation", func(c *Config) { c.Auth.Rotation = "sometimes" }, "unknown refresh rotation policy"},
		{"missing access secret", func(c *Config) { c.Auth.AccessSecret = "" }, "access token secret is required"},
		{"missing refresh secret", func(c *Config) { c.Auth.RefreshSecret = "" }, "refresh token secret is required"},
		{"identical secrets", func(c *Config) { c.Auth.RefreshSecret = c.Auth.AccessSecret }, "must differ"},
		{"missing session secret", func(c *Config) { c.Auth.SessionSecret = "" }, "session secret is required"},
		{"cost too low", func(c *Config) { c.Auth.HashCost = 3 }, "bcrypt cost"},
		{"cost too high", func(c *Config) { c.Auth.HashCost = 32 }, "bcrypt cost"},
		{"zero session ttl", func(c *Config) { c.Auth.SessionTTL = 0 }, "lifetimes must be positive"},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "mongo" }, "unknown storage backend"},
		{"redis sessions without url", func(c *Config) { c.Storage.SessionBackend = storage.SessionBackendRedis }, "redis URL is required"},
		{
			"federated without provider",
			func(c *Config) { c.Auth.Strategy = string(auth.StrategyFederatedJWT) },
			"provider name or preset",
		},
		{
			"federated without client secret",
			func(c *Config) {
				c.Auth.Strategy = string(auth.StrategyFederatedSession)
				c.Federation.Provider = sso.ProviderConfig{Preset: sso.ProviderGoogle, ClientID: "id"}
			},
			"client id and secret",
		},
		{
			"federated with credentials",
			func(c *Config) {
				c.Auth.Strategy = string(auth.StrategyFederatedSession)
				c.Federation.Provider = sso.ProviderConfig{Preset: sso.ProviderGoogle, ClientID: "id", ClientSecret: "secret"}
			},
			"",
		},
		{"unknown rate limit backend", func(c *Config) { c.RateLimit.Backend = "memcached" }, "invalid rate limit backend"},
		{"redis rate limit without url", func(c *Config) { c.RateLimit.Backend = "redis" }, "needs a redis URL"},
		{"rate limit disabled skips checks", func(c *Config) { c.RateLimit = RateLimitConfig{} }, ""},
		{"unknown log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "unknown log level"},
		{
			"otel without endpoint",
			func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			"endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, auth.IsKind(err, auth.KindFatal), "kind = %v", auth.KindOf(err))
		})
	}
}

func TestOTelConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Observability.OTelEnabled = true
	cfg.Observability.OTelSampleRatio = 0.5

	otel := cfg.OTelConfig()
	assert.True(t, otel.Enabled)
	assert.Equal(t, "gatehouse", otel.ServiceName)
	assert.Equal(t, "localhost:4317", otel.Endpoint)
	assert.Equal(t, 0.5, otel.SampleRatio)
}
