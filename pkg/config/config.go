package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/sso"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all application configuration
type Config struct {
	Environment string `yaml:"environment"`

	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       storage.Config      `yaml:"storage"`
	Federation    FederationConfig    `yaml:"federation"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// CORSOrigins lists the origins allowed to send credentialed requests
	CORSOrigins []string `yaml:"cors_origins"`
}

// AuthConfig selects the strategy and holds its secrets and lifetimes
type AuthConfig struct {
	Strategy string `yaml:"strategy"`

	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Issuer        string        `yaml:"issuer"`
	Rotation      string        `yaml:"rotation"`

	HashCost        int `yaml:"hash_cost"`
	HashConcurrency int `yaml:"hash_concurrency"`

	SessionTTL    time.Duration `yaml:"session_ttl"`
	SessionSecret string        `yaml:"session_secret"`
	CookieDomain  string        `yaml:"cookie_domain"`

	// PurgeSchedule is the cron spec of the expired session purge
	PurgeSchedule string `yaml:"purge_schedule"`
}

// FederationConfig configures the identity provider of a federated strategy
type FederationConfig struct {
	Provider    sso.ProviderConfig `yaml:"provider"`
	SuccessPath string             `yaml:"success_path"`
}

// RateLimitConfig limits the credential endpoints per client address
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
	// Backend is "memory" or "redis"
	Backend string `yaml:"backend"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when neither a file nor the
// environment sets a value. Secrets have no defaults.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Auth: AuthConfig{
			Strategy:      string(auth.StrategySession),
			AccessTTL:     auth.DefaultAccessTokenTTL,
			RefreshTTL:    auth.DefaultRefreshTokenTTL,
			Issuer:        "gatehouse",
			Rotation:      string(auth.RotationAccessOnly),
			HashCost:      auth.DefaultHashCost,
			SessionTTL:    auth.DefaultSessionTTL,
			PurgeSchedule: "@every 15m",
		},
		Storage: storage.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 10,
			Window:   time.Minute,
			Burst:    5,
			Backend:  "memory",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "gatehouse",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file named by
// GATEHOUSE_CONFIG_FILE when set, and GATEHOUSE_* environment variables, in
// that order of precedence, then validates it
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("GATEHOUSE_CONFIG_FILE", ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return auth.Fatal("failed to read config file", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return auth.Fatal(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("GATEHOUSE_ENV", c.Environment)
	c.applyServerEnv()
	c.applyAuthEnv()
	c.applyStorageEnv()
	c.applyFederationEnv()
	c.applyRateLimitEnv()
	c.applyObservabilityEnv()
}

func (c *Config) applyServerEnv() {
	s := &c.Server
	s.Host = getEnv("GATEHOUSE_HOST", s.Host)
	s.Port = getEnv("GATEHOUSE_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("GATEHOUSE_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("GATEHOUSE_HEALTH_PORT", s.HealthPort)
	s.CORSOrigins = getEnvList("GATEHOUSE_CORS_ORIGINS", s.CORSOrigins)
}

func (c *Config) applyAuthEnv() {
	a := &c.Auth
	a.Strategy = getEnv("GATEHOUSE_AUTH_STRATEGY", a.Strategy)
	a.AccessSecret = getEnv("GATEHOUSE_ACCESS_TOKEN_SECRET", a.AccessSecret)
	a.RefreshSecret = getEnv("GATEHOUSE_REFRESH_TOKEN_SECRET", a.RefreshSecret)
	a.AccessTTL = getEnvDuration("GATEHOUSE_ACCESS_TOKEN_TTL", a.AccessTTL)
	a.RefreshTTL = getEnvDuration("GATEHOUSE_REFRESH_TOKEN_TTL", a.RefreshTTL)
	a.Issuer = getEnv("GATEHOUSE_TOKEN_ISSUER", a.Issuer)
	a.Rotation = getEnv("GATEHOUSE_REFRESH_ROTATION", a.Rotation)
	a.HashCost = getEnvInt("GATEHOUSE_BCRYPT_COST", a.HashCost)
	a.HashConcurrency = getEnvInt("GATEHOUSE_HASH_CONCURRENCY", a.HashConcurrency)
	a.SessionTTL = getEnvDuration("GATEHOUSE_SESSION_TTL", a.SessionTTL)
	a.SessionSecret = getEnv("GATEHOUSE_SESSION_SECRET", a.SessionSecret)
	a.CookieDomain = getEnv("GATEHOUSE_COOKIE_DOMAIN", a.CookieDomain)
	a.PurgeSchedule = getEnv("GATEHOUSE_SESSION_PURGE_SCHEDULE", a.PurgeSchedule)
}

func (c *Config) applyStorageEnv() {
	s := &c.Storage
	s.Backend = getEnv("GATEHOUSE_STORAGE_BACKEND", s.Backend)
	s.URL = getEnv("GATEHOUSE_DATABASE_URL", s.URL)
	s.MaxConns = getEnvInt("GATEHOUSE_DB_MAX_CONNS", s.MaxConns)
	s.MinConns = getEnvInt("GATEHOUSE_DB_MIN_CONNS", s.MinConns)
	s.ConnectTimeout = getEnvDuration("GATEHOUSE_DB_CONNECT_TIMEOUT", s.ConnectTimeout)
	s.ConnMaxLifetime = getEnvDuration("GATEHOUSE_DB_CONN_MAX_LIFETIME", s.ConnMaxLifetime)
	s.ConnMaxIdleTime = getEnvDuration("GATEHOUSE_DB_CONN_MAX_IDLE_TIME", s.ConnMaxIdleTime)
	s.QueryTimeout = getEnvDuration("GATEHOUSE_QUERY_TIMEOUT", s.QueryTimeout)

	s.SessionBackend = getEnv("GATEHOUSE_SESSION_BACKEND", s.SessionBackend)
	s.RedisURL = getEnv("GATEHOUSE_REDIS_URL", s.RedisURL)
	s.RedisPassword = getEnv("GATEHOUSE_REDIS_PASSWORD", s.RedisPassword)
	s.RedisDB = getEnvInt("GATEHOUSE_REDIS_DB", s.RedisDB)
	s.RedisMaxRetries = getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", s.RedisMaxRetries)
	s.RedisPoolSize = getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", s.RedisPoolSize)

	s.CacheSize = getEnvInt("GATEHOUSE_SESSION_CACHE_SIZE", s.CacheSize)
	s.CacheTTL = getEnvDuration("GATEHOUSE_SESSION_CACHE_TTL", s.CacheTTL)
}

func (c *Config) applyFederationEnv() {
	p := &c.Federation.Provider
	p.Name = getEnv("GATEHOUSE_OAUTH_PROVIDER", p.Name)
	p.Type = sso.ProviderType(getEnv("GATEHOUSE_OAUTH_TYPE", string(p.Type)))
	p.Preset = sso.ProviderName(getEnv("GATEHOUSE_OAUTH_PRESET", string(p.Preset)))
	p.ClientID = getEnv("GATEHOUSE_OAUTH_CLIENT_ID", p.ClientID)
	p.ClientSecret = getEnv("GATEHOUSE_OAUTH_CLIENT_SECRET", p.ClientSecret)
	p.RedirectURL = getEnv("GATEHOUSE_OAUTH_REDIRECT_URL", p.RedirectURL)
	p.Scopes = getEnvList("GATEHOUSE_OAUTH_SCOPES", p.Scopes)
	p.IssuerURL = getEnv("GATEHOUSE_OAUTH_ISSUER_URL", p.IssuerURL)
	p.AuthURL = getEnv("GATEHOUSE_OAUTH_AUTH_URL", p.AuthURL)
	p.TokenURL = getEnv("GATEHOUSE_OAUTH_TOKEN_URL", p.TokenURL)
	p.UserInfoURL = getEnv("GATEHOUSE_OAUTH_USERINFO_URL", p.UserInfoURL)
	c.Federation.SuccessPath = getEnv("GATEHOUSE_OAUTH_SUCCESS_PATH", c.Federation.SuccessPath)
}

func (c *Config) applyRateLimitEnv() {
	r := &c.RateLimit
	r.Enabled = getEnvBool("GATEHOUSE_RATE_LIMIT_ENABLED", r.Enabled)
	r.Requests = getEnvInt("GATEHOUSE_RATE_LIMIT_REQUESTS", r.Requests)
	r.Window = getEnvDuration("GATEHOUSE_RATE_LIMIT_WINDOW", r.Window)
	r.Burst = getEnvInt("GATEHOUSE_RATE_LIMIT_BURST", r.Burst)
	r.Backend = getEnv("GATEHOUSE_RATE_LIMIT_BACKEND", r.Backend)
}

func (c *Config) applyObservabilityEnv() {
	o := &c.Observability
	o.LogLevel = getEnv("GATEHOUSE_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("GATEHOUSE_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("GATEHOUSE_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("GATEHOUSE_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("GATEHOUSE_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("GATEHOUSE_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("GATEHOUSE_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks the configuration. Every failure is of kind Fatal: the
// process must not start with it.
func (c *Config) Validate() error {
	fatal := func(format string, args ...interface{}) error {
		return auth.Fatal(fmt.Sprintf(format, args...), nil)
	}

	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fatal("invalid environment %q (must be development or production)", c.Environment)
	}

	// Server
	if c.Server.Port == "" {
		return fatal("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fatal("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fatal("server port and health port must be different")
	}

	// Auth
	strategy, err := auth.ParseStrategyName(c.Auth.Strategy)
	if err != nil {
		return err
	}
	if _, err := auth.ParseRotationPolicy(c.Auth.Rotation); err != nil {
		return err
	}
	if c.Auth.AccessSecret == "" {
		return fatal("access token secret is required")
	}
	if c.Auth.RefreshSecret == "" {
		return fatal("refresh token secret is required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fatal("access and refresh token secrets must differ")
	}
	if c.Auth.SessionSecret == "" {
		return fatal("session secret is required")
	}
	if c.Auth.HashCost < bcrypt.MinCost || c.Auth.HashCost > bcrypt.MaxCost {
		return fatal("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 || c.Auth.SessionTTL <= 0 {
		return fatal("token and session lifetimes must be positive")
	}

	// Storage
	if err := c.Storage.Validate(); err != nil {
		return auth.Fatal("invalid storage configuration", err)
	}

	// Federation
	if strategy.IsFederated() {
		p := c.Federation.Provider
		if p.Name == "" && p.Preset == "" {
			return fatal("a federated strategy needs a provider name or preset")
		}
		if p.ClientID == "" || p.ClientSecret == "" {
			return fatal("a federated strategy needs the provider client id and secret")
		}
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if c.Storage.RedisURL == "" {
				return fatal("the redis rate limit backend needs a redis URL")
			}
		default:
			return fatal("invalid rate limit backend %q (must be memory or redis)", c.RateLimit.Backend)
		}
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return fatal("rate limit requests and window must be positive")
		}
	}

	// Observability
	if _, err := observability.ParseLogLevel(c.Observability.LogLevel); err != nil {
		return auth.Fatal("invalid observability configuration", err)
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fatal("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fatal("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// IsProduction reports whether cookies must be Secure
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// LogLevel returns the parsed log level, info when it does not parse
func (c *Config) LogLevel() observability.LogLevel {
	level, _ := observability.ParseLogLevel(c.Observability.LogLevel)
	return level
}

// EngineConfig converts the auth settings for auth.NewEngine
func (c *Config) EngineConfig() auth.EngineConfig {
	strategy, _ := auth.ParseStrategyName(c.Auth.Strategy)
	rotation, _ := auth.ParseRotationPolicy(c.Auth.Rotation)
	return auth.EngineConfig{
		Strategy: strategy,
		Tokens: auth.TokenConfig{
			AccessSecret:  c.Auth.AccessSecret,
			RefreshSecret: c.Auth.RefreshSecret,
			AccessTTL:     c.Auth.AccessTTL,
			RefreshTTL:    c.Auth.RefreshTTL,
			Issuer:        c.Auth.Issuer,
		},
		Rotation:        rotation,
		HashCost:        c.Auth.HashCost,
		HashConcurrency: c.Auth.HashConcurrency,
		SessionTTL:      c.Auth.SessionTTL,
		Cookies: auth.CookiePolicy{
			Production: c.IsProduction(),
			Domain:     c.Auth.CookieDomain,
			Secret:     []byte(c.Auth.SessionSecret),
		},
	}
}

// OTelConfig converts the tracing settings for observability.InitTracing
func (c *Config) OTelConfig() observability.OTelConfig {
	o := c.Observability
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
