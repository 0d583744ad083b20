package storage

import (
	"context"
	"fmt"
	"time"
)

// Backend names for the identity database
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Session backend names
const (
	SessionBackendSQL   = "sql"
	SessionBackendRedis = "redis"
)

// Config for the identity and session stores
type Config struct {
	Backend string `yaml:"backend"` // "postgres" or "sqlite"
	URL     string `yaml:"url"`

	// Connection pool
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`

	// QueryTimeout bounds every single store call
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// Session store
	SessionBackend  string `yaml:"session_backend"`   // "sql" or "redis"
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`

	// Session resolve cache, disabled when CacheSize is 0
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Backend:         BackendSQLite,
		URL:             "file:gatehouse.db?_busy_timeout=5000",
		MaxConns:        20,
		MinConns:        2,
		ConnectTimeout:  10 * time.Second,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		QueryTimeout:    5 * time.Second,
		SessionBackend:  SessionBackendSQL,
		RedisDB:         0,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
		CacheSize:       0,
		CacheTTL:        time.Minute,
	}
}

// Validate checks the backend names and the values that must be positive
func (c Config) Validate() error {
	switch c.Backend {
	case BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	if c.URL == "" {
		return fmt.Errorf("storage URL is required")
	}
	switch c.SessionBackend {
	case SessionBackendSQL:
	case SessionBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	if c.CacheSize > 0 && c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive when the cache is enabled")
	}
	return nil
}

// WithTimeout bounds ctx by d. A non-positive d leaves ctx unbounded.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
