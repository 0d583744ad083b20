package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "mysql" }, "unknown storage backend"},
		{"missing url", func(c *Config) { c.URL = "" }, "storage URL is required"},
		{"unknown session backend", func(c *Config) { c.SessionBackend = "memcached" }, "unknown session backend"},
		{"redis without url", func(c *Config) { c.SessionBackend = SessionBackendRedis }, "redis URL is required"},
		{"zero query timeout", func(c *Config) { c.QueryTimeout = 0 }, "query timeout must be positive"},
		{"negative cache", func(c *Config) { c.CacheSize = -1 }, "cache size must not be negative"},
		{"cache without ttl", func(c *Config) { c.CacheSize = 10; c.CacheTTL = 0 }, "cache TTL must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.True(t, ok)

	ctx2, cancel2 := WithTimeout(context.Background(), 0)
	defer cancel2()
	_, ok = ctx2.Deadline()
	assert.False(t, ok)
}
