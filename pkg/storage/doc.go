// Package storage holds the configuration shared by the identity and session
// store backends.
//
// # Backends
//
// The subpackages implement auth.IdentityStore and auth.SessionStore:
//
//   - sqlstore: PostgreSQL (lib/pq) or SQLite (mattn/go-sqlite3) for both
//     identities and sessions, with PurgeExpired for the cleanup job
//   - redisstore: sessions in Redis with native key expiry
//   - cache: an expirable LRU in front of any session store
//
// # Configuration
//
//	cfg := storage.DefaultConfig()
//	cfg.Backend = storage.BackendPostgres
//	cfg.URL = "postgres://localhost/gatehouse?sslmode=disable"
//	cfg.SessionBackend = storage.SessionBackendRedis
//	cfg.RedisURL = "redis://localhost:6379/0"
//
// # Timeouts
//
// Every store call runs under Config.QueryTimeout. A call that runs out of
// time fails with a Transient error, never NotFound, so callers do not mistake
// a slow database for a missing session.
package storage
