package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// Open opens and pings the configured database, sizes its pool and returns
// it with its dialect
func Open(ctx context.Context, cfg storage.Config) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.Backend)
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sql.Open(dialect.Driver, cfg.URL)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("failed to open %s connection: %w", cfg.Backend, err)
	}

	maxConns := cfg.MaxConns
	if dialect.Name == storage.BackendSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY
		// and keeps :memory: databases shared.
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := storage.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("failed to ping %s: %w", cfg.Backend, err)
	}

	return db, dialect, nil
}
