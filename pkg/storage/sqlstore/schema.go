package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id               VARCHAR(36) PRIMARY KEY,
		email            VARCHAR(320) NOT NULL UNIQUE,
		name             VARCHAR(64) NOT NULL,
		credential_hash  VARCHAR(100),
		role             VARCHAR(16) NOT NULL DEFAULT 'USER' CHECK (role IN ('USER', 'ADMIN')),
		provider         VARCHAR(64),
		provider_subject VARCHAR(255),
		refresh_token    TEXT,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		CHECK (credential_hash IS NOT NULL OR (provider IS NOT NULL AND provider_subject IS NOT NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_provider
		ON identities (provider, provider_subject)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id          VARCHAR(64) PRIMARY KEY,
		identity_id VARCHAR(36) NOT NULL,
		created_at  TIMESTAMP NOT NULL,
		expires_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_identity ON sessions (identity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions (expires_at)`,
}

// Migrate creates the identities and sessions tables when they are missing.
// Both supported dialects accept the same DDL.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
