// Package sqlstore implements auth.IdentityStore and auth.SessionStore on
// database/sql, for PostgreSQL (lib/pq) and SQLite (mattn/go-sqlite3).
//
//	db, dialect, err := sqlstore.Open(ctx, cfg)
//	if err := sqlstore.Migrate(ctx, db); err != nil { ... }
//	identities := sqlstore.NewIdentityStore(db, dialect, cfg.QueryTimeout, metrics)
//
// Every call runs under its own query timeout. Driver errors are classified:
// unique violations become auth.ErrDuplicateIdentity, deadlines and
// connection failures become Transient and everything else Internal.
package sqlstore
