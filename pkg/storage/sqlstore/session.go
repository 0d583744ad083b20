package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// SessionStore implements auth.SessionStore on PostgreSQL or SQLite.
// Expired rows are invisible to Get and removed by PurgeExpired.
type SessionStore struct {
	db           *sql.DB
	dialect      Dialect
	queryTimeout time.Duration
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewSessionStore creates a session store. metrics may be nil.
func NewSessionStore(db *sql.DB, dialect Dialect, queryTimeout time.Duration, metrics *observability.Metrics) *SessionStore {
	return &SessionStore{
		db:           db,
		dialect:      dialect,
		queryTimeout: queryTimeout,
		metrics:      metrics,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var _ auth.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) observe(op string, start time.Time, err error) {
	s.metrics.ObserveStore(op, s.dialect.Name, start, kindLabel(err))
}

func (s *SessionStore) exec(ctx context.Context, op, query string, args ...interface{}) (affected int64, err error) {
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return 0, classify(ctx, err, auth.ErrSessionNotFound)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return 0, classify(ctx, err, auth.ErrSessionNotFound)
	}
	return affected, nil
}

func (s *SessionStore) Create(ctx context.Context, session *auth.SessionRecord) error {
	_, err := s.exec(ctx, "session.create",
		`INSERT INTO sessions (id, identity_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.IdentityID, session.CreatedAt.UTC(), session.ExpiresAt.UTC())
	return err
}

// Get returns ErrSessionNotFound for unknown and expired sessions
func (s *SessionStore) Get(ctx context.Context, id string) (session *auth.SessionRecord, err error) {
	defer func(start time.Time) { s.observe("session.get", start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var record auth.SessionRecord
	err = s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT id, identity_id, created_at, expires_at FROM sessions WHERE id = ?`), id,
	).Scan(&record.ID, &record.IdentityID, &record.CreatedAt, &record.ExpiresAt)
	if err != nil {
		return nil, classify(ctx, err, auth.ErrSessionNotFound)
	}
	if record.Expired(s.now()) {
		return nil, auth.ErrSessionNotFound
	}
	return &record, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.exec(ctx, "session.delete", `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *SessionStore) DeleteByIdentity(ctx context.Context, identityID string) error {
	_, err := s.exec(ctx, "session.delete_by_identity", `DELETE FROM sessions WHERE identity_id = ?`, identityID)
	return err
}

// PurgeExpired deletes every session past its expiry and returns the count
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.exec(ctx, "session.purge", `DELETE FROM sessions WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.SessionsPurged(n)
	return n, nil
}
