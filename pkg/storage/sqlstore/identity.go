package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

const identityColumns = `id, email, name, credential_hash, role, provider, provider_subject, refresh_token, created_at, updated_at`

// IdentityStore implements auth.IdentityStore on PostgreSQL or SQLite
type IdentityStore struct {
	db           *sql.DB
	dialect      Dialect
	queryTimeout time.Duration
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewIdentityStore creates an identity store. metrics may be nil.
func NewIdentityStore(db *sql.DB, dialect Dialect, queryTimeout time.Duration, metrics *observability.Metrics) *IdentityStore {
	return &IdentityStore{
		db:           db,
		dialect:      dialect,
		queryTimeout: queryTimeout,
		metrics:      metrics,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var _ auth.IdentityStore = (*IdentityStore)(nil)

func (s *IdentityStore) observe(op string, start time.Time, err error) {
	s.metrics.ObserveStore(op, s.dialect.Name, start, kindLabel(err))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIdentity(row rowScanner) (*auth.Identity, error) {
	var (
		identity                              auth.Identity
		role                                  string
		hash, provider, subject, refreshToken sql.NullString
	)
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.Name,
		&hash,
		&role,
		&provider,
		&subject,
		&refreshToken,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.CredentialHash = hash.String
	identity.Role = auth.Role(role)
	identity.Provider = provider.String
	identity.ProviderSubject = subject.String
	identity.RefreshToken = refreshToken.String
	return &identity, nil
}

// Create inserts identity, assigning an id and timestamps
func (s *IdentityStore) Create(ctx context.Context, identity *auth.Identity) (err error) {
	defer func(start time.Time) { s.observe("identity.create", start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if identity.Role == "" {
		identity.Role = auth.RoleUser
	}
	now := s.now()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	query := s.dialect.Rebind(`
		INSERT INTO identities (` + identityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.Name,
		nullString(identity.CredentialHash),
		string(identity.Role),
		nullString(identity.Provider),
		nullString(identity.ProviderSubject),
		nullString(identity.RefreshToken),
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	return classify(ctx, err, auth.ErrIdentityNotFound)
}

func (s *IdentityStore) findOne(ctx context.Context, op, where string, args ...interface{}) (identity *auth.Identity, err error) {
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := s.dialect.Rebind(`SELECT ` + identityColumns + ` FROM identities WHERE ` + where)
	identity, err = scanIdentity(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, classify(ctx, err, auth.ErrIdentityNotFound)
	}
	return identity, nil
}

// FindByID returns ErrIdentityNotFound when no identity has id
func (s *IdentityStore) FindByID(ctx context.Context, id string) (*auth.Identity, error) {
	return s.findOne(ctx, "identity.find_by_id", `id = ?`, id)
}

// FindByEmail looks up an identity by its normalized email
func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	return s.findOne(ctx, "identity.find_by_email", `email = ?`, email)
}

// FindByProvider looks up the identity linked to a provider subject
func (s *IdentityStore) FindByProvider(ctx context.Context, provider, subject string) (*auth.Identity, error) {
	return s.findOne(ctx, "identity.find_by_provider", `provider = ? AND provider_subject = ?`, provider, subject)
}

// List returns every identity ordered by email
func (s *IdentityStore) List(ctx context.Context) (identities []*auth.Identity, err error) {
	defer func(start time.Time) { s.observe("identity.list", start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY email`)
	if err != nil {
		return nil, classify(ctx, err, auth.ErrIdentityNotFound)
	}
	defer rows.Close()

	identities = make([]*auth.Identity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, classify(ctx, err, auth.ErrIdentityNotFound)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err, auth.ErrIdentityNotFound)
	}
	return identities, nil
}

// update runs an UPDATE against one identity and reports how many rows it hit
func (s *IdentityStore) update(ctx context.Context, op, set, where string, args ...interface{}) (affected int64, err error) {
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := s.dialect.Rebind(`UPDATE identities SET ` + set + `, updated_at = ? WHERE ` + where)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(ctx, err, auth.ErrIdentityNotFound)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return 0, classify(ctx, err, auth.ErrIdentityNotFound)
	}
	return affected, nil
}

func (s *IdentityStore) updateByID(ctx context.Context, op, set string, value interface{}, id string) error {
	affected, err := s.update(ctx, op, set, `id = ?`, value, s.now(), id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrIdentityNotFound
	}
	return nil
}

func (s *IdentityStore) UpdateName(ctx context.Context, id, name string) error {
	return s.updateByID(ctx, "identity.update_name", `name = ?`, name, id)
}

func (s *IdentityStore) UpdateCredentialHash(ctx context.Context, id, hash string) error {
	return s.updateByID(ctx, "identity.update_credential", `credential_hash = ?`, nullString(hash), id)
}

func (s *IdentityStore) UpdateRole(ctx context.Context, id string, role auth.Role) error {
	return s.updateByID(ctx, "identity.update_role", `role = ?`, string(role), id)
}

// LinkProvider attaches provider and subject only when the identity has no
// provider yet. The condition lives in the WHERE clause so two concurrent
// links cannot both succeed.
func (s *IdentityStore) LinkProvider(ctx context.Context, id, provider, subject string) (bool, error) {
	affected, err := s.update(ctx, "identity.link_provider",
		`provider = ?, provider_subject = ?`,
		`id = ? AND provider IS NULL`,
		provider, subject, s.now(), id)
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}
	if _, err := s.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// SetRefreshToken overwrites the stored refresh token
func (s *IdentityStore) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.updateByID(ctx, "identity.set_refresh_token", `refresh_token = ?`, nullString(token), id)
}

// CompareAndSwapRefreshToken is a single conditional UPDATE, so of several
// concurrent rotations of the same token exactly one observes a changed row
func (s *IdentityStore) CompareAndSwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	if expected == "" {
		return false, nil
	}
	affected, err := s.update(ctx, "identity.swap_refresh_token",
		`refresh_token = ?`,
		`id = ? AND refresh_token = ?`,
		nullString(next), s.now(), id, expected)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ClearRefreshToken removes the stored refresh token
func (s *IdentityStore) ClearRefreshToken(ctx context.Context, id string) error {
	return s.updateByID(ctx, "identity.clear_refresh_token", `refresh_token = ?`, sql.NullString{}, id)
}

// Delete removes the identity row
func (s *IdentityStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("identity.delete", start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM identities WHERE id = ?`), id)
	if err != nil {
		return classify(ctx, err, auth.ErrIdentityNotFound)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return classify(ctx, err, auth.ErrIdentityNotFound)
	}
	if affected == 0 {
		return auth.ErrIdentityNotFound
	}
	return nil
}
