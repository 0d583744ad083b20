package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

const backend = "redis"

// SessionStore implements auth.SessionStore on Redis. Each session is a key
// that expires with the session; a set per identity indexes its sessions.
type SessionStore struct {
	client       *redis.Client
	prefix       string
	queryTimeout time.Duration
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewSessionStore creates a Redis session store. metrics may be nil.
func NewSessionStore(client *redis.Client, queryTimeout time.Duration, metrics *observability.Metrics) *SessionStore {
	return &SessionStore{
		client:       client,
		prefix:       "gatehouse:",
		queryTimeout: queryTimeout,
		metrics:      metrics,
		now:          time.Now,
	}
}

var _ auth.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *SessionStore) identityKey(identityID string) string {
	return s.prefix + "identity_sessions:" + identityID
}

func (s *SessionStore) observe(op string, start time.Time, err error) {
	kind := ""
	if err != nil {
		kind = auth.KindOf(err).String()
	}
	s.metrics.ObserveStore(op, backend, start, kind)
}

func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr):
		return err
	case errors.Is(err, redis.Nil):
		return auth.ErrSessionNotFound
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return auth.Transient("session store timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return auth.Transient("session store unavailable", err)
	}
	return auth.Internal("session store error", err)
}

// Create stores the session with a TTL matching its expiry
func (s *SessionStore) Create(ctx context.Context, session *auth.SessionRecord) (err error) {
	defer func(start time.Time) { s.observe("session.create", start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return auth.Internal("failed to marshal session", err)
	}

	idxKey := s.identityKey(session.IdentityID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), data, ttl)
		pipe.SAdd(ctx, idxKey, session.ID)
		pipe.Expire(ctx, idxKey, ttl)
		return nil
	})
	return classify(ctx, err)
}

// Get returns ErrSessionNotFound for unknown and expired sessions
func (s *SessionStore) Get(ctx context.Context, id string) (session *auth.SessionRecord, err error) {
	defer func(start time.Time) { s.observe("session.get", start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	key := s.sessionKey(id)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, classify(ctx, err)
	}

	var record auth.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// drop corrupt data
		s.client.Del(ctx, key)
		return nil, auth.ErrSessionNotFound
	}
	if record.Expired(s.now()) {
		return nil, auth.ErrSessionNotFound
	}
	return &record, nil
}

// Delete removes the session and its index entry. Unknown ids are ignored.
func (s *SessionStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("session.delete", start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	key := s.sessionKey(id)
	data, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return classify(ctx, err)
	}

	var record auth.SessionRecord
	if json.Unmarshal(data, &record) == nil && record.IdentityID != "" {
		if err := s.client.SRem(ctx, s.identityKey(record.IdentityID), id).Err(); err != nil {
			return classify(ctx, err)
		}
	}
	return nil
}

// DeleteByIdentity removes every session indexed under identityID
func (s *SessionStore) DeleteByIdentity(ctx context.Context, identityID string) (err error) {
	defer func(start time.Time) { s.observe("session.delete_by_identity", start, err) }(time.Now())
	ctx, cancel := storage.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	idxKey := s.identityKey(identityID)
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return classify(ctx, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, idxKey)
	return classify(ctx, s.client.Del(ctx, keys...).Err())
}
