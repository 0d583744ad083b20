// Package cache wraps a session store with an in-process expirable LRU so
// hot session lookups skip the database.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

const cacheName = "session"

// SessionStore caches Get results of another auth.SessionStore. A cached
// record is never served past its own expiry, and Delete and
// DeleteByIdentity invalidate before returning.
type SessionStore struct {
	next    auth.SessionStore
	cache   *lru.LRU[string, *auth.SessionRecord]
	metrics *observability.Metrics
	now     func() time.Time

	// byIdentity indexes cached session ids for DeleteByIdentity
	mu         sync.Mutex
	byIdentity map[string]map[string]struct{}

	// generation advances on every delete. A Get that missed the cache only
	// fills it if no delete finished while it read the backing store.
	genMu      sync.Mutex
	generation uint64
}

// NewSessionStore wraps next with a cache of up to size entries, each held
// for at most ttl. metrics may be nil.
func NewSessionStore(next auth.SessionStore, size int, ttl time.Duration, metrics *observability.Metrics) *SessionStore {
	if size < 1 {
		size = 1
	}
	s := &SessionStore{
		next:       next,
		metrics:    metrics,
		now:        time.Now,
		byIdentity: make(map[string]map[string]struct{}),
	}
	s.cache = lru.NewLRU[string, *auth.SessionRecord](size, s.onEvict, ttl)
	return s
}

var _ auth.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) onEvict(id string, record *auth.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ids, ok := s.byIdentity[record.IdentityID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byIdentity, record.IdentityID)
		}
	}
}

func (s *SessionStore) add(record *auth.SessionRecord) {
	s.mu.Lock()
	ids, ok := s.byIdentity[record.IdentityID]
	if !ok {
		ids = make(map[string]struct{})
		s.byIdentity[record.IdentityID] = ids
	}
	ids[record.ID] = struct{}{}
	s.mu.Unlock()

	copied := *record
	s.cache.Add(record.ID, &copied)
}

func (s *SessionStore) Create(ctx context.Context, session *auth.SessionRecord) error {
	if err := s.next.Create(ctx, session); err != nil {
		return err
	}
	s.add(session)
	return nil
}

// Get serves from the cache when the entry is present and unexpired
func (s *SessionStore) Get(ctx context.Context, id string) (*auth.SessionRecord, error) {
	if record, ok := s.cache.Get(id); ok {
		if !record.Expired(s.now()) {
			s.metrics.CacheLookup(cacheName, true)
			copied := *record
			return &copied, nil
		}
		s.cache.Remove(id)
	}
	s.metrics.CacheLookup(cacheName, false)

	s.genMu.Lock()
	seen := s.generation
	s.genMu.Unlock()

	record, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.genMu.Lock()
	if s.generation == seen {
		s.add(record)
	}
	s.genMu.Unlock()
	return record, nil
}

// Delete removes the session from the store, then from the cache
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.cache.Remove(id)
	err := s.next.Delete(ctx, id)
	s.invalidate(func() []string { return []string{id} })
	return err
}

func (s *SessionStore) DeleteByIdentity(ctx context.Context, identityID string) error {
	s.invalidate(func() []string { return s.cachedIDs(identityID) })
	err := s.next.DeleteByIdentity(ctx, identityID)
	s.invalidate(func() []string { return s.cachedIDs(identityID) })
	return err
}

// invalidate advances the generation and drops ids from the cache while no
// Get can be filling it
func (s *SessionStore) invalidate(ids func() []string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generation++
	for _, id := range ids() {
		s.cache.Remove(id)
	}
}

func (s *SessionStore) cachedIDs(identityID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.byIdentity[identityID]))
	for id := range s.byIdentity[identityID] {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of cached entries
func (s *SessionStore) Len() int {
	return s.cache.Len()
}
