package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memIdentityStore is a mutex-guarded IdentityStore used by the package tests
type memIdentityStore struct {
	mu         sync.Mutex
	identities map[string]*Identity
	failWith   error
	createHook func()
}

func newMemIdentityStore() *memIdentityStore {
	return &memIdentityStore{identities: make(map[string]*Identity)}
}

func (s *memIdentityStore) Create(ctx context.Context, identity *Identity) error {
	if s.createHook != nil {
		s.createHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	for _, existing := range s.identities {
		if existing.Email == identity.Email {
			return ErrDuplicateIdentity
		}
		if identity.Provider != "" && existing.Provider == identity.Provider && existing.ProviderSubject == identity.ProviderSubject {
			return ErrDuplicateIdentity
		}
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	copied := *identity
	s.identities[identity.ID] = &copied
	return nil
}

func (s *memIdentityStore) find(match func(*Identity) bool) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, identity := range s.identities {
		if match(identity) {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, ErrIdentityNotFound
}

func (s *memIdentityStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	return s.find(func(i *Identity) bool { return i.ID == id })
}

func (s *memIdentityStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.find(func(i *Identity) bool { return i.Email == email })
}

func (s *memIdentityStore) FindByProvider(ctx context.Context, provider, subject string) (*Identity, error) {
	return s.find(func(i *Identity) bool { return i.Provider == provider && i.ProviderSubject == subject })
}

func (s *memIdentityStore) List(ctx context.Context) ([]*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		copied := *identity
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *memIdentityStore) update(id string, fn func(*Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	identity, ok := s.identities[id]
	if !ok {
		return ErrIdentityNotFound
	}
	fn(identity)
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memIdentityStore) UpdateName(ctx context.Context, id, name string) error {
	return s.update(id, func(i *Identity) { i.Name = name })
}

func (s *memIdentityStore) UpdateCredentialHash(ctx context.Context, id, hash string) error {
	return s.update(id, func(i *Identity) { i.CredentialHash = hash })
}

func (s *memIdentityStore) UpdateRole(ctx context.Context, id string, role Role) error {
	return s.update(id, func(i *Identity) { i.Role = role })
}

func (s *memIdentityStore) LinkProvider(ctx context.Context, id, provider, subject string) (bool, error) {
	linked := false
	err := s.update(id, func(i *Identity) {
		if i.Provider == "" {
			i.Provider = provider
			i.ProviderSubject = subject
			linked = true
		}
	})
	return linked, err
}

func (s *memIdentityStore) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.update(id, func(i *Identity) { i.RefreshToken = token })
}

func (s *memIdentityStore) CompareAndSwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	swapped := false
	err := s.update(id, func(i *Identity) {
		if i.RefreshToken != "" && i.RefreshToken == expected {
			i.RefreshToken = next
			swapped = true
		}
	})
	if IsKind(err, KindNotFound) {
		return false, nil
	}
	return swapped, err
}

func (s *memIdentityStore) ClearRefreshToken(ctx context.Context, id string) error {
	return s.update(id, func(i *Identity) { i.RefreshToken = "" })
}

func (s *memIdentityStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[id]; !ok {
		return ErrIdentityNotFound
	}
	delete(s.identities, id)
	return nil
}

func (s *memIdentityStore) refreshTokenOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity, ok := s.identities[id]; ok {
		return identity.RefreshToken
	}
	return ""
}

// memSessionStore is a mutex-guarded SessionStore used by the package tests
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*SessionRecord
	now      func() time.Time
	failWith error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		sessions: make(map[string]*SessionRecord),
		now:      time.Now,
	}
}

func (s *memSessionStore) Create(ctx context.Context, session *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *memSessionStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	session, ok := s.sessions[id]
	if !ok || session.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *memSessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memSessionStore) DeleteByIdentity(ctx context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.IdentityID == identityID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *memSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
