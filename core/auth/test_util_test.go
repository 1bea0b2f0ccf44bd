package auth

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/rbac"
)

type memIdentities struct {
	mu         sync.Mutex
	identities map[string]Identity
	usernames  map[string]string // username: email
}

var _ Repository = (*memIdentities)(nil)

func newMemIdentities() *memIdentities {
	return &memIdentities{identities: make(map[string]Identity), usernames: make(map[string]string)}
}

func (repo *memIdentities) CreateIdentity(_ context.Context, identity Identity) (Identity, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, i := range repo.identities {
		if i.Email == identity.Email {
			return Identity{}, ErrEmailExists
		}
	}
	repo.identities[identity.ID] = identity
	return identity, nil
}

func (repo *memIdentities) GetIdentityByID(_ context.Context, id string) (Identity, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if i, ok := repo.identities[id]; ok {
		return i, nil
	}
	return Identity{}, ErrNotFound
}

func (repo *memIdentities) GetIdentityByEmail(_ context.Context, email string) (Identity, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, i := range repo.identities {
		if i.Email == email {
			return i, nil
		}
	}
	return Identity{}, ErrNotFound
}

func (repo *memIdentities) ResolveUsernameToEmail(_ context.Context, username string) (string, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if email, ok := repo.usernames[username]; ok {
		return email, nil
	}
	return "", ErrNotFound
}

func (repo *memIdentities) UpdateIdentity(_ context.Context, identity Identity) (Identity, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.identities[identity.ID]; !ok {
		return Identity{}, ErrNotFound
	}
	repo.identities[identity.ID] = identity
	return identity, nil
}

func (repo *memIdentities) SetLastLogin(_ context.Context, id string, at time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	i, ok := repo.identities[id]
	if !ok {
		return ErrNotFound
	}
	i.LastLogin = &at
	repo.identities[id] = i
	return nil
}

func (repo *memIdentities) DeleteIdentity(_ context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	delete(repo.identities, id)
	return nil
}

// stubProfiles keeps the profiles created through Register.
type stubProfiles struct {
	profile.Service // unused methods panic

	repo      *memIdentities
	failNext  error
	usernames map[string]bool
}

func (s *stubProfiles) CheckUniqueness(_ context.Context, username string, _ ...profile.Profile) error {
	if s.usernames[username] {
		return core.NewValidationError(profile.ErrUsernameExists, core.FieldError{Field: "username", Error: profile.ErrUsernameExists.Error()})
	}
	return nil
}

func (s *stubProfiles) Create(_ context.Context, np profile.NewProfile) (profile.Profile, error) {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return profile.Profile{}, err
	}
	if s.usernames == nil {
		s.usernames = make(map[string]bool)
	}
	if np.Username != "" {
		s.usernames[np.Username] = true
		s.repo.mu.Lock()
		s.repo.usernames[np.Username] = s.repo.identities[np.ID].Email
		s.repo.mu.Unlock()
	}
	roles := make([]rbac.Role, 0, len(np.Roles))
	for _, r := range np.Roles {
		roles = append(roles, rbac.Role(r))
	}
	return profile.Profile{ID: np.ID, Name: np.Name, Username: np.Username, Resolution: profile.Resolution{Roles: roles}}, nil
}

type memMail struct {
	mu   sync.Mutex
	sent []core.EmailMessage
}

func (m *memMail) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.sent = append(m.sent, *msg)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(_ context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]EventType, 0, len(l.events))
	for _, ev := range l.events {
		types = append(types, ev.Type)
	}
	return types
}
