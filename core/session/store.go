package session

import (
	"sync"
	"time"

	"github.com/trezcool/pesantren/core/profile"
)

// User is the authenticated identity of a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Snapshot is a copy of a session's state, safe to keep and read.
type Snapshot struct {
	ID           string           `json:"session_id"`
	User         *User            `json:"user"`
	Profile      *profile.Profile `json:"profile"`
	Loading      bool             `json:"loading"`
	LastActivity time.Time        `json:"last_activity"`
}

// Authenticated reports whether the session has an identity.
func (s Snapshot) Authenticated() bool { return s.User != nil }

// Resolution returns the roles of the session, guest when there is no profile.
func (s Snapshot) Resolution() profile.Resolution {
	if s.Profile == nil {
		return profile.GuestResolution()
	}
	return s.Profile.Resolution
}

// Session holds the state of one authenticated session.
// It is only mutated through SetUser, SetProfile, Touch and Clear.
type Session struct {
	id string

	mu           sync.RWMutex
	user         *User
	profile      *profile.Profile
	loading      bool
	lastActivity time.Time
}

func (s *Session) ID() string { return s.id }

// SetUser sets the identity of the session and marks its profile as loading.
func (s *Session) SetUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
	s.loading = true
}

// SetProfile sets the loaded profile and ends loading. It is ignored when the session has no identity.
func (s *Session) SetProfile(p profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return
	}
	s.profile = &p
	s.loading = false
}

func (s *Session) Touch(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.lastActivity) {
		s.lastActivity = at
	}
}

// Clear drops the identity and profile.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.profile = nil
	s.loading = false
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{ID: s.id, Loading: s.loading, LastActivity: s.lastActivity}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if s.profile != nil {
		p := *s.profile
		p.Roles = append(p.Roles[:0:0], p.Roles...)
		snap.Profile = &p
	}
	return snap
}

// Store holds the live sessions by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Open returns the session id, creating it if needed.
func (st *Store) Open(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := &Session{id: id}
	st.sessions[id] = s
	return s
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Remove clears and forgets the session id.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		s.Clear()
	}
}

// ByIdentity returns the sessions of an identity.
func (st *Store) ByIdentity(identityID string) []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var found []*Session
	for _, s := range st.sessions {
		if snap := s.Snapshot(); snap.User != nil && snap.User.ID == identityID {
			found = append(found, s)
		}
	}
	return found
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns the ids of every session.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}
