package profile

import (
	"context"
	"sync"

	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/rbac"
)

type memRepo struct {
	mu      sync.Mutex
	records map[string]Record
	failSet error
}

var _ Repository = (*memRepo)(nil)

func newMemRepo(recs ...Record) *memRepo {
	repo := &memRepo{records: make(map[string]Record)}
	for _, rec := range recs {
		repo.records[rec.ID] = rec
	}
	return repo
}

func (repo *memRepo) get(id string) Record {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return repo.records[id]
}

func (repo *memRepo) FetchProfile(_ context.Context, id string) (Record, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	rec, ok := repo.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (repo *memRepo) CheckUsernameUniqueness(_ context.Context, username string, excludedIDs ...string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
outer:
	for _, rec := range repo.records {
		for _, id := range excludedIDs {
			if rec.ID == id {
				continue outer
			}
		}
		if rec.Username != nil && *rec.Username == username {
			return ErrUsernameExists
		}
	}
	return nil
}

func (repo *memRepo) CreateProfile(_ context.Context, rec Record) (Record, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.records[rec.ID] = rec
	return rec, nil
}

func (repo *memRepo) UpdateProfile(_ context.Context, rec Record) (Record, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.records[rec.ID]; !ok {
		return Record{}, ErrNotFound
	}
	repo.records[rec.ID] = rec
	return rec, nil
}

func (repo *memRepo) SetActiveRole(_ context.Context, id string, role rbac.Role, scopeID *string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.failSet != nil {
		return repo.failSet
	}
	rec, ok := repo.records[id]
	if !ok {
		return ErrNotFound
	}
	r := role.String()
	rec.ActiveRole, rec.ScopeID = &r, scopeID
	repo.records[id] = rec
	return nil
}

func (repo *memRepo) UpdateRoles(_ context.Context, id string, roles []rbac.Role) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	rec, ok := repo.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Roles = make([]string, 0, len(roles))
	for _, r := range roles {
		rec.Roles = append(rec.Roles, r.String())
	}
	if rec.ActiveRole != nil && !rbac.Keeps(roles, rbac.Role(*rec.ActiveRole)) {
		rec.ActiveRole, rec.ScopeID = nil, nil
	}
	repo.records[id] = rec
	return nil
}

type scopeFunc func(ctx context.Context, id, kind string) (string, error)

func (f scopeFunc) ResolveScope(ctx context.Context, id, kind string) (string, error) {
	return f(ctx, id, kind)
}

type memAvatars struct {
	mu      sync.Mutex
	objects map[string]Avatar
	deleted []string
}

func (s *memAvatars) Upload(_ context.Context, key string, av Avatar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string]Avatar)
	}
	s.objects[key] = av
	return nil
}

func (s *memAvatars) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memAvatars) PublicURL(key string) string { return "https://cdn.test/" + key }

type memActivity struct {
	mu     sync.Mutex
	events []audit.Event
}

func (w *memActivity) WriteActivity(_ context.Context, ev audit.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
	return nil
}

func (w *memActivity) actions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	actions := make([]string, 0, len(w.events))
	for _, ev := range w.events {
		actions = append(actions, ev.Action)
	}
	return actions
}
