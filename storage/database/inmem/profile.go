package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/rbac"
)

type profileRepository struct {
	db *DB
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) FetchProfile(_ context.Context, id string) (profile.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if rec, ok := repo.db.profiles[id]; ok {
		return copyRecord(*rec), nil
	}
	return profile.Record{}, profile.ErrNotFound
}

func (repo *profileRepository) CheckUsernameUniqueness(_ context.Context, username string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	n := len(excludedIDs)
	if n > 1 {
		sort.Strings(excludedIDs)
	}
	for _, rec := range repo.db.profiles {
		if rec.Username != nil && *rec.Username == username && !isExcluded(rec.ID, excludedIDs, n) {
			return profile.ErrUsernameExists
		}
	}
	return nil
}

func (repo *profileRepository) CreateProfile(_ context.Context, rec profile.Record) (profile.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.identities[rec.ID]; !ok {
		return profile.Record{}, profile.ErrNotFound
	}
	rec = copyRecord(rec)
	repo.db.profiles[rec.ID] = &rec
	return copyRecord(rec), nil
}

func (repo *profileRepository) UpdateProfile(_ context.Context, rec profile.Record) (profile.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// only save name, username & avatar
	orig, ok := repo.db.profiles[rec.ID]
	if !ok {
		return profile.Record{}, profile.ErrNotFound
	}
	orig.Name = rec.Name
	orig.Username = rec.Username
	orig.AvatarPath = rec.AvatarPath
	orig.UpdatedAt = rec.UpdatedAt
	return copyRecord(*orig), nil
}

func (repo *profileRepository) SetActiveRole(_ context.Context, id string, role rbac.Role, scopeID *string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	rec, ok := repo.db.profiles[id]
	if !ok {
		return profile.ErrNotFound
	}
	r := role.String()
	rec.ActiveRole, rec.ScopeID = &r, scopeID
	return nil
}

func (repo *profileRepository) UpdateRoles(_ context.Context, id string, roles []rbac.Role) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	rec, ok := repo.db.profiles[id]
	if !ok {
		return profile.ErrNotFound
	}

	rec.Roles = make([]string, 0, len(roles))
	for _, r := range roles {
		rec.Roles = append(rec.Roles, r.String())
	}
	if rec.ActiveRole != nil && !rbac.Keeps(roles, rbac.Role(*rec.ActiveRole)) {
		rec.ActiveRole, rec.ScopeID = nil, nil
	}
	return nil
}

type scopeResolver struct {
	db *DB
}

// NewScopeResolver finds the first halaqoh of a musyrif, the first santri of a wali or of an ota.
func NewScopeResolver(db *DB) profile.ScopeResolver {
	return &scopeResolver{db: db}
}

func (sr *scopeResolver) ResolveScope(_ context.Context, id, kind string) (string, error) {
	sr.db.mu.RLock()
	defer sr.db.mu.RUnlock()
	switch kind {
	case "halaqoh":
		for _, h := range sr.db.halaqoh {
			if h.musyrifID == id {
				return h.id, nil
			}
		}
	case "santri":
		for _, s := range sr.db.santri {
			if s.waliID == id {
				return s.id, nil
			}
		}
	case "ota":
		for _, s := range sr.db.santri {
			if s.otaID == id {
				return s.id, nil
			}
		}
	}
	return "", nil
}

type activityWriter struct {
	db *DB
}

func NewActivityWriter(db *DB) audit.Writer {
	return &activityWriter{db: db}
}

func (w *activityWriter) WriteActivity(_ context.Context, ev audit.Event) error {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	w.db.activity = append(w.db.activity, ev)
	return nil
}

func copyRecord(rec profile.Record) profile.Record {
	if rec.Roles != nil {
		rec.Roles = append([]string(nil), rec.Roles...)
	}
	return rec
}

func isExcluded(id string, excludedIDs []string, n int) bool {
	if n <= 0 {
		return false
	}
	idx := sort.SearchStrings(excludedIDs, id)
	return idx < n && excludedIDs[idx] == id
}
