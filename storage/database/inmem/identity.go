package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/pesantren/core/auth"
)

type identityRepository struct {
	db *DB
}

var _ auth.Repository = (*identityRepository)(nil)

func NewIdentityRepository(db *DB) auth.Repository {
	return &identityRepository{db: db}
}

func (repo *identityRepository) CreateIdentity(_ context.Context, identity auth.Identity) (auth.Identity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	for _, i := range repo.db.identities {
		if i.Email == identity.Email {
			return auth.Identity{}, auth.ErrEmailExists
		}
	}
	repo.db.identities[identity.ID] = &identity
	return identity, nil
}

func (repo *identityRepository) GetIdentityByID(_ context.Context, id string) (auth.Identity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if i, ok := repo.db.identities[id]; ok {
		return *i, nil
	}
	return auth.Identity{}, auth.ErrNotFound
}

func (repo *identityRepository) GetIdentityByEmail(_ context.Context, email string) (auth.Identity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for _, i := range repo.db.identities {
		if i.Email == email {
			return *i, nil
		}
	}
	return auth.Identity{}, auth.ErrNotFound
}

func (repo *identityRepository) ResolveUsernameToEmail(_ context.Context, username string) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for _, rec := range repo.db.profiles {
		if rec.Username != nil && *rec.Username == username {
			if i, ok := repo.db.identities[rec.ID]; ok {
				return i.Email, nil
			}
		}
	}
	return "", auth.ErrNotFound
}

func (repo *identityRepository) UpdateIdentity(_ context.Context, identity auth.Identity) (auth.Identity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// only save password & active flag
	orig, ok := repo.db.identities[identity.ID]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	orig.PasswordHash = identity.PasswordHash
	orig.IsActive = identity.IsActive
	orig.UpdatedAt = identity.UpdatedAt
	return *orig, nil
}

func (repo *identityRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	i, ok := repo.db.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	i.LastLogin = &at
	return nil
}

func (repo *identityRepository) DeleteIdentity(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.identities, id)
	delete(repo.db.profiles, id)
	return nil
}
