package auth

import (
	"context"
	"sync"
	"time"
)

// Revoker is the denylist of signed out sessions. A session is denied until `until`, the expiry of its last token.
type Revoker interface {
	Revoke(ctx context.Context, sid string, until time.Time) error
	IsRevoked(ctx context.Context, sid string) (bool, error)
}

type memoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

var _ Revoker = (*memoryRevoker)(nil)

// NewMemoryRevoker returns a Revoker local to the process.
func NewMemoryRevoker() Revoker {
	return &memoryRevoker{revoked: make(map[string]time.Time)}
}

func (r *memoryRevoker) Revoke(_ context.Context, sid string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := NowFunc()
	for id, exp := range r.revoked {
		if now.After(exp) {
			delete(r.revoked, id)
		}
	}
	if until.After(now) {
		r.revoked[sid] = until
	}
	return nil
}

func (r *memoryRevoker) IsRevoked(_ context.Context, sid string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.revoked[sid]
	return ok && !NowFunc().After(exp), nil
}
