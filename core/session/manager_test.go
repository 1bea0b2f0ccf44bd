package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/rbac"
)

type fakeAuth struct {
	auth.Service
	listeners map[int]auth.Listener
	next      int
	signOuts  []string // reasons
}

func (a *fakeAuth) OnAuthStateChange(l auth.Listener) func() {
	if a.listeners == nil {
		a.listeners = make(map[int]auth.Listener)
	}
	id := a.next
	a.next++
	a.listeners[id] = l
	return func() { delete(a.listeners, id) }
}

func (a *fakeAuth) SignOut(ctx context.Context, sess auth.Session, reason string) error {
	a.signOuts = append(a.signOuts, reason)
	a.emit(auth.Event{Type: auth.SignedOut, Session: sess, Reason: reason})
	return nil
}

func (a *fakeAuth) emit(ev auth.Event) {
	for _, l := range a.listeners {
		l(context.Background(), ev)
	}
}

type fakeProfiles struct {
	profile.Service
	profiles map[string]profile.Profile
	resolved int
	during   func(id string) // runs while resolving
}

func (p *fakeProfiles) Resolve(_ context.Context, id string) profile.Profile {
	p.resolved++
	if p.during != nil {
		p.during(id)
	}
	if prof, ok := p.profiles[id]; ok {
		return prof
	}
	return profile.Profile{ID: id, Resolution: profile.GuestResolution()}
}

func (p *fakeProfiles) SwitchRole(_ context.Context, id, role string) (profile.SwitchResult, error) {
	r, ok := rbac.Parse(role)
	if !ok {
		return profile.SwitchResult{}, profile.ErrInvalidRole
	}
	if !rbac.Contains(p.profiles[id].Roles, r) {
		return profile.SwitchResult{}, profile.ErrRoleNotAssigned
	}
	res := profile.SwitchResult{Role: r}
	if r == rbac.Musyrif {
		res.ScopeID = "H1"
	}
	return res, nil
}

type managerFixture struct {
	mgr      *Manager
	clock    *ManualClock
	auth     *fakeAuth
	profiles *fakeProfiles
}

var ahmad = auth.Session{ID: "s1", IdentityID: "u1", Email: "ahmad@pesantren.id"}

func newManager(t *testing.T) managerFixture {
	t.Helper()
	conf := core.DefaultConfig().Session
	conf.IdleTimeout = idleTimeout
	conf.ActivityThrottle = throttleGap

	f := managerFixture{
		clock: NewManualClock(epoch),
		auth:  new(fakeAuth),
		profiles: &fakeProfiles{profiles: map[string]profile.Profile{
			"u1": {
				ID:         "u1",
				Name:       "Ahmad",
				Resolution: profile.Resolution{Roles: []rbac.Role{rbac.Guru, rbac.Musyrif}, ActiveRole: rbac.Guru},
			},
		}},
	}
	f.mgr = NewManager(NewStore(), f.auth, f.profiles, f.clock, conf, nil)
	t.Cleanup(f.mgr.Close)
	return f
}

func TestManager_SignedIn(t *testing.T) {
	f := newManager(t)
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})

	snap, ok := f.mgr.Snapshot("s1")
	require.True(t, ok)
	assert.True(t, snap.Authenticated())
	assert.False(t, snap.Loading)
	assert.Equal(t, &User{ID: "u1", Email: "ahmad@pesantren.id"}, snap.User)
	assert.Equal(t, rbac.Guru, snap.Resolution().ActiveRole)
	assert.Equal(t, epoch, snap.LastActivity)
	assert.Equal(t, epoch.Add(idleTimeout), f.mgr.IdleDeadline("s1"))
}

func TestManager_IdleExpiry(t *testing.T) {
	f := newManager(t)
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})

	f.clock.Advance(idleTimeout)
	assert.Equal(t, []string{audit.ReasonIdleTimeout}, f.auth.signOuts)
	_, ok := f.mgr.Snapshot("s1")
	assert.False(t, ok)
	assert.Zero(t, f.clock.Pending())

	n, ok := f.mgr.TakeNotice("s1")
	require.True(t, ok)
	assert.Contains(t, n.Message, "20 menit")
	assert.Equal(t, "/login", n.Redirect)
	_, ok = f.mgr.TakeNotice("s1")
	assert.False(t, ok, "notice is shown once")

	// the ended session is not brought back
	snap := f.mgr.Session(context.Background(), ahmad)
	assert.False(t, snap.Authenticated())

	f.clock.Advance(idleTimeout)
	assert.Len(t, f.auth.signOuts, 1)
}

func TestManager_SignedOutWhileLoading(t *testing.T) {
	f := newManager(t)
	f.profiles.during = func(string) {
		f.auth.emit(auth.Event{Type: auth.SignedOut, Session: ahmad})
	}
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})

	_, ok := f.mgr.Snapshot("s1")
	assert.False(t, ok)
	assert.Zero(t, f.mgr.store.Len())
	assert.Zero(t, f.clock.Pending())
	assert.True(t, f.mgr.IdleDeadline("s1").IsZero())
	f.mgr.mu.Lock()
	assert.Empty(t, f.mgr.monitors)
	f.mgr.mu.Unlock()

	f.clock.Advance(idleTimeout)
	assert.Empty(t, f.auth.signOuts)
}

func TestManager_SignedOut(t *testing.T) {
	f := newManager(t)
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})
	f.auth.emit(auth.Event{Type: auth.SignedOut, Session: ahmad})

	_, ok := f.mgr.Snapshot("s1")
	assert.False(t, ok)
	assert.Zero(t, f.clock.Pending())
	_, ok = f.mgr.TakeNotice("s1")
	assert.False(t, ok, "no notice for a requested sign out")

	// late refresh of the same session
	f.auth.emit(auth.Event{Type: auth.TokenRefreshed, Session: ahmad})
	_, ok = f.mgr.Snapshot("s1")
	assert.False(t, ok)
}

func TestManager_RefreshKeepsCountdown(t *testing.T) {
	f := newManager(t)
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})

	f.clock.Advance(10 * time.Minute)
	f.auth.emit(auth.Event{Type: auth.TokenRefreshed, Session: ahmad})
	assert.Equal(t, 2, f.profiles.resolved)

	f.clock.Advance(10 * time.Minute)
	assert.Equal(t, []string{audit.ReasonIdleTimeout}, f.auth.signOuts)
}

func TestManager_Activity(t *testing.T) {
	f := newManager(t)
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})

	f.clock.Advance(15 * time.Minute)
	reset, err := f.mgr.Activity("s1", Pointer)
	require.NoError(t, err)
	assert.True(t, reset)
	snap, _ := f.mgr.Snapshot("s1")
	assert.Equal(t, epoch.Add(15*time.Minute), snap.LastActivity)

	reset, err = f.mgr.Activity("s1", Keyboard)
	require.NoError(t, err)
	assert.False(t, reset, "throttled")

	_, err = f.mgr.Activity("s1", "blink")
	assert.Error(t, err)
	_, err = f.mgr.Activity("nope", Pointer)
	assert.Equal(t, ErrNoSession, err)

	f.clock.Advance(15 * time.Minute)
	assert.Empty(t, f.auth.signOuts)
	f.clock.Advance(5 * time.Minute)
	assert.Len(t, f.auth.signOuts, 1)
}

func TestManager_SwitchRole(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})

	res, err := f.mgr.SwitchRole(ctx, "s1", "musyrif")
	require.NoError(t, err)
	assert.Equal(t, profile.SwitchResult{Role: rbac.Musyrif, ScopeID: "H1"}, res)

	snap, _ := f.mgr.Snapshot("s1")
	assert.Equal(t, rbac.Musyrif, snap.Profile.ActiveRole)
	assert.Equal(t, "H1", snap.Profile.ScopeID)

	_, err = f.mgr.SwitchRole(ctx, "s1", "bendahara")
	assert.Equal(t, profile.ErrRoleNotAssigned, err)
	snap, _ = f.mgr.Snapshot("s1")
	assert.Equal(t, rbac.Musyrif, snap.Profile.ActiveRole, "unchanged on failure")

	_, err = f.mgr.SwitchRole(ctx, "nope", "guru")
	assert.Equal(t, ErrNoSession, err)
}

func TestManager_Reload(t *testing.T) {
	f := newManager(t)
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: auth.Session{ID: "s2", IdentityID: "u1"}})

	p := f.profiles.profiles["u1"]
	p.Name = "Ahmad Fauzi"
	f.profiles.profiles["u1"] = p
	f.mgr.Reload(context.Background(), "u1")

	for _, sid := range []string{"s1", "s2"} {
		snap, _ := f.mgr.Snapshot(sid)
		assert.Equal(t, "Ahmad Fauzi", snap.Profile.Name)
	}
}

func TestManager_SessionRestores(t *testing.T) {
	f := newManager(t)

	snap := f.mgr.Session(context.Background(), ahmad)
	assert.True(t, snap.Authenticated())
	assert.Equal(t, rbac.Guru, snap.Resolution().ActiveRole)
	assert.Equal(t, 1, f.clock.Pending())

	snap = f.mgr.Session(context.Background(), ahmad)
	assert.True(t, snap.Authenticated())
	assert.Equal(t, 1, f.profiles.resolved, "held sessions are not loaded again")
}

func TestManager_Close(t *testing.T) {
	f := newManager(t)
	f.auth.emit(auth.Event{Type: auth.SignedIn, Session: ahmad})

	f.mgr.Close()
	assert.Zero(t, f.clock.Pending())
	assert.Empty(t, f.auth.listeners)
}
