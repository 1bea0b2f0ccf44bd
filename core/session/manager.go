// Package session holds the live sessions of the process: who is signed in, with which profile,
// and when they were last active. Sessions follow the auth state changes and end after a fixed idle time.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/metrics"
	"github.com/trezcool/pesantren/core/profile"
)

var (
	signOutTimeout = 5 * time.Second
	endedRetention = 24 * time.Hour

	idleNoticeText = "Sesi Anda berakhir karena tidak ada aktivitas selama %d menit. Silakan masuk kembali."

	// errors
	ErrNoSession = errors.New("no active session")
)

// Notice is the message owed to the user of a session that ended without them asking.
type Notice struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

type ended struct {
	at     time.Time
	notice *Notice
}

// Manager keeps the Store in line with the auth state changes and runs one IdleMonitor per session.
type Manager struct {
	store    *Store
	auth     auth.Service
	profiles profile.Service
	clock    Clock
	conf     core.SessionConfig
	logger   core.Logger

	mu          sync.Mutex
	monitors    map[string]*IdleMonitor
	sessions    map[string]auth.Session
	ended       map[string]ended
	unsubscribe func()
}

func NewManager(
	store *Store,
	authSvc auth.Service,
	profiles profile.Service,
	clock Clock,
	conf core.SessionConfig,
	logger core.Logger,
) *Manager {
	if clock == nil {
		clock = SystemClock
	}
	m := &Manager{
		store:    store,
		auth:     authSvc,
		profiles: profiles,
		clock:    clock,
		conf:     conf,
		logger:   logger,
		monitors: make(map[string]*IdleMonitor),
		sessions: make(map[string]auth.Session),
		ended:    make(map[string]ended),
	}
	m.unsubscribe = authSvc.OnAuthStateChange(m.handle)
	return m
}

// handle applies an auth state change. Every event is applied from its own payload.
func (m *Manager) handle(ctx context.Context, ev auth.Event) {
	switch ev.Type {
	case auth.SignedIn:
		m.load(ctx, ev.Session, true)
	case auth.TokenRefreshed, auth.UserUpdated:
		m.load(ctx, ev.Session, false)
	case auth.SignedOut:
		m.drop(ev.Session.ID)
	}
}

// load (re)sets the identity of the session and resolves its profile.
// The idle countdown restarts when rearm is set, otherwise it only starts if not running.
func (m *Manager) load(ctx context.Context, as auth.Session, rearm bool) (Snapshot, bool) {
	m.mu.Lock()
	if _, gone := m.ended[as.ID]; gone {
		m.mu.Unlock()
		return Snapshot{ID: as.ID}, false
	}
	m.sessions[as.ID] = as
	m.mu.Unlock()

	sess := m.store.Open(as.ID)
	sess.SetUser(User{ID: as.IdentityID, Email: as.Email})
	if rearm {
		sess.Touch(m.clock.Now())
	}
	sess.SetProfile(m.profiles.Resolve(ctx, as.IdentityID))

	if !m.arm(as.ID, rearm) {
		// signed out while the profile was loading
		m.store.Remove(as.ID)
		metrics.ActiveSessions.Set(float64(m.store.Len()))
		return Snapshot{ID: as.ID}, false
	}
	metrics.ActiveSessions.Set(float64(m.store.Len()))
	return sess.Snapshot(), true
}

// arm starts the countdown of a live session. It reports false, arming nothing, once the session ended.
// m.mu is held throughout so a concurrent drop either precedes it or disarms what it armed.
func (m *Manager) arm(sid string, restart bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, gone := m.ended[sid]; gone {
		return false
	}
	mon, ok := m.monitors[sid]
	if !ok {
		mon = NewIdleMonitor(m.conf.IdleTimeout, m.conf.ActivityThrottle, m.clock, func() { m.expire(sid) })
		m.monitors[sid] = mon
	}
	if restart || !mon.Armed() {
		mon.Arm()
	}
	return true
}

// drop tears the session down: no identity, no pending countdown.
func (m *Manager) drop(sid string) {
	m.mu.Lock()
	mon := m.monitors[sid]
	delete(m.monitors, sid)
	delete(m.sessions, sid)
	now := m.clock.Now()
	for id, e := range m.ended {
		if now.Sub(e.at) > endedRetention {
			delete(m.ended, id)
		}
	}
	e := m.ended[sid]
	e.at = now
	m.ended[sid] = e
	m.mu.Unlock()

	if mon != nil {
		mon.Disarm()
	}
	m.store.Remove(sid)
	metrics.ActiveSessions.Set(float64(m.store.Len()))
}

// expire signs out a session that has been idle for too long and leaves a notice for its user.
func (m *Manager) expire(sid string) {
	m.mu.Lock()
	as, ok := m.sessions[sid]
	if ok {
		m.ended[sid] = ended{at: m.clock.Now(), notice: &Notice{
			Message:  fmt.Sprintf(idleNoticeText, int(m.conf.IdleTimeout.Minutes())),
			Redirect: m.conf.LoginPath,
		}}
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	metrics.IdleExpirations.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
	defer cancel()
	if err := m.auth.SignOut(ctx, as, audit.ReasonIdleTimeout); err != nil && m.logger != nil {
		m.logger.Error(fmt.Sprintf("signing out idle session: %v", err), err, core.Person{ID: as.IdentityID, Email: as.Email})
	}
	// SignOut normally got here first through SignedOut
	m.drop(sid)
}

// Session returns the state of an authenticated session, loading it when the process does not hold it yet
// (eg. after a restart). A session that ended here stays ended.
func (m *Manager) Session(ctx context.Context, as auth.Session) Snapshot {
	if sess, ok := m.store.Get(as.ID); ok {
		return sess.Snapshot()
	}
	snap, _ := m.load(ctx, as, true)
	return snap
}

// Snapshot returns the state of session sid, if the process holds it.
func (m *Manager) Snapshot(sid string) (Snapshot, bool) {
	sess, ok := m.store.Get(sid)
	if !ok {
		return Snapshot{ID: sid}, false
	}
	return sess.Snapshot(), true
}

// TakeNotice returns, once, the notice left for the user of session sid.
func (m *Manager) TakeNotice(sid string) (Notice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ended[sid]
	if !ok || e.notice == nil {
		return Notice{}, false
	}
	n := *e.notice
	e.notice = nil
	m.ended[sid] = e
	return n, true
}

// Activity records a user interaction on session sid. It reports whether the idle countdown was reset.
func (m *Manager) Activity(sid string, kind ActivityKind) (bool, error) {
	if _, ok := ParseActivityKind(string(kind)); !ok {
		return false, errors.Errorf("unknown activity kind %q", kind)
	}
	sess, ok := m.store.Get(sid)
	if !ok {
		return false, ErrNoSession
	}
	m.mu.Lock()
	mon := m.monitors[sid]
	m.mu.Unlock()
	if mon == nil {
		return false, ErrNoSession
	}

	sess.Touch(m.clock.Now())
	return mon.Activity(kind), nil
}

// IdleDeadline returns when session sid expires if no activity happens, zero when it is not monitored.
func (m *Manager) IdleDeadline(sid string) time.Time {
	m.mu.Lock()
	mon := m.monitors[sid]
	m.mu.Unlock()
	if mon == nil {
		return time.Time{}
	}
	return mon.Deadline()
}

// SwitchRole switches the active role of the identity of session sid and applies it to the session.
func (m *Manager) SwitchRole(ctx context.Context, sid, role string) (profile.SwitchResult, error) {
	sess, ok := m.store.Get(sid)
	if !ok {
		return profile.SwitchResult{}, ErrNoSession
	}
	snap := sess.Snapshot()
	if !snap.Authenticated() {
		return profile.SwitchResult{}, ErrNoSession
	}

	res, err := m.profiles.SwitchRole(ctx, snap.User.ID, role)
	if err != nil {
		return profile.SwitchResult{}, err
	}

	var p profile.Profile
	if snap.Profile != nil {
		p = *snap.Profile
	} else {
		p = m.profiles.Resolve(ctx, snap.User.ID)
	}
	p.ActiveRole = res.Role
	p.ScopeID = res.ScopeID
	sess.SetProfile(p)
	return res, nil
}

// Reload resolves again the profile of every session of an identity, after its profile changed.
func (m *Manager) Reload(ctx context.Context, identityID string) {
	sessions := m.store.ByIdentity(identityID)
	if len(sessions) == 0 {
		return
	}
	p := m.profiles.Resolve(ctx, identityID)
	for _, sess := range sessions {
		sess.SetProfile(p)
	}
}

// Close stops following auth state changes and disarms every idle countdown.
func (m *Manager) Close() {
	m.unsubscribe()

	m.mu.Lock()
	monitors := make([]*IdleMonitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		monitors = append(monitors, mon)
	}
	m.mu.Unlock()

	for _, mon := range monitors {
		mon.Disarm()
	}
}
