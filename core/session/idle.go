package session

import (
	"sync"
	"time"
)

// ActivityKind is a kind of user interaction that keeps a session alive.
type ActivityKind string

const (
	Pointer  ActivityKind = "pointer"
	Keyboard ActivityKind = "keyboard"
	Scroll   ActivityKind = "scroll"
	Touch    ActivityKind = "touch"
)

func ParseActivityKind(s string) (ActivityKind, bool) {
	switch k := ActivityKind(s); k {
	case Pointer, Keyboard, Scroll, Touch:
		return k, true
	}
	return "", false
}

// IdleMonitor calls onExpire once the monitored session has seen no activity for the idle timeout.
//
// Activity resets the countdown, at most once per throttle interval. Activity dropped by the throttle
// is still remembered: an expiry never fires before last activity + timeout.
type IdleMonitor struct {
	clock    Clock
	timeout  time.Duration
	throttle *Throttle
	onExpire func()

	mu       sync.Mutex
	armed    bool
	gen      uint64
	timer    Timer
	last     time.Time
	deadline time.Time
}

func NewIdleMonitor(timeout, throttleInterval time.Duration, clock Clock, onExpire func()) *IdleMonitor {
	if clock == nil {
		clock = SystemClock
	}
	return &IdleMonitor{
		clock:    clock,
		timeout:  timeout,
		throttle: NewThrottle(throttleInterval, clock),
		onExpire: onExpire,
	}
}

// Arm starts the countdown from now, restarting it when already armed.
func (m *IdleMonitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = true
	m.last = m.clock.Now()
	m.throttle.Reset()
	m.schedule(m.timeout)
}

// Disarm stops the countdown. A countdown disarmed before it ends never expires.
func (m *IdleMonitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
	m.gen++
	m.stopTimer()
	m.deadline = time.Time{}
}

// Activity records a user interaction. It reports whether the countdown was reset.
// Unknown kinds, and any activity while disarmed, are ignored.
func (m *IdleMonitor) Activity(kind ActivityKind) bool {
	if _, ok := ParseActivityKind(string(kind)); !ok {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed {
		return false
	}
	m.last = m.clock.Now()
	if !m.throttle.Allow() {
		return false
	}
	m.schedule(m.timeout)
	return true
}

func (m *IdleMonitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Deadline returns when the countdown currently ends, zero when disarmed.
func (m *IdleMonitor) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed {
		return time.Time{}
	}
	if d := m.last.Add(m.timeout); d.After(m.deadline) {
		return d
	}
	return m.deadline
}

// schedule replaces the pending timer. m.mu must be held.
func (m *IdleMonitor) schedule(d time.Duration) {
	m.stopTimer()
	m.gen++
	gen := m.gen
	m.deadline = m.clock.Now().Add(d)
	m.timer = m.clock.AfterFunc(d, func() { m.fire(gen) })
}

func (m *IdleMonitor) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *IdleMonitor) fire(gen uint64) {
	m.mu.Lock()
	if !m.armed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	// throttled activity moved the real deadline
	if remaining := m.last.Add(m.timeout).Sub(m.clock.Now()); remaining > 0 {
		m.schedule(remaining)
		m.mu.Unlock()
		return
	}
	m.armed = false
	m.gen++
	m.timer = nil
	m.deadline = time.Time{}
	m.mu.Unlock()

	if m.onExpire != nil {
		m.onExpire()
	}
}
