package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle lets at most one event through per interval.
type Throttle struct {
	clock    Clock
	interval time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewThrottle(interval time.Duration, clock Clock) *Throttle {
	if clock == nil {
		clock = SystemClock
	}
	return &Throttle{clock: clock, interval: interval, limiter: newLimiter(interval)}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Allow reports whether an event happening now may go through.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limiter.AllowN(t.clock.Now(), 1)
}

// Reset forgets past events.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiter = newLimiter(t.interval)
}
