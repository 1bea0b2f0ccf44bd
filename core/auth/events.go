package auth

import (
	"context"
	"sort"
	"sync"
)

// EventType is the kind of an auth state change.
type EventType string

const (
	SignedIn       EventType = "SIGNED_IN"
	SignedOut      EventType = "SIGNED_OUT"
	TokenRefreshed EventType = "TOKEN_REFRESHED"
	UserUpdated    EventType = "USER_UPDATED"
)

// Event carries the whole state of the session it is about: listeners derive their state from it alone.
type Event struct {
	Type    EventType
	Session Session
	Reason  string // SignedOut only
}

type Listener func(ctx context.Context, ev Event)

type broadcaster struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

func (b *broadcaster) subscribe(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[int]Listener)
	}
	id := b.next
	b.next++
	b.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// emit calls every listener synchronously, in subscription order.
func (b *broadcaster) emit(ctx context.Context, ev Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, ev)
	}
}
