package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func TestManualClock(t *testing.T) {
	c := NewManualClock(epoch)
	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := c.AfterFunc(time.Second, func() { fired = append(fired, "x") })
	assert.Equal(t, 3, c.Pending())

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), c.Now())

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Zero(t, c.Pending())
}

func TestManualClock_TimerScheduledWhileFiring(t *testing.T) {
	c := NewManualClock(epoch)
	var at []time.Time
	c.AfterFunc(time.Second, func() {
		at = append(at, c.Now())
		c.AfterFunc(time.Second, func() { at = append(at, c.Now()) })
	})

	c.Advance(5 * time.Second)
	assert.Equal(t, []time.Time{epoch.Add(time.Second), epoch.Add(2 * time.Second)}, at)
	assert.Equal(t, epoch.Add(5*time.Second), c.Now())
}
