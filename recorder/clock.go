package recorder

import (
	"sync"
	"time"
)

// Clock supplies the current time.  In production it's the system clock.
// Tests use a StoppedClock so that they can control the time.
type Clock interface {
	Now() time.Time
}

// SystemClock satisfies the Clock interface by supplying the system time.
type SystemClock struct{}

// Now returns the system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// StoppedClock is a Clock that returns an unchanging time until it's set.
type StoppedClock struct {
	mutex sync.Mutex
	time  time.Time
}

var _ Clock = (*StoppedClock)(nil) // Ensure that StoppedClock implements Clock.

// NewStoppedClock creates a StoppedClock set to the given time.
func NewStoppedClock(t time.Time) *StoppedClock {
	return &StoppedClock{time: t}
}

// SetTime sets a new unchanging time.
func (c *StoppedClock) SetTime(t time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.time = t
}

// Now always returns the same time.
func (c *StoppedClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.time
}
