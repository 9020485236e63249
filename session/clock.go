package session

import (
	"sync"
	"time"
)

// Clock supplies a millisecond tick counter that wraps at 2^32.
type Clock interface {
	NowMillis() uint32
}

// Elapsed returns the milliseconds from since to now, correct across one
// wraparound of the tick counter.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

// SystemClock ticks from its creation using the monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock starting at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowMillis implements Clock.
func (c *SystemClock) NowMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock is a Clock advanced explicitly, for tests and simulation.
type ManualClock struct {
	mu  sync.Mutex
	now uint32
}

// NewManualClock creates a clock reading start.
func NewManualClock(start uint32) *ManualClock {
	return &ManualClock{now: start}
}

// NowMillis implements Clock.
func (c *ManualClock) NowMillis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *ManualClock) Set(now uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d milliseconds, wrapping at 2^32.
func (c *ManualClock) Advance(d uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
