package testfixtures

import (
	"sync"
	"time"
)

// Clock is a settable time source shared by every service a ServiceFactory
// builds, so slot windows, booking timestamps and session expiry all move
// together.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

// Now reports the clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NowFunc returns Now for injection into service constructors. A nil clock
// falls back to the wall clock.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set jumps to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// ExpireSessions moves the clock one second past SessionTTL so every token
// issued before the call is rejected.
func (c *Clock) ExpireSessions() time.Time {
	return c.Advance(SessionTTL + time.Second)
}

// NextDay moves the clock to midnight of the following calendar day in loc.
func (c *Clock) NextDay(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	local := c.now.In(loc)
	c.now = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return c.now
}
