package testutil

import (
	"sync"
	"time"
)

// SteppingClock hands out strictly increasing timestamps for tests.
//
// Each call to Next advances a fixed step from a fixed base, so a test that
// seeds N state changes gets the same N timestamps on every run and golden
// output stays byte-identical.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	n    int
}

// NewSteppingClock creates a clock starting at base. A zero step defaults to
// one second.
func NewSteppingClock(base time.Time, step time.Duration) *SteppingClock {
	if step == 0 {
		step = time.Second
	}
	return &SteppingClock{base: base.UTC(), step: step}
}

// Next returns the next timestamp: base, base+step, base+2*step, ...
func (c *SteppingClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Current returns the most recently issued timestamp without advancing.
// Before the first Next it returns the base.
func (c *SteppingClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		return c.base
	}
	return c.base.Add(time.Duration(c.n-1) * c.step)
}

// Reset rewinds the clock to its base for test reuse.
func (c *SteppingClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
