// Package clock provides the virtual time source used by the scheduling
// core. All task timing (deadlines, aging, switch budgets) is expressed in
// ticks and microseconds of simulated time so that runs are deterministic
// and tests never sleep.
package clock

import (
	"sync"
	"time"
)

// MicrosPerTick is the default tick resolution: one tick per millisecond.
const MicrosPerTick = 1000

// Clock is the time source consumed by the scheduling core.
type Clock interface {
	// Ticks returns the current time in scheduler ticks.
	Ticks() uint64
	// Micros returns the current time in microseconds.
	Micros() uint64
}

// Simulated is a manually advanced virtual clock. It is safe for
// concurrent use.
type Simulated struct {
	mu            sync.Mutex
	micros        uint64
	microsPerTick uint64
}

// NewSimulated returns a Simulated clock starting at time zero with the
// default tick resolution.
func NewSimulated() *Simulated {
	return &Simulated{microsPerTick: MicrosPerTick}
}

// Ticks returns the current simulated time in ticks.
func (c *Simulated) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.micros / c.microsPerTick
}

// Micros returns the current simulated time in microseconds.
func (c *Simulated) Micros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.micros
}

// Advance moves the clock forward by n ticks.
func (c *Simulated) Advance(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.micros += n * c.microsPerTick
}

// AdvanceMicros moves the clock forward by n microseconds.
func (c *Simulated) AdvanceMicros(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.micros += n
}

// Set jumps the clock to an absolute microsecond timestamp. Time never
// moves backwards; earlier values are ignored.
func (c *Simulated) Set(micros uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if micros > c.micros {
		c.micros = micros
	}
}

// Wall is a Clock backed by the real monotonic clock. Used by the
// interactive simulator when running against wall time.
type Wall struct {
	start time.Time
}

// NewWall returns a Wall clock anchored at the current instant.
func NewWall() *Wall {
	return &Wall{start: time.Now()}
}

// Ticks returns elapsed wall time in ticks.
func (c *Wall) Ticks() uint64 {
	return uint64(time.Since(c.start) / (MicrosPerTick * time.Microsecond))
}

// Micros returns elapsed wall time in microseconds.
func (c *Wall) Micros() uint64 {
	return uint64(time.Since(c.start) / time.Microsecond)
}
