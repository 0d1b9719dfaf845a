// internal/sched/clock.go

package sched

import (
	"sync/atomic"
	"time"
)

// Tick is the scheduler's discrete time unit (1 ms unless configured otherwise).
type Tick int64

// Named multiples at the default 1 ms tick.
const (
	Millisecond Tick = 1
	Ms10        Tick = 10
	Ms100       Tick = 100
	Second      Tick = 1000
	Minute      Tick = 60000
)

// Clock is the time source shared by the scheduler and its consumers.
type Clock interface {
	// Now returns the monotonic tick count.
	Now() Tick
	// Micros returns a free-running microsecond counter used for task timing.
	Micros() int64
}

// ticker is implemented by clocks that can wake the main loop on every tick.
type ticker interface {
	Ticks() <-chan struct{}
}

// ManualClock only moves when told to. Tests and simulations drive it.
type ManualClock struct {
	ticks  atomic.Int64
	micros atomic.Int64
}

// NewManualClock returns a clock starting at tick 0.
func NewManualClock() *ManualClock { return &ManualClock{} }

func (c *ManualClock) Now() Tick     { return Tick(c.ticks.Load()) }
func (c *ManualClock) Micros() int64 { return c.micros.Load() }

// Advance moves the tick counter forward and the microsecond counter with it,
// assuming a 1 ms tick.
func (c *ManualClock) Advance(n Tick) {
	c.ticks.Add(int64(n))
	c.micros.Add(int64(n) * 1000)
}

// Set jumps the tick counter to t without touching the microsecond counter.
func (c *ManualClock) Set(t Tick) { c.ticks.Store(int64(t)) }

// Spend moves only the microsecond counter, simulating time spent inside a handler.
func (c *ManualClock) Spend(d time.Duration) { c.micros.Add(d.Microseconds()) }
