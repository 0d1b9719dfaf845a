// internal/sched/tickclock.go

package sched

import (
	"sync/atomic"
	"time"
)

// TickClock emits ticks and counts them atomically, like a SysTick interrupt.
type TickClock struct {
	Ch    chan struct{}
	count atomic.Int64
	start time.Time
	stop  chan struct{}
}

// NewTickClock creates a clock but does not start it.
func NewTickClock(buffer int) *TickClock {
	return &TickClock{
		Ch:    make(chan struct{}, buffer),
		start: time.Now(),
		stop:  make(chan struct{}),
	}
}

// Start begins emitting ticks at the given interval.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				// NOTE: a full channel only loses the wakeup, never the tick count.
				select {
				case c.Ch <- struct{}{}:
				default:
				}
			case <-c.stop:
				close(c.Ch)
				return
			}
		}
	}()
}

// Stop signals the clock to stop emitting ticks.
func (c *TickClock) Stop() {
	close(c.stop)
}

// Now returns the current tick count atomically.
func (c *TickClock) Now() Tick {
	return Tick(c.count.Load())
}

// Micros returns microseconds since the clock was created.
func (c *TickClock) Micros() int64 {
	return time.Since(c.start).Microseconds()
}

// Ticks exposes the wakeup channel to the scheduler main loop.
func (c *TickClock) Ticks() <-chan struct{} { return c.Ch }
