package console

import (
	"errors"

	"github.com/fatih/color"

	"mcukern/internal/ringbuf"
	"mcukern/internal/sched"
)

// LineMax is the longest accepted command line, terminator excluded.
const LineMax = 127

// RxProcessor returns a periodic task body that drains ring, assembles
// CR/LF-terminated lines and hands complete lines to a one-shot task. A line
// longer than LineMax is discarded.
func (c *Console) RxProcessor(ring *ringbuf.Ring, s *sched.Scheduler) sched.Func {
	c.sched = s
	return func(depth int) bool {
		queued := false
		for {
			b, ok := ring.ReadByte()
			if !ok {
				break
			}
			switch {
			case b == '\r' || b == '\n':
				if len(c.line) > 0 && !c.overflow {
					c.mu.Lock()
					c.pending = append(c.pending, string(c.line))
					c.mu.Unlock()
					queued = true
				}
				c.line = c.line[:0]
				c.overflow = false
			case c.overflow:
			case len(c.line) < LineMax:
				c.line = append(c.line, b)
			default:
				c.log.Warn().Int("max", LineMax).Msg("command line too long, dropped")
				c.overflow = true
			}
		}
		if queued {
			s.Exec("CMD", c.runPending)
		}
		return true
	}
}

// runPending executes every queued line in arrival order. Commands may yield,
// so a nested call only re-arms itself for the next tick.
func (c *Console) runPending(depth int) bool {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.sched.AfterOnce("CMD", 1, c.runPending)
		return true
	}
	c.running = true
	lines := c.pending
	c.pending = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	for _, line := range lines {
		color.New(color.FgYellow).Fprintf(c.out, "> %s\n", line)
		if err := c.Exec(line); err != nil {
			c.log.Debug().Err(err).Str("line", line).Msg("command failed")
			if !errors.Is(err, ErrUnknownCommand) {
				color.New(color.FgRed).Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
	return true
}
