// Package job holds canned task bodies used by the simulator and in tests.
package job

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"mcukern/internal/sched"
)

// spender is a clock whose time moves only when told to.
type spender interface {
	Spend(d time.Duration)
}

// Busy returns a task body that occupies the dispatcher for d and reports it
// did not finish, so the scheduler's timeout check applies to it.
func Busy(clock sched.Clock, d time.Duration) sched.Func {
	return func(depth int) bool {
		// simulated clocks advance instead of spinning
		if sp, ok := clock.(spender); ok {
			sp.Spend(d)
			return false
		}
		deadline := clock.Micros() + d.Microseconds()
		for clock.Micros() < deadline {
			runtime.Gosched()
		}
		return false
	}
}

// Heartbeat returns a task body that logs the tick count at info level.
func Heartbeat(log zerolog.Logger, clock sched.Clock) sched.Func {
	var beats uint64
	return func(depth int) bool {
		beats++
		log.Info().Int64("tick", int64(clock.Now())).Uint64("beat", beats).Int("depth", depth).Msg("heartbeat")
		return true
	}
}
