package main

import (
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"mcukern/internal/config"
	"mcukern/internal/console"
	"mcukern/internal/fs"
	"mcukern/internal/job"
	"mcukern/internal/ringbuf"
	"mcukern/internal/sched"
)

const (
	rxPeriod        = 5 * sched.Millisecond
	heartbeatPeriod = 10 * sched.Second
)

// system is everything the boot tasks wire together.
type system struct {
	cfg   config.Config
	log   zerolog.Logger
	s     *sched.Scheduler
	store *fs.Store
	ring  *ringbuf.Ring
	con   *console.Console
	ready chan struct{} // closed once LOAD has run
}

// boot queues the staggered start-up tasks, 10 ticks apart.
func (sys *system) boot() {
	s := sys.s
	timing := sched.Tick(10)

	s.Exec("BOOT", func(int) bool {
		sys.log.Info().Str("region", sys.store.Region().String()).Msg("boot")
		return true
	})

	timing += 10
	s.Schedule("CNS_INIT", timing, 0, sys.consoleInit, sched.WithTimeout(50*time.Millisecond))

	timing += 10
	s.After("FS_INIT", timing, sys.fsInit)

	timing += 10
	s.After("LOAD", timing, func(int) bool {
		s.Repeat("HEARTBT", heartbeatPeriod, job.Heartbeat(sys.log, s.Clock()))
		sys.log.Info().Int("tasks", s.Len()).Msg("loaded")
		close(sys.ready)
		return true
	})
}

func (sys *system) consoleInit(int) bool {
	console.RegisterScheduler(sys.con, sys.s)
	sys.s.Repeat("UART_RX", rxPeriod, sys.con.RxProcessor(sys.ring, sys.s),
		sched.WithTimeout(30*time.Millisecond),
		sched.WithRealtimeFail(10*sched.Second),
		sched.WithStartOffset(10*sched.Millisecond),
	)
	sys.log.Info().Strs("commands", sys.con.Names()).Msg("console loaded")
	return true
}

func (sys *system) fsInit(int) bool {
	console.RegisterStore(sys.con, sys.store)

	names := make([]string, 0, len(sys.cfg.Boot))
	for name := range sys.cfg.Boot {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, err := sys.store.Find(name)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotFound) {
			sys.log.Error().Err(err).Str("file", name).Msg("boot file lookup failed")
			continue
		}
		if err := sys.store.WriteString(name, sys.cfg.Boot[name]); err != nil {
			sys.log.Error().Err(err).Str("file", name).Msg("boot file not written")
		}
	}

	u, err := sys.store.Usage()
	if err != nil {
		sys.log.Error().Err(err).Msg("filesystem scan failed")
		return true
	}
	sys.log.Info().Int("files", u.Files).Int("free_chunks", u.FreeChunks).Str("map", u.Map()).Msg("filesystem loaded")
	return true
}
