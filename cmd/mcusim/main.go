// Command mcusim runs the cooperative kernel on the host: a tick clock drives
// the scheduler, the record store lives in a flash image file, and an
// interactive shell feeds command lines into the receive ring.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/rs/zerolog"

	"mcukern/internal/config"
	"mcukern/internal/console"
	"mcukern/internal/flash"
	"mcukern/internal/fs"
	"mcukern/internal/job"
	"mcukern/internal/logging"
	"mcukern/internal/ringbuf"
	"mcukern/internal/sched"
)

const rxRingSize = 512

var (
	configPath = flag.String("config", "mcusim.yaml", "Configuration file.")
	evalOnly   = flag.Bool("e", false, "Run the arguments as console lines and exit.")
)

func main() {
	flag.Parse()

	// 1) configuration and logging
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log, nil)

	// 2) flash part and store
	dev, closeDev, err := openFlash(cfg.Flash)
	if err != nil {
		log.Fatal().Err(err).Msg("flash")
	}
	defer closeDev()
	region, err := cfg.Flash.Region()
	if err != nil {
		log.Fatal().Err(err).Msg("flash region")
	}

	// 3) kernel
	clock := sched.NewTickClock(1)
	clock.Start(cfg.Sched.TickDuration())
	defer clock.Stop()
	s := sched.New(cfg.Sched, clock,
		sched.WithLogger(log.With().Str("component", "sched").Logger()),
		sched.WithReporter(sched.LogReporter{Log: log}),
	)

	sys := &system{
		cfg:   cfg,
		log:   log,
		s:     s,
		store: fs.New(dev, region, cfg.Store, fs.WithYield(s.Yield), fs.WithLogger(log.With().Str("component", "fs").Logger())),
		ring: ringbuf.New(rxRingSize, func(b byte) {
			log.Warn().Uint8("byte", b).Msg("rx overflow")
		}),
		con:   console.New(os.Stdout, console.WithLogger(log.With().Str("component", "console").Logger())),
		ready: make(chan struct{}),
	}
	sys.boot()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-sys.ready
	if *evalOnly {
		eval(sys, flag.Args())
	} else {
		newShell(sys).Run()
	}

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("scheduler stopped")
	}
}

func openFlash(cfg config.Flash) (flash.Flash, func(), error) {
	if cfg.Path == "" {
		return flash.NewMem(cfg.Size(), cfg.PageSize), func() {}, nil
	}
	f, err := flash.OpenFile(cfg.Path, cfg.Size(), cfg.PageSize)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// eval runs each argument as a console line on the dispatch goroutine and
// waits for the last one.
func eval(sys *system, lines []string) {
	finished := make(chan struct{})
	sys.s.Exec("EVAL", func(int) bool {
		for _, line := range lines {
			if err := sys.con.Exec(line); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
		close(finished)
		return true
	})
	<-finished
}

// newShell builds the operator shell. Unknown input is typed into the receive
// ring as if it came over the serial line.
func newShell(sys *system) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("mcu > ")
	sh.NotFound(func(c *ishell.Context) {
		line := strings.Join(c.RawArgs, " ") + "\r\n"
		if n := sys.ring.Write([]byte(line)); n < len(line) {
			c.Err(fmt.Errorf("rx ring full, %d of %d bytes sent", n, len(line)))
		}
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "busy",
		Help: "MS: queue a task that runs MS milliseconds without finishing",
		Func: func(c *ishell.Context) {
			ms := 5
			if len(c.Args) > 0 {
				if _, err := fmt.Sscanf(c.Args[0], "%d", &ms); err != nil {
					c.Err(err)
					return
				}
			}
			sys.s.After("BUSY", 0, job.Busy(sys.s.Clock(), time.Duration(ms)*time.Millisecond))
			c.Printf("queued %dms busy task\n", ms)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "loglevel",
		Help: "LEVEL: set the global minimum log level",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("level expected"))
				return
			}
			lvl := logging.ParseLevel(c.Args[0], zerolog.GlobalLevel())
			zerolog.SetGlobalLevel(lvl)
			c.Println("log level", lvl)
		},
	})
	return sh
}
