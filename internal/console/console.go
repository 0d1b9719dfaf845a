// Package console is the line-oriented command interpreter of the firmware.
// Lines arrive through a byte ring and are executed by scheduler tasks.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"mcukern/internal/sched"
)

// ErrUnknownCommand is returned by the default fallback.
var ErrUnknownCommand = errors.New("console: unknown command")

// Handler runs one command. args is everything after the first space.
type Handler func(w io.Writer, args string) error

type command struct {
	name string
	help string
	run  Handler
}

// Console dispatches command lines to registered handlers.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	cmds     *treemap.Map // name -> *command
	fallback func(w io.Writer, line string) error
	log      zerolog.Logger

	line     []byte // owned by the rx task
	overflow bool
	pending  []string
	running  bool
	sched    *sched.Scheduler
}

// Option configures a Console.
type Option func(*Console)

// WithFallback sets the handler for lines naming no registered command.
func WithFallback(fn func(w io.Writer, line string) error) Option {
	return func(c *Console) { c.fallback = fn }
}

// WithLogger sets the console logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Console) { c.log = l }
}

// New returns a console writing to out with the help command registered.
func New(out io.Writer, opts ...Option) *Console {
	c := &Console{
		out:  out,
		cmds: treemap.NewWithStringComparator(),
		log:  zerolog.Nop(),
	}
	c.fallback = func(w io.Writer, line string) error {
		color.New(color.FgRed).Fprintf(w, "unknown command %s\n", line)
		return ErrUnknownCommand
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Register("help", "list commands, optionally by prefix", c.help)
	return c
}

// Out is the writer handlers print to.
func (c *Console) Out() io.Writer { return c.out }

// Register adds or replaces the command name.
func (c *Console) Register(name, help string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds.Put(name, &command{name: name, help: help, run: h})
}

// Names returns the registered command names in order.
func (c *Console) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.cmds.Size())
	for _, k := range c.cmds.Keys() {
		out = append(out, k.(string))
	}
	return out
}

// Exec runs one command line. Blank lines are ignored.
func (c *Console) Exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	c.mu.Lock()
	v, found := c.cmds.Get(name)
	c.mu.Unlock()

	if !found {
		return c.fallback(c.out, line)
	}
	cmd := v.(*command)
	c.log.Debug().Str("cmd", name).Str("args", args).Msg("exec")
	if err := cmd.run(c.out, args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (c *Console) help(w io.Writer, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it := c.cmds.Iterator()
	for it.Next() {
		cmd := it.Value().(*command)
		if !strings.HasPrefix(cmd.name, prefix) {
			continue
		}
		fmt.Fprintf(w, "  %-12s %s\n", cmd.name, cmd.help)
	}
	return nil
}
