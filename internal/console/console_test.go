package console

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcukern/internal/flash"
	"mcukern/internal/fs"
	"mcukern/internal/ringbuf"
	"mcukern/internal/sched"
)

func init() {
	color.NoColor = true
}

func TestExecSplitsArgs(t *testing.T) {
	var out bytes.Buffer
	c := New(&out)

	var got string
	c.Register("echo", "print args", func(w io.Writer, args string) error {
		got = args
		return nil
	})

	require.NoError(t, c.Exec("  echo   hello world "))
	assert.Equal(t, "hello world", got)
	require.NoError(t, c.Exec("echo"))
	assert.Empty(t, got)
	require.NoError(t, c.Exec("   "))
}

func TestExecUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	c := New(&out)
	require.ErrorIs(t, c.Exec("reboot now"), ErrUnknownCommand)
	assert.Equal(t, "unknown command reboot now\n", out.String())

	var seen string
	c = New(&out, WithFallback(func(w io.Writer, line string) error {
		seen = line
		return nil
	}))
	require.NoError(t, c.Exec("custom 1"))
	assert.Equal(t, "custom 1", seen)
}

func TestExecWrapsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	c := New(io.Discard)
	c.Register("fail", "", func(io.Writer, string) error { return boom })

	err := c.Exec("fail")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "fail: boom", err.Error())
}

func TestNamesAndHelpAreSorted(t *testing.T) {
	var out bytes.Buffer
	c := New(&out)
	for _, n := range []string{"tasks", "about", "taskreset"} {
		c.Register(n, n+" help", func(io.Writer, string) error { return nil })
	}
	assert.Equal(t, []string{"about", "help", "taskreset", "tasks"}, c.Names())

	require.NoError(t, c.Exec("help task"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "taskreset")
	assert.Contains(t, lines[1], "tasks help")
}

type rig struct {
	out   bytes.Buffer
	clock *sched.ManualClock
	s     *sched.Scheduler
	ring  *ringbuf.Ring
	c     *Console
	rx    sched.Func
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{clock: sched.NewManualClock()}
	r.s = sched.New(sched.DefaultConfig(), r.clock)
	r.ring = ringbuf.New(512, nil)
	r.c = New(&r.out)
	r.rx = r.c.RxProcessor(r.ring, r.s)
	r.s.Repeat("UART_R", 1, r.rx)
	return r
}

func (r *rig) send(t *testing.T, text string) {
	t.Helper()
	require.Equal(t, len(text), r.ring.Write([]byte(text)))
	for i := 0; i < 5; i++ {
		r.clock.Advance(1)
		require.NoError(t, r.s.Dispatch(0))
	}
}

func TestRxProcessorRunsLines(t *testing.T) {
	r := newRig(t)
	var calls []string
	r.c.Register("led", "", func(_ io.Writer, args string) error {
		calls = append(calls, args)
		return nil
	})

	r.send(t, "led on\r\n\r\nled off\n")
	assert.Equal(t, []string{"on", "off"}, calls)
	assert.Contains(t, r.out.String(), "> led on\n")
	assert.Zero(t, r.ring.Len())
}

func TestRxProcessorAssemblesSplitLines(t *testing.T) {
	r := newRig(t)
	var calls []string
	r.c.Register("led", "", func(_ io.Writer, args string) error {
		calls = append(calls, args)
		return nil
	})

	r.send(t, "led o")
	assert.Empty(t, calls)
	r.send(t, "n\r")
	assert.Equal(t, []string{"on"}, calls)
}

func TestRxProcessorDropsLongLines(t *testing.T) {
	r := newRig(t)
	var calls []string
	r.c.Register("x", "", func(_ io.Writer, args string) error {
		calls = append(calls, args)
		return nil
	})

	r.send(t, "x "+strings.Repeat("a", LineMax)+"\nx ok\n")
	assert.Equal(t, []string{"ok"}, calls)
}

func TestRxProcessorReportsErrors(t *testing.T) {
	r := newRig(t)
	r.c.Register("fail", "", func(io.Writer, string) error { return errors.New("nope") })

	r.send(t, "fail\nwhat\n")
	assert.Contains(t, r.out.String(), "error: fail: nope\n")
	assert.Contains(t, r.out.String(), "unknown command what\n")
}

func TestSchedulerCommands(t *testing.T) {
	r := newRig(t)
	RegisterScheduler(r.c, r.s)
	r.s.Repeat("BLINK", 500, func(int) bool { return true })

	r.out.Reset()
	require.NoError(t, r.c.Exec("tasks"))
	assert.Contains(t, r.out.String(), "-[UART_R]")
	assert.Contains(t, r.out.String(), "-[BLINK] runAt=500 wait=500 every=500")

	r.out.Reset()
	require.NoError(t, r.c.Exec("taskreset"))
	assert.Equal(t, "=== Reset Tasks === 0 had errors\n", r.out.String())
}

func TestStoreCommands(t *testing.T) {
	mem := flash.NewMem(8*1024, 1024)
	region, err := flash.NewRegion(0x08000000, 0x08000800, 8*1024, 1024)
	require.NoError(t, err)
	st := fs.New(mem, region, fs.DefaultConfig())

	var out bytes.Buffer
	c := New(&out)
	RegisterStore(c, st)

	require.NoError(t, c.Exec("set wifi=on"))
	require.NoError(t, c.Exec("get wifi"))
	assert.Contains(t, out.String(), "wifi=on\n")

	out.Reset()
	require.NoError(t, c.Exec("ls"))
	assert.Contains(t, out.String(), "wifi")
	assert.Contains(t, out.String(), "1 files\n")

	require.ErrorIs(t, c.Exec("set broken"), fs.ErrMalformed)
	require.NoError(t, c.Exec("del wifi"))
	require.ErrorIs(t, c.Exec("get wifi"), fs.ErrNotFound)

	out.Reset()
	require.NoError(t, c.Exec("fstest"))
	assert.Contains(t, out.String(), "fs self test passed")

	out.Reset()
	require.NoError(t, c.Exec("filesystem"))
	assert.Contains(t, out.String(), "Map            : ......")

	require.NoError(t, c.Exec("fsformat"))
	out.Reset()
	require.NoError(t, c.Exec("ls"))
	assert.Equal(t, "0 files\n", out.String())
}

func TestRxProcessorDoesNotNestCommands(t *testing.T) {
	r := newRig(t)
	var order []string
	r.c.Register("mark", "", func(io.Writer, string) error {
		order = append(order, "mark")
		return nil
	})
	r.c.Register("slow", "", func(io.Writer, string) error {
		order = append(order, "slow start")
		r.ring.Write([]byte("mark\n"))
		for i := 0; i < 3; i++ {
			r.clock.Advance(1)
			require.NoError(t, r.s.Yield())
		}
		order = append(order, "slow end")
		return nil
	})

	r.send(t, "slow\n")
	assert.Equal(t, []string{"slow start", "slow end", "mark"}, order)
}
