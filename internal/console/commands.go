package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"mcukern/internal/fs"
	"mcukern/internal/sched"
)

// RegisterScheduler adds the task diagnostics commands.
func RegisterScheduler(c *Console, s *sched.Scheduler) {
	c.Register("tasks", "list queued tasks", func(w io.Writer, _ string) error {
		now := s.Now()
		fmt.Fprintf(w, "=== Tasks === now %d, %d queued, %d run\n", now, s.Len(), s.Executed())
		for _, t := range s.Tasks() {
			if t.State == sched.Running {
				fmt.Fprint(w, "<RUNNING> ")
			}
			fmt.Fprintf(w, "-[%s] runAt=%d wait=%d", t.Name, t.RunAt, t.RunAt-now)
			if t.CycleLength > 0 {
				fmt.Fprintf(w, " every=%d", t.CycleLength)
			}
			if t.Errors&sched.KindRealtime != 0 {
				color.New(color.FgRed).Fprintf(w, " REALTIME %d", t.RealtimeFail)
			}
			if t.Errors&sched.KindTimeout != 0 {
				color.New(color.FgRed).Fprintf(w, " FROZE %s", t.Timeout)
			}
			if t.Counter > 0 {
				fmt.Fprintf(w, " cnt=%d avg=%s", t.Counter, t.AvgDuration())
			}
			fmt.Fprintln(w)
		}
		return nil
	})

	c.Register("taskreset", "clear task error flags and counters", func(w io.Writer, _ string) error {
		cleared := s.ResetStats()
		fmt.Fprintf(w, "=== Reset Tasks === %d had errors", len(cleared))
		if len(cleared) > 0 {
			fmt.Fprintf(w, ": %s", strings.Join(cleared, ", "))
		}
		fmt.Fprintln(w)
		return nil
	})
}

// RegisterStore adds the file commands.
func RegisterStore(c *Console, st *fs.Store) {
	c.Register("ls", "list files", func(w io.Writer, _ string) error {
		files, err := st.List()
		if err != nil {
			return err
		}
		for _, f := range files {
			size := "?"
			if f.Size >= 0 {
				size = humanize.IBytes(uint64(f.Size))
			}
			fmt.Fprintf(w, "  %-23s %8s  @0x%08X\n", f.Name, size, f.Addr)
		}
		fmt.Fprintf(w, "%d files\n", len(files))
		return nil
	})

	c.Register("get", "print a file: get <name>", func(w io.Writer, name string) error {
		v, err := st.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s=%s\n", name, v)
		return nil
	})

	c.Register("set", "store a value: set <name>=<value>", func(w io.Writer, args string) error {
		if err := st.Set(args); err != nil {
			return err
		}
		fmt.Fprintln(w, "ok")
		return nil
	})

	c.Register("del", "delete a file: del <name>", func(w io.Writer, name string) error {
		if err := st.Delete(name); err != nil {
			return err
		}
		fmt.Fprintln(w, "deleted")
		return nil
	})

	c.Register("fsformat", "erase the whole file region", func(w io.Writer, _ string) error {
		if err := st.Format(); err != nil {
			return err
		}
		fmt.Fprintln(w, "formatted")
		return nil
	})

	c.Register("filesystem", "show region usage", func(w io.Writer, _ string) error {
		u, err := st.Usage()
		if err != nil {
			return err
		}
		fmt.Fprint(w, u.String())
		fmt.Fprintf(w, "  Map            : %s\n", u.Map())
		return nil
	})

	c.Register("fstest", "write, read back and delete a test file", func(w io.Writer, _ string) error {
		if err := st.SelfTest(); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintln(w, "fs self test passed")
		return nil
	})
}
