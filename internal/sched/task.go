package sched

import (
	"reflect"
	"time"
)

// TaskID is the handle returned by Schedule. Zero is the null handle.
type TaskID uint64

// Func is a task body. depth is the dispatch recursion level the callback runs
// at; pass it on when yielding. Returning false means the handler did not
// finish cleanly, which arms the timeout check.
type Func func(depth int) bool

// Flags select how Schedule treats a task.
type Flags uint8

const (
	Once     Flags = 1 << iota // drop queued instances of the same callback first
	Repeat                     // re-arm every delay ticks
	Priority                   // no tie-break bump, runs before equal-tick tasks
)

// TaskState is Ready or Running.
type TaskState uint8

const (
	Ready TaskState = iota
	Running
)

func (s TaskState) String() string {
	if s == Running {
		return "Running"
	}
	return "Ready"
}

// Task represents one schedulable unit of work.
type Task struct {
	ID           TaskID
	Name         string
	Callback     Func
	RunAt        Tick
	CycleLength  Tick          // 0 for one-shot tasks
	Timeout      time.Duration // soft execution budget, reported not enforced
	RealtimeFail Tick          // tolerated lateness before a realtime violation
	State        TaskState
	Errors       ErrorKind // kinds already reported
	Counter      uint32
	Duration     time.Duration // cumulative run time

	priority bool
	seq      uint64 // insertion order, keeps tree keys unique
	walk     uint64 // last walk this task ran in
	ident    uintptr
}

// TaskOption adjusts a task before it is queued.
type TaskOption func(*Task)

// WithTimeout sets the execution budget.
func WithTimeout(d time.Duration) TaskOption {
	return func(t *Task) { t.Timeout = d }
}

// WithRealtimeFail sets the tolerated lateness.
func WithRealtimeFail(n Tick) TaskOption {
	return func(t *Task) { t.RealtimeFail = n }
}

// WithStartOffset delays only the first run, leaving the cycle length alone.
func WithStartOffset(n Tick) TaskOption {
	return func(t *Task) { t.RunAt += n }
}

// TaskInfo is a read-only copy of a task's diagnostic fields.
type TaskInfo struct {
	ID           TaskID
	Name         string
	RunAt        Tick
	CycleLength  Tick
	Timeout      time.Duration
	RealtimeFail Tick
	State        TaskState
	Errors       ErrorKind
	Counter      uint32
	Duration     time.Duration
	Priority     bool
}

// AvgDuration is the mean run time, zero before the first run.
func (i TaskInfo) AvgDuration() time.Duration {
	if i.Counter == 0 {
		return 0
	}
	return i.Duration / time.Duration(i.Counter)
}

func (t *Task) info() TaskInfo {
	return TaskInfo{
		ID:           t.ID,
		Name:         t.Name,
		RunAt:        t.RunAt,
		CycleLength:  t.CycleLength,
		Timeout:      t.Timeout,
		RealtimeFail: t.RealtimeFail,
		State:        t.State,
		Errors:       t.Errors,
		Counter:      t.Counter,
		Duration:     t.Duration,
		Priority:     t.priority,
	}
}

// identity returns the code pointer of fn. Closures built from the same
// function literal share it, the same way a C handler is one address.
func identity(fn Func) uintptr {
	if fn == nil {
		return 0
	}
	return reflect.ValueOf(fn).Pointer()
}

func truncateName(name string, n int) string {
	if len(name) > n {
		return name[:n]
	}
	return name
}
