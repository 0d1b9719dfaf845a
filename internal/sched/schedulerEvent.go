// internal/sched/schedulerEvent.go

package sched

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrorKind is a bit in a task's error flag set.
type ErrorKind uint8

const (
	KindTimeout   ErrorKind = 1 << iota // handler ran longer than its budget
	KindRealtime                        // task became eligible too late
	KindTaskLimit                       // too many tasks visited in one walk
	KindDepth                           // dispatch recursion too deep
)

var (
	ErrDepthExceeded = errors.New("sched: dispatch depth exceeded")
	ErrTaskLimit     = errors.New("sched: task limit exceeded in one walk")
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindRealtime:
		return "Realtime"
	case KindTaskLimit:
		return "TaskLimit"
	case KindDepth:
		return "Depth"
	default:
		return "Unknown"
	}
}

// Violation describes one reported scheduling problem.
// Task is nil for scheduler integrity failures.
type Violation struct {
	Task *TaskInfo
	Kind ErrorKind
	// Late is the lateness beyond RealtimeFail for KindRealtime.
	Late Tick
	// Took is the measured run time for KindTimeout.
	Took time.Duration
}

// Reporter receives violations. Per-task kinds arrive at most once until the
// task's stats are reset.
type Reporter interface {
	ReportViolation(Violation)
}

// ReporterFunc is func type of Reporter.
type ReporterFunc func(Violation)

// ReportViolation implements Reporter.
func (f ReporterFunc) ReportViolation(v Violation) { f(v) }

// NopReporter drops every violation.
type NopReporter struct{}

func (NopReporter) ReportViolation(Violation) {}

// LogReporter writes violations to a zerolog logger.
type LogReporter struct {
	Log zerolog.Logger
}

// ReportViolation implements Reporter.
func (r LogReporter) ReportViolation(v Violation) {
	if v.Task == nil {
		r.Log.Error().Str("kind", v.Kind.String()).Msg("tasker error")
		return
	}
	ev := r.Log.Warn().Str("task", v.Task.Name).Str("kind", v.Kind.String())
	switch v.Kind {
	case KindRealtime:
		ev = ev.Int64("late_ticks", int64(v.Late))
	case KindTimeout:
		ev = ev.Dur("took", v.Took)
	}
	ev.Msg("task error")
}
