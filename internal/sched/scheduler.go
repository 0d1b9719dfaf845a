// internal/sched/scheduler.go

package sched

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/rs/zerolog"
)

// Scheduler keeps one time-ordered run list and dispatches due tasks cooperatively.
type Scheduler struct {
	mu       sync.Mutex         // protects the run list; released while a callback runs
	cfg      Config             // limits and task defaults
	clock    Clock              // tick and microsecond source
	rbt      *redblacktree.Tree // run list ordered by nodeKey
	tasks    map[TaskID]*Task   // every queued task by handle
	nextID   TaskID             // last handle given out
	seq      uint64             // insertion counter for tree keys
	walks    uint64             // dispatch walk counter
	depth    int                // depth handed to the callback currently running
	executed uint64             // callbacks invoked since start

	reporter Reporter
	log      zerolog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithReporter replaces the default log-based violation reporter.
func WithReporter(r Reporter) Option {
	return func(s *Scheduler) { s.reporter = r }
}

// WithLogger sets the logger used for scheduler diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a Scheduler reading time from clock.
func New(cfg Config, clock Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:   cfg.Normalize(),
		clock: clock,
		rbt:   redblacktree.NewWith(cmp),
		tasks: make(map[TaskID]*Task),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = LogReporter{Log: s.log}
	}
	return s
}

// Now returns the current tick.
func (s *Scheduler) Now() Tick { return s.clock.Now() }

// Clock is the time source the scheduler was built with.
func (s *Scheduler) Clock() Clock { return s.clock }

// Ticks converts a wall-clock duration to ticks at the configured tick length.
func (s *Scheduler) Ticks(d time.Duration) Tick {
	return Tick(d / s.cfg.TickDuration())
}

// Schedule queues cb to run delay ticks from now and returns its handle.
// The null handle 0 means nothing was queued.
func (s *Scheduler) Schedule(name string, delay Tick, flags Flags, cb Func, opts ...TaskOption) TaskID {
	if cb == nil {
		return 0
	}
	if delay < 0 {
		delay = 0
	}
	ident := identity(cb)

	s.mu.Lock()
	defer s.mu.Unlock()

	if flags&Once != 0 {
		s.removeLocked(ident)
	}
	if len(s.tasks) >= s.cfg.Capacity {
		s.log.Warn().Str("task", name).Int("capacity", s.cfg.Capacity).Msg("run list full, task dropped")
		return 0
	}

	s.nextID++
	t := &Task{
		ID:           s.nextID,
		Name:         truncateName(name, s.cfg.NameLength),
		Callback:     cb,
		RunAt:        s.clock.Now() + delay,
		Timeout:      time.Duration(s.cfg.TaskTimeoutUS) * time.Microsecond,
		RealtimeFail: Tick(s.cfg.RealtimeFailTicks),
		priority:     flags&Priority != 0,
		ident:        ident,
	}
	if flags&Repeat != 0 {
		t.CycleLength = delay
	}
	for _, opt := range opts {
		opt(t)
	}

	s.tasks[t.ID] = t
	s.insertLocked(t)
	return t.ID
}

// Exec runs cb as soon as possible, keeping a single queued instance.
func (s *Scheduler) Exec(name string, cb Func) TaskID {
	return s.Schedule(name, 0, Once, cb)
}

// ExecPriority is Exec ahead of other tasks due on the same tick.
func (s *Scheduler) ExecPriority(name string, cb Func) TaskID {
	return s.Schedule(name, 0, Once|Priority, cb)
}

// After runs cb once after delay, without removing other instances.
func (s *Scheduler) After(name string, delay Tick, cb Func) TaskID {
	return s.Schedule(name, delay, 0, cb)
}

// AfterOnce runs cb once after delay, replacing queued instances.
func (s *Scheduler) AfterOnce(name string, delay Tick, cb Func) TaskID {
	return s.Schedule(name, delay, Once, cb)
}

// Repeat runs cb every period ticks. At most one instance stays queued.
func (s *Scheduler) Repeat(name string, period Tick, cb Func, opts ...TaskOption) TaskID {
	return s.Schedule(name, period, Repeat|Once, cb, opts...)
}

// RepeatPriority is Repeat without the tie-break bump.
func (s *Scheduler) RepeatPriority(name string, period Tick, cb Func, opts ...TaskOption) TaskID {
	return s.Schedule(name, period, Repeat|Once|Priority, cb, opts...)
}

// Cancel removes every queued task running cb and returns how many were removed.
// A one-shot callback that is already executing is not affected.
func (s *Scheduler) Cancel(cb Func) int {
	if cb == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(identity(cb))
}

// Exists counts queued instances of cb.
func (s *Scheduler) Exists(cb Func) int {
	if cb == nil {
		return 0
	}
	ident := identity(cb)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		if t.ident == ident {
			n++
		}
	}
	return n
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Executed returns how many callbacks have been invoked.
func (s *Scheduler) Executed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

// Dispatch walks the run list once and runs every due, ready task.
// It is safe to call from inside a callback; pass the depth the callback got.
func (s *Scheduler) Dispatch(depth int) error {
	if depth > s.cfg.MaxDepth {
		s.reporter.ReportViolation(Violation{Kind: KindDepth})
		return ErrDepthExceeded
	}

	s.mu.Lock()
	s.walks++
	walk := s.walks
	s.mu.Unlock()

	cursor := nodeKey{runAt: math.MinInt64}
	visited := 0
	for {
		// 1) find the next entry at or after the cursor
		s.mu.Lock()
		now := s.clock.Now()
		node, found := s.rbt.Ceiling(cursor)
		if !found || node.Key.(nodeKey).runAt > now {
			s.mu.Unlock()
			return nil
		}
		key := node.Key.(nodeKey)
		cursor = key.next()

		// 2) runaway guard
		visited++
		if visited > s.cfg.MaxTasksPerWalk {
			s.mu.Unlock()
			s.reporter.ReportViolation(Violation{Kind: KindTaskLimit})
			return ErrTaskLimit
		}

		// 3) skip tasks already running further up the stack or already run in this walk
		t := node.Value.(*Task)
		if t.State != Ready || t.walk == walk {
			s.mu.Unlock()
			continue
		}

		// 4) run it; runLocked releases the lock around the callback
		pending := s.runLocked(t, now, depth, walk)
		s.mu.Unlock()

		for _, v := range pending {
			s.reporter.ReportViolation(v)
		}
	}
}

// runLocked invokes one task. It is called and returns with s.mu held and
// gives back any violations to report once the lock is dropped.
func (s *Scheduler) runLocked(t *Task, now Tick, depth int, walk uint64) []Violation {
	var pending []Violation

	if late := now - t.RunAt; late > t.RealtimeFail {
		if v, ok := s.flagLocked(t, KindRealtime); ok {
			v.Late = late - t.RealtimeFail
			pending = append(pending, v)
		}
	}

	// NOTE: one-shot tasks leave the list before running, so the callback may
	// reschedule itself without being removed again afterwards.
	oneShot := t.CycleLength == 0
	if oneShot {
		s.unlinkLocked(t)
	}

	t.State = Running
	t.walk = walk
	s.executed++
	prevDepth := s.depth
	s.depth = depth + 1
	s.mu.Unlock()

	for _, v := range pending {
		s.reporter.ReportViolation(v)
	}
	pending = pending[:0]

	start := s.clock.Micros()
	finished := t.Callback(depth + 1)
	took := time.Duration(s.clock.Micros()-start) * time.Microsecond

	s.mu.Lock()
	s.depth = prevDepth
	t.State = Ready
	t.Counter++
	t.Duration += took

	if !finished && took > t.Timeout {
		if v, ok := s.flagLocked(t, KindTimeout); ok {
			v.Took = took
			pending = append(pending, v)
		}
	}

	// periodic tasks re-arm unless the callback cancelled them
	if !oneShot && s.tasks[t.ID] == t {
		s.rbt.Remove(t.key())
		t.RunAt += t.CycleLength
		s.insertLocked(t)
	}
	return pending
}

// Yield runs one nested walk at the depth of the callback currently executing.
// Long operations call it between steps to keep other tasks alive.
func (s *Scheduler) Yield() error {
	s.mu.Lock()
	depth := s.depth
	s.mu.Unlock()
	return s.Dispatch(depth)
}

// Delay keeps dispatching until n ticks have passed.
func (s *Scheduler) Delay(n Tick) {
	s.mu.Lock()
	depth := s.depth
	s.mu.Unlock()
	if depth < 1 {
		depth = 1
	}

	haltAt := s.clock.Now() + n
	for s.clock.Now() < haltAt {
		_ = s.Dispatch(depth)
		runtime.Gosched()
	}
}

// Run is the main loop: dispatch at depth 0, then wait for the next tick when
// the clock can signal one.
func (s *Scheduler) Run(ctx context.Context) error {
	var wake <-chan struct{}
	if tc, ok := s.clock.(ticker); ok {
		wake = tc.Ticks()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Dispatch(0); err != nil {
			s.log.Debug().Err(err).Msg("walk aborted")
		}

		if wake == nil {
			runtime.Gosched()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-wake:
			if !ok {
				return nil
			}
		}
	}
}

// insertLocked puts t into the run list. If a non-priority task lands on a
// tick that is already taken, it moves one tick later until the tick is free.
func (s *Scheduler) insertLocked(t *Task) {
	if !t.priority {
		for s.occupiedLocked(t.RunAt) {
			t.RunAt++
		}
	}
	s.seq++
	t.seq = s.seq
	s.rbt.Put(t.key(), t)
}

func (s *Scheduler) occupiedLocked(at Tick) bool {
	node, found := s.rbt.Ceiling(nodeKey{runAt: at})
	return found && node.Key.(nodeKey).runAt == at
}

func (s *Scheduler) unlinkLocked(t *Task) {
	s.rbt.Remove(t.key())
	delete(s.tasks, t.ID)
}

func (s *Scheduler) removeLocked(ident uintptr) int {
	var doomed []*Task
	for _, t := range s.tasks {
		if t.ident == ident {
			doomed = append(doomed, t)
		}
	}
	for _, t := range doomed {
		s.unlinkLocked(t)
	}
	return len(doomed)
}

// flagLocked marks kind on t and reports whether it was new.
func (s *Scheduler) flagLocked(t *Task, kind ErrorKind) (Violation, bool) {
	if t.Errors&kind != 0 {
		return Violation{}, false
	}
	t.Errors |= kind
	info := t.info()
	return Violation{Task: &info, Kind: kind}, true
}

// nodeKey is used as a key in the red-black tree.
type nodeKey struct {
	runAt Tick
	class uint8 // 0 for priority tasks, 1 otherwise
	seq   uint64
}

func (k nodeKey) next() nodeKey {
	k.seq++
	return k
}

func (t *Task) key() nodeKey {
	k := nodeKey{runAt: t.RunAt, class: 1, seq: t.seq}
	if t.priority {
		k.class = 0
	}
	return k
}

// cmp orders nodeKeys by run tick, then priority class, then insertion order.
func cmp(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	switch {
	case ka.runAt < kb.runAt:
		return -1
	case ka.runAt > kb.runAt:
		return 1
	case ka.class < kb.class:
		return -1
	case ka.class > kb.class:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}
