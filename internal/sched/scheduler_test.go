package sched

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	violations []Violation
}

func (r *recorder) ReportViolation(v Violation) { r.violations = append(r.violations, v) }

func (r *recorder) count(kind ErrorKind) int {
	n := 0
	for _, v := range r.violations {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

func newTestScheduler(t *testing.T) (*Scheduler, *ManualClock, *recorder) {
	t.Helper()
	clock := NewManualClock()
	rec := &recorder{}
	return New(DefaultConfig(), clock, WithReporter(rec)), clock, rec
}

func TestScheduleThenExists(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	cb := func(int) bool { return true }

	for _, flags := range []Flags{0, Once, Repeat | Once, Priority} {
		id := s.Schedule("job", 5, flags, cb)
		require.NotZero(t, id)
		assert.GreaterOrEqual(t, s.Exists(cb), 1)
	}
}

func TestScheduleNullHandle(t *testing.T) {
	clock := NewManualClock()
	cfg := DefaultConfig()
	cfg.Capacity = 2
	s := New(cfg, clock, WithReporter(NopReporter{}))

	assert.Zero(t, s.Schedule("nil", 0, 0, nil))
	cb := func(int) bool { return true }
	assert.NotZero(t, s.After("a", 1, cb))
	assert.NotZero(t, s.After("b", 1, cb))
	assert.Zero(t, s.After("c", 1, cb))
	assert.Equal(t, 2, s.Len())
}

func TestNameTruncated(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.After("VERY_LONG_NAME", 1, func(int) bool { return true })
	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "VERY_LON", tasks[0].Name)
}

func TestRunListOrderAndTieBreak(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	fa := func(int) bool { return true }
	fb := func(int) bool { return true }
	fc := func(int) bool { return true }
	fp := func(int) bool { return true }

	s.After("a", 5, fa)
	s.After("b", 5, fb)
	s.After("c", 5, fc)
	s.Schedule("p", 5, Priority, fp)
	s.After("z", 2, fa)

	tasks := s.Tasks()
	require.Len(t, tasks, 5)

	var names []string
	for _, ti := range tasks {
		names = append(names, ti.Name)
	}
	assert.Equal(t, []string{"z", "p", "a", "b", "c"}, names)
	assert.Equal(t, []Tick{2, 5, 5, 6, 7}, []Tick{tasks[0].RunAt, tasks[1].RunAt, tasks[2].RunAt, tasks[3].RunAt, tasks[4].RunAt})

	for i := 1; i < len(tasks); i++ {
		assert.LessOrEqual(t, tasks[i-1].RunAt, tasks[i].RunAt)
		if !tasks[i-1].Priority && !tasks[i].Priority {
			assert.NotEqual(t, tasks[i-1].RunAt, tasks[i].RunAt)
		}
	}
}

func TestRepeatOnceDedup(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	cb := func(int) bool { return true }

	s.Repeat("r", 10, cb)
	s.Repeat("r", 10, cb)
	assert.Equal(t, 1, s.Exists(cb))

	// plain scheduling keeps duplicates
	s.After("r", 10, cb)
	assert.Equal(t, 2, s.Exists(cb))
	assert.Equal(t, 2, s.Cancel(cb))
	assert.Zero(t, s.Exists(cb))
}

func TestDispatchOrderAndOneShotRemoval(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	var order []string
	s.Exec("a", func(int) bool { order = append(order, "a"); return true })
	s.ExecPriority("p", func(int) bool { order = append(order, "p"); return true })
	s.After("later", 50, func(int) bool { order = append(order, "later"); return true })

	require.NoError(t, s.Dispatch(0))
	assert.Equal(t, []string{"p", "a"}, order)
	assert.Equal(t, 1, s.Len())

	clock.Advance(50)
	require.NoError(t, s.Dispatch(0))
	assert.Equal(t, []string{"p", "a", "later"}, order)
	assert.Zero(t, s.Len())
	assert.EqualValues(t, 3, s.Executed())
}

func TestPeriodicRearms(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	runs := 0
	cb := func(int) bool { runs++; return true }
	s.Repeat("tick", 10, cb)

	for i := 0; i < 35; i++ {
		clock.Advance(1)
		require.NoError(t, s.Dispatch(0))
	}
	assert.Equal(t, 3, runs)

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, Tick(40), tasks[0].RunAt)
	assert.EqualValues(t, 3, tasks[0].Counter)
}

func TestPeriodicRunsOncePerWalk(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	runs := 0
	s.Repeat("fast", 1, func(int) bool { runs++; return true })

	clock.Advance(20)
	require.NoError(t, s.Dispatch(0))
	assert.Equal(t, 1, runs)
}

func TestTimeoutReportedOncePerKind(t *testing.T) {
	s, clock, rec := newTestScheduler(t)
	s.Repeat("slow", 1, func(int) bool {
		clock.Spend(5 * time.Millisecond)
		return false
	})

	for i := 0; i < 10; i++ {
		clock.Advance(1)
		require.NoError(t, s.Dispatch(0))
	}
	assert.Equal(t, 1, rec.count(KindTimeout))
	require.NotNil(t, rec.violations[0].Task)
	assert.Equal(t, "slow", rec.violations[0].Task.Name)
	assert.Equal(t, 5*time.Millisecond, rec.violations[0].Took)

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, KindTimeout, tasks[0].Errors&KindTimeout)
	assert.Equal(t, 5*time.Millisecond, tasks[0].AvgDuration())

	assert.Equal(t, []string{"slow"}, s.ResetStats())
	clock.Advance(1)
	require.NoError(t, s.Dispatch(0))
	assert.Equal(t, 2, rec.count(KindTimeout))
}

func TestFinishedHandlerNeverTimesOut(t *testing.T) {
	s, clock, rec := newTestScheduler(t)
	s.Exec("slow", func(int) bool {
		clock.Spend(50 * time.Millisecond)
		return true
	})
	require.NoError(t, s.Dispatch(0))
	assert.Zero(t, rec.count(KindTimeout))
}

func TestRealtimeViolation(t *testing.T) {
	s, clock, rec := newTestScheduler(t)
	s.Repeat("late", 1, func(int) bool { return true })

	clock.Advance(11)
	require.NoError(t, s.Dispatch(0))
	require.Equal(t, 1, rec.count(KindRealtime))
	assert.Equal(t, Tick(7), rec.violations[0].Late)

	clock.Advance(20)
	require.NoError(t, s.Dispatch(0))
	assert.Equal(t, 1, rec.count(KindRealtime))
}

func TestTaskLimitAbortsWalkOnly(t *testing.T) {
	s, clock, rec := newTestScheduler(t)
	limit := DefaultConfig().MaxTasksPerWalk
	total := limit + 10
	ran := 0
	work := func(int) bool { ran++; return true }

	s.Exec("spawn", func(int) bool {
		clock.Advance(1)
		for i := 0; i < total; i++ {
			s.Schedule("w", 0, Priority, work)
		}
		return true
	})

	err := s.Dispatch(0)
	require.ErrorIs(t, err, ErrTaskLimit)
	assert.Equal(t, 1, rec.count(KindTaskLimit))
	assert.Equal(t, limit-1, ran)
	assert.Equal(t, total-ran, s.Len())

	require.NoError(t, s.Dispatch(0))
	assert.Equal(t, total, ran)
	assert.Zero(t, s.Len())
}

func TestDepthExceeded(t *testing.T) {
	s, _, rec := newTestScheduler(t)
	err := s.Dispatch(DefaultConfig().MaxDepth + 1)
	require.ErrorIs(t, err, ErrDepthExceeded)
	assert.Equal(t, 1, rec.count(KindDepth))
	require.Nil(t, rec.violations[0].Task)
}

func TestYieldRunsOtherTasksDeeper(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	var innerDepth int
	var yieldErr error

	inner := func(depth int) bool { innerDepth = depth; return true }
	s.Exec("outer", func(depth int) bool {
		s.Exec("inner", inner)
		yieldErr = s.Yield()
		return true
	})

	require.NoError(t, s.Dispatch(0))
	require.NoError(t, yieldErr)
	assert.Equal(t, 2, innerDepth)
	assert.Zero(t, s.Exists(inner))
}

func TestRecursiveYieldHitsCeiling(t *testing.T) {
	s, _, rec := newTestScheduler(t)
	budget := 20
	var spawn Func
	spawn = func(depth int) bool {
		if budget > 0 {
			budget--
			s.After("spawn", 0, spawn)
		}
		_ = s.Yield()
		return true
	}
	s.After("spawn", 0, spawn)

	require.NoError(t, s.Dispatch(0))
	assert.GreaterOrEqual(t, rec.count(KindDepth), 1)
}

func TestCancelInsideOwnRun(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	runs := 0
	var cb Func
	cb = func(int) bool {
		runs++
		s.Cancel(cb)
		return true
	}
	s.Repeat("self", 1, cb)

	clock.Advance(1)
	require.NoError(t, s.Dispatch(0))
	clock.Advance(1)
	require.NoError(t, s.Dispatch(0))
	assert.Equal(t, 1, runs)
	assert.Zero(t, s.Len())
}

func TestOneShotReschedulesItself(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	var cb Func
	cb = func(int) bool {
		s.AfterOnce("again", 5, cb)
		return true
	}
	s.Exec("first", cb)

	require.NoError(t, s.Dispatch(0))
	assert.Equal(t, 1, s.Exists(cb))
}

// autoClock moves one tick forward every time it is read, so time passes
// without any task advancing it.
type autoClock struct{ *ManualClock }

func (c autoClock) Now() Tick {
	c.Advance(1)
	return c.ManualClock.Now()
}

func TestDelayKeepsDispatching(t *testing.T) {
	clock := autoClock{NewManualClock()}
	s := New(DefaultConfig(), clock, WithReporter(&recorder{}))
	fired := 0
	s.After("side", 10, func(int) bool { fired++; return true })

	start := clock.ManualClock.Now()
	s.Delay(50)

	assert.Equal(t, 1, fired)
	assert.Zero(t, s.Len())
	assert.GreaterOrEqual(t, clock.ManualClock.Now(), start+50)
}

func TestPeriodicRearmBumpedOffOccupiedTick(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Repeat("tick", 2, func(int) bool { return true })
	s.After("side", 4, func(int) bool { return true })

	clock.Advance(2)
	require.NoError(t, s.Dispatch(0))

	// tick re-arms onto 4, which side holds
	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "side", tasks[0].Name)
	assert.Equal(t, Tick(4), tasks[0].RunAt)
	assert.Equal(t, "tick", tasks[1].Name)
	assert.Equal(t, Tick(5), tasks[1].RunAt)

	// the shifted phase sticks
	clock.Advance(3)
	require.NoError(t, s.Dispatch(0))
	tasks = s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, Tick(7), tasks[0].RunAt)
}

func TestStartOffsetAndOptions(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.Repeat("uart", Millisecond, func(int) bool { return true },
		WithStartOffset(Ms100), WithTimeout(300*time.Millisecond), WithRealtimeFail(10*Second))

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, Tick(101), tasks[0].RunAt)
	assert.Equal(t, Tick(1), tasks[0].CycleLength)
	assert.Equal(t, 300*time.Millisecond, tasks[0].Timeout)
	assert.Equal(t, 10*Second, tasks[0].RealtimeFail)
}

func TestTicksConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickMS = 5
	s := New(cfg, NewManualClock())
	assert.Equal(t, Tick(200), s.Ticks(time.Second))
}

func TestRunWithTickClock(t *testing.T) {
	clock := NewTickClock(1)
	clock.Start(time.Millisecond)
	defer clock.Stop()
	s := New(DefaultConfig(), clock)

	beats := make(chan Tick, 16)
	s.Repeat("beat", 2, func(int) bool {
		select {
		case beats <- clock.Now():
		default:
		}
		return true
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	first := <-beats
	second := <-beats
	assert.Greater(t, second, first)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	clock := NewManualClock()
	s := New(DefaultConfig(), clock, WithReporter(LogReporter{Log: zerolog.New(&buf)}))
	s.After("late", 1, func(int) bool { return true })

	clock.Advance(10)
	require.NoError(t, s.Dispatch(0))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"task":"late"`)
}
