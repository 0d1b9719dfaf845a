package sched

// Tasks returns a snapshot of the queued tasks in run order.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskInfo, 0, s.rbt.Size())
	it := s.rbt.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*Task).info())
	}
	return out
}

// ResetStats clears error flags, counters and durations of every queued task
// and returns the names of the tasks that had errors flagged.
func (s *Scheduler) ResetStats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared []string
	it := s.rbt.Iterator()
	for it.Next() {
		t := it.Value().(*Task)
		if t.Errors != 0 {
			cleared = append(cleared, t.Name)
		}
		t.Errors = 0
		t.Counter = 0
		t.Duration = 0
	}
	return cleared
}
