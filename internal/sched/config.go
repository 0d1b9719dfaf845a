package sched

import "time"

// Config holds the scheduler limits and per-task defaults.
type Config struct {
	TickMS            int `yaml:"tick_ms"`             // 1 (by default)
	TaskTimeoutUS     int `yaml:"task_timeout_us"`     // 1000, soft execution budget per run
	RealtimeFailTicks int `yaml:"realtime_fail_ticks"` // 3, tolerated lateness
	MaxTasksPerWalk   int `yaml:"max_tasks_per_walk"`  // 128
	MaxDepth          int `yaml:"max_depth"`           // 8, re-entrant dispatch ceiling
	NameLength        int `yaml:"name_length"`         // 8
	Capacity          int `yaml:"capacity"`            // 1024 queued tasks
}

// DefaultConfig returns the firmware defaults.
func DefaultConfig() Config {
	return Config{
		TickMS:            1,
		TaskTimeoutUS:     1000,
		RealtimeFailTicks: 3,
		MaxTasksPerWalk:   128,
		MaxDepth:          8,
		NameLength:        8,
		Capacity:          1024,
	}
}

// Normalize replaces out-of-range values with defaults.
func (c Config) Normalize() Config {
	def := DefaultConfig()

	// sanity clamps
	if c.TickMS <= 0 {
		c.TickMS = def.TickMS
	}
	if c.TaskTimeoutUS <= 0 {
		c.TaskTimeoutUS = def.TaskTimeoutUS
	}
	if c.RealtimeFailTicks < 0 {
		c.RealtimeFailTicks = def.RealtimeFailTicks
	}
	if c.MaxTasksPerWalk <= 0 {
		c.MaxTasksPerWalk = def.MaxTasksPerWalk
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.NameLength <= 0 {
		c.NameLength = def.NameLength
	}
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	return c
}

// TickDuration is the wall-clock length of one tick.
func (c Config) TickDuration() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}
