package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcukern/internal/config"
	"mcukern/internal/console"
	"mcukern/internal/flash"
	"mcukern/internal/fs"
	"mcukern/internal/ringbuf"
	"mcukern/internal/sched"
)

func TestBootSequence(t *testing.T) {
	color.NoColor = true
	cfg := config.Default()
	cfg.Boot = map[string]string{"wifi": "off", "hostname": "mcu"}

	clock := sched.NewManualClock()
	s := sched.New(cfg.Sched, clock)
	dev := flash.NewMem(cfg.Flash.Size(), cfg.Flash.PageSize)
	region, err := cfg.Flash.Region()
	require.NoError(t, err)

	var out bytes.Buffer
	sys := &system{
		cfg:   cfg,
		log:   zerolog.Nop(),
		s:     s,
		store: fs.New(dev, region, cfg.Store, fs.WithYield(s.Yield)),
		ring:  ringbuf.New(rxRingSize, nil),
		con:   console.New(&out),
		ready: make(chan struct{}),
	}
	sys.boot()

	for i := 0; i < 100; i++ {
		require.NoError(t, s.Dispatch(0))
		clock.Advance(1)
	}

	select {
	case <-sys.ready:
	default:
		t.Fatal("LOAD did not run")
	}
	assert.Contains(t, sys.con.Names(), "tasks")
	assert.Contains(t, sys.con.Names(), "fsformat")

	v, err := sys.store.Get("hostname")
	require.NoError(t, err)
	assert.Equal(t, "mcu", v)

	sys.ring.Write([]byte("get wifi\n"))
	for i := 0; i < 20; i++ {
		clock.Advance(1)
		require.NoError(t, s.Dispatch(0))
	}
	assert.Contains(t, out.String(), "wifi=off\n")
}
