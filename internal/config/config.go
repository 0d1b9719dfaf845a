// Package config loads the simulator configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	yaml "github.com/goccy/go-yaml"

	"mcukern/internal/flash"
	storefs "mcukern/internal/fs"
	"mcukern/internal/logging"
	"mcukern/internal/sched"
)

// Flash describes the simulated flash part and where program code ends.
type Flash struct {
	Path     string `yaml:"path"`      // image file, empty for an in-memory part
	Base     uint32 `yaml:"base"`      // 0x08000000 (by default)
	SizeKB   uint32 `yaml:"size_kb"`   // 128
	PageSize uint32 `yaml:"page_size"` // 1024
	CodeSize uint32 `yaml:"code_size"` // 64 KiB of firmware below the store
}

// Size is the part size in bytes.
func (f Flash) Size() uint32 { return f.SizeKB * 1024 }

// Region places the store after the code.
func (f Flash) Region() (flash.Region, error) {
	return flash.NewRegion(f.Base, f.Base+f.CodeSize, f.Size(), f.PageSize)
}

// Config mirrors mcusim.yaml.
type Config struct {
	Sched sched.Config      `yaml:"sched"`
	Store storefs.Config    `yaml:"store"`
	Flash Flash             `yaml:"flash"`
	Log   logging.Config    `yaml:"log"`
	Boot  map[string]string `yaml:"boot"` // files written on first start
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Sched: sched.DefaultConfig(),
		Store: storefs.DefaultConfig(),
		Flash: Flash{
			Base:     0x08000000,
			SizeKB:   128,
			PageSize: 1024,
			CodeSize: 64 * 1024,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads YAML over the defaults; empty path or a missing file = defaults only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config %s: %w", path, err)
	}
	return cfg.normalize(), nil
}

func (c Config) normalize() Config {
	def := Default()
	c.Sched = c.Sched.Normalize()
	c.Store = c.Store.Normalize()

	// sanity clamps
	if c.Flash.PageSize == 0 || c.Flash.PageSize%storefs.ChunkSize != 0 {
		c.Flash.PageSize = def.Flash.PageSize
	}
	if c.Flash.SizeKB == 0 || c.Flash.Size()%c.Flash.PageSize != 0 {
		c.Flash.SizeKB = def.Flash.SizeKB
	}
	if c.Flash.CodeSize >= c.Flash.Size() {
		c.Flash.CodeSize = c.Flash.Size() / 2
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	return c
}
