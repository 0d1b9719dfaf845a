// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05.000"

// Config selects the level and output format.
type Config struct {
	Level string `yaml:"level"` // info (by default)
	JSON  bool   `yaml:"json"`  // raw JSON lines instead of the console format
}

// DefaultConfig logs at info level in console format.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// New returns a logger writing to w, or to stdout when w is nil.
func New(cfg Config, w io.Writer) zerolog.Logger {
	noColor := false
	if w == nil {
		w = colorable.NewColorableStdout()
		noColor = !isatty.IsTerminal(os.Stdout.Fd())
	}
	if !cfg.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: noColor}
	}
	return zerolog.New(w).Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, def when unknown.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "OFF", "DISABLED":
		return zerolog.Disabled
	default:
		return def
	}
}
