// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects level, format and destination.
type Config struct {
	Level  string // trace|debug|info|warn|error
	Format string // text|json
	// File, when set, receives the log instead of Output. Used while the
	// TUI owns the terminal.
	File   string
	Output io.Writer
}

// New returns a configured logger and a cleanup func closing the log file.
func New(c Config) (*logrus.Logger, func(), error) {
	l := logrus.New()

	lvl := logrus.WarnLevel
	if c.Level != "" {
		parsed, err := logrus.ParseLevel(strings.ToLower(c.Level))
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}
	l.SetLevel(lvl)

	switch strings.ToLower(c.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("unknown log format %q (want text or json)", c.Format)
	}

	cleanup := func() {}
	switch {
	case c.File != "":
		if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(c.File, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return nil, nil, err
		}
		l.SetOutput(f)
		cleanup = func() { _ = f.Close() }
	case c.Output != nil:
		l.SetOutput(c.Output)
	default:
		l.SetOutput(os.Stderr)
	}
	return l, cleanup, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
