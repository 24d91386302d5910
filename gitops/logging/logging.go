// Package logging builds the process-wide slog logger: a text handler on an
// interactive terminal, JSON otherwise, or a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
	defaultMaxAgeDays = 30
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty
	// means info.
	Level string
	// File, when set, sends records to a rotating
	// log file instead of Writer.
	File string
	// JSON forces the JSON handler.
	JSON bool
	// Writer receives records when File is empty. Nil
	// means os.Stderr.
	Writer io.Writer

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger built from opts and the closer
// releasing its output.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	const errCtx = "creating logger"

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	hopts := &slog.HandlerOptions{Level: level}

	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(opts.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(opts.MaxAgeDays, defaultMaxAgeDays),
		}

		return slog.New(handler(lj, opts.JSON, hopts)), lj, nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	json := opts.JSON || !IsTerminal(w)

	return slog.New(handler(w, json, hopts)), nopCloser{}, nil
}

func handler(
	w io.Writer,
	json bool,
	opts *slog.HandlerOptions,
) slog.Handler {
	if json {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}

	return def
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}

	return l, nil
}

// IsTerminal reports whether w is an interactive
// terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) ||
		isatty.IsCygwinTerminal(f.Fd())
}
