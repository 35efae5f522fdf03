// Package logging builds the process logger: JSON records to a log file next
// to the artifact, fanned out to a human-readable stderr handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// FileName is the default log file inside the output directory.
const FileName = "spigot.log"

// Options configures New.
type Options struct {
	// File receives JSON records at Level. Empty disables the file handler.
	File  string
	Level slog.Level

	// Console receives text records at ConsoleLevel. Nil disables it.
	Console      io.Writer
	ConsoleLevel slog.Level
}

// Logger wraps the fanned-out slog.Logger with the file it owns.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New opens the log file (append mode) and returns the combined logger.
func New(opts Options) (*Logger, error) {
	var (
		handlers []slog.Handler
		file     *os.File
	)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level: opts.Level,
		}))
	}

	if opts.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Console, &slog.HandlerOptions{
			Level: opts.ConsoleLevel,
		}))
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, nil))
	}

	return &Logger{
		Logger: slog.New(slogmulti.Fanout(handlers...)),
		file:   file,
	}, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel accepts debug, info, warn or error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
