// Package logging wraps log/slog with a small amount of repository-specific
// configuration: a level, an optional log file under the repository
// directory, and package-level convenience functions.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Level mirrors slog levels with a repository default of Info.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Options configures a Logger.
type Options struct {
	Level Level
	// File, when set, receives log output in addition to stderr.
	File string
	// JSON switches the handler to JSON output.
	JSON bool
}

// Logger wraps an slog.Logger plus its file handle.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

var (
	mu     sync.Mutex
	global *Logger
)

// New builds a logger from options.
func New(opts Options) (*Logger, error) {
	writers := []io.Writer{os.Stderr}
	l := &Logger{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		writers = append(writers, f)
	}

	hopts := &slog.HandlerOptions{Level: toSlogLevel(opts.Level)}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(io.MultiWriter(writers...), hopts)
	} else {
		handler = slog.NewTextHandler(io.MultiWriter(writers...), hopts)
	}
	l.slog = slog.New(handler)
	return l, nil
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the global logger used by the package-level functions.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if global != nil && global.file != nil {
		global.file.Close()
	}
	global = l
	return nil
}

// Close releases the global logger's file handle.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if global != nil && global.file != nil {
		err := global.file.Close()
		global.file = nil
		return err
	}
	return nil
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a logger carrying extra context attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file}
}

// Package-level functions route through the global logger, falling back to
// the default slog logger before Init.

func Debug(msg string, args ...any) {
	if global != nil {
		global.Debug(msg, args...)
		return
	}
	slog.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if global != nil {
		global.Info(msg, args...)
		return
	}
	slog.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if global != nil {
		global.Warn(msg, args...)
		return
	}
	slog.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	if global != nil {
		global.Error(msg, args...)
		return
	}
	slog.Error(msg, args...)
}
