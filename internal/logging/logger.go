package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Options configures a Logger.
type Options struct {
	// Level is one of the Level* constants. Unknown values mean INFO.
	Level string
	// File, when set, receives the log through a RotatingWriter.
	File string
	// Rotation applies when File is set.
	Rotation RotationConfig
	// Writer overrides the destination when File is empty. Defaults to stderr.
	Writer io.Writer
}

// Logger writes JSON log records. Child loggers share the destination.
// It is safe for concurrent use.
type Logger struct {
	slog  *slog.Logger
	out   *closer
	level slog.Level
}

// closer is shared by a logger and all of its children so that Close is
// idempotent across the family.
type closer struct {
	mu sync.Mutex
	c  io.Closer
}

func (c *closer) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c == nil {
		return nil
	}
	err := c.c.Close()
	c.c = nil
	return err
}

// New creates a Logger from opts.
func New(opts Options) (*Logger, error) {
	var w io.Writer = os.Stderr
	out := &closer{}

	switch {
	case opts.File != "":
		rw, err := NewRotatingWriter(opts.File, opts.Rotation)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = rw
		out.c = rw
	case opts.Writer != nil:
		w = opts.Writer
	}

	level := parseLevel(opts.Level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	return &Logger{slog: slog.New(handler), out: out, level: level}, nil
}

func parseLevel(level string) slog.Level {
	switch ParseLevel(level) {
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

// WithRun returns a child logger tagged with the run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithJob returns a child logger tagged with the job identity.
func (l *Logger) WithJob(identity string) *Logger {
	return l.With("job", identity)
}

// WithEnvironment returns a child logger tagged with the target environment.
func (l *Logger) WithEnvironment(env string) *Logger {
	return l.With("environment", env)
}

// With returns a child logger with arbitrary key-value attributes.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{slog: l.slog.With(args...), out: l.out, level: l.level}
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level string) bool {
	return parseLevel(level) >= l.level
}

func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelError, msg, args...)
}

// Slog exposes the underlying *slog.Logger for libraries that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close releases the log file, if any. Closing any logger of a family closes
// the shared file; further Close calls are no-ops.
func (l *Logger) Close() error {
	if err := l.out.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// NopLogger returns a Logger that discards all output.
func NopLogger() *Logger {
	return &Logger{
		slog:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		out:   &closer{},
		level: slog.LevelError + 1,
	}
}

// ParseLevel normalizes a level name. Unknown names map to LevelInfo.
func ParseLevel(level string) string {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l
	case "WARNING":
		return LevelWarn
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
