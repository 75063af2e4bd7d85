package ghostcore

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with ghostcore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithFiber adds the running fiber's name to the logger.
func (l *Logger) WithFiber(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("fiber", name),
	}
}

// WithOffset adds an arena offset field to the logger.
func (l *Logger) WithOffset(off uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("offset", off),
	}
}

// LogIngest logs a document ingest attempt.
func (l *Logger) LogIngest(size int, err error) {
	if err != nil {
		l.Warn("ingest dropped",
			"size", size,
			"error", err,
		)
	} else {
		l.Debug("ingest accepted",
			"size", size,
		)
	}
}

// LogProcess logs one processed document.
func (l *Logger) LogProcess(recordOffset uint64, terms int, err error) {
	if err != nil {
		l.Error("process failed",
			"terms", terms,
			"error", err,
		)
	} else {
		l.Debug("record stored",
			"offset", recordOffset,
			"terms", terms,
		)
	}
}
