package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog for structured logging.
type Logger struct {
	*slog.Logger
}

// New creates a Logger that outputs text or JSON depending on config.
func New(jsonMode bool) *Logger {
	return NewWithWriter(jsonMode, os.Stdout)
}

// NewWithWriter creates a Logger writing to the given sink.
func NewWithWriter(jsonMode bool, w io.Writer) *Logger {
	var handler slog.Handler
	if jsonMode {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return &Logger{slog.New(handler)}
}

// NewRunLogger creates a Logger that writes to stdout and to runLog at once.
// The file handle is owned by the caller.
func NewRunLogger(jsonMode bool, runLog io.Writer) *Logger {
	return NewWithWriter(jsonMode, io.MultiWriter(os.Stdout, runLog))
}
