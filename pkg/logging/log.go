package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// The TUI owns the terminal, so logs go to a file under the user's
// config directory. Init must be called before the first log line;
// until then output is discarded.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Init opens (or creates) the log file and installs the default logger.
// It returns a close function for the caller to defer.
func Init(dir string, debug bool) (func() error, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, "svcfwd.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return f.Close, nil
}

// Debug logs a debug message for the given subsystem.
func Debug(subsystem, format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...), "subsystem", subsystem)
}

// Info logs an informational message for the given subsystem.
func Info(subsystem, format string, args ...any) {
	logger.Info(fmt.Sprintf(format, args...), "subsystem", subsystem)
}

// Warn logs a warning for the given subsystem.
func Warn(subsystem, format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...), "subsystem", subsystem)
}

// Error logs an error for the given subsystem.
func Error(subsystem string, err error, format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...), "subsystem", subsystem, "err", err)
}
