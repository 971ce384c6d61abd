// Package log defines the structured logging interface used across txinstall
// packages. The user-facing install transcript is written by the install
// context; this logger carries diagnostics.
package log

import (
	"context"
	"log/slog"
)

// Logger is the structured diagnostics logger shared by the engine, the
// component wrapper and the driver.
type Logger interface {
	// Debugf logs a formatted message at the DEBUG level.
	Debugf(format string, args ...interface{})
	// Infof logs a formatted message at the INFO level.
	Infof(format string, args ...interface{})
	// Warnf logs a formatted message at the WARN level.
	Warnf(format string, args ...interface{})
	// Errorf logs a formatted message at the ERROR level. When the last
	// argument is an error, implementations add it as structured attributes.
	Errorf(format string, args ...interface{})

	// Log logs a message at the given level with key-value attributes.
	Log(level slog.Level, msg string, args ...interface{})
	// LogCtx is Log with a context, used to attach trace and span IDs.
	LogCtx(ctx context.Context, level slog.Level, msg string, args ...interface{})

	// With returns a Logger that adds the given attributes to every entry.
	With(args ...interface{}) Logger
	// IsEnabled reports whether entries at level would be written.
	IsEnabled(level slog.Level) bool
}
