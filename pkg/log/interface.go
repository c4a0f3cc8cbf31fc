// Package log provides the structured logging interface used across heartrisk.
//
// The Logger interface is slog-shaped (message plus alternating key/value
// fields) and is backed by zerolog in production. Components obtain a named
// logger from the global provider and attach context with With:
//
//	logger := log.GetLoggerWithName("training").With(
//	    log.ModelNameKey, "RandomForest",
//	)
//	logger.Info("fit complete", log.SamplesKey, 734, log.FeaturesKey, 25)
//
// An error passed as a field value is logged with its stack trace when it
// carries one.
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with log/slog.
type Logger interface {
	// Debug logs a debug-level message with optional key/value fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional key/value fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional key/value fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. If the first field is an error it is
	// recorded under the "error" key together with its stack trace.
	Error(msg string, fields ...any)

	// With returns a Logger that includes the given fields in every record.
	With(fields ...any) Logger

	// Enabled reports whether records at the given level are emitted.
	Enabled(ctx context.Context, level Level) bool
}

// Level is a logging level. Values match slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers that share an output and a level.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
