package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	herrors "github.com/YuminosukeSato/heartrisk/pkg/errors"
)

const (
	ErrAttrKey = "error"
	badKey     = "!BADKEY"
)

// ParseLevel converts a configuration string into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.Newf("invalid log level: %q", level)
	}
}

// ToLogLevel is ParseLevel for hard-coded levels. It panics on invalid input.
func ToLogLevel(level string) Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(err)
	}
	return l
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zl: zl}
}

// Zerolog returns the underlying zerolog.Logger, for libraries such as
// HTTP middleware that log through zerolog directly.
func (l *ZerologLogger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *ZerologLogger) Debug(msg string, fields ...any) {
	applyEvent(l.zl.Debug(), fields).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, fields ...any) {
	applyEvent(l.zl.Info(), fields).Msg(msg)
}

func (l *ZerologLogger) Warn(msg string, fields ...any) {
	applyEvent(l.zl.Warn(), fields).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, fields ...any) {
	applyEvent(l.zl.Error(), fields).Msg(msg)
}

func (l *ZerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for _, f := range pairs(fields) {
		switch v := f.value.(type) {
		case error:
			ctx = ctx.AnErr(f.key, v)
		case zerolog.LogObjectMarshaler:
			ctx = ctx.Object(f.key, v)
		default:
			ctx = ctx.Interface(f.key, v)
		}
	}
	return &ZerologLogger{zl: ctx.Logger()}
}

func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

type field struct {
	key   string
	value any
}

// pairs turns slog-style arguments into key/value pairs. A leading error
// without a key is filed under ErrAttrKey.
func pairs(fields []any) []field {
	out := make([]field, 0, len(fields)/2+1)
	for i := 0; i < len(fields); {
		if err, ok := fields[i].(error); ok && i == 0 {
			out = append(out, field{key: ErrAttrKey, value: err})
			i++
			continue
		}
		if i+1 >= len(fields) {
			out = append(out, field{key: badKey, value: fields[i]})
			break
		}
		out = append(out, field{key: fmt.Sprint(fields[i]), value: fields[i+1]})
		i += 2
	}
	return out
}

func applyEvent(e *zerolog.Event, fields []any) *zerolog.Event {
	if e == nil {
		return nil
	}
	for _, f := range pairs(fields) {
		switch v := f.value.(type) {
		case error:
			e = e.AnErr(f.key, v)
			if st := extractStacktrace(v); st != "" {
				e = e.Str(StacktraceKey, st)
			}
		case zerolog.LogObjectMarshaler:
			e = e.Object(f.key, v)
		case time.Duration:
			e = e.Dur(f.key, v)
		default:
			e = e.Interface(f.key, v)
		}
	}
	return e
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// ZerologProvider hands out zerolog-backed loggers sharing one writer.
type ZerologProvider struct {
	mu    sync.RWMutex
	base  zerolog.Logger
	level Level
}

// NewZerologProvider writes JSON records to stderr at the given level.
func NewZerologProvider(level Level) *ZerologProvider {
	return NewZerologProviderWithWriter(os.Stderr, level, "json")
}

// NewZerologProviderWithWriter writes to w. Format "console" selects the
// human-readable zerolog.ConsoleWriter; anything else emits JSON.
func NewZerologProviderWithWriter(w io.Writer, level Level, format string) *ZerologProvider {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))
	return &ZerologProvider{base: base, level: level}
}

func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ZerologLogger{zl: p.base}
}

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ZerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger()}
}

func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	p.base = p.base.Level(toZerologLevel(level))
}

var (
	globalMu       sync.RWMutex
	globalProvider LoggerProvider
)

func init() {
	SetGlobalProvider(NewZerologProvider(LevelInfo))
}

// SetGlobalProvider replaces the process-wide provider and routes warnings
// from pkg/errors through it.
func SetGlobalProvider(p LoggerProvider) {
	globalMu.Lock()
	globalProvider = p
	globalMu.Unlock()

	warnLogger := p.GetLoggerWithName("warnings")
	herrors.SetZerologWarnFunc(func(w error) {
		warnLogger.Warn(w.Error(), "warning", w)
	})
}

// GetLogger returns a logger from the global provider.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider.GetLogger()
}

// GetLoggerWithName returns a component logger from the global provider.
func GetLoggerWithName(name string) Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider.GetLoggerWithName(name)
}
