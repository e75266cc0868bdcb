// Package logging provides the structured logger used by every component of
// the observability substrate. It wraps zap with ambient context merging and
// sensitive-field redaction so call sites never have to think about either.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a leveled, structured logger. Every record carries the merged
// ambient context (process-wide fields plus any request-scoped fields bound
// through a context.Context) and has sensitive field values masked before
// they reach a sink.
//
// Sink failures are contained: a write error is swallowed by the error
// handler below, never surfaced to the caller.
type Logger struct {
	z *zap.Logger

	mu      sync.RWMutex
	ambient []zap.Field
}

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Encoding is "json" for production or "console" for development.
	Encoding string `yaml:"encoding"`
	// Development switches to the human-friendly development preset.
	Development bool `yaml:"development"`
}

// New builds a Logger from configuration. The underlying zap core writes to
// stderr; write errors are dropped rather than propagated because a broken
// sink must never take down the code being observed.
func New(cfg Config) (*Logger, error) {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if cfg.Encoding != "" {
		zapCfg.Encoding = cfg.Encoding
	}

	z, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// NewNop returns a logger that discards everything. Useful as a default
// dependency in tests and optional wiring.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// FromZap wraps an existing zap logger. Used by tests to attach an observer
// core and by callers that already own a configured zap instance.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// Named returns a logger with the given name segment appended, sharing the
// parent's ambient context snapshot at call time.
func (l *Logger) Named(name string) *Logger {
	l.mu.RLock()
	ambient := append([]zap.Field(nil), l.ambient...)
	l.mu.RUnlock()
	return &Logger{z: l.z.Named(name), ambient: ambient}
}

// With returns a logger that always carries the given (redacted) fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	l.mu.RLock()
	ambient := append([]zap.Field(nil), l.ambient...)
	l.mu.RUnlock()
	return &Logger{z: l.z.With(Redact(fields)...), ambient: ambient}
}

// SetAmbient binds a process-wide ambient field carried by every subsequent
// record from this logger, e.g. a deployment id. Replaces any previous field
// with the same key.
func (l *Logger) SetAmbient(key string, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, f := range l.ambient {
		if f.Key == key {
			l.ambient[i] = zap.String(key, value)
			return
		}
	}
	l.ambient = append(l.ambient, zap.String(key, value))
}

// ClearAmbient drops all process-wide ambient fields.
func (l *Logger) ClearAmbient() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ambient = nil
}

func (l *Logger) merged(fields []zap.Field) []zap.Field {
	l.mu.RLock()
	out := make([]zap.Field, 0, len(l.ambient)+len(fields))
	out = append(out, l.ambient...)
	l.mu.RUnlock()
	out = append(out, fields...)
	return Redact(out)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.z.Debug(msg, l.merged(fields)...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.z.Info(msg, l.merged(fields)...)
}

// Warn logs at warning level.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, l.merged(fields)...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.z.Error(msg, l.merged(fields)...)
}

// Critical logs at the highest non-terminating level. zap has no critical
// level, so records are written at error level with a severity marker that
// downstream alerting rules can key on.
func (l *Logger) Critical(msg string, fields ...zap.Field) {
	fields = append(fields, zap.String("severity", "critical"))
	l.z.Error(msg, l.merged(fields)...)
}

// Check reports whether the given level is enabled.
func (l *Logger) Check(level zapcore.Level) bool {
	return l.z.Core().Enabled(level)
}

// Sync flushes buffered records. Errors are intentionally ignored; stderr
// sinks on Linux return EINVAL on sync and there is nothing actionable.
func (l *Logger) Sync() {
	_ = l.z.Sync()
}
