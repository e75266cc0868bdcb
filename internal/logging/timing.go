package logging

import (
	"time"

	"go.uber.org/zap"
)

// WithTiming starts timing an operation and returns a finish function. The
// finish function emits exactly one performance record with the elapsed
// duration and a success flag. Deferring it guarantees the record is written
// on every exit path, including panics:
//
//	done := logger.WithTiming("llm_call", zap.String("model", model))
//	defer func() { done(err == nil) }()
func (l *Logger) WithTiming(operation string, fields ...zap.Field) func(success bool) {
	start := time.Now()
	return func(success bool) {
		elapsed := time.Since(start)
		perf := make([]zap.Field, 0, len(fields)+3)
		perf = append(perf,
			zap.String("operation", operation),
			zap.Duration("duration", elapsed),
			zap.Bool("success", success),
		)
		perf = append(perf, fields...)
		if success {
			l.Info("operation completed", perf...)
		} else {
			l.Warn("operation failed", perf...)
		}
	}
}

// TimeFunc runs fn under WithTiming. A panic inside fn is recorded as a
// failed operation and re-raised unchanged.
func (l *Logger) TimeFunc(operation string, fn func() error, fields ...zap.Field) error {
	done := l.WithTiming(operation, fields...)
	success := false
	defer func() { done(success) }()

	err := fn()
	success = err == nil
	return err
}
