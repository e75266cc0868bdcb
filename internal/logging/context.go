package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ContextWith returns a context carrying the given fields in addition to any
// fields already bound. This is the request-scoped ambient context: handlers
// bind a request id once and every log call below them picks it up.
func ContextWith(ctx context.Context, fields ...zap.Field) context.Context {
	existing := fieldsFromContext(ctx)
	merged := make([]zap.Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// ClearContext returns a context with all bound ambient fields removed.
func ClearContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, []zap.Field(nil))
}

func fieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxKey{}).([]zap.Field)
	return fields
}

// Ctx returns a logger that carries the fields bound to ctx. The snapshot is
// taken here; later mutations of the context do not affect the returned
// logger.
func (l *Logger) Ctx(ctx context.Context) *Logger {
	fields := fieldsFromContext(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
