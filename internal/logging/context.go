package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// WithRunID tags ctx with the batch run being processed, so SQL traces and
// service logs can be correlated with it.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, runID)
}

// RunID returns the batch run id stored in ctx, or "".
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// For returns l with the run id from ctx attached, if any.
func For(ctx context.Context, l *zap.Logger) *zap.Logger {
	if id := RunID(ctx); id != "" {
		return l.With(zap.String("run_id", id))
	}
	return l
}
