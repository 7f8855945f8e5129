package common

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// IntoLogger stores l in the context.
func IntoLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFrom returns the logger stored in ctx, or slog.Default().
func LoggerFrom(ctx context.Context) *slog.Logger {
	return LoggerFromOr(ctx, slog.Default())
}

// LoggerFromOr returns the logger stored in ctx, or def.
func LoggerFromOr(ctx context.Context, def *slog.Logger) *slog.Logger {
	if v := ctx.Value(loggerKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return def
}
