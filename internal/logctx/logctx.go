// Package logctx attaches a per-run correlation ID to a context and to
// every structured log line emitted while that context is in scope, the
// same way the HTTP layer this codebase was adapted from stamps a
// correlation ID onto each request.
package logctx

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type correlationIDKey struct{}

// NewRun returns a child context carrying a freshly generated run
// correlation ID, and a logger that attaches it to every record.
func NewRun(ctx context.Context, base *slog.Logger) (context.Context, *slog.Logger) {
	id := uuid.NewString()
	ctx = context.WithValue(ctx, correlationIDKey{}, id)

	return ctx, base.With(slog.String("run_id", id))
}

// RunID extracts the correlation ID stamped by NewRun, or "unknown" if ctx
// carries none.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}

	return "unknown"
}

// WithRunID attaches an externally supplied run ID (e.g. a Run row's
// primary key, once it has been persisted) to ctx and logger.
func WithRunID(ctx context.Context, base *slog.Logger, id string) (context.Context, *slog.Logger) {
	ctx = context.WithValue(ctx, correlationIDKey{}, id)

	return ctx, base.With(slog.String("run_id", id))
}
