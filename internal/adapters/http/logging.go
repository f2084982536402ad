package http

import (
	"context"
	"log/slog"
)

// adapterLogger scopes the default logger with the fields every HTTP log
// line in this adapter carries.
func adapterLogger() *slog.Logger {
	return slog.Default().With(
		"service", "homedash",
		"layer", "adapter",
		"module", "http",
	)
}

// logOperationFailure records a handler error alongside the status and
// stable code the client actually received, keyed by request id so a log
// line can be tied back to a browser-side failure report.
func logOperationFailure(ctx context.Context, operation string, statusCode int, code string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= 500 {
		adapterLogger().ErrorContext(ctx, "request failed", fields...)
		return
	}
	adapterLogger().WarnContext(ctx, "request failed", fields...)
}
