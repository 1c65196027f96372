package logging

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Request describes one served HTTP request.
type Request struct {
	Method    string
	Path      string
	Status    int
	Duration  time.Duration
	Bytes     int64
	ClientIP  string
	UserAgent string
}

// LogRequest writes the access log line for req. Server errors log at error,
// client errors at warn.
func LogRequest(ctx context.Context, logger *slog.Logger, req Request) {
	level := slog.LevelInfo
	switch {
	case req.Status >= 500:
		level = slog.LevelError
	case req.Status >= 400:
		level = slog.LevelWarn
	}

	logger.Log(ctx, level, "http request",
		"method", req.Method,
		"path", req.Path,
		"status_code", req.Status,
		"duration_ms", req.Duration.Milliseconds(),
		"bytes_written", req.Bytes,
		"client_ip", req.ClientIP,
		"user_agent", req.UserAgent,
	)
}

// LogPanic logs a recovered panic value with the current goroutine's stack.
func LogPanic(ctx context.Context, logger *slog.Logger, panicValue any) {
	logger.ErrorContext(ctx, "panic recovered",
		"panic", panicValue,
		"stack_trace", string(debug.Stack()),
	)
}
