// Package shield is the HTTP middleware stack in front of the radar API:
// security headers, request body caps, trace ids with request logging, and
// per-IP rate limits on the write endpoints.
//
//	r := chi.NewRouter()
//	stack, rl := shield.APIStack(db, logger)
//	rl.StartReloader(ctx.Done())
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody caps JSON request bodies. Knowledge files carry their full
// content, so this is larger than a typical form limit.
const DefaultMaxBody int64 = 4 << 20

// APIStack returns the middleware stack for the radar HTTP API, ordered
// HeadToGet, SecurityHeaders, MaxBody, TraceID, RateLimiter. The returned
// RateLimiter reads its rules from db; call StartReloader to refresh them.
func APIStack(db *sql.DB, logger *slog.Logger) ([]func(http.Handler) http.Handler, *RateLimiter) {
	rl := NewRateLimiter(db, logger)
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(DefaultMaxBody),
		TraceID(logger),
		rl.Middleware,
	}, rl
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
