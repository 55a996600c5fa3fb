package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hazyhaar/radar/idgen"
	"github.com/hazyhaar/radar/kit"
)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares; the first one is the outermost wrapper.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// CallInfo describes the call being dispatched. Call stores it in the
// context before running the middleware chain.
type CallInfo struct {
	Service string
	Route   string // "local" or the remote strategy
}

type callInfoKey struct{}

func withCallInfo(ctx context.Context, ci CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, ci)
}

// CallInfoFrom returns the CallInfo of the call ctx belongs to.
func CallInfoFrom(ctx context.Context) (CallInfo, bool) {
	ci, ok := ctx.Value(callInfoKey{}).(CallInfo)
	return ci, ok
}

// Tracing gives calls made outside a request, such as the local explorer
// submitting files from a worker, their own trace id. An existing id is
// kept, so audit entries of a submission relayed over HTTP share the id of
// the request that caused it.
func Tracing(newID idgen.Generator) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if kit.GetTraceID(ctx) == "" {
				ctx = kit.WithTraceID(ctx, newID())
			}
			return next(ctx, payload)
		}
	}
}

// Logging logs every call with its service, route and trace id.
func Logging(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			ci, _ := CallInfoFrom(ctx)
			log := logger.With(
				"service", ci.Service,
				"route", ci.Route,
				"transport", kit.GetTransport(ctx),
				"trace_id", kit.GetTraceID(ctx),
			)
			start := time.Now()
			resp, err := next(ctx, payload)
			ms := time.Since(start).Milliseconds()

			var rs *ErrRemoteStatus
			switch {
			case errors.As(err, &rs):
				log.WarnContext(ctx, "connectivity: remote refused call",
					"duration_ms", ms, "endpoint", rs.Endpoint, "status", rs.Status)
			case err != nil:
				log.WarnContext(ctx, "connectivity: call failed",
					"duration_ms", ms, "payload_bytes", len(payload), "error", err)
			default:
				log.DebugContext(ctx, "connectivity: call ok",
					"duration_ms", ms, "payload_bytes", len(payload), "response_bytes", len(resp))
			}
			return resp, err
		}
	}
}

// Timeout bounds a call. A call cut short by this deadline, rather than by
// the caller's, fails with *ErrTimeout.
func Timeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(parent context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(parent, d)
			defer cancel()
			resp, err := next(ctx, payload)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
				ci, _ := CallInfoFrom(parent)
				return nil, &ErrTimeout{Service: ci.Service, After: d, Err: err}
			}
			return resp, err
		}
	}
}

// Recovery converts panics in downstream handlers into *ErrPanic.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					ci, _ := CallInfoFrom(ctx)
					logger.ErrorContext(ctx, "connectivity: handler panic recovered",
						"service", ci.Service,
						"panic", r,
						"stack", string(debug.Stack()))
					err = &ErrPanic{Service: ci.Service, Value: r}
				}
			}()
			return next(ctx, payload)
		}
	}
}
