package exports

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/envelope"
)

// Middleware wraps a Handler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next Handler) Handler

// PanicRecoveryMiddleware returns a middleware that catches panics and turns
// them into an error envelope of the export's kind, so a panic never unwinds
// into foreign frames. An envelope the producer had begun when the panic
// struck is released as it unwinds, so only the error envelope remains.
func PanicRecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx CallContext, p *envelope.Producer, args Args) (addr entities.Addr) {
			defer func() {
				if r := recover(); r != nil {
					perr := &abierrors.PanicError{Value: r, Stack: debug.Stack()}
					slog.ErrorContext(ctx, "export panicked",
						"function", ctx.FunctionName(),
						"panic", fmt.Sprint(r),
						"stack", string(perr.Stack))
					addr = p.Fail(ctx.Declaration().Returns, perr.Error())
				}
			}()
			return next(ctx, p, args)
		}
	}
}

// LoggingMiddleware returns a middleware that logs each call with its
// duration and whether it returned an error envelope.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr {
			start := time.Now()
			logger.DebugContext(ctx, "invoking export", "function", ctx.FunctionName(), "args", args.Len())
			addr := next(ctx, p, args)
			logger.DebugContext(ctx, "export returned",
				"function", ctx.FunctionName(),
				"envelope", addr.String(),
				"duration", time.Since(start))
			return addr
		}
	}
}
