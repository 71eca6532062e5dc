package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/evgenylyozin/safe-interval/schedule"
)

// Recover returns middleware that recovers from panics in the invocation
// thunk. Panics are converted to errors and logged with a stack trace, so a
// panicking callable settles its invocation instead of killing the resolve
// loop's goroutine.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *schedule.Invocation, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("callable panicked",
					slog.String("schedule_id", inv.Schedule.String()),
					slog.Uint64("seq", inv.Seq),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				inv.Value = nil
				retErr = fmt.Errorf("panic in invocation %d of schedule %s: %v", inv.Seq, inv.Schedule, r)
			}
		}()
		return next(ctx)
	}
}
