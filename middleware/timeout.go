package middleware

import (
	"context"
	"time"

	"github.com/evgenylyozin/safe-interval/schedule"
)

// Deadline returns middleware that enforces a per-invocation execution
// deadline. The core deliberately imposes none — a slow invocation stalling
// its own schedule is an accepted tradeoff — so this is strictly opt-in for
// callers who would rather fail an invocation than delay the queue behind it.
// When the deadline is exceeded the context is cancelled and a
// context-respecting callable should return context.DeadlineExceeded.
func Deadline(d time.Duration) Middleware {
	return func(ctx context.Context, _ *schedule.Invocation, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
