package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/evgenylyozin/safe-interval/backoff"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// Retry returns middleware that re-runs a failed invocation up to
// maxRetries times, waiting strategy.Delay(attempt) between attempts. A nil
// strategy uses backoff.DefaultStrategy.
//
// Retries happen inline in the resolve loop: the schedule's later
// invocations wait behind them, and only the final attempt's outcome reaches
// the callback. Keep maxRetries and the delays small, or cap the queue,
// when the timer period is shorter than the worst-case retry window.
func Retry(logger *slog.Logger, strategy backoff.Strategy, maxRetries int) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}

	return func(ctx context.Context, inv *schedule.Invocation, next Handler) error {
		err := next(ctx)
		for attempt := 1; err != nil && attempt <= maxRetries; attempt++ {
			delay := strategy.Delay(attempt)
			logger.Debug("retrying invocation",
				slog.String("schedule_id", inv.Schedule.String()),
				slog.Uint64("seq", inv.Seq),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)

			select {
			case <-ctx.Done():
				return err
			case <-time.After(delay):
			}
			err = next(ctx)
		}
		return err
	}
}
