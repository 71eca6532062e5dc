package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/evgenylyozin/safe-interval/schedule"
)

// Logging returns middleware that logs invocation start and settlement.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *schedule.Invocation, next Handler) error {
		logger.Debug("invocation started",
			slog.String("schedule_id", inv.Schedule.String()),
			slog.Uint64("seq", inv.Seq),
			slog.Time("fired_at", inv.FiredAt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("invocation failed",
				slog.String("schedule_id", inv.Schedule.String()),
				slog.Uint64("seq", inv.Seq),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("invocation settled",
				slog.String("schedule_id", inv.Schedule.String()),
				slog.Uint64("seq", inv.Seq),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
