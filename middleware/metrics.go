package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/evgenylyozin/safe-interval/schedule"
)

// meterName is the instrumentation scope name for safe-interval metrics.
const meterName = "github.com/evgenylyozin/safe-interval"

// Metrics returns middleware that records per-invocation execution metrics
// using the global OTel MeterProvider. If no MeterProvider is configured,
// noop instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - safeinterval.invocation.duration (Float64Histogram): settle time in
//     seconds, with attributes: schedule_id, status ("ok" or "error")
//   - safeinterval.invocation.settled (Int64Counter): total settled
//     invocations, with attributes: schedule_id, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"safeinterval.invocation.duration",
		metric.WithDescription("Time from dequeue to settlement in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	settled, sErr := meter.Int64Counter(
		"safeinterval.invocation.settled",
		metric.WithDescription("Total number of settled invocations"),
		metric.WithUnit("{invocation}"),
	)
	_ = sErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, inv *schedule.Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("schedule_id", inv.Schedule.String()),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		settled.Add(ctx, 1, attrs)

		return err
	}
}
