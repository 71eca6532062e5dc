package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/evgenylyozin/safe-interval/schedule"
)

// tracerName is the instrumentation scope name for safe-interval tracing.
const tracerName = "github.com/evgenylyozin/safe-interval"

// Tracing returns middleware that wraps each invocation in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: safeinterval.schedule.id, safeinterval.seq,
// safeinterval.fired_at. On error, the span status is set to codes.Error
// with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *schedule.Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "safeinterval.invocation.settle",
			trace.WithAttributes(
				attribute.String("safeinterval.schedule.id", inv.Schedule.String()),
				attribute.Int64("safeinterval.seq", int64(inv.Seq)), //nolint:gosec // sequence numbers stay far below int64 max
				attribute.String("safeinterval.fired_at", inv.FiredAt.String()),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
