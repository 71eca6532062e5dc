package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type scheduleArmedEntry struct {
	name string
	hook ScheduleArmed
}

type scheduleRewrittenEntry struct {
	name string
	hook ScheduleRewritten
}

type scheduleCancelledEntry struct {
	name string
	hook ScheduleCancelled
}

type timerFiredEntry struct {
	name string
	hook TimerFired
}

type invocationEnqueuedEntry struct {
	name string
	hook InvocationEnqueued
}

type invocationDroppedEntry struct {
	name string
	hook InvocationDropped
}

type invocationSettledEntry struct {
	name string
	hook InvocationSettled
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	scheduleArmed      []scheduleArmedEntry
	scheduleRewritten  []scheduleRewrittenEntry
	scheduleCancelled  []scheduleCancelledEntry
	timerFired         []timerFiredEntry
	invocationEnqueued []invocationEnqueuedEntry
	invocationDropped  []invocationDroppedEntry
	invocationSettled  []invocationSettledEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ScheduleArmed); ok {
		r.scheduleArmed = append(r.scheduleArmed, scheduleArmedEntry{name, h})
	}
	if h, ok := e.(ScheduleRewritten); ok {
		r.scheduleRewritten = append(r.scheduleRewritten, scheduleRewrittenEntry{name, h})
	}
	if h, ok := e.(ScheduleCancelled); ok {
		r.scheduleCancelled = append(r.scheduleCancelled, scheduleCancelledEntry{name, h})
	}
	if h, ok := e.(TimerFired); ok {
		r.timerFired = append(r.timerFired, timerFiredEntry{name, h})
	}
	if h, ok := e.(InvocationEnqueued); ok {
		r.invocationEnqueued = append(r.invocationEnqueued, invocationEnqueuedEntry{name, h})
	}
	if h, ok := e.(InvocationDropped); ok {
		r.invocationDropped = append(r.invocationDropped, invocationDroppedEntry{name, h})
	}
	if h, ok := e.(InvocationSettled); ok {
		r.invocationSettled = append(r.invocationSettled, invocationSettledEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitScheduleArmed notifies all extensions that implement ScheduleArmed.
func (r *Registry) EmitScheduleArmed(ctx context.Context, s *schedule.Schedule) {
	for _, e := range r.scheduleArmed {
		if err := e.hook.OnScheduleArmed(ctx, s); err != nil {
			r.logHookError("OnScheduleArmed", e.name, err)
		}
	}
}

// EmitScheduleRewritten notifies all extensions that implement ScheduleRewritten.
func (r *Registry) EmitScheduleRewritten(ctx context.Context, s *schedule.Schedule) {
	for _, e := range r.scheduleRewritten {
		if err := e.hook.OnScheduleRewritten(ctx, s); err != nil {
			r.logHookError("OnScheduleRewritten", e.name, err)
		}
	}
}

// EmitScheduleCancelled notifies all extensions that implement ScheduleCancelled.
func (r *Registry) EmitScheduleCancelled(ctx context.Context, sid id.ScheduleID, discarded int) {
	for _, e := range r.scheduleCancelled {
		if err := e.hook.OnScheduleCancelled(ctx, sid, discarded); err != nil {
			r.logHookError("OnScheduleCancelled", e.name, err)
		}
	}
}

// EmitTimerFired notifies all extensions that implement TimerFired.
func (r *Registry) EmitTimerFired(ctx context.Context, sid id.ScheduleID, at time.Time) {
	for _, e := range r.timerFired {
		if err := e.hook.OnTimerFired(ctx, sid, at); err != nil {
			r.logHookError("OnTimerFired", e.name, err)
		}
	}
}

// EmitInvocationEnqueued notifies all extensions that implement InvocationEnqueued.
func (r *Registry) EmitInvocationEnqueued(ctx context.Context, inv *schedule.Invocation, depth int) {
	for _, e := range r.invocationEnqueued {
		if err := e.hook.OnInvocationEnqueued(ctx, inv, depth); err != nil {
			r.logHookError("OnInvocationEnqueued", e.name, err)
		}
	}
}

// EmitInvocationDropped notifies all extensions that implement InvocationDropped.
func (r *Registry) EmitInvocationDropped(ctx context.Context, inv *schedule.Invocation, reason schedule.DropReason) {
	for _, e := range r.invocationDropped {
		if err := e.hook.OnInvocationDropped(ctx, inv, reason); err != nil {
			r.logHookError("OnInvocationDropped", e.name, err)
		}
	}
}

// EmitInvocationSettled notifies all extensions that implement InvocationSettled.
func (r *Registry) EmitInvocationSettled(ctx context.Context, inv *schedule.Invocation, settleErr error, elapsed time.Duration) {
	for _, e := range r.invocationSettled {
		if err := e.hook.OnInvocationSettled(ctx, inv, settleErr, elapsed); err != nil {
			r.logHookError("OnInvocationSettled", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError records a hook failure without propagating it.
func (r *Registry) logHookError(hookName, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
