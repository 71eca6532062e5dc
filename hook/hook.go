// Package hook defines the lifecycle hook system for safe-interval.
//
// Hooks are notified of schedule lifecycle events and can react to them —
// recording metrics, streaming events, writing logs. Each lifecycle hook is
// a separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnInvocationSettled(ctx context.Context, inv *schedule.Invocation, err error, elapsed time.Duration) error {
//	    log.Printf("invocation %d settled in %s", inv.Seq, elapsed)
//	    return nil
//	}
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never propagate into the schedule machinery.
package hook

import (
	"context"
	"time"

	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ScheduleArmed is called after a schedule's native timer is armed for the
// first time.
type ScheduleArmed interface {
	OnScheduleArmed(ctx context.Context, s *schedule.Schedule) error
}

// ScheduleRewritten is called when a singleton registration replaces a live
// schedule's timer, arguments, and callback.
type ScheduleRewritten interface {
	OnScheduleRewritten(ctx context.Context, s *schedule.Schedule) error
}

// ScheduleCancelled is called when a registration's cancel function takes
// effect. discarded is the number of pending invocations dropped by the
// discard flag (zero without it).
type ScheduleCancelled interface {
	OnScheduleCancelled(ctx context.Context, sid id.ScheduleID, discarded int) error
}

// TimerFired is called on each native timer firing, before the invocation is
// enqueued.
type TimerFired interface {
	OnTimerFired(ctx context.Context, sid id.ScheduleID, at time.Time) error
}

// InvocationEnqueued is called after a firing's invocation is appended to the
// pending queue. depth is the queue length after the append.
type InvocationEnqueued interface {
	OnInvocationEnqueued(ctx context.Context, inv *schedule.Invocation, depth int) error
}

// InvocationDropped is called when an invocation is discarded before
// draining: queue overflow, rate limiting, or an explicit discard.
type InvocationDropped interface {
	OnInvocationDropped(ctx context.Context, inv *schedule.Invocation, reason schedule.DropReason) error
}

// InvocationSettled is called after an invocation's thunk has settled and
// its callback (if any) has been delivered. settleErr is the callable's
// error, nil on success.
type InvocationSettled interface {
	OnInvocationSettled(ctx context.Context, inv *schedule.Invocation, settleErr error, elapsed time.Duration) error
}

// Shutdown is called during graceful registrar shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
