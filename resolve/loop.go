// Package resolve implements the resolve loop — the serializing drain that
// gives safe-interval its ordering guarantee. For each schedule, at most one
// drain goroutine is active at a time (single-flight, enforced through the
// store's drain flag), and within a drain invocations settle strictly FIFO:
// invocation N's thunk settles and its callback is delivered before
// invocation N+1 is even dequeued.
package resolve

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evgenylyozin/safe-interval/hook"
	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/middleware"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// Loop drains schedule queues. One Loop serves all schedules of a
// registrar; per-schedule serialization comes from the store's drain flag,
// not from the Loop itself.
type Loop struct {
	store  schedule.Store
	hooks  *hook.Registry
	mw     middleware.Middleware
	logger *slog.Logger

	// baseCtx is the context invocations run under. It is cancelled only
	// when Close gives up waiting, abandoning in-flight invocations.
	baseCtx context.Context
	cancel  context.CancelFunc

	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a Loop. The middleware chain wraps every invocation; pass
// middleware.Recover first so a panicking callable settles its invocation
// instead of killing the drain goroutine.
func New(store schedule.Store, hooks *hook.Registry, logger *slog.Logger, mws ...middleware.Middleware) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		store:   store,
		hooks:   hooks,
		mw:      middleware.Chain(mws...),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Trigger starts a drain for the schedule. Triggering an already-draining
// schedule is a no-op: the active drain will pick up the new arrival. Safe
// to call from timer goroutines.
func (l *Loop) Trigger(ctx context.Context, sid id.ScheduleID) {
	if l.closed.Load() {
		return
	}

	acquired, err := l.store.BeginDrain(ctx, sid)
	if err != nil {
		l.logger.Error("begin drain error",
			slog.String("schedule_id", sid.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return
	}

	l.wg.Add(1)
	go l.drain(sid)
}

// drain serially settles the schedule's queue until FinishDrain confirms it
// is empty with no late arrivals.
func (l *Loop) drain(sid id.ScheduleID) {
	defer l.wg.Done()

	ctx := l.baseCtx
	for {
		inv, ok, err := l.store.Dequeue(ctx, sid)
		if err != nil {
			l.logger.Error("dequeue error",
				slog.String("schedule_id", sid.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		if !ok {
			more, finishErr := l.store.FinishDrain(ctx, sid)
			if finishErr != nil {
				l.logger.Error("finish drain error",
					slog.String("schedule_id", sid.String()),
					slog.String("error", finishErr.Error()),
				)
				return
			}
			if !more {
				return
			}
			// An enqueue raced the release; keep draining.
			continue
		}

		l.settle(ctx, sid, inv)
	}
}

// settle runs one invocation through the middleware chain, delivers its
// result to the current callback, and emits the settled hook. A failed
// invocation settles with a nil value and never halts the loop.
func (l *Loop) settle(ctx context.Context, sid id.ScheduleID, inv *schedule.Invocation) {
	start := time.Now()
	err := l.mw(ctx, inv, func(ctx context.Context) error {
		value, runErr := inv.Run(ctx)
		inv.Value = value
		return runErr
	})
	elapsed := time.Since(start)

	if err != nil {
		inv.Value = nil
	}

	// The callback current at settle time, not the one in effect when this
	// invocation was enqueued.
	cb, cbErr := l.store.GetCallback(ctx, sid)
	if cbErr == nil && cb != nil {
		cb(inv.Value, err)
	}

	l.hooks.EmitInvocationSettled(ctx, inv, err, elapsed)
}

// Close waits for all in-flight drains to finish. If ctx expires first, the
// loop context is cancelled, abandoning whatever invocations are still
// running, and ctx's error is returned. Idempotent.
func (l *Loop) Close(ctx context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.cancel()
		return nil
	case <-ctx.Done():
		l.cancel()
		return ctx.Err()
	}
}
