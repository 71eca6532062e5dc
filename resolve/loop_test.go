package resolve_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evgenylyozin/safe-interval/hook"
	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/middleware"
	"github.com/evgenylyozin/safe-interval/resolve"
	"github.com/evgenylyozin/safe-interval/schedule"
	"github.com/evgenylyozin/safe-interval/store/memory"
)

func setup(t *testing.T, mws ...middleware.Middleware) (*memory.Store, *resolve.Loop, id.ScheduleID) {
	t.Helper()
	st := memory.New()
	loop := resolve.New(st, hook.NewRegistry(slog.Default()), slog.Default(), mws...)
	t.Cleanup(func() { _ = loop.Close(context.Background()) })

	sid := id.NewScheduleID()
	if err := st.Init(context.Background(), &schedule.Schedule{ID: sid, Kind: schedule.KindInterval}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return st, loop, sid
}

func enqueue(t *testing.T, st *memory.Store, sid id.ScheduleID, run func(ctx context.Context) (any, error)) {
	t.Helper()
	inv := &schedule.Invocation{Schedule: sid, FiredAt: time.Now(), Run: run}
	if _, err := st.Enqueue(context.Background(), sid, inv); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestDrain_SettlesFIFO(t *testing.T) {
	st, loop, sid := setup(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	if err := st.SetCallback(ctx, sid, func(value any, err error) {
		mu.Lock()
		order = append(order, value.(int))
		mu.Unlock()
	}); err != nil {
		t.Fatalf("SetCallback: %v", err)
	}

	for i := 0; i < 5; i++ {
		n := i
		enqueue(t, st, sid, func(context.Context) (any, error) { return n, nil })
	}
	loop.Trigger(ctx, sid)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, "five settles")

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestDrain_ContinuesAfterError(t *testing.T) {
	st, loop, sid := setup(t)
	ctx := context.Background()

	errBad := errors.New("bad")
	var got []struct {
		value any
		err   error
	}
	var mu sync.Mutex
	if err := st.SetCallback(ctx, sid, func(value any, err error) {
		mu.Lock()
		got = append(got, struct {
			value any
			err   error
		}{value, err})
		mu.Unlock()
	}); err != nil {
		t.Fatalf("SetCallback: %v", err)
	}

	enqueue(t, st, sid, func(context.Context) (any, error) { return "discarded", errBad })
	enqueue(t, st, sid, func(context.Context) (any, error) { return "kept", nil })
	loop.Trigger(ctx, sid)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "two settles")

	mu.Lock()
	defer mu.Unlock()
	if got[0].value != nil || !errors.Is(got[0].err, errBad) {
		t.Errorf("failed settle = (%v, %v), want (nil, bad)", got[0].value, got[0].err)
	}
	if got[1].value != "kept" || got[1].err != nil {
		t.Errorf("second settle = (%v, %v), want (kept, nil)", got[1].value, got[1].err)
	}
}

func TestDrain_UsesCallbackCurrentAtSettleTime(t *testing.T) {
	st, loop, sid := setup(t)
	ctx := context.Background()

	var stale, fresh atomic.Int64
	if err := st.SetCallback(ctx, sid, func(any, error) { stale.Add(1) }); err != nil {
		t.Fatalf("SetCallback: %v", err)
	}

	gate := make(chan struct{})
	enqueue(t, st, sid, func(context.Context) (any, error) {
		<-gate
		return nil, nil
	})
	loop.Trigger(ctx, sid)

	// Swap the callback while the invocation is in flight.
	if err := st.SetCallback(ctx, sid, func(any, error) { fresh.Add(1) }); err != nil {
		t.Fatalf("SetCallback: %v", err)
	}
	close(gate)

	waitFor(t, 2*time.Second, func() bool { return fresh.Load() == 1 }, "fresh callback delivery")
	if got := stale.Load(); got != 0 {
		t.Errorf("stale callback deliveries = %d, want 0", got)
	}
}

func TestDrain_NilCallbackIsFine(t *testing.T) {
	st, loop, sid := setup(t)
	ctx := context.Background()

	var ran atomic.Bool
	enqueue(t, st, sid, func(context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	loop.Trigger(ctx, sid)

	waitFor(t, 2*time.Second, func() bool { return ran.Load() }, "thunk execution")
}

func TestTrigger_WhileDrainingIsNoop(t *testing.T) {
	st, loop, sid := setup(t)
	ctx := context.Background()

	var inflight atomic.Int32
	var overlap atomic.Bool
	gate := make(chan struct{})
	var settled atomic.Int64
	if err := st.SetCallback(ctx, sid, func(any, error) { settled.Add(1) }); err != nil {
		t.Fatalf("SetCallback: %v", err)
	}

	for i := 0; i < 3; i++ {
		enqueue(t, st, sid, func(context.Context) (any, error) {
			if inflight.Add(1) > 1 {
				overlap.Store(true)
			}
			<-gate
			inflight.Add(-1)
			return nil, nil
		})
	}

	// Repeated triggers while the drain holds the flag must not start a
	// second drain goroutine.
	for i := 0; i < 10; i++ {
		loop.Trigger(ctx, sid)
	}
	close(gate)

	waitFor(t, 2*time.Second, func() bool { return settled.Load() == 3 }, "three settles")
	if overlap.Load() {
		t.Error("two drains ran concurrently")
	}
}

func TestMiddleware_WrapsEveryInvocation(t *testing.T) {
	var wrapped atomic.Int64
	mw := func(ctx context.Context, _ *schedule.Invocation, next middleware.Handler) error {
		wrapped.Add(1)
		return next(ctx)
	}
	st, loop, sid := setup(t, mw)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		enqueue(t, st, sid, func(context.Context) (any, error) { return nil, nil })
	}
	loop.Trigger(ctx, sid)

	waitFor(t, 2*time.Second, func() bool { return wrapped.Load() == 3 }, "middleware wraps")
}

func TestClose_WaitsForInflightDrains(t *testing.T) {
	st := memory.New()
	loop := resolve.New(st, hook.NewRegistry(slog.Default()), slog.Default())
	ctx := context.Background()

	sid := id.NewScheduleID()
	if err := st.Init(ctx, &schedule.Schedule{ID: sid}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var done atomic.Bool
	inv := &schedule.Invocation{Schedule: sid, Run: func(context.Context) (any, error) {
		time.Sleep(30 * time.Millisecond)
		done.Store(true)
		return nil, nil
	}}
	if _, err := st.Enqueue(ctx, sid, inv); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	loop.Trigger(ctx, sid)

	if err := loop.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !done.Load() {
		t.Error("Close returned before the in-flight invocation settled")
	}
}

func TestClose_TimesOut(t *testing.T) {
	st := memory.New()
	loop := resolve.New(st, hook.NewRegistry(slog.Default()), slog.Default())
	ctx := context.Background()

	sid := id.NewScheduleID()
	if err := st.Init(ctx, &schedule.Schedule{ID: sid}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	gate := make(chan struct{})
	defer close(gate)
	inv := &schedule.Invocation{Schedule: sid, Run: func(context.Context) (any, error) {
		<-gate
		return nil, nil
	}}
	if _, err := st.Enqueue(ctx, sid, inv); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	loop.Trigger(ctx, sid)

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := loop.Close(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close: err = %v, want DeadlineExceeded", err)
	}
}
