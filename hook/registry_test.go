package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/evgenylyozin/safe-interval/hook"
	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// settledOnly opts in to a single hook.
type settledOnly struct {
	settles int
}

func (s *settledOnly) Name() string { return "settled-only" }

func (s *settledOnly) OnInvocationSettled(context.Context, *schedule.Invocation, error, time.Duration) error {
	s.settles++
	return nil
}

// everything implements every hook and records the call order.
type everything struct {
	calls []string
}

func (e *everything) Name() string { return "everything" }

func (e *everything) OnScheduleArmed(context.Context, *schedule.Schedule) error {
	e.calls = append(e.calls, "armed")
	return nil
}

func (e *everything) OnScheduleRewritten(context.Context, *schedule.Schedule) error {
	e.calls = append(e.calls, "rewritten")
	return nil
}

func (e *everything) OnScheduleCancelled(context.Context, id.ScheduleID, int) error {
	e.calls = append(e.calls, "cancelled")
	return nil
}

func (e *everything) OnTimerFired(context.Context, id.ScheduleID, time.Time) error {
	e.calls = append(e.calls, "fired")
	return nil
}

func (e *everything) OnInvocationEnqueued(context.Context, *schedule.Invocation, int) error {
	e.calls = append(e.calls, "enqueued")
	return nil
}

func (e *everything) OnInvocationDropped(context.Context, *schedule.Invocation, schedule.DropReason) error {
	e.calls = append(e.calls, "dropped")
	return nil
}

func (e *everything) OnInvocationSettled(context.Context, *schedule.Invocation, error, time.Duration) error {
	e.calls = append(e.calls, "settled")
	return nil
}

func (e *everything) OnShutdown(context.Context) error {
	e.calls = append(e.calls, "shutdown")
	return nil
}

// failing errors on every hook it implements.
type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) OnScheduleArmed(context.Context, *schedule.Schedule) error {
	return errors.New("hook failure")
}

func TestRegistry_DispatchesOnlyImplementedHooks(t *testing.T) {
	ctx := context.Background()
	reg := hook.NewRegistry(slog.Default())

	partial := &settledOnly{}
	full := &everything{}
	reg.Register(partial)
	reg.Register(full)

	sid := id.NewScheduleID()
	s := &schedule.Schedule{ID: sid}
	inv := &schedule.Invocation{Schedule: sid}

	reg.EmitScheduleArmed(ctx, s)
	reg.EmitScheduleRewritten(ctx, s)
	reg.EmitScheduleCancelled(ctx, sid, 2)
	reg.EmitTimerFired(ctx, sid, time.Now())
	reg.EmitInvocationEnqueued(ctx, inv, 1)
	reg.EmitInvocationDropped(ctx, inv, schedule.DropOverflow)
	reg.EmitInvocationSettled(ctx, inv, nil, time.Millisecond)
	reg.EmitShutdown(ctx)

	if partial.settles != 1 {
		t.Errorf("partial settles = %d, want 1", partial.settles)
	}

	want := []string{"armed", "rewritten", "cancelled", "fired", "enqueued", "dropped", "settled", "shutdown"}
	if len(full.calls) != len(want) {
		t.Fatalf("full calls = %v, want %v", full.calls, want)
	}
	for i, c := range full.calls {
		if c != want[i] {
			t.Fatalf("full calls = %v, want %v", full.calls, want)
		}
	}
}

func TestRegistry_HookErrorsDoNotPropagate(t *testing.T) {
	reg := hook.NewRegistry(slog.Default())
	after := &everything{}
	reg.Register(failing{})
	reg.Register(after)

	// Must not panic, and later extensions still run.
	reg.EmitScheduleArmed(context.Background(), &schedule.Schedule{ID: id.NewScheduleID()})
	if len(after.calls) != 1 || after.calls[0] != "armed" {
		t.Errorf("extension after failing one: calls = %v, want [armed]", after.calls)
	}
}

func TestRegistry_Extensions(t *testing.T) {
	reg := hook.NewRegistry(nil)
	a := &settledOnly{}
	b := &everything{}
	reg.Register(a)
	reg.Register(b)

	exts := reg.Extensions()
	if len(exts) != 2 || exts[0] != hook.Extension(a) || exts[1] != hook.Extension(b) {
		t.Errorf("Extensions() = %v, want [a b] in registration order", exts)
	}
}
