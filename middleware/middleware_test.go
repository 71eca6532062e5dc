package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/evgenylyozin/safe-interval/backoff"
	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/middleware"
	"github.com/evgenylyozin/safe-interval/schedule"
)

func testInv() *schedule.Invocation {
	return &schedule.Invocation{Schedule: id.NewScheduleID(), Seq: 1, FiredAt: time.Now()}
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *schedule.Invocation, next middleware.Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := middleware.Chain(tag("outer"), tag("inner"))
	err := chain(context.Background(), testInv(), func(context.Context) error {
		order = append(order, "thunk")
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := "outer:before,inner:before,thunk,inner:after,outer:after"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	ran := false
	if err := chain(context.Background(), testInv(), func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("chain: %v", err)
	}
	if !ran {
		t.Error("empty chain did not reach the thunk")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	errThunk := errors.New("thunk failed")
	pass := func(ctx context.Context, _ *schedule.Invocation, next middleware.Handler) error {
		return next(ctx)
	}

	chain := middleware.Chain(pass, pass)
	err := chain(context.Background(), testInv(), func(context.Context) error {
		return errThunk
	})
	if !errors.Is(err, errThunk) {
		t.Errorf("err = %v, want thunk error", err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	inv := testInv()
	inv.Value = "stale"

	err := mw(context.Background(), inv, func(context.Context) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("panic was not converted to an error")
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("err = %v, want panic value included", err)
	}
	if inv.Value != nil {
		t.Errorf("inv.Value = %v, want nil after panic", inv.Value)
	}
}

func TestRecover_PassesThroughNormalErrors(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	errNormal := errors.New("normal failure")

	err := mw(context.Background(), testInv(), func(context.Context) error {
		return errNormal
	})
	if !errors.Is(err, errNormal) {
		t.Errorf("err = %v, want the thunk's own error", err)
	}
}

func TestDeadline_CancelsSlowInvocations(t *testing.T) {
	mw := middleware.Deadline(10 * time.Millisecond)

	err := mw(context.Background(), testInv(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestDeadline_ZeroIsPassThrough(t *testing.T) {
	mw := middleware.Deadline(0)

	err := mw(context.Background(), testInv(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline on context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("mw: %v", err)
	}
}

func TestRetry_RerunsUntilSuccess(t *testing.T) {
	mw := middleware.Retry(slog.Default(), backoff.NewConstant(time.Millisecond), 5)

	attempts := 0
	err := mw(context.Background(), testInv(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("mw: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_GivesUpAfterBudget(t *testing.T) {
	mw := middleware.Retry(slog.Default(), backoff.NewConstant(time.Millisecond), 2)

	errAlways := errors.New("permanent")
	attempts := 0
	err := mw(context.Background(), testInv(), func(context.Context) error {
		attempts++
		return errAlways
	})
	if !errors.Is(err, errAlways) {
		t.Errorf("err = %v, want the final attempt's error", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", attempts)
	}
}

func TestRetry_StopsWhenContextCancelled(t *testing.T) {
	mw := middleware.Retry(slog.Default(), backoff.NewConstant(time.Hour), 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errAlways := errors.New("permanent")
	attempts := 0
	err := mw(ctx, testInv(), func(context.Context) error {
		attempts++
		return errAlways
	})
	if !errors.Is(err, errAlways) {
		t.Errorf("err = %v, want the attempt's error", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry after cancel)", attempts)
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	// No MeterProvider configured: noop instruments, behavior untouched.
	mw := middleware.Metrics()
	errThunk := errors.New("fail")

	if err := mw(context.Background(), testInv(), func(context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("success path: %v", err)
	}
	if err := mw(context.Background(), testInv(), func(context.Context) error {
		return errThunk
	}); !errors.Is(err, errThunk) {
		t.Errorf("error path: err = %v, want thunk error", err)
	}
}

func TestTracing_PassesThrough(t *testing.T) {
	mw := middleware.Tracing()

	ran := false
	if err := mw(context.Background(), testInv(), func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Errorf("mw: %v", err)
	}
	if !ran {
		t.Error("tracing middleware did not call the thunk")
	}
}
