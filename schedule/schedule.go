// Package schedule defines the core data model for safe-interval: the
// callable/callback contracts, per-firing invocations, per-schedule state,
// and the Store interface holding that state.
//
// A Schedule serializes all of its invocations: native timer firings are
// appended to a FIFO queue and drained one at a time, so invocation N settles
// (and its callback is delivered) strictly before invocation N+1 starts,
// regardless of how long each invocation takes relative to the timer period.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/evgenylyozin/safe-interval/id"
)

// State errors shared by Store implementations and their callers.
var (
	// ErrScheduleNotFound is returned when a schedule state slot does not
	// exist (never created, or already torn down after disarm + drain).
	ErrScheduleNotFound = errors.New("schedule: not found")

	// ErrScheduleDisarmed is returned by Enqueue when the schedule has been
	// disarmed: a disarmed schedule drains what it already holds but accepts
	// no new invocations.
	ErrScheduleDisarmed = errors.New("schedule: disarmed")
)

// Callable is the caller-supplied function executed on each timer firing.
// The variadic args are the ones captured at registration time. Errors are
// the callable's own business: a returned error settles the invocation with
// no value, reaches the callback and hooks, and never halts the schedule.
type Callable func(ctx context.Context, args ...any) (any, error)

// Callback receives the settled result of each drained invocation. It is
// invoked synchronously by the resolve loop, strictly before the next
// invocation is dequeued. On a failed invocation value is nil and err
// non-nil. The callback in effect is always the most recently registered
// one, even for invocations enqueued before it was installed.
type Callback func(value any, err error)

// Kind distinguishes the native timer primitive backing a schedule.
type Kind int

const (
	// KindInterval repeats on a fixed period until cancelled.
	KindInterval Kind = iota
	// KindTimeout fires exactly once after a delay.
	KindTimeout
	// KindCron repeats per a cron expression until cancelled.
	KindCron
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindInterval:
		return "interval"
	case KindTimeout:
		return "timeout"
	case KindCron:
		return "cron"
	default:
		return "unknown"
	}
}

// Mode distinguishes singleton registration (one live schedule per identity
// key, re-registration rewrites it) from multiple registration (every call
// creates an independent schedule).
type Mode int

const (
	ModeSingleton Mode = iota
	ModeMultiple
)

// String returns the mode name for logging.
func (m Mode) String() string {
	if m == ModeMultiple {
		return "multiple"
	}
	return "singleton"
}

// OverflowPolicy decides what happens when an enqueue would exceed a
// schedule's MaxDepth.
type OverflowPolicy int

const (
	// OverflowDropOldest evicts the head of the queue to make room.
	OverflowDropOldest OverflowPolicy = iota
	// OverflowDropNewest rejects the incoming invocation.
	OverflowDropNewest
)

// String returns the policy name for logging.
func (p OverflowPolicy) String() string {
	if p == OverflowDropNewest {
		return "drop_newest"
	}
	return "drop_oldest"
}

// DropReason explains why an invocation was discarded before draining.
type DropReason string

const (
	// DropOverflow: the queue hit MaxDepth.
	DropOverflow DropReason = "overflow"
	// DropRateLimited: the firing exceeded the schedule's rate limit.
	DropRateLimited DropReason = "rate_limited"
	// DropDiscarded: the caller cancelled or rewrote with the discard flag.
	DropDiscarded DropReason = "discarded"
)

// Invocation is one firing's pending unit of work: a thunk closing over the
// callable and the arguments in effect when the timer was armed. Seq is
// assigned by the Store at enqueue time and is strictly increasing per
// schedule. Value is populated by the resolve loop once the thunk settles.
type Invocation struct {
	Schedule id.ScheduleID
	Seq      uint64
	FiredAt  time.Time

	// Run executes the wrapped callable. Set at firing time, immutable after.
	Run func(ctx context.Context) (any, error)

	// Value is the settled result. Meaningful only after the resolve loop
	// has run the thunk; nil when the invocation failed.
	Value any
}

// Schedule describes one registered schedule. Key is the singleton identity
// (empty for multiple mode). Every is the period (interval) or delay
// (timeout); Spec is the cron expression for KindCron. MaxDepth of 0 means
// the pending queue is unbounded.
type Schedule struct {
	ID       id.ScheduleID
	Key      string
	Kind     Kind
	Mode     Mode
	Every    time.Duration
	Spec     string
	MaxDepth int
	Overflow OverflowPolicy

	CreatedAt time.Time
}
