package schedule

import (
	"context"

	"github.com/evgenylyozin/safe-interval/id"
)

// Store holds per-schedule state: the schedule record, the pending
// invocation queue, the drain-active flag, and the current callback.
//
// Store is pure state. It never decides when to cancel, enqueue, or drain —
// the timer layer and the resolve loop consult and mutate it. All methods
// are safe for concurrent use.
type Store interface {
	// Init creates the state slot for a schedule if it does not exist.
	// Re-initializing an existing slot re-arms it (clears a pending disarm)
	// and updates the schedule record; the queue, drain flag, and callback
	// are left untouched so they survive a singleton rewrite.
	Init(ctx context.Context, s *Schedule) error

	// Get returns a copy of the schedule record.
	// Returns ErrScheduleNotFound for a missing slot.
	Get(ctx context.Context, sid id.ScheduleID) (*Schedule, error)

	// SetCallback installs the callback for a schedule, overwriting any
	// prior one (nil clears it). Invocations already queued settle through
	// whichever callback is current when they settle.
	SetCallback(ctx context.Context, sid id.ScheduleID, cb Callback) error

	// GetCallback returns the current callback, or nil if none is set or
	// the slot is gone.
	GetCallback(ctx context.Context, sid id.ScheduleID) (Callback, error)

	// Enqueue appends an invocation, assigning its Seq. When MaxDepth is
	// exceeded the schedule's overflow policy decides: the returned dropped
	// invocation is either the evicted head (drop-oldest) or inv itself
	// (drop-newest, in which case inv was not enqueued). Returns
	// ErrScheduleNotFound for a missing slot and ErrScheduleDisarmed after
	// Disarm: late timer firings must not enqueue.
	Enqueue(ctx context.Context, sid id.ScheduleID, inv *Invocation) (dropped *Invocation, err error)

	// Dequeue removes and returns the head of the queue. ok is false when
	// the queue is empty or the slot is gone.
	Dequeue(ctx context.Context, sid id.ScheduleID) (inv *Invocation, ok bool, err error)

	// Depth reports the number of pending invocations. A missing slot has
	// depth zero.
	Depth(ctx context.Context, sid id.ScheduleID) (int, error)

	// BeginDrain attempts to acquire the schedule's single-flight drain
	// flag. It returns true exactly once until the matching FinishDrain
	// releases the flag; a drain already being active is not an error.
	BeginDrain(ctx context.Context, sid id.ScheduleID) (bool, error)

	// FinishDrain is called by the resolve loop when Dequeue reported an
	// empty queue. Atomically: if new invocations arrived in the meantime
	// it keeps the flag held and returns more=true (the loop must continue);
	// otherwise it releases the flag, tears the slot down if the schedule
	// was disarmed, and returns more=false.
	FinishDrain(ctx context.Context, sid id.ScheduleID) (more bool, err error)

	// ClearQueue discards all pending (not yet dequeued) invocations and
	// returns them so the caller can emit drop hooks. An in-flight
	// invocation is unaffected. A missing slot is a no-op.
	ClearQueue(ctx context.Context, sid id.ScheduleID) ([]*Invocation, error)

	// Disarm marks the schedule as accepting no further enqueues. If the
	// queue is already empty and no drain is active the slot is removed
	// immediately; otherwise removal happens when the drain finishes. A
	// missing slot is a no-op: cancellation never fails.
	Disarm(ctx context.Context, sid id.ScheduleID) error

	// Remove deletes the slot outright, pending queue included.
	Remove(ctx context.Context, sid id.ScheduleID) error

	// Close releases store resources.
	Close() error
}
