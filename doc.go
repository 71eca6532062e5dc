// Package safeinterval provides ordering-safe periodic and delayed execution
// of a function.
//
// Go's native timers fire on a fixed cadence regardless of whether a previous
// invocation has finished, so overlapping slow invocations can settle out of
// the order they were started. safeinterval serializes all invocations of one
// schedule through a per-schedule FIFO queue drained by a single-flight
// resolve loop: invocation N settles, and its result callback is delivered,
// strictly before invocation N+1 starts. Cadence and completion ordering are
// decoupled — firings keep arriving on schedule and wait their turn.
//
// # Quick Start
//
//	r, err := safeinterval.New()
//	if err != nil { ... }
//	defer r.Close(context.Background())
//
//	cancel, err := r.Interval("poll-upstream", pollUpstream, 5*time.Second)
//	if err != nil { ... }
//	defer cancel()
//
// # Registration modes
//
// Singleton registration is keyed by an explicit stable identity: registering
// the same key again rewrites the live schedule — the old timer is replaced,
// the callback overwritten, while invocations already queued keep draining
// (unless the discard flag asks otherwise). Multiple registration creates a
// wholly independent schedule on every call: separate queue, separate drain,
// separate callback.
//
// # Architecture
//
// State lives in a schedule.Store (in-memory backend in store/memory), timers
// are wrapped by the timer package, draining is done by resolve.Loop, and
// lifecycle events fan out through the hook registry to extensions such as
// the stream broker. Invocations run through a composable middleware chain
// (recover, logging, metrics, tracing).
//
// All schedule and registration handles use TypeID — type-prefixed,
// K-sortable, UUIDv7-based identifiers.
package safeinterval
