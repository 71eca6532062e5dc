// Package memory provides the in-memory schedule.Store implementation.
// It is the only backend: schedule state is inherently process-local
// (pending invocations are closures) and never persisted.
package memory

import (
	"context"
	"sync"

	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// Compile-time interface check.
var _ schedule.Store = (*Store)(nil)

// slot is the full runtime state for one schedule.
type slot struct {
	sched    schedule.Schedule
	queue    []*schedule.Invocation
	callback schedule.Callback

	// draining is the single-flight flag: true while a resolve loop holds
	// this schedule.
	draining bool

	// disarmed blocks further enqueues; the slot is deleted once the queue
	// drains.
	disarmed bool

	// seq is the per-schedule enqueue counter.
	seq uint64
}

// Store is a mutex-guarded in-memory schedule store.
// Safe for concurrent access.
type Store struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// New returns a new empty Store.
func New() *Store {
	return &Store{slots: make(map[string]*slot)}
}

// Init creates the slot if absent; an existing slot is re-armed and its
// schedule record refreshed, keeping queue, drain flag, and callback.
func (m *Store) Init(_ context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.ID.String()
	if existing, ok := m.slots[key]; ok {
		existing.sched = *s
		existing.disarmed = false
		return nil
	}

	m.slots[key] = &slot{sched: *s}
	return nil
}

// Get returns a copy of the schedule record.
func (m *Store) Get(_ context.Context, sid id.ScheduleID) (*schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[sid.String()]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	cp := sl.sched
	return &cp, nil
}

// SetCallback overwrites the schedule's callback.
func (m *Store) SetCallback(_ context.Context, sid id.ScheduleID, cb schedule.Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[sid.String()]
	if !ok {
		return schedule.ErrScheduleNotFound
	}
	sl.callback = cb
	return nil
}

// GetCallback returns the current callback; nil when unset or the slot is gone.
func (m *Store) GetCallback(_ context.Context, sid id.ScheduleID) (schedule.Callback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[sid.String()]
	if !ok {
		return nil, nil
	}
	return sl.callback, nil
}

// Enqueue appends an invocation, assigning its sequence number and applying
// the schedule's depth limit and overflow policy.
func (m *Store) Enqueue(_ context.Context, sid id.ScheduleID, inv *schedule.Invocation) (*schedule.Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[sid.String()]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	if sl.disarmed {
		return nil, schedule.ErrScheduleDisarmed
	}

	sl.seq++
	inv.Seq = sl.seq

	if sl.sched.MaxDepth > 0 && len(sl.queue) >= sl.sched.MaxDepth {
		if sl.sched.Overflow == schedule.OverflowDropNewest {
			return inv, nil
		}
		dropped := sl.queue[0]
		sl.queue = sl.queue[1:]
		sl.queue = append(sl.queue, inv)
		return dropped, nil
	}

	sl.queue = append(sl.queue, inv)
	return nil, nil
}

// Dequeue pops the head of the queue.
func (m *Store) Dequeue(_ context.Context, sid id.ScheduleID) (*schedule.Invocation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[sid.String()]
	if !ok || len(sl.queue) == 0 {
		return nil, false, nil
	}

	inv := sl.queue[0]
	sl.queue = sl.queue[1:]
	return inv, true, nil
}

// Depth reports the pending queue length.
func (m *Store) Depth(_ context.Context, sid id.ScheduleID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[sid.String()]
	if !ok {
		return 0, nil
	}
	return len(sl.queue), nil
}

// BeginDrain acquires the single-flight drain flag.
func (m *Store) BeginDrain(_ context.Context, sid id.ScheduleID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[sid.String()]
	if !ok {
		return false, nil
	}
	if sl.draining {
		return false, nil
	}
	sl.draining = true
	return true, nil
}

// FinishDrain releases the drain flag, unless invocations arrived between
// the loop's empty Dequeue and this call, in which case the flag stays held
// and the loop keeps draining. Tears the slot down when disarmed.
func (m *Store) FinishDrain(_ context.Context, sid id.ScheduleID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sid.String()
	sl, ok := m.slots[key]
	if !ok {
		return false, nil
	}

	if len(sl.queue) > 0 {
		return true, nil
	}

	sl.draining = false
	if sl.disarmed {
		delete(m.slots, key)
	}
	return false, nil
}

// ClearQueue discards and returns all pending invocations.
func (m *Store) ClearQueue(_ context.Context, sid id.ScheduleID) ([]*schedule.Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[sid.String()]
	if !ok {
		return nil, nil
	}

	dropped := sl.queue
	sl.queue = nil
	return dropped, nil
}

// Disarm blocks further enqueues and removes the slot once it is idle.
func (m *Store) Disarm(_ context.Context, sid id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sid.String()
	sl, ok := m.slots[key]
	if !ok {
		return nil
	}

	sl.disarmed = true
	if !sl.draining && len(sl.queue) == 0 {
		delete(m.slots, key)
	}
	return nil
}

// Remove deletes the slot outright.
func (m *Store) Remove(_ context.Context, sid id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.slots, sid.String())
	return nil
}

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }
